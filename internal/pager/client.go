package pager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	ErrQueueFull = errors.New("sms queue full")
	ErrClosed    = errors.New("sms client closed")
)

// Recorder receives per-page delivery outcomes.
type Recorder interface {
	PageDelivered(outcome string)
}

type Config struct {
	URL          string
	Timeout      time.Duration
	MaxWorkers   int
	JobQueueSize int
}

// Client pages users through an HTTP SMS gateway. Send only enqueues; a
// fixed pool of workers performs the HTTP calls.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	recorder   Recorder
	logger     *slog.Logger

	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

type Option func(*Client)

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(config Config, logger *slog.Logger, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    config.URL,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan Job, jobQueueSize),
		workerPool: make(chan chan Job, maxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.startWorkerPool()
	return c
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {
		for i := 0; i < c.maxWorkers; i++ {
			NewWorker(i, c.workerPool, c.logger).Start(c.ctx, &c.wg, c.deliver)
		}

		c.wg.Add(1)
		go c.dispatch()

		c.logger.Info("sms worker pool started",
			"max_workers", c.maxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	defer c.wg.Done()

	for {
		select {
		case job := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- job:
				case <-c.ctx.Done():
					return
				}
			case <-c.ctx.Done():
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues text for phoneNumber without blocking. A full queue drops the
// page and reports ErrQueueFull.
func (c *Client) Send(_ context.Context, phoneNumber, text string) error {
	if c.baseURL == "" {
		c.logger.Debug("sms gateway not configured, page skipped", "phone_number", mask(phoneNumber))
		c.observe("skipped")
		return nil
	}
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case c.jobQueue <- Job{PhoneNumber: phoneNumber, Text: text}:
		return nil
	default:
		c.logger.Warn("sms queue full, page dropped",
			"phone_number", mask(phoneNumber),
			"queue_capacity", cap(c.jobQueue))
		c.observe("dropped")
		return ErrQueueFull
	}
}

// Shutdown stops the workers; queued pages that were not picked up are lost.
func (c *Client) Shutdown() {
	c.logger.Info("shutting down sms client", "pending", len(c.jobQueue))
	c.cancel()
	c.wg.Wait()
	c.logger.Info("sms client shutdown complete")
}

func (c *Client) deliver(job Job) {
	if err := c.send(job); err != nil {
		c.logger.Error("sms delivery failed", "phone_number", mask(job.PhoneNumber), "error", err)
		c.observe("failed")
		return
	}
	c.observe("sent")
}

// send issues GET {url}&phonenumber=..&message=.. with a bounded timeout.
func (c *Client) send(job Job) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	target := fmt.Sprintf("%s&phonenumber=%s&message=%s",
		c.baseURL,
		url.QueryEscape(job.PhoneNumber),
		escape(job.Text))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) observe(outcome string) {
	if c.recorder != nil {
		c.recorder.PageDelivered(outcome)
	}
}

// escape percent-encodes every reserved byte, spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func mask(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
