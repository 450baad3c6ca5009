package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/fleet-approval/internal/core/events"
)

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("delivers asynchronously published events to every subscriber", func() {
		var calls atomic.Int32
		var seen atomic.Int64
		handler := func(_ context.Context, e events.Event) error {
			calls.Add(1)
			if ev, ok := e.(*events.NotificationCreatedEvent); ok {
				seen.Store(ev.RecipientID)
			}
			return nil
		}
		bus.Subscribe(events.EventTypeNotificationCreated, handler)
		bus.Subscribe(events.EventTypeNotificationCreated, handler)

		Expect(bus.Publish(context.Background(), events.NewNotificationCreatedEvent(7, 42, "hello"))).To(Succeed())
		bus.Wait()

		Expect(calls.Load()).To(Equal(int32(2)))
		Expect(seen.Load()).To(Equal(int64(7)))
	})

	It("does not cancel handlers when the publishing context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		var ctxErr atomic.Value
		release := make(chan struct{})
		bus.Subscribe(events.EventTypeNotificationCreated, func(hctx context.Context, _ events.Event) error {
			<-release
			ctxErr.Store(hctx.Err() == nil)
			return nil
		})

		Expect(bus.Publish(ctx, events.NewNotificationCreatedEvent(1, 1, nil))).To(Succeed())
		cancel()
		close(release)
		bus.Wait()

		Expect(ctxErr.Load()).To(BeTrue())
	})

	It("ignores events nobody subscribed to", func() {
		Expect(bus.Publish(context.Background(), events.NewNotificationCreatedEvent(1, 1, nil))).To(Succeed())
		Expect(bus.PublishSync(context.Background(), events.NewNotificationCreatedEvent(1, 1, nil))).To(Succeed())
	})

	It("stops at the first failing handler when publishing synchronously", func() {
		var second bool
		bus.Subscribe(events.EventTypeNotificationCreated, func(context.Context, events.Event) error {
			return errors.New("boom")
		})
		bus.Subscribe(events.EventTypeNotificationCreated, func(context.Context, events.Event) error {
			second = true
			return nil
		})

		err := bus.PublishSync(context.Background(), events.NewNotificationCreatedEvent(1, 1, nil))
		Expect(err).To(MatchError(ContainSubstring("boom")))
		Expect(second).To(BeFalse())
	})

	It("stamps each event with a fresh id", func() {
		a := events.NewNotificationCreatedEvent(1, 1, nil)
		b := events.NewNotificationCreatedEvent(1, 1, nil)
		Expect(a.EventID()).NotTo(Equal(b.EventID()))
		Expect(a.Payload()).To(HaveKeyWithValue("notification_id", int64(1)))
	})
})
