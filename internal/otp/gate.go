package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3
	DefaultLockout     = 15 * time.Minute
)

type Pager interface {
	Send(ctx context.Context, phoneNumber, text string) error
}

// Recorder receives verification outcomes.
type Recorder interface {
	OTPVerification(outcome string)
}

type Config struct {
	TTL         time.Duration
	MaxAttempts int
	Lockout     time.Duration
}

// Gate issues and checks one-time codes.
type Gate struct {
	repo     Repository
	tx       database.TransactionManager
	pager    Pager
	locks    *LockCache
	recorder Recorder
	cfg      Config
	now      func() time.Time
	generate func() (string, error)
	logger   *slog.Logger
}

type Option func(*Gate)

func WithLockCache(c *LockCache) Option {
	return func(g *Gate) { g.locks = c }
}

func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithCodeSource(fn func() (string, error)) Option {
	return func(g *Gate) { g.generate = fn }
}

func NewGate(repo Repository, tx database.TransactionManager, pager Pager, cfg Config, logger *slog.Logger, opts ...Option) *Gate {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = DefaultLockout
	}
	g := &Gate{
		repo:     repo,
		tx:       tx,
		pager:    pager,
		cfg:      cfg,
		now:      time.Now,
		generate: randomCode,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate replaces the user's code with a fresh one and pages it.
// A user inside a lockout window cannot mint a new code.
func (g *Gate) Generate(ctx context.Context, u *user.User) (*Code, error) {
	if u.PhoneNumber == "" {
		return nil, apperrors.ErrNoPhone
	}
	if g.cachedLock(ctx, u.ID) {
		return nil, apperrors.ErrOTPLocked
	}

	value, err := g.generate()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to generate one-time code", err)
	}

	now := g.now()
	code := &Code{UserID: u.ID, Code: value, CreatedAt: now, ExpiresAt: now.Add(g.cfg.TTL)}
	err = g.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := g.repo.GetForUpdate(txCtx, u.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to load otp: %w", err)
		}
		if current != nil && current.Locked(now) {
			return apperrors.ErrOTPLocked
		}
		if err := g.repo.Replace(txCtx, code); err != nil {
			return fmt.Errorf("failed to store otp: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("otp issued", "user_id", u.ID, "expires_at", code.ExpiresAt)
	if g.pager != nil {
		text := fmt.Sprintf("Your OTP is: %s. It expires in %d minutes.", value, int(g.cfg.TTL.Minutes()))
		if err := g.pager.Send(ctx, u.PhoneNumber, text); err != nil {
			g.logger.Warn("failed to page otp", "user_id", u.ID, "error", err)
		}
	}
	return code, nil
}

// Verify consumes a matching code. Failed attempts and expiry cleanup are
// committed even though the call reports an error.
func (g *Gate) Verify(ctx context.Context, u *user.User, submitted, ip string) error {
	if g.cachedLock(ctx, u.ID) {
		g.observe("locked")
		return apperrors.ErrOTPLocked
	}

	var outcome error
	var lockedNow bool
	err := g.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := g.now()
		c, err := g.repo.GetForUpdate(txCtx, u.ID)
		if errors.Is(err, ErrNotFound) {
			outcome = apperrors.ErrOTPNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load otp: %w", err)
		}

		switch {
		case c.Locked(now):
			outcome = apperrors.ErrOTPLocked
			return nil
		case c.Expired(now):
			outcome = apperrors.ErrOTPExpired
			return g.repo.Delete(txCtx, c.ID)
		case c.Code != submitted:
			c.Attempts++
			if c.Attempts >= g.cfg.MaxAttempts {
				until := now.Add(g.cfg.Lockout)
				c.LockedUntil = &until
				lockedNow = true
			}
			outcome = apperrors.ErrOTPInvalid.WithMessage(fmt.Sprintf("Invalid OTP. Attempt %d of %d.", c.Attempts, g.cfg.MaxAttempts))
			return g.repo.Save(txCtx, c)
		}
		return g.repo.Delete(txCtx, c.ID)
	})
	if err != nil {
		g.observe("error")
		return err
	}

	if lockedNow {
		g.logger.Warn("security event", "user_id", u.ID, "ip", ip, "reason", "Brute-force OTP")
		if err := g.locks.Lock(ctx, u.ID, g.cfg.Lockout); err != nil {
			g.logger.Warn("failed to mirror otp lockout", "user_id", u.ID, "error", err)
		}
	}

	g.observe(outcomeLabel(outcome))
	return outcome
}

func (g *Gate) cachedLock(ctx context.Context, userID int64) bool {
	locked, err := g.locks.Locked(ctx, userID)
	if err != nil {
		g.logger.Warn("otp lock cache unavailable", "user_id", userID, "error", err)
		return false
	}
	return locked
}

func (g *Gate) observe(outcome string) {
	if g.recorder != nil {
		g.recorder.OTPVerification(outcome)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrOTPNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrOTPLocked):
		return "locked"
	case errors.Is(err, apperrors.ErrOTPExpired):
		return "expired"
	}
	return "invalid"
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
