package otp_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/core/database/dbtest"
	"github.com/frahmantamala/fleet-approval/internal/otp"
	otpPostgres "github.com/frahmantamala/fleet-approval/internal/otp/postgres"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

var _ = Describe("LockCache", func() {
	var (
		ctx    context.Context
		server *miniredis.Miniredis
		client *redis.Client
		cache  *otp.LockCache
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		server, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(server.Close)
		client = redis.NewClient(&redis.Options{Addr: server.Addr()})
		DeferCleanup(client.Close)
		cache = otp.NewLockCache(client)
	})

	unreachable := func() *otp.LockCache {
		dead, err := miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		addr := dead.Addr()
		dead.Close()
		c := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
		DeferCleanup(c.Close)
		return otp.NewLockCache(c)
	}

	It("mirrors a lock with its ttl", func() {
		Expect(cache.Lock(ctx, 7, 15*time.Minute)).To(Succeed())
		Expect(server.Exists("otp:lock:7")).To(BeTrue())
		Expect(server.TTL("otp:lock:7")).To(Equal(15 * time.Minute))

		locked, err := cache.Locked(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(locked).To(BeTrue())

		locked, err = cache.Locked(ctx, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(locked).To(BeFalse())
	})

	It("forgets the lock when the ttl lapses", func() {
		Expect(cache.Lock(ctx, 7, time.Minute)).To(Succeed())
		server.FastForward(time.Minute + time.Second)
		Expect(cache.Locked(ctx, 7)).To(BeFalse())
	})

	It("ignores non-positive ttls", func() {
		Expect(cache.Lock(ctx, 7, 0)).To(Succeed())
		Expect(server.Exists("otp:lock:7")).To(BeFalse())
	})

	It("reports an unreachable server", func() {
		_, err := unreachable().Locked(ctx, 7)
		Expect(err).To(HaveOccurred())
	})

	Describe("behind the gate", func() {
		var (
			gate    *otp.Gate
			tm      *user.User
			newGate func(*otp.LockCache) *otp.Gate
		)

		BeforeEach(func() {
			db, err := dbtest.OpenSQLite(&otp.Code{})
			Expect(err).NotTo(HaveOccurred())
			now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
			tm = &user.User{ID: 5, Role: approval.RoleTransportManager, PhoneNumber: "+628111", IsActive: true}
			newGate = func(locks *otp.LockCache) *otp.Gate {
				return otp.NewGate(
					otpPostgres.NewCodeRepository(db),
					database.NewTransactionManager(db),
					nil,
					otp.Config{},
					discard,
					otp.WithClock(func() time.Time { return now }),
					otp.WithCodeSource(func() (string, error) { return "123456", nil }),
					otp.WithLockCache(locks),
				)
			}
			gate = newGate(cache)
		})

		It("mirrors a brute-force lockout and refuses new codes from the mirror", func() {
			_, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 3; i++ {
				Expect(gate.Verify(ctx, tm, "000000", "10.0.0.1")).To(MatchError(apperrors.ErrOTPInvalid))
			}

			Expect(server.Exists("otp:lock:5")).To(BeTrue())
			Expect(server.TTL("otp:lock:5")).To(Equal(otp.DefaultLockout))
			Expect(gate.Verify(ctx, tm, "123456", "10.0.0.1")).To(MatchError(apperrors.ErrOTPLocked))
			_, err = gate.Generate(ctx, tm)
			Expect(err).To(MatchError(apperrors.ErrOTPLocked))
		})

		It("turns users away from the mirror alone", func() {
			_, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Set("otp:lock:5", "locked")).To(Succeed())
			Expect(gate.Verify(ctx, tm, "123456", "")).To(MatchError(apperrors.ErrOTPLocked))

			server.Del("otp:lock:5")
			Expect(gate.Verify(ctx, tm, "123456", "")).To(Succeed())
		})

		It("falls back to the database when redis is down", func() {
			_, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
			Expect(newGate(unreachable()).Verify(ctx, tm, "123456", "")).To(Succeed())
		})
	})
})
