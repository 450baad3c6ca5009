package otp_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/core/database/dbtest"
	"github.com/frahmantamala/fleet-approval/internal/otp"
	otpPostgres "github.com/frahmantamala/fleet-approval/internal/otp/postgres"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type page struct {
	phone string
	text  string
}

type recordingPager struct {
	mu    sync.Mutex
	pages []page
	err   error
}

func (p *recordingPager) Send(_ context.Context, phone, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = append(p.pages, page{phone: phone, text: text})
	return p.err
}

type outcomes struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomes) OTPVerification(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, outcome)
}

var _ = Describe("Gate", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		gate     *otp.Gate
		pager    *recordingPager
		recorder *outcomes
		now      time.Time
		codes    []string
		tm       *user.User
	)

	nextCode := func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = dbtest.OpenSQLite(&otp.Code{})
		Expect(err).NotTo(HaveOccurred())

		now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		codes = []string{"123456", "654321", "111111"}
		pager = &recordingPager{}
		recorder = &outcomes{}
		tm = &user.User{ID: 5, FullName: "Tari", Role: approval.RoleTransportManager, PhoneNumber: "+628111", IsActive: true}

		gate = otp.NewGate(
			otpPostgres.NewCodeRepository(db),
			database.NewTransactionManager(db),
			pager,
			otp.Config{},
			discard,
			otp.WithClock(func() time.Time { return now }),
			otp.WithCodeSource(nextCode),
			otp.WithRecorder(recorder),
			otp.WithLockCache(otp.NewLockCache(nil)),
		)
	})

	countCodes := func() int64 {
		var n int64
		Expect(db.Model(&otp.Code{}).Count(&n).Error).To(Succeed())
		return n
	}

	Describe("Generate", func() {
		It("stores a five minute code and pages it", func() {
			code, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
			Expect(code.ExpiresAt).To(Equal(now.Add(5 * time.Minute)))
			Expect(pager.pages).To(ConsistOf(page{phone: "+628111", text: "Your OTP is: 123456. It expires in 5 minutes."}))
		})

		It("replaces the previous code", func() {
			_, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
			_, err = gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())

			Expect(countCodes()).To(Equal(int64(1)))
			Expect(gate.Verify(ctx, tm, "123456", "10.0.0.1")).To(MatchError(apperrors.ErrOTPInvalid))
			Expect(gate.Verify(ctx, tm, "654321", "10.0.0.1")).To(Succeed())
		})

		It("needs a phone number", func() {
			tm.PhoneNumber = ""
			_, err := gate.Generate(ctx, tm)
			Expect(err).To(MatchError(apperrors.ErrNoPhone))
		})

		It("keeps the code when paging fails", func() {
			pager.err = errors.New("gateway down")
			_, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
			Expect(gate.Verify(ctx, tm, "123456", "")).To(Succeed())
		})
	})

	Describe("Verify", func() {
		BeforeEach(func() {
			_, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
		})

		It("consumes a matching code", func() {
			Expect(gate.Verify(ctx, tm, "123456", "10.0.0.1")).To(Succeed())
			Expect(countCodes()).To(BeZero())
			Expect(gate.Verify(ctx, tm, "123456", "10.0.0.1")).To(MatchError(apperrors.ErrOTPNotFound))
			Expect(recorder.seen).To(Equal([]string{"ok", "not_found"}))
		})

		It("reports the attempt number on a mismatch", func() {
			err := gate.Verify(ctx, tm, "000000", "10.0.0.1")
			Expect(err).To(MatchError(apperrors.ErrOTPInvalid))
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Message).To(Equal("Invalid OTP. Attempt 1 of 3."))
		})

		It("locks after three misses, even for the right code", func() {
			for i := 0; i < 3; i++ {
				Expect(gate.Verify(ctx, tm, "000000", "10.0.0.1")).To(MatchError(apperrors.ErrOTPInvalid))
			}

			err := gate.Verify(ctx, tm, "123456", "10.0.0.1")
			Expect(err).To(MatchError(apperrors.ErrOTPLocked))
			appErr, _ := apperrors.IsAppError(err)
			Expect(appErr.StatusCode).To(Equal(http.StatusLocked))

			_, err = gate.Generate(ctx, tm)
			Expect(err).To(MatchError(apperrors.ErrOTPLocked))
		})

		It("lets the user in again once the lockout passes", func() {
			for i := 0; i < 3; i++ {
				_ = gate.Verify(ctx, tm, "000000", "10.0.0.1")
			}
			now = now.Add(16 * time.Minute)

			Expect(gate.Verify(ctx, tm, "123456", "10.0.0.1")).To(MatchError(apperrors.ErrOTPExpired))
			_, err := gate.Generate(ctx, tm)
			Expect(err).NotTo(HaveOccurred())
			Expect(gate.Verify(ctx, tm, "654321", "10.0.0.1")).To(Succeed())
		})

		It("deletes an expired code", func() {
			now = now.Add(5 * time.Minute)
			Expect(gate.Verify(ctx, tm, "123456", "")).To(MatchError(apperrors.ErrOTPExpired))
			Expect(countCodes()).To(BeZero())
		})
	})

	Describe("Handler", func() {
		var handler *otp.Handler

		BeforeEach(func() {
			handler = otp.NewHandler(transport.NewBaseHandler(discard), gate)
		})

		serve := func(fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/otp", strings.NewReader(body))
			req = req.WithContext(user.WithContext(req.Context(), tm))
			rec := httptest.NewRecorder()
			fn(rec, req)
			return rec
		}

		It("issues and verifies over HTTP", func() {
			Expect(serve(handler.Request, "").Code).To(Equal(http.StatusAccepted))
			Expect(serve(handler.Verify, `{"code":"123456"}`).Code).To(Equal(http.StatusOK))
		})

		It("rejects a malformed code before touching the gate", func() {
			rec := serve(handler.Verify, `{"code":"12ab"}`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(recorder.seen).To(BeEmpty())
		})
	})
})
