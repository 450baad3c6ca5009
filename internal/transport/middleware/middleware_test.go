package middleware_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/transport/middleware"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type observation struct {
	method string
	path   string
	status int
}

type observer struct {
	mu   sync.Mutex
	seen []observation
}

func (o *observer) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{method, path, status})
}

func errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("ClientIP", func() {
	capture := func(req *http.Request) string {
		var got string
		middleware.ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = apperrors.ClientIPFromContext(r.Context())
		})).ServeHTTP(httptest.NewRecorder(), req)
		return got
	}

	It("prefers the first forwarded hop", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		Expect(capture(req)).To(Equal("203.0.113.7"))
	})

	It("falls back to the socket peer", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.4:5123"
		Expect(capture(req)).To(Equal("198.51.100.4"))
	})
})

var _ = Describe("RequireRoles", func() {
	var (
		base    *transport.BaseHandler
		reached bool
		guarded http.Handler
	)

	BeforeEach(func() {
		reached = false
		base = transport.NewBaseHandler(discard)
		guarded = middleware.RequireRoles(base, approval.RoleTransportManager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
		}))
	})

	as := func(u *user.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/vehicles", nil)
		if u != nil {
			req = req.WithContext(user.WithContext(req.Context(), u))
		}
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		return rec
	}

	It("admits a holder of the role", func() {
		as(&user.User{ID: 5, Role: approval.RoleTransportManager})
		Expect(reached).To(BeTrue())
	})

	It("forbids other roles", func() {
		rec := as(&user.User{ID: 1, Role: approval.RoleEmployee})
		Expect(reached).To(BeFalse())
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(errorCode(rec)).To(Equal(string(apperrors.ErrRoleNotPermitted.Code)))
	})

	It("answers 401 without a user", func() {
		rec := as(nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("turns a panic into a 500 error body", func() {
		h := middleware.RecoveryMiddleware(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(errorCode(rec)).To(Equal("INTERNAL_ERROR"))
	})
})

var _ = Describe("RequestID", func() {
	It("reuses the caller trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.TraceHeader, "trace-1")
		rec := httptest.NewRecorder()
		middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)
		Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-1"))
	})

	It("mints one when absent", func() {
		rec := httptest.NewRecorder()
		middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Header().Get(middleware.TraceHeader)).To(HaveLen(36))
	})
})

var _ = Describe("LoggingMiddleware", func() {
	It("masks credentials in the logged body", func() {
		var buf bytes.Buffer
		lg := slog.New(slog.NewTextHandler(&buf, nil))

		h := middleware.LoggingMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			Expect(string(body)).To(ContainSubstring("hunter2"))
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.c","password":"hunter2"}`))
		h.ServeHTTP(httptest.NewRecorder(), req)

		Expect(buf.String()).To(ContainSubstring("[FILTERED]"))
		Expect(buf.String()).NotTo(ContainSubstring("hunter2"))
	})
})

var _ = Describe("Metrics", func() {
	It("labels by route pattern", func() {
		obs := &observer{}
		r := chi.NewRouter()
		r.Use(middleware.Metrics(obs))
		r.Get("/requests/{kind}/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/requests/transport/42", nil))
		Expect(obs.seen).To(ConsistOf(observation{http.MethodGet, "/requests/{kind}/{id}", http.StatusTeapot}))
	})
})
