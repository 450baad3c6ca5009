package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/audit"
	"github.com/frahmantamala/fleet-approval/internal/auth"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/otp"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/transport/rest"
	"github.com/frahmantamala/fleet-approval/internal/transport/swagger"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
	"github.com/frahmantamala/fleet-approval/internal/workflow"
)

type rejectingAuth struct{}

func (rejectingAuth) Authenticate(context.Context, auth.LoginDTO) (auth.AuthTokens, error) {
	return auth.AuthTokens{}, apperrors.ErrInvalidCredentials
}

func (rejectingAuth) RefreshTokens(context.Context, string) (auth.AuthTokens, error) {
	return auth.AuthTokens{}, apperrors.ErrInvalidToken
}

func (rejectingAuth) Authenticated(context.Context, string) (*user.User, error) {
	return nil, apperrors.ErrInvalidToken
}

type rejectingTokens struct{}

func (rejectingTokens) UserIDFromToken(string) (int64, error) {
	return 0, apperrors.ErrInvalidToken
}

func newRouter(checks map[string]rest.Check) chi.Router {
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := transport.NewBaseHandler(lg)

	r := chi.NewRouter()
	rest.RegisterAllRoutes(r, rest.Handlers{
		Base:         base,
		Health:       rest.NewHealthHandler(checks),
		Auth:         auth.NewHandler(base, rejectingAuth{}),
		Tokens:       rejectingTokens{},
		User:         user.NewHandler(base),
		OTP:          &otp.Handler{},
		Workflow:     &workflow.Handler{},
		Vehicle:      &vehicle.Handler{},
		Audit:        &audit.Handler{},
		Notification: &notification.Handler{},
		Hub:          notification.NewHub(nil, lg),
		SpecPath:     "../../../api/openapi.yml",
	}, rest.Options{AllowedOrigins: "https://fleet.example.com", Logger: lg})
	return r
}

var _ = Describe("RegisterAllRoutes", func() {
	It("answers ping without authentication", func() {
		rec := httptest.NewRecorder()
		newRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("OK"))
		Expect(rec.Header().Get("X-Trace-ID")).NotTo(BeEmpty())
	})

	It("reports a failing dependency as 503", func() {
		router := newRouter(map[string]rest.Check{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		var body rest.HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Status).To(Equal(rest.HealthUnhealthy))
		Expect(body.Components["database"].Status).To(Equal(rest.HealthHealthy))
		Expect(body.Components["redis"].Message).To(Equal("connection refused"))
	})

	DescribeTable("rejects protected routes without a token",
		func(method, path string) {
			rec := httptest.NewRecorder()
			newRouter(nil).ServeHTTP(rec, httptest.NewRequest(method, path, nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		},
		Entry("inbox", http.MethodGet, "/api/v1/notifications"),
		Entry("create request", http.MethodPost, "/api/v1/requests/transport"),
		Entry("act", http.MethodPost, "/api/v1/requests/highcost/7/actions"),
		Entry("vehicles", http.MethodGet, "/api/v1/vehicles"),
		Entry("otp", http.MethodPost, "/api/v1/otp/request"),
		Entry("coupons", http.MethodGet, "/api/v1/coupons"),
		Entry("driver's vehicle", http.MethodGet, "/api/v1/vehicles/mine"),
	)

	It("rejects an invalid bearer token with the token error code", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		newRouter(nil).ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(rec.Body.String()).To(ContainSubstring("INVALID_TOKEN"))
	})

	It("refuses a websocket handshake with a bad token", func() {
		rec := httptest.NewRecorder()
		newRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws/notifications?token=bad", nil))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("answers CORS preflight for the configured origin", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/requests/transport", nil)
		req.Header.Set("Origin", "https://fleet.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		newRouter(nil).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://fleet.example.com"))
	})

	It("serves the OpenAPI document", func() {
		rec := httptest.NewRecorder()
		newRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yml", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Fleet Approval API"))
	})

	It("mounts every documented operation", func() {
		doc, err := swagger.Load(context.Background(), "../../../api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())

		mounted := map[string]bool{}
		err = chi.Walk(newRouter(nil), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			if route != "/" {
				route = strings.TrimSuffix(route, "/")
			}
			mounted[method+" "+route] = true
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		for _, op := range swagger.Operations(doc) {
			Expect(mounted).To(HaveKey(op), "undocumented route for %s", op)
		}
	})
})
