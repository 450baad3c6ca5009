package user_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type mockRepository struct {
	users   map[int64]*user.User
	created []*user.User
	listErr error
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (*user.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, user.ErrNotFound
}

func (m *mockRepository) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *mockRepository) ListByIDs(_ context.Context, ids []int64) ([]*user.User, error) {
	var out []*user.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepository) ListActiveByRole(_ context.Context, role approval.Role) ([]*user.User, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*user.User
	for _, u := range m.users {
		if u.Role == role && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepository) ListActiveByRoleInDepartment(_ context.Context, role approval.Role, dept string) ([]*user.User, error) {
	var out []*user.User
	for _, u := range m.users {
		if u.Role == role && u.Department == dept && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, u *user.User) error {
	m.created = append(m.created, u)
	return nil
}

var _ = Describe("Service", func() {
	var (
		ctx  context.Context
		repo *mockRepository
		svc  *user.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = &mockRepository{users: map[int64]*user.User{
			1: {ID: 1, Email: "emp@fleet.local", Role: approval.RoleEmployee, Department: "Engineering", IsActive: true},
			2: {ID: 2, Email: "tm@fleet.local", Role: approval.RoleTransportManager, IsActive: true},
		}}
		svc = user.NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("translates a missing user into the not found app error", func() {
		_, err := svc.GetByID(ctx, 42)
		Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())

		_, err = svc.GetByEmail(ctx, "ghost@fleet.local")
		Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())
	})

	It("rejects unknown ids when resolving passengers", func() {
		_, err := svc.ByIDs(ctx, []int64{1, 77})
		appErr, ok := apperrors.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("resolves known ids", func() {
		users, err := svc.ByIDs(ctx, []int64{1, 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(2))

		none, err := svc.ByIDs(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(none).To(BeEmpty())
	})

	It("wraps directory failures", func() {
		repo.listErr = errors.New("connection reset")
		_, err := svc.ActiveByRole(ctx, approval.RoleCEO)
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
	})

	It("refuses to create a user with an unknown role", func() {
		err := svc.Create(ctx, &user.User{Email: "x@fleet.local", Role: "JANITOR"})
		Expect(err).To(HaveOccurred())
		Expect(repo.created).To(BeEmpty())

		Expect(svc.Create(ctx, &user.User{Email: "y@fleet.local", Role: approval.RoleDriver})).To(Succeed())
		Expect(repo.created).To(HaveLen(1))
	})
})

var _ = Describe("Handler.GetCurrentUser", func() {
	var h *user.Handler

	BeforeEach(func() {
		h = user.NewHandler(transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil))))
	})

	It("returns the authenticated user without the password hash", func() {
		u := &user.User{ID: 9, Email: "ceo@fleet.local", Role: approval.RoleCEO, PasswordHash: "secret-hash"}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req = req.WithContext(user.WithContext(req.Context(), u))
		rec := httptest.NewRecorder()

		h.GetCurrentUser(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).NotTo(ContainSubstring("secret-hash"))
		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["role"]).To(Equal("CEO"))
	})

	It("answers 401 without an authenticated user", func() {
		rec := httptest.NewRecorder()
		h.GetCurrentUser(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
