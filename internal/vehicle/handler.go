package vehicle

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type AllocatorAPI interface {
	Create(ctx context.Context, actor *user.User, dto CreateVehicleDTO) (*Vehicle, error)
	Get(ctx context.Context, vehicleID int64) (*Vehicle, error)
	List(ctx context.Context, filter ListFilter) ([]*Vehicle, error)
	Activate(ctx context.Context, actor *user.User, vehicleID int64) (*Vehicle, error)
	Deactivate(ctx context.Context, actor *user.User, vehicleID int64) (*Vehicle, error)
	RecordMonthlyKilometers(ctx context.Context, actor *user.User, vehicleID int64, dto RecordKilometersDTO) (*Vehicle, error)

	AssignedTo(ctx context.Context, actor *user.User) (*Vehicle, error)
	DueForService(ctx context.Context, actor *user.User) ([]*Vehicle, error)
	KilometerLogsRecordedBy(ctx context.Context, actor *user.User) ([]*KilometerLog, error)
	RequestCoupon(ctx context.Context, actor *user.User, dto CouponRequestDTO) (*CouponRequest, error)
	Coupons(ctx context.Context, actor *user.User) ([]*CouponRequest, error)
}

type Handler struct {
	*transport.BaseHandler
	Allocator AllocatorAPI
}

func NewHandler(baseHandler *transport.BaseHandler, allocator AllocatorAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Allocator: allocator}
}

// List handles GET /vehicles?status=&available_only=&include_inactive=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.AvailableOnly, _ = strconv.ParseBool(q.Get("available_only"))
	filter.IncludeInactive, _ = strconv.ParseBool(q.Get("include_inactive"))

	vehicles, err := h.Allocator.List(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"vehicles": vehicles})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	v, err := h.Allocator.Get(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateVehicleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	v, err := h.Allocator.Create(r.Context(), actor, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.Allocator.Activate)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.Allocator.Deactivate)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, *user.User, int64) (*Vehicle, error)) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	v, err := fn(r.Context(), actor, id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, v)
}

// RecordKilometers handles POST /vehicles/{id}/kilometers
func (h *Handler) RecordKilometers(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	var dto RecordKilometersDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	v, err := h.Allocator.RecordMonthlyKilometers(r.Context(), actor, id, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, v)
}

// Mine handles GET /vehicles/mine
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	v, err := h.Allocator.AssignedTo(r.Context(), actor)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, v)
}

// DueForService handles GET /vehicles/due-for-service
func (h *Handler) DueForService(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	vehicles, err := h.Allocator.DueForService(r.Context(), actor)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if vehicles == nil {
		vehicles = []*Vehicle{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"vehicles": vehicles})
}

// MyKilometerLogs handles GET /vehicles/mine/kilometers
func (h *Handler) MyKilometerLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	logs, err := h.Allocator.KilometerLogsRecordedBy(r.Context(), actor)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*KilometerLog{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

// RequestCoupon handles POST /coupons
func (h *Handler) RequestCoupon(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CouponRequestDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	c, err := h.Allocator.RequestCoupon(r.Context(), actor, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, c)
}

// Coupons handles GET /coupons
func (h *Handler) Coupons(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	coupons, err := h.Allocator.Coupons(r.Context(), actor)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if coupons == nil {
		coupons = []*CouponRequest{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"coupons": coupons})
}
