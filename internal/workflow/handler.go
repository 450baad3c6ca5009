package workflow

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/audit"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
)

type EngineAPI interface {
	CreateTransport(ctx context.Context, actor *user.User, dto CreateTransportDTO) (*TransportRequest, error)
	CreateHighCost(ctx context.Context, actor *user.User, dto CreateHighCostDTO) (*HighCostRequest, error)
	CreateMaintenance(ctx context.Context, actor *user.User, dto CreateMaintenanceDTO) (*MaintenanceRequest, error)
	CreateRefueling(ctx context.Context, actor *user.User, dto CreateRefuelingDTO) (*RefuelingRequest, error)

	Act(ctx context.Context, actor *user.User, in ActInput) (Request, error)
	Estimate(ctx context.Context, actor *user.User, kind approval.Kind, id int64, dto EstimateDTO) (Request, error)
	SubmitArtifacts(ctx context.Context, actor *user.User, kind approval.Kind, id int64, dto ArtifactsDTO) (Request, error)
	AssignHighCostVehicle(ctx context.Context, actor *user.User, id int64) (*HighCostRequest, error)
	CompleteTrip(ctx context.Context, actor *user.User, kind approval.Kind, id int64) (Request, error)

	Get(ctx context.Context, actor *user.User, kind approval.Kind, id int64) (Request, error)
	ListMine(ctx context.Context, actor *user.User, kind approval.Kind) ([]Request, error)
	ListAwaiting(ctx context.Context, actor *user.User, kind approval.Kind) ([]Request, error)
	ListDriving(ctx context.Context, actor *user.User, kind approval.Kind) ([]Request, error)
	History(ctx context.Context, actor *user.User, kind approval.Kind, id int64) ([]audit.Entry, error)

	MarkVehicleForMaintenance(ctx context.Context, actor *user.User, vehicleID int64) (*vehicle.Vehicle, error)
	MarkVehicleForService(ctx context.Context, actor *user.User, vehicleID int64) (*ServiceRequest, error)
	MarkAvailableAfterMaintenance(ctx context.Context, actor *user.User, vehicleID int64) (*vehicle.Vehicle, error)
	MarkAvailableAfterService(ctx context.Context, actor *user.User, vehicleID int64) (*vehicle.Vehicle, error)
	ListUnderMaintenance(ctx context.Context, actor *user.User) ([]*vehicle.Vehicle, error)
}

type Handler struct {
	*transport.BaseHandler
	Engine EngineAPI
}

func NewHandler(baseHandler *transport.BaseHandler, engine EngineAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Engine: engine}
}

// ActRequest is the body of POST /requests/{kind}/{id}/actions.
type ActRequest struct {
	Action string `json:"action"`
	ActPayload
}

// Create handles POST /requests/{kind}
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.actorAndKind(w, r)
	if !ok {
		return
	}

	var (
		created Request
		err     error
	)
	switch kind {
	case approval.KindTransport:
		var dto CreateTransportDTO
		if err = h.DecodeJSON(r, &dto); err == nil {
			created, err = h.Engine.CreateTransport(r.Context(), actor, dto)
		}
	case approval.KindHighCost:
		var dto CreateHighCostDTO
		if err = h.DecodeJSON(r, &dto); err == nil {
			created, err = h.Engine.CreateHighCost(r.Context(), actor, dto)
		}
	case approval.KindMaintenance:
		var dto CreateMaintenanceDTO
		if err = h.DecodeJSON(r, &dto); err == nil {
			created, err = h.Engine.CreateMaintenance(r.Context(), actor, dto)
		}
	case approval.KindRefueling:
		var dto CreateRefuelingDTO
		if err = h.DecodeJSON(r, &dto); err == nil {
			created, err = h.Engine.CreateRefueling(r.Context(), actor, dto)
		}
	default:
		err = apperrors.ErrUnknownKind.WithMessage("service requests are opened by marking a vehicle for service")
	}
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, created)
}

// ListMine handles GET /requests/{kind}/mine
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.actorAndKind(w, r)
	if !ok {
		return
	}
	reqs, err := h.Engine.ListMine(r.Context(), actor, kind)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": nonNil(reqs)})
}

// ListAwaiting handles GET /requests/{kind}/awaiting
func (h *Handler) ListAwaiting(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.actorAndKind(w, r)
	if !ok {
		return
	}
	reqs, err := h.Engine.ListAwaiting(r.Context(), actor, kind)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": nonNil(reqs)})
}

// ListDriving handles GET /requests/{kind}/driving
func (h *Handler) ListDriving(w http.ResponseWriter, r *http.Request) {
	actor, kind, ok := h.actorAndKind(w, r)
	if !ok {
		return
	}
	reqs, err := h.Engine.ListDriving(r.Context(), actor, kind)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": nonNil(reqs)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	req, err := h.Engine.Get(r.Context(), actor, kind, id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// Act handles POST /requests/{kind}/{id}/actions
func (h *Handler) Act(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var body ActRequest
	if err := h.DecodeJSON(r, &body); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	req, err := h.Engine.Act(r.Context(), actor, ActInput{
		Kind:      kind,
		RequestID: id,
		Action:    approval.Action(body.Action),
		Payload:   body.ActPayload,
	})
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// Estimate handles POST /requests/{kind}/{id}/estimate
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var dto EstimateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	req, err := h.Engine.Estimate(r.Context(), actor, kind, id, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// SubmitArtifacts handles POST /requests/{kind}/{id}/artifacts
func (h *Handler) SubmitArtifacts(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var dto ArtifactsDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	req, err := h.Engine.SubmitArtifacts(r.Context(), actor, kind, id, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// AssignVehicle handles POST /requests/highcost/{id}/assign-vehicle
func (h *Handler) AssignVehicle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	req, err := h.Engine.AssignHighCostVehicle(r.Context(), actor, id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// CompleteTrip handles POST /requests/{kind}/{id}/complete-trip
func (h *Handler) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	req, err := h.Engine.CompleteTrip(r.Context(), actor, kind, id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, req)
}

// History handles GET /requests/{kind}/{id}/audit
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	actor, kind, id, ok := h.target(w, r)
	if !ok {
		return
	}
	entries, err := h.Engine.History(r.Context(), actor, kind, id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *Handler) MarkMaintenance(w http.ResponseWriter, r *http.Request) {
	h.vehicleAction(w, r, h.Engine.MarkVehicleForMaintenance)
}

func (h *Handler) AvailableAfterMaintenance(w http.ResponseWriter, r *http.Request) {
	h.vehicleAction(w, r, h.Engine.MarkAvailableAfterMaintenance)
}

func (h *Handler) AvailableAfterService(w http.ResponseWriter, r *http.Request) {
	h.vehicleAction(w, r, h.Engine.MarkAvailableAfterService)
}

// MarkService handles POST /vehicles/{id}/service
func (h *Handler) MarkService(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	req, err := h.Engine.MarkVehicleForService(r.Context(), actor, id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, req)
}

// UnderMaintenance handles GET /vehicles/under-maintenance
func (h *Handler) UnderMaintenance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	vehicles, err := h.Engine.ListUnderMaintenance(r.Context(), actor)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if vehicles == nil {
		vehicles = []*vehicle.Vehicle{}
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"vehicles": vehicles})
}

func (h *Handler) vehicleAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, *user.User, int64) (*vehicle.Vehicle, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
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

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess))
	}
	return actor, ok
}

func (h *Handler) actorAndKind(w http.ResponseWriter, r *http.Request) (*user.User, approval.Kind, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return nil, "", false
	}
	kind, ok := approval.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		h.WriteAppError(w, r, apperrors.ErrUnknownKind)
		return nil, "", false
	}
	return actor, kind, true
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (*user.User, approval.Kind, int64, bool) {
	actor, kind, ok := h.actorAndKind(w, r)
	if !ok {
		return nil, "", 0, false
	}
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return nil, "", 0, false
	}
	return actor, kind, id, true
}

func nonNil(reqs []Request) []Request {
	if reqs == nil {
		return []Request{}
	}
	return reqs
}
