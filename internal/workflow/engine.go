package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/audit"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/estimate"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
)

// Directory is the actor directory.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	ByIDs(ctx context.Context, ids []int64) ([]*user.User, error)
	ActiveByRole(ctx context.Context, role approval.Role) ([]*user.User, error)
	ActiveByRoleInDepartment(ctx context.Context, role approval.Role, department string) ([]*user.User, error)
}

// Allocator is the vehicle state machine consulted inside transitions.
type Allocator interface {
	Get(ctx context.Context, vehicleID int64) (*vehicle.Vehicle, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*vehicle.Vehicle, error)
	Assign(ctx context.Context, vehicleID int64, opts vehicle.AssignOptions) (*vehicle.Vehicle, error)
	Release(ctx context.Context, vehicleID int64) (*vehicle.Vehicle, error)
	ReturnFrom(ctx context.Context, vehicleID int64, from vehicle.Status) (*vehicle.Vehicle, error)
	ToMaintenance(ctx context.Context, vehicleID int64) (*vehicle.Vehicle, error)
	ToService(ctx context.Context, vehicleID int64) (*vehicle.Vehicle, error)
}

type Estimator interface {
	Estimate(kind approval.Kind, distanceKm, fuelEfficiency, pricePerLiter decimal.Decimal) (estimate.Result, error)
}

type AuditLog interface {
	Append(ctx context.Context, rec audit.Record) (*audit.Entry, error)
	ListByTarget(ctx context.Context, target approval.Ref) ([]audit.Entry, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, key string, target notification.Target, recipient *user.User, fields notification.Fields) (*notification.Notification, error)
	DispatchMany(ctx context.Context, key string, target notification.Target, recipients []*user.User, fields notification.Fields) ([]*notification.Notification, error)
}

// Recorder observes transitions and absorbed side-effect failures.
type Recorder interface {
	TransitionObserved(kind approval.Kind, action approval.Action, outcome string)
	SideEffectFailed(channel string)
}

// Guard is an optional check run before a routing action loads state.
type Guard interface {
	Check(ctx context.Context, actor *user.User, in ActInput) error
}

type Dependencies struct {
	Repo      Repository
	Tx        database.TransactionManager
	Directory Directory
	Allocator Allocator
	Estimator Estimator
	Audit     AuditLog
	Notifier  Notifier
	Recorder  Recorder
	Guards    []Guard
	Now       func() time.Time
	Logger    *slog.Logger
}

// Engine orchestrates every request transition.
type Engine struct {
	repo      Repository
	tx        database.TransactionManager
	directory Directory
	allocator Allocator
	estimator Estimator
	audit     AuditLog
	notifier  Notifier
	recorder  Recorder
	guards    []Guard
	now       func() time.Time
	logger    *slog.Logger
}

func NewEngine(deps Dependencies) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		repo:      deps.Repo,
		tx:        deps.Tx,
		directory: deps.Directory,
		allocator: deps.Allocator,
		estimator: deps.Estimator,
		audit:     deps.Audit,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		guards:    deps.Guards,
		now:       deps.Now,
		logger:    deps.Logger,
	}
}

type ActInput struct {
	Kind      approval.Kind
	RequestID int64
	Action    approval.Action
	Payload   ActPayload
}

type ActPayload struct {
	Message   string `json:"message"`
	Remarks   string `json:"remarks"`
	VehicleID int64  `json:"vehicle_id"`
	OTPCode   string `json:"otp_code"`
	Signature string `json:"signature"`
}

// Act applies forward, reject or approve on behalf of the current approver.
func (e *Engine) Act(ctx context.Context, actor *user.User, in ActInput) (Request, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess)
	}
	if !in.Kind.Valid() {
		return nil, apperrors.ErrUnknownKind
	}
	if _, ok := approval.ParseAction(string(in.Action)); !ok {
		return nil, apperrors.ErrUnknownAction.WithMessage(fmt.Sprintf("unknown action %q", in.Action))
	}
	in.Payload.Message = strings.TrimSpace(in.Payload.Message)
	if in.Action == approval.ActionReject && in.Payload.Message == "" {
		return nil, apperrors.NewValidationFieldError("message", "a rejection message is required", apperrors.ErrCodeRejectionRequired)
	}
	if in.Kind == approval.KindTransport && in.Action == approval.ActionApprove && in.Payload.VehicleID <= 0 {
		return nil, apperrors.NewValidationFieldError("vehicle_id", "vehicle_id is required to approve a transport request", apperrors.ErrCodeValidationFailed)
	}

	for _, g := range e.guards {
		if err := g.Check(ctx, actor, in); err != nil {
			e.observe(in.Kind, in.Action, "guard_denied")
			return nil, err
		}
	}

	var (
		req       Request
		requester *user.User
		assigned  *vehicle.Vehicle
	)
	err := e.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = e.lock(txCtx, in.Kind, in.RequestID)
		if err != nil {
			return err
		}
		requester, err = e.authorize(txCtx, actor, req)
		if err != nil {
			return err
		}

		prev := req.Header().State()
		if in.Action == approval.ActionForward {
			if err := checkForwardGates(req); err != nil {
				return err
			}
		}
		next, err := prev.Apply(in.Kind, in.Action)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{}
		switch in.Action {
		case approval.ActionReject:
			fields["rejection_message"] = in.Payload.Message
			req.Header().RejectionMessage = in.Payload.Message
		case approval.ActionApprove:
			if tr, ok := req.(*TransportRequest); ok {
				assigned, err = e.allocator.Assign(txCtx, in.Payload.VehicleID, vehicle.AssignOptions{RequireDriver: true})
				if err != nil {
					return err
				}
				fields["vehicle_id"] = assigned.ID
				tr.VehicleID = &assigned.ID
			}
		}

		ok, err := e.repo.CompareAndSetState(txCtx, in.Kind, in.RequestID, prev, next, fields)
		if err != nil {
			return fmt.Errorf("failed to write request state: %w", err)
		}
		if !ok {
			return apperrors.ErrConcurrentModification
		}
		req.Header().setState(next)
		return nil
	})
	if err != nil {
		e.observe(in.Kind, in.Action, outcomeOf(err))
		e.logger.Warn("workflow action refused",
			"kind", in.Kind,
			"request_id", in.RequestID,
			"action", in.Action,
			"actor_id", actor.ID,
			"error", err)
		return nil, err
	}

	e.observe(in.Kind, in.Action, "ok")
	e.logger.Info("workflow action applied",
		"kind", in.Kind,
		"request_id", in.RequestID,
		"action", in.Action,
		"actor_id", actor.ID,
		"status", req.Header().Status)

	e.afterAct(ctx, actor, requester, req, in, assigned)
	return req, nil
}

func (e *Engine) lock(ctx context.Context, kind approval.Kind, id int64) (Request, error) {
	req, err := e.repo.GetForUpdate(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	return req, nil
}

// authorize checks the actor against the freshly loaded state and returns
// the requester.
func (e *Engine) authorize(ctx context.Context, actor *user.User, req Request) (*user.User, error) {
	h := req.Header()
	current, ok := h.State().CurrentRole()
	if !ok {
		return nil, apperrors.ErrRequestFinalized
	}
	if actor.Role != current {
		return nil, apperrors.ErrWrongApproverRole.WithDetails(map[string]interface{}{
			"current_approver_role": current,
		})
	}

	requester, err := e.directory.GetByID(ctx, h.RequesterID)
	if err != nil {
		return nil, err
	}
	if req.Kind() == approval.KindTransport && current == approval.RoleDepartmentManager &&
		requester.Department != actor.Department {
		return nil, apperrors.ErrOutsideDepartment
	}
	return requester, nil
}

func (e *Engine) observe(kind approval.Kind, action approval.Action, outcome string) {
	if e.recorder != nil {
		e.recorder.TransitionObserved(kind, action, outcome)
	}
}

func outcomeOf(err error) string {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return strings.ToLower(string(appErr.Type))
	}
	return "error"
}
