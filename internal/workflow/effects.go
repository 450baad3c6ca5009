package workflow

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/fleet-approval/internal/audit"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/notification"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/vehicle"
)

type kindTemplates struct {
	created   string
	forwarded string
	approved  string
	rejected  string
}

var templatesByKind = map[approval.Kind]kindTemplates{
	approval.KindTransport: {
		created:   notification.TemplateNewRequest,
		forwarded: notification.TemplateForwarded,
		approved:  notification.TemplateApproved,
		rejected:  notification.TemplateRejected,
	},
	approval.KindHighCost: {
		created:   notification.TemplateNewHighCost,
		forwarded: notification.TemplateHighCostForwarded,
		approved:  notification.TemplateHighCostApproved,
		rejected:  notification.TemplateHighCostRejected,
	},
	approval.KindMaintenance: {
		created:   notification.TemplateNewMaintenance,
		forwarded: notification.TemplateMaintenanceForwarded,
		approved:  notification.TemplateMaintenanceApproved,
		rejected:  notification.TemplateMaintenanceRejected,
	},
	approval.KindRefueling: {
		created:   notification.TemplateNewRefueling,
		forwarded: notification.TemplateRefuelingForwarded,
		approved:  notification.TemplateRefuelingApproved,
		rejected:  notification.TemplateRefuelingRejected,
	},
	approval.KindService: {
		created:   notification.TemplateNewService,
		forwarded: notification.TemplateServiceForwarded,
		approved:  notification.TemplateServiceApproved,
		rejected:  notification.TemplateServiceRejected,
	},
}

const dayLayout = "2006-01-02"

// afterAct runs the post-commit side effects of a routing action: audit
// first, then notifications. Nothing here can fail the action.
func (e *Engine) afterAct(ctx context.Context, actor, requester *user.User, req Request, in ActInput, assigned *vehicle.Vehicle) {
	h := req.Header()
	tpl := templatesByKind[req.Kind()]

	remarks := in.Payload.Remarks
	switch {
	case in.Action == approval.ActionReject:
		remarks = in.Payload.Message
	case assigned != nil:
		remarks = "Vehicle: " + assigned.LicensePlate
	}
	e.record(ctx, actor, req, in.Action, remarks)

	fields := e.fields(ctx, req, requester, assigned)
	target := notification.ForRequest(req.Kind(), h.ID)

	switch in.Action {
	case approval.ActionForward:
		fields["approver"] = actor.DisplayName()
		next, _ := h.State().CurrentRole()
		e.notifyRole(ctx, tpl.forwarded, target, next, fields)

	case approval.ActionReject:
		fields["rejector"] = actor.DisplayName()
		fields["rejection_reason"] = h.RejectionMessage
		e.notify(ctx, tpl.rejected, target, requester, fields)

	case approval.ActionApprove:
		fields["approver"] = actor.DisplayName()
		e.notifyApproved(ctx, req, requester, assigned, target, fields)
	}
}

func (e *Engine) notifyApproved(ctx context.Context, req Request, requester *user.User, assigned *vehicle.Vehicle, target notification.Target, fields notification.Fields) {
	tpl := templatesByKind[req.Kind()]

	switch req.Kind() {
	case approval.KindTransport:
		e.notify(ctx, tpl.approved, target, requester, fields)
		if driver := e.driverOf(ctx, assigned); driver != nil {
			e.notify(ctx, notification.TemplateAssigned, target, driver, fields)
		}

	case approval.KindHighCost:
		recipients := []*user.User{requester}
		recipients = append(recipients, e.activeHolders(ctx, approval.RoleFinanceManager)...)
		recipients = append(recipients, e.activeHolders(ctx, approval.RoleTransportManager)...)
		e.notifyMany(ctx, tpl.approved, target, recipients, fields)

	case approval.KindMaintenance, approval.KindRefueling:
		recipients := []*user.User{requester}
		recipients = append(recipients, e.activeHolders(ctx, approval.RoleFinanceManager)...)
		e.notifyMany(ctx, tpl.approved, target, recipients, fields)

	case approval.KindService:
		var recipients []*user.User
		if id, ok := vehicleOf(req); ok {
			if v, err := e.allocator.Get(ctx, id); err == nil {
				if driver := e.driverOf(ctx, v); driver != nil {
					recipients = append(recipients, driver)
				}
			}
		}
		recipients = append(recipients, requester)
		recipients = append(recipients, e.activeHolders(ctx, approval.RoleFinanceManager)...)
		e.notifyMany(ctx, tpl.approved, target, recipients, fields)
	}
}

func (e *Engine) record(ctx context.Context, actor *user.User, req Request, action approval.Action, remarks string) {
	h := req.Header()
	_, err := e.audit.Append(ctx, audit.Record{
		Target:       approval.Ref{Kind: req.Kind(), ID: h.ID},
		Actor:        actor,
		Action:       action,
		StatusAtTime: h.Status,
		Remarks:      remarks,
	})
	if err != nil {
		e.sideEffectFailed("audit")
		e.logger.Error("failed to append audit entry",
			"kind", req.Kind(),
			"request_id", h.ID,
			"action", action,
			"error", err)
	}
}

func (e *Engine) notify(ctx context.Context, key string, target notification.Target, recipient *user.User, fields notification.Fields) {
	if recipient == nil {
		return
	}
	if _, err := e.notifier.Dispatch(ctx, key, target, recipient, fields); err != nil {
		e.sideEffectFailed("notification")
		e.logger.Error("failed to notify", "template", key, "recipient_id", recipient.ID, "error", err)
	}
}

func (e *Engine) notifyMany(ctx context.Context, key string, target notification.Target, recipients []*user.User, fields notification.Fields) {
	if _, err := e.notifier.DispatchMany(ctx, key, target, recipients, fields); err != nil {
		e.sideEffectFailed("notification")
		e.logger.Error("failed to notify recipients", "template", key, "recipients", len(recipients), "error", err)
	}
}

func (e *Engine) notifyRole(ctx context.Context, key string, target notification.Target, role approval.Role, fields notification.Fields) {
	e.notifyMany(ctx, key, target, e.activeHolders(ctx, role), fields)
}

func (e *Engine) activeHolders(ctx context.Context, role approval.Role) []*user.User {
	users, err := e.directory.ActiveByRole(ctx, role)
	if err != nil {
		e.logger.Error("failed to resolve role holders", "role", role, "error", err)
		return nil
	}
	return users
}

func (e *Engine) driverOf(ctx context.Context, v *vehicle.Vehicle) *user.User {
	if v == nil || !v.HasDriver() {
		return nil
	}
	driver, err := e.directory.GetByID(ctx, *v.DriverID)
	if err != nil {
		e.logger.Warn("failed to resolve driver", "vehicle_id", v.ID, "error", err)
		return nil
	}
	return driver
}

func (e *Engine) sideEffectFailed(channel string) {
	if e.recorder != nil {
		e.recorder.SideEffectFailed(channel)
	}
}

// fields collects the template substitutions describing req.
func (e *Engine) fields(ctx context.Context, req Request, requester *user.User, v *vehicle.Vehicle) notification.Fields {
	h := req.Header()
	f := notification.Fields{
		"request_id": strconv.FormatInt(h.ID, 10),
		"requester":  requester.DisplayName(),
	}

	switch r := req.(type) {
	case *TransportRequest:
		tripFields(f, r.Trip, r.Passengers)
	case *HighCostRequest:
		tripFields(f, r.Trip, r.Passengers)
		setCost(f, r.TotalCost)
		if v == nil && r.EstimatedVehicleID != nil {
			v = e.lookupVehicle(ctx, *r.EstimatedVehicleID)
		}
	case *MaintenanceRequest:
		f["reason"] = r.Reason
		f["date"] = r.Date.Format(dayLayout)
		setCost(f, r.MaintenanceTotalCost)
	case *RefuelingRequest:
		f["destination"] = r.Destination
		setCost(f, r.TotalCost)
	case *ServiceRequest:
		setCost(f, r.ServiceTotalCost)
	}

	if v == nil {
		if id, ok := vehicleOf(req); ok {
			v = e.lookupVehicle(ctx, id)
		}
	}
	if v != nil {
		f["vehicle"] = v.Label()
		f["license_plate"] = v.LicensePlate
		f["vehicle_model"] = v.Model
		f["kilometers"] = strconv.FormatInt(v.TotalKilometers, 10)
		if driver := e.driverOf(ctx, v); driver != nil {
			f["driver"] = driver.DisplayName()
		}
	}
	return f
}

func (e *Engine) lookupVehicle(ctx context.Context, id int64) *vehicle.Vehicle {
	v, err := e.allocator.Get(ctx, id)
	if err != nil {
		e.logger.Warn("failed to resolve vehicle for notification", "vehicle_id", id, "error", err)
		return nil
	}
	return v
}

func tripFields(f notification.Fields, t Trip, passengers []*user.User) {
	f["destination"] = t.Destination
	f["start_day"] = t.StartDay.Format(dayLayout)
	f["return_day"] = t.ReturnDay.Format(dayLayout)
	if t.Reason != "" {
		f["reason"] = t.Reason
	}
	if len(passengers) > 0 {
		names := make([]string, 0, len(passengers))
		for _, p := range passengers {
			names = append(names, p.DisplayName())
		}
		f["passengers"] = strings.Join(names, ", ")
	}
}

func setCost(f notification.Fields, cost decimal.NullDecimal) {
	if cost.Valid {
		f["total_cost"] = cost.Decimal.StringFixed(2)
	}
}
