package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/core/database"
	"github.com/frahmantamala/fleet-approval/internal/workflow"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req workflow.Request) error {
	// passengers already exist; only the join rows are written
	return database.GetDB(ctx, r.db).Omit("Passengers.*").Create(req).Error
}

func (r *RequestRepository) Get(ctx context.Context, kind approval.Kind, id int64) (workflow.Request, error) {
	return r.load(database.GetDB(ctx, r.db), kind, id)
}

func (r *RequestRepository) GetForUpdate(ctx context.Context, kind approval.Kind, id int64) (workflow.Request, error) {
	return r.load(database.GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), kind, id)
}

func (r *RequestRepository) load(q *gorm.DB, kind approval.Kind, id int64) (workflow.Request, error) {
	req, ok := workflow.NewModel(kind)
	if !ok {
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
	if kind.HasTrip() {
		q = q.Preload("Passengers")
	}
	if err := q.Where("id = ?", id).First(req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *RequestRepository) CompareAndSetState(ctx context.Context, kind approval.Kind, id int64, prev, next workflow.State, fields map[string]interface{}) (bool, error) {
	model, ok := workflow.NewModel(kind)
	if !ok {
		return false, fmt.Errorf("unknown request kind %q", kind)
	}

	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = next.Status
	if next.Role != nil {
		updates["current_approver_role"] = *next.Role
	} else {
		updates["current_approver_role"] = nil
	}

	q := database.GetDB(ctx, r.db).Model(model).Where("id = ? AND status = ?", id, prev.Status)
	if prev.Role != nil {
		q = q.Where("current_approver_role = ?", *prev.Role)
	} else {
		q = q.Where("current_approver_role IS NULL")
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *RequestRepository) Update(ctx context.Context, kind approval.Kind, id int64, fields map[string]interface{}) error {
	model, ok := workflow.NewModel(kind)
	if !ok {
		return fmt.Errorf("unknown request kind %q", kind)
	}
	res := database.GetDB(ctx, r.db).Model(model).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *RequestRepository) ListByRequester(ctx context.Context, kind approval.Kind, requesterID int64) ([]workflow.Request, error) {
	q := database.GetDB(ctx, r.db).Where("requester_id = ?", requesterID).Order("created_at DESC").Order("id DESC")
	return r.find(q, kind)
}

func (r *RequestRepository) ListAwaiting(ctx context.Context, kind approval.Kind, filter workflow.AwaitingFilter) ([]workflow.Request, error) {
	model, ok := workflow.NewModel(kind)
	if !ok {
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
	table := model.(interface{ TableName() string }).TableName()

	routed := r.db.Where(table+".status IN ? AND "+table+".current_approver_role = ?",
		[]approval.Status{approval.StatusPending, approval.StatusForwarded}, filter.Role)
	if filter.Unassigned && kind == approval.KindHighCost {
		routed = routed.Or(table+".status = ? AND "+table+".vehicle_assigned = ?", approval.StatusApproved, false)
	}

	q := database.GetDB(ctx, r.db).Where(routed)
	if filter.Department != "" {
		q = q.Select(table+".*").
			Joins("JOIN users ON users.id = "+table+".requester_id").
			Where("users.department = ?", filter.Department)
	}
	return r.find(q.Order(table+".created_at ASC").Order(table+".id ASC"), kind)
}

func (r *RequestRepository) ListDriving(ctx context.Context, kind approval.Kind, driverID int64) ([]workflow.Request, error) {
	if !kind.HasTrip() {
		return nil, fmt.Errorf("request kind %q has no trip", kind)
	}
	model, _ := workflow.NewModel(kind)
	table := model.(interface{ TableName() string }).TableName()

	q := database.GetDB(ctx, r.db).
		Select(table+".*").
		Joins("JOIN vehicles ON vehicles.id = "+table+".vehicle_id").
		Where("vehicles.driver_id = ?", driverID).
		Where(table+".status = ?", approval.StatusApproved).
		Order(table + ".start_day ASC").Order(table + ".id ASC")
	return r.find(q, kind)
}

func (r *RequestRepository) find(q *gorm.DB, kind approval.Kind) ([]workflow.Request, error) {
	if kind.HasTrip() {
		q = q.Preload("Passengers")
	}

	var out []workflow.Request
	switch kind {
	case approval.KindTransport:
		var rows []*workflow.TransportRequest
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, row)
		}
	case approval.KindHighCost:
		var rows []*workflow.HighCostRequest
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, row)
		}
	case approval.KindMaintenance:
		var rows []*workflow.MaintenanceRequest
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, row)
		}
	case approval.KindRefueling:
		var rows []*workflow.RefuelingRequest
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, row)
		}
	case approval.KindService:
		var rows []*workflow.ServiceRequest
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, row)
		}
	default:
		return nil, fmt.Errorf("unknown request kind %q", kind)
	}
	return out, nil
}

func (r *RequestRepository) HasApprovedMaintenance(ctx context.Context, vehicleID int64) (bool, error) {
	var count int64
	err := database.GetDB(ctx, r.db).Model(&workflow.MaintenanceRequest{}).
		Where("vehicle_id = ? AND status = ?", vehicleID, approval.StatusApproved).
		Count(&count).Error
	return count > 0, err
}

func (r *RequestRepository) LatestService(ctx context.Context, vehicleID int64) (*workflow.ServiceRequest, error) {
	var s workflow.ServiceRequest
	err := database.GetDB(ctx, r.db).
		Where("vehicle_id = ?", vehicleID).
		Order("created_at DESC").Order("id DESC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *RequestRepository) VehicleIDsUnderMaintenance(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := database.GetDB(ctx, r.db).Model(&workflow.MaintenanceRequest{}).
		Distinct("vehicle_id").
		Where("status IN ?", []approval.Status{approval.StatusPending, approval.StatusForwarded}).
		Order("vehicle_id").
		Pluck("vehicle_id", &ids).Error
	return ids, err
}

var _ workflow.Repository = (*RequestRepository)(nil)
