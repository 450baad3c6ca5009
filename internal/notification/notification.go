package notification

import (
	"time"

	"gorm.io/datatypes"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is one inbox entry. At most one of the reference columns is set.
type Notification struct {
	ID                   int64          `gorm:"primaryKey" json:"id"`
	RecipientID          int64          `gorm:"column:recipient_id;not null;index:idx_notifications_recipient" json:"recipient_id"`
	TransportRequestID   *int64         `gorm:"column:transport_request_id" json:"transport_request_id,omitempty"`
	HighCostRequestID    *int64         `gorm:"column:highcost_request_id" json:"highcost_request_id,omitempty"`
	MaintenanceRequestID *int64         `gorm:"column:maintenance_request_id" json:"maintenance_request_id,omitempty"`
	RefuelingRequestID   *int64         `gorm:"column:refueling_request_id" json:"refueling_request_id,omitempty"`
	ServiceRequestID     *int64         `gorm:"column:service_request_id" json:"service_request_id,omitempty"`
	VehicleID            *int64         `gorm:"column:vehicle_id" json:"vehicle_id,omitempty"`
	Type                 string         `gorm:"column:type;type:varchar(48);not null" json:"type"`
	Title                string         `gorm:"column:title;not null" json:"title"`
	Message              string         `gorm:"column:message;type:text;not null" json:"message"`
	IsRead               bool           `gorm:"column:is_read;not null;index:idx_notifications_recipient" json:"is_read"`
	ActionRequired       bool           `gorm:"column:action_required;not null" json:"action_required"`
	Priority             Priority       `gorm:"column:priority;type:varchar(8);not null" json:"priority"`
	Metadata             datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt            time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Target is what a notification refers to: one request, one vehicle, or nothing.
type Target struct {
	Request   *approval.Ref
	VehicleID int64
}

func ForRequest(kind approval.Kind, id int64) Target {
	return Target{Request: &approval.Ref{Kind: kind, ID: id}}
}

func ForVehicle(id int64) Target {
	return Target{VehicleID: id}
}

func (t Target) apply(n *Notification) {
	if t.VehicleID != 0 {
		id := t.VehicleID
		n.VehicleID = &id
		return
	}
	if t.Request == nil {
		return
	}
	id := t.Request.ID
	switch t.Request.Kind {
	case approval.KindTransport:
		n.TransportRequestID = &id
	case approval.KindHighCost:
		n.HighCostRequestID = &id
	case approval.KindMaintenance:
		n.MaintenanceRequestID = &id
	case approval.KindRefueling:
		n.RefuelingRequestID = &id
	case approval.KindService:
		n.ServiceRequestID = &id
	}
}

// RequestRef returns the request the notification points at, if any.
func (n *Notification) RequestRef() (approval.Ref, bool) {
	switch {
	case n.TransportRequestID != nil:
		return approval.Ref{Kind: approval.KindTransport, ID: *n.TransportRequestID}, true
	case n.HighCostRequestID != nil:
		return approval.Ref{Kind: approval.KindHighCost, ID: *n.HighCostRequestID}, true
	case n.MaintenanceRequestID != nil:
		return approval.Ref{Kind: approval.KindMaintenance, ID: *n.MaintenanceRequestID}, true
	case n.RefuelingRequestID != nil:
		return approval.Ref{Kind: approval.KindRefueling, ID: *n.RefuelingRequestID}, true
	case n.ServiceRequestID != nil:
		return approval.Ref{Kind: approval.KindService, ID: *n.ServiceRequestID}, true
	}
	return approval.Ref{}, false
}

// Fields are the substitution values for a template.
type Fields map[string]string

// Page is one slice of a recipient's inbox.
type Page struct {
	Items      []*Notification `json:"notifications"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}
