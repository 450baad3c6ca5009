package workflow

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

// Request is implemented by every request variant.
type Request interface {
	Kind() approval.Kind
	Header() *Base
}

// Base holds the routing columns shared by all request tables.
type Base struct {
	ID                  int64           `gorm:"primaryKey" json:"id"`
	RequesterID         int64           `gorm:"column:requester_id;not null;index" json:"requester_id"`
	Status              approval.Status `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	CurrentApproverRole *approval.Role  `gorm:"column:current_approver_role;type:varchar(32);index" json:"current_approver_role,omitempty"`
	RejectionMessage    string          `gorm:"column:rejection_message;type:text" json:"rejection_message,omitempty"`
	CreatedAt           time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (b *Base) Header() *Base {
	return b
}

func (b *Base) State() State {
	return State{Status: b.Status, Role: b.CurrentApproverRole}
}

func (b *Base) setState(s State) {
	b.Status = s.Status
	b.CurrentApproverRole = s.Role
}

// Trip is the itinerary shared by transport and high cost requests.
type Trip struct {
	StartDay      time.Time `gorm:"column:start_day;type:date;not null" json:"start_day"`
	ReturnDay     time.Time `gorm:"column:return_day;type:date;not null" json:"return_day"`
	StartTime     string    `gorm:"column:start_time;type:varchar(5)" json:"start_time,omitempty"`
	Destination   string    `gorm:"column:destination;not null" json:"destination"`
	Reason        string    `gorm:"column:reason;type:text" json:"reason,omitempty"`
	TripCompleted bool      `gorm:"column:trip_completed;not null" json:"trip_completed"`
}

// Estimate is the persisted CostEstimator output.
type Estimate struct {
	EstimatedDistanceKm decimal.NullDecimal `gorm:"column:estimated_distance_km;type:numeric(12,2)" json:"estimated_distance_km"`
	FuelPricePerLiter   decimal.NullDecimal `gorm:"column:fuel_price_per_liter;type:numeric(12,2)" json:"fuel_price_per_liter"`
	FuelNeededLiters    decimal.NullDecimal `gorm:"column:fuel_needed_liters;type:numeric(12,2)" json:"fuel_needed_liters"`
	TotalCost           decimal.NullDecimal `gorm:"column:total_cost;type:numeric(12,2)" json:"total_cost"`
}

// Missing lists the estimate inputs that have not been recorded yet.
func (e Estimate) Missing() []string {
	var missing []string
	if !e.EstimatedDistanceKm.Valid {
		missing = append(missing, "estimated_distance_km")
	}
	if !e.FuelPricePerLiter.Valid {
		missing = append(missing, "fuel_price_per_liter")
	}
	return missing
}

type TransportRequest struct {
	Base
	Trip
	VehicleID  *int64       `gorm:"column:vehicle_id;index" json:"vehicle_id,omitempty"`
	Passengers []*user.User `gorm:"many2many:transport_request_passengers;joinForeignKey:TransportRequestID;joinReferences:UserID" json:"passengers"`
}

func (TransportRequest) TableName() string { return "transport_requests" }

func (*TransportRequest) Kind() approval.Kind { return approval.KindTransport }

type HighCostRequest struct {
	Base
	Trip
	Estimate
	EstimatedVehicleID *int64       `gorm:"column:estimated_vehicle_id" json:"estimated_vehicle_id,omitempty"`
	VehicleID          *int64       `gorm:"column:vehicle_id;index" json:"vehicle_id,omitempty"`
	VehicleAssigned    bool         `gorm:"column:vehicle_assigned;not null" json:"vehicle_assigned"`
	EmployeeListFile   string       `gorm:"column:employee_list_file" json:"employee_list_file,omitempty"`
	Passengers         []*user.User `gorm:"many2many:highcost_request_passengers;joinForeignKey:HighcostRequestID;joinReferences:UserID" json:"passengers"`
}

func (HighCostRequest) TableName() string { return "highcost_requests" }

func (*HighCostRequest) Kind() approval.Kind { return approval.KindHighCost }

type MaintenanceRequest struct {
	Base
	VehicleID            int64               `gorm:"column:vehicle_id;not null;index" json:"vehicle_id"`
	Reason               string              `gorm:"column:reason;type:text;not null" json:"reason"`
	Date                 time.Time           `gorm:"column:date;type:date;not null" json:"date"`
	MaintenanceLetter    string              `gorm:"column:maintenance_letter" json:"maintenance_letter,omitempty"`
	ReceiptFile          string              `gorm:"column:receipt_file" json:"receipt_file,omitempty"`
	MaintenanceTotalCost decimal.NullDecimal `gorm:"column:maintenance_total_cost;type:numeric(12,2)" json:"maintenance_total_cost"`
}

func (MaintenanceRequest) TableName() string { return "maintenance_requests" }

func (*MaintenanceRequest) Kind() approval.Kind { return approval.KindMaintenance }

// MissingArtifacts lists the absent GeneralSystem documents in declaration order.
func (m *MaintenanceRequest) MissingArtifacts() []string {
	return absent(
		artifact{"maintenance_letter", m.MaintenanceLetter != ""},
		artifact{"receipt_file", m.ReceiptFile != ""},
		artifact{"maintenance_total_cost", m.MaintenanceTotalCost.Valid},
	)
}

type RefuelingRequest struct {
	Base
	Estimate
	VehicleID   int64  `gorm:"column:vehicle_id;not null;index" json:"vehicle_id"`
	Destination string `gorm:"column:destination;not null" json:"destination"`
}

func (RefuelingRequest) TableName() string { return "refueling_requests" }

func (*RefuelingRequest) Kind() approval.Kind { return approval.KindRefueling }

type ServiceRequest struct {
	Base
	VehicleID        int64               `gorm:"column:vehicle_id;not null;index" json:"vehicle_id"`
	ServiceLetter    string              `gorm:"column:service_letter" json:"service_letter,omitempty"`
	ReceiptFile      string              `gorm:"column:receipt_file" json:"receipt_file,omitempty"`
	ServiceTotalCost decimal.NullDecimal `gorm:"column:service_total_cost;type:numeric(12,2)" json:"service_total_cost"`
}

func (ServiceRequest) TableName() string { return "service_requests" }

func (*ServiceRequest) Kind() approval.Kind { return approval.KindService }

func (s *ServiceRequest) MissingArtifacts() []string {
	return absent(
		artifact{"service_letter", s.ServiceLetter != ""},
		artifact{"receipt_file", s.ReceiptFile != ""},
		artifact{"service_total_cost", s.ServiceTotalCost.Valid},
	)
}

type artifact struct {
	field   string
	present bool
}

func absent(items ...artifact) []string {
	var missing []string
	for _, a := range items {
		if !a.present {
			missing = append(missing, a.field)
		}
	}
	return missing
}

// Models lists every request table for migrations and test databases.
func Models() []interface{} {
	return []interface{}{
		&TransportRequest{},
		&HighCostRequest{},
		&MaintenanceRequest{},
		&RefuelingRequest{},
		&ServiceRequest{},
	}
}

// NewModel returns an empty request of kind.
func NewModel(kind approval.Kind) (Request, bool) {
	switch kind {
	case approval.KindTransport:
		return &TransportRequest{}, true
	case approval.KindHighCost:
		return &HighCostRequest{}, true
	case approval.KindMaintenance:
		return &MaintenanceRequest{}, true
	case approval.KindRefueling:
		return &RefuelingRequest{}, true
	case approval.KindService:
		return &ServiceRequest{}, true
	}
	return nil, false
}

// vehicleOf returns the vehicle a request is about or was assigned, if any.
func vehicleOf(req Request) (int64, bool) {
	switch r := req.(type) {
	case *TransportRequest:
		if r.VehicleID != nil {
			return *r.VehicleID, true
		}
	case *HighCostRequest:
		if r.VehicleID != nil {
			return *r.VehicleID, true
		}
	case *MaintenanceRequest:
		return r.VehicleID, true
	case *RefuelingRequest:
		return r.VehicleID, true
	case *ServiceRequest:
		return r.VehicleID, true
	}
	return 0, false
}
