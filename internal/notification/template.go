package notification

import (
	"regexp"
	"strings"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
)

const (
	TemplateNewRequest              = "new_request"
	TemplateForwarded               = "forwarded"
	TemplateApproved                = "approved"
	TemplateAssigned                = "assigned"
	TemplateRejected                = "rejected"
	TemplateNewHighCost             = "new_highcost"
	TemplateHighCostForwarded       = "highcost_forwarded"
	TemplateHighCostApproved        = "highcost_approved"
	TemplateHighCostRejected        = "highcost_rejected"
	TemplateHighCostVehicleAssigned = "highcost_vehicle_assigned"
	TemplateNewMaintenance          = "new_maintenance"
	TemplateMaintenanceForwarded    = "maintenance_forwarded"
	TemplateMaintenanceApproved     = "maintenance_approved"
	TemplateMaintenanceRejected     = "maintenance_rejected"
	TemplateNewRefueling            = "new_refueling"
	TemplateRefuelingForwarded      = "refueling_forwarded"
	TemplateRefuelingApproved       = "refueling_approved"
	TemplateRefuelingRejected       = "refueling_rejected"
	TemplateNewService              = "new_service"
	TemplateServiceForwarded        = "service_forwarded"
	TemplateServiceApproved         = "service_approved"
	TemplateServiceRejected         = "service_rejected"
	TemplateServiceDue              = "service_due"
	TemplateTripCompleted           = "trip_completed"
)

type Template struct {
	Title          string
	Body           string
	Priority       Priority
	ActionRequired bool
}

var templates = map[string]Template{
	TemplateNewRequest: {
		Title:          "New Transport Request",
		Body:           "{requester} submitted transport request #{request_id} to {destination} from {start_day} to {return_day}. Passengers: {passengers}.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateForwarded: {
		Title:          "Transport Request Forwarded",
		Body:           "Transport request #{request_id} by {requester} to {destination} was forwarded by {approver} and awaits your decision.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateApproved: {
		Title:    "Transport Request Approved",
		Body:     "Your transport request #{request_id} to {destination} was approved by {approver}. Vehicle: {vehicle}. Driver: {driver}.",
		Priority: PriorityNormal,
	},
	TemplateAssigned: {
		Title:          "New Trip Assignment",
		Body:           "You are assigned to drive {vehicle} for request #{request_id} to {destination} starting {start_day}.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateRejected: {
		Title:    "Transport Request Rejected",
		Body:     "Your transport request #{request_id} to {destination} was rejected by {rejector}. Reason: {rejection_reason} Passengers: {passengers}.",
		Priority: PriorityHigh,
	},
	TemplateNewHighCost: {
		Title:          "New High Cost Request",
		Body:           "{requester} submitted high cost trip request #{request_id} to {destination} from {start_day} to {return_day}.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateHighCostForwarded: {
		Title:          "High Cost Request Forwarded",
		Body:           "High cost request #{request_id} by {requester} to {destination} was forwarded by {approver} and awaits your decision.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateHighCostApproved: {
		Title:    "High Cost Request Approved",
		Body:     "High cost request #{request_id} to {destination} was approved by {approver}. Estimated cost: {total_cost}. A vehicle will be assigned by the transport manager.",
		Priority: PriorityNormal,
	},
	TemplateHighCostRejected: {
		Title:    "High Cost Request Rejected",
		Body:     "Your high cost request #{request_id} to {destination} was rejected by {rejector}. Reason: {rejection_reason}",
		Priority: PriorityHigh,
	},
	TemplateHighCostVehicleAssigned: {
		Title:    "Vehicle Assigned",
		Body:     "Vehicle {vehicle} was assigned to your high cost request #{request_id} to {destination}. Driver: {driver}.",
		Priority: PriorityNormal,
	},
	TemplateNewMaintenance: {
		Title:          "New Maintenance Request",
		Body:           "{requester} requested maintenance for {vehicle} on {date}. Reason: {reason}",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateMaintenanceForwarded: {
		Title:          "Maintenance Request Forwarded",
		Body:           "Maintenance request #{request_id} for {vehicle} was forwarded by {approver} and awaits your decision.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateMaintenanceApproved: {
		Title:    "Maintenance Request Approved",
		Body:     "Maintenance request #{request_id} for {vehicle} was approved by {approver}. Total cost: {total_cost}.",
		Priority: PriorityNormal,
	},
	TemplateMaintenanceRejected: {
		Title:    "Maintenance Request Rejected",
		Body:     "Your maintenance request #{request_id} for {vehicle} was rejected by {rejector}. Reason: {rejection_reason}",
		Priority: PriorityHigh,
	},
	TemplateNewRefueling: {
		Title:          "New Refueling Request",
		Body:           "{requester} requested refueling for {vehicle} to travel to {destination}.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateRefuelingForwarded: {
		Title:          "Refueling Request Forwarded",
		Body:           "Refueling request #{request_id} for {vehicle} was forwarded by {approver} and awaits your decision.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateRefuelingApproved: {
		Title:    "Refueling Request Approved",
		Body:     "Refueling request #{request_id} for {vehicle} was approved by {approver}. Total cost: {total_cost}.",
		Priority: PriorityNormal,
	},
	TemplateRefuelingRejected: {
		Title:    "Refueling Request Rejected",
		Body:     "Your refueling request #{request_id} for {vehicle} was rejected by {rejector}. Reason: {rejection_reason}",
		Priority: PriorityHigh,
	},
	TemplateNewService: {
		Title:          "Vehicle Sent To Service",
		Body:           "{requester} sent {vehicle} to service at {kilometers} km. Service request #{request_id} needs the service letter, receipt and total cost.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateServiceForwarded: {
		Title:          "Service Request Forwarded",
		Body:           "Service request #{request_id} for {vehicle} was forwarded by {approver} and awaits your decision.",
		Priority:       PriorityNormal,
		ActionRequired: true,
	},
	TemplateServiceApproved: {
		Title:    "Service Request Approved",
		Body:     "Service request #{request_id} for {vehicle} was approved by {approver}. Total cost: {total_cost}.",
		Priority: PriorityNormal,
	},
	TemplateServiceRejected: {
		Title:    "Service Request Rejected",
		Body:     "Service request #{request_id} for {vehicle} was rejected by {rejector}. Reason: {rejection_reason}",
		Priority: PriorityHigh,
	},
	TemplateServiceDue: {
		Title:    "Vehicle Service Due",
		Body:     "Vehicle {vehicle_model} (Plate: {license_plate}) has reached {kilometers} km since its last service and is due for service.",
		Priority: PriorityHigh,
	},
	TemplateTripCompleted: {
		Title:    "Trip Completed",
		Body:     "{completer} completed the trip to {destination} with vehicle {license_plate} (request #{request_id}).",
		Priority: PriorityNormal,
	},
}

var fieldDefaults = Fields{
	"rejector":         "Unknown",
	"approver":         "Unknown",
	"rejection_reason": "No reason provided.",
	"passengers":       "No additional passengers",
}

var placeholder = regexp.MustCompile(`\{[a-z_]+\}`)

// Lookup returns the template registered under key.
func Lookup(key string) (Template, error) {
	tpl, ok := templates[key]
	if !ok {
		return Template{}, apperrors.ErrUnknownTemplate.WithMessage("unknown notification template: " + key)
	}
	return tpl, nil
}

// Render substitutes fields into the template body. Placeholders with no
// value and no default render as "N/A".
func (t Template) Render(fields Fields) string {
	pairs := make([]string, 0, 2*(len(fields)+len(fieldDefaults)))
	for k, v := range fieldDefaults {
		if fv, ok := fields[k]; ok && strings.TrimSpace(fv) != "" {
			v = fv
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	for k, v := range fields {
		if _, isDefault := fieldDefaults[k]; isDefault {
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	out := strings.NewReplacer(pairs...).Replace(t.Body)
	return placeholder.ReplaceAllString(out, "N/A")
}
