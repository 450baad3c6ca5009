package workflow

import (
	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

// checkForwardGates enforces the stage preconditions that must hold before a
// request leaves the current approver.
func checkForwardGates(req Request) error {
	current, ok := req.Header().State().CurrentRole()
	if !ok {
		return nil
	}

	switch r := req.(type) {
	case *HighCostRequest:
		if current == approval.RoleTransportManager {
			if missing := r.Estimate.Missing(); len(missing) > 0 {
				return missingEstimate(missing)
			}
		}
	case *RefuelingRequest:
		if current == approval.RoleTransportManager {
			if missing := r.Estimate.Missing(); len(missing) > 0 {
				return missingEstimate(missing)
			}
		}
	case *MaintenanceRequest:
		if current == approval.RoleGeneralSystem {
			if missing := r.MissingArtifacts(); len(missing) > 0 {
				return missingArtifacts(missing)
			}
		}
	case *ServiceRequest:
		if current == approval.RoleGeneralSystem {
			if missing := r.MissingArtifacts(); len(missing) > 0 {
				return missingArtifacts(missing)
			}
		}
	}
	return nil
}

func missingEstimate(fields []string) error {
	return apperrors.NewMissingPreconditionError("the cost estimate must be recorded before forwarding", apperrors.ErrCodeMissingEstimate, fields...)
}

func missingArtifacts(fields []string) error {
	return apperrors.NewMissingPreconditionError("letter, receipt and total cost must be submitted before forwarding", apperrors.ErrCodeMissingArtifacts, fields...)
}
