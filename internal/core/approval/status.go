package approval

type Status string

const (
	StatusPending   Status = "pending"
	StatusForwarded Status = "forwarded"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further transition may fire from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusForwarded, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Action is a verb recorded against a request.
type Action string

const (
	ActionForward Action = "forward"
	ActionReject  Action = "reject"
	ActionApprove Action = "approve"

	ActionCreate          Action = "create"
	ActionEstimate        Action = "estimate"
	ActionSubmitArtifacts Action = "submit_artifacts"
	ActionAssignVehicle   Action = "assign_vehicle"
	ActionCompleteTrip    Action = "complete_trip"
)

// ParseAction accepts only the routing verbs: forward, reject and approve.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	switch a {
	case ActionForward, ActionReject, ActionApprove:
		return a, true
	}
	return a, false
}

// Past is the audit form of the verb.
func (a Action) Past() string {
	switch a {
	case ActionForward:
		return "forwarded"
	case ActionReject:
		return "rejected"
	case ActionApprove:
		return "approved"
	case ActionCreate:
		return "created"
	case ActionEstimate:
		return "estimated"
	case ActionSubmitArtifacts:
		return "artifacts_submitted"
	case ActionAssignVehicle:
		return "vehicle_assigned"
	case ActionCompleteTrip:
		return "trip_completed"
	}
	return string(a)
}
