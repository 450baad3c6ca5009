package workflow

import (
	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
)

// State is the routing state of a request. Role is nil once Status is terminal.
type State struct {
	Status approval.Status
	Role   *approval.Role
}

func Pending(role approval.Role) State {
	return State{Status: approval.StatusPending, Role: &role}
}

// CurrentRole returns the current approver; ok is false for terminal states.
func (s State) CurrentRole() (approval.Role, bool) {
	if s.Status.Terminal() || s.Role == nil {
		return "", false
	}
	return *s.Role, true
}

// Forward moves a live request to the next approver on its route.
func (s State) Forward(kind approval.Kind) (State, error) {
	current, ok := s.CurrentRole()
	if !ok {
		return s, apperrors.ErrRequestFinalized
	}
	next, ok := Next(kind, current)
	if !ok {
		return s, apperrors.ErrNoFurtherApprover
	}
	return State{Status: approval.StatusForwarded, Role: &next}, nil
}

func (s State) Reject() (State, error) {
	if _, ok := s.CurrentRole(); !ok {
		return s, apperrors.ErrRequestFinalized
	}
	return State{Status: approval.StatusRejected}, nil
}

// Approve finalizes the request; only the terminal role may approve.
func (s State) Approve(kind approval.Kind) (State, error) {
	current, ok := s.CurrentRole()
	if !ok {
		return s, apperrors.ErrRequestFinalized
	}
	terminal, ok := Terminal(kind)
	if !ok || current != terminal {
		return s, apperrors.ErrApprovalNotAllowedAtStage
	}
	return State{Status: approval.StatusApproved}, nil
}

// Apply runs action against s.
func (s State) Apply(kind approval.Kind, action approval.Action) (State, error) {
	switch action {
	case approval.ActionForward:
		return s.Forward(kind)
	case approval.ActionReject:
		return s.Reject()
	case approval.ActionApprove:
		return s.Approve(kind)
	}
	return s, apperrors.ErrUnknownAction
}
