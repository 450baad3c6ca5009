package workflow

import "github.com/frahmantamala/fleet-approval/internal/core/approval"

// chains are the linear approval routes, first approver first.
var chains = map[approval.Kind][]approval.Role{
	approval.KindTransport: {
		approval.RoleDepartmentManager,
		approval.RoleTransportManager,
	},
	approval.KindHighCost: {
		approval.RoleCEO,
		approval.RoleGeneralSystem,
		approval.RoleTransportManager,
		approval.RoleBudgetManager,
	},
	approval.KindMaintenance: fleetChain,
	approval.KindRefueling:   fleetChain,
	approval.KindService:     fleetChain,
}

var fleetChain = []approval.Role{
	approval.RoleTransportManager,
	approval.RoleGeneralSystem,
	approval.RoleCEO,
	approval.RoleBudgetManager,
}

// Next returns the role after current. ok is false at the terminal role and
// for roles outside the chain.
func Next(kind approval.Kind, current approval.Role) (approval.Role, bool) {
	chain := chains[kind]
	for i, r := range chain {
		if r == current {
			if i+1 < len(chain) {
				return chain[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// First is the approver a new request is routed to. Service requests are
// created by the fleet flow directly at GeneralSystem.
func First(kind approval.Kind) (approval.Role, bool) {
	if kind == approval.KindService {
		return approval.RoleGeneralSystem, true
	}
	chain := chains[kind]
	if len(chain) == 0 {
		return "", false
	}
	return chain[0], true
}

// Terminal is the role whose approve finalizes the workflow.
func Terminal(kind approval.Kind) (approval.Role, bool) {
	chain := chains[kind]
	if len(chain) == 0 {
		return "", false
	}
	return chain[len(chain)-1], true
}

func Contains(kind approval.Kind, role approval.Role) bool {
	for _, r := range chains[kind] {
		if r == role {
			return true
		}
	}
	return false
}

// Chain returns a copy of the route for kind.
func Chain(kind approval.Kind) []approval.Role {
	out := make([]approval.Role, len(chains[kind]))
	copy(out, chains[kind])
	return out
}
