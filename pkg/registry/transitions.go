package registry

import "github.com/agentfleet/watchtower/pkg/models"

// CanTransition reports whether the lifecycle state machine permits
// moving from one status to another.
//
// Self-transitions are always permitted as idempotent keep-alives
// (notification and log-only events). Complete is terminal: any move
// away from it is rejected; late events still append logs but leave
// the status untouched.
func CanTransition(from, to models.Status) bool {
	if from == to {
		return true
	}
	switch from {
	case models.StatusIdle:
		// An agent may error out or stop before producing any activity.
		return to == models.StatusActive || to == models.StatusComplete || to == models.StatusError
	case models.StatusActive:
		return to == models.StatusHandoff || to == models.StatusComplete || to == models.StatusError
	case models.StatusHandoff:
		return to == models.StatusActive
	case models.StatusError:
		return to == models.StatusActive
	case models.StatusComplete:
		return false
	}
	return false
}
