package domain

// Action is a lifecycle intent a caller can issue against a container.
type Action string

const (
	ActionStart       Action = "start"
	ActionStop        Action = "stop"
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
	ActionRemove      Action = "remove"
	ActionForceRemove Action = "force-remove"
)

// transitions maps (from, action) to the status the action leads to.
// Remove actions lead to StatusRemoving; the driver ack completes them to StatusRemoved.
var transitions = map[ContainerStatus]map[Action]ContainerStatus{
	StatusCreated: {
		ActionStart:  StatusRunning,
		ActionRemove: StatusRemoving,
	},
	StatusRunning: {
		ActionStop:  StatusStopped,
		ActionPause: StatusPaused,
	},
	StatusPaused: {
		ActionResume: StatusRunning,
	},
	StatusStopped: {
		ActionStart:  StatusRunning,
		ActionRemove: StatusRemoving,
	},
}

// NextStatus returns the status reached by applying action to from.
// ForceRemove is accepted from every non-terminal status.
func NextStatus(from ContainerStatus, action Action) (ContainerStatus, error) {
	if action == ActionForceRemove {
		if from == StatusRemoved {
			return "", &TransitionError{From: from, Action: action}
		}
		return StatusRemoving, nil
	}

	to, ok := transitions[from][action]
	if !ok {
		return "", &TransitionError{From: from, Action: action}
	}
	return to, nil
}

// CanTransition reports whether action is allowed from the given status.
func CanTransition(from ContainerStatus, action Action) bool {
	_, err := NextStatus(from, action)
	return err == nil
}

// RemoveAction picks the remove flavour for the force flag.
func RemoveAction(force bool) Action {
	if force {
		return ActionForceRemove
	}
	return ActionRemove
}

// ObservedTarget maps a runtime observed status onto the recorded status set.
// Removing is an in-flight status and is never the target of a drift correction.
func ObservedTarget(observed ContainerStatus) ContainerStatus {
	switch observed {
	case StatusRunning, StatusPaused, StatusStopped, StatusCreated:
		return observed
	default:
		return StatusStopped
	}
}
