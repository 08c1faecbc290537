package domain

import "time"

// EventCause explains why a status change happened.
type EventCause string

const (
	CauseIntent         EventCause = "intent"
	CauseDriftCorrected EventCause = "drift-corrected"
	CauseAdopted        EventCause = "adopted"
	CauseReconcileError EventCause = "reconcile-error"
	CausePurged         EventCause = "purged"
)

// Event represents a status change of a managed container.
type Event struct {
	ID          string
	ContainerID string
	Name        string
	Previous    ContainerStatus
	Current     ContainerStatus
	Timestamp   time.Time
	Cause       EventCause
	Message     string // diagnostic for reconcile-error events
}

// StatusChanged reports whether the event carries an actual transition.
func (e Event) StatusChanged() bool {
	return e.Previous != e.Current
}
