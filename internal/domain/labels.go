package domain

// Label keys berth stamps on runtime units.
const (
	LabelManaged     = "berth.managed"
	LabelContainerID = "berth.id"
	LabelName        = "berth.name"
)

// ManagedLabels returns the labels identifying a unit as owned by berth,
// merged over the user supplied ones.
func ManagedLabels(c Container) map[string]string {
	labels := make(map[string]string, len(c.Labels)+3)
	for k, v := range c.Labels {
		labels[k] = v
	}
	labels[LabelManaged] = "true"
	labels[LabelContainerID] = c.ID
	labels[LabelName] = c.Name
	return labels
}
