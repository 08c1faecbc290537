// Package dto provides shared data transfer objects for API responses.
package dto

import (
	"time"

	"github.com/bnema/berth/internal/domain"
)

// CreateContainerRequest is the body of POST /api/v1/containers.
// Ports use the "host:container" notation.
type CreateContainerRequest struct {
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Ports  []string          `json:"ports,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Spec converts the request into a domain spec.
func (r CreateContainerRequest) Spec() (domain.ContainerSpec, error) {
	spec := domain.ContainerSpec{Name: r.Name, Image: r.Image, Labels: r.Labels}
	for _, raw := range r.Ports {
		p, err := domain.ParsePortMapping(raw)
		if err != nil {
			return domain.ContainerSpec{}, err
		}
		spec.Ports = append(spec.Ports, p)
	}
	return spec, nil
}

// Container is the API view of a managed container.
type Container struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Image            string            `json:"image"`
	Status           string            `json:"status"`
	Ports            []string          `json:"ports"`
	Labels           map[string]string `json:"labels,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	LastTransitionAt time.Time         `json:"last_transition_at"`
	RemovedAt        *time.Time        `json:"removed_at,omitempty"`
}

// ContainerFromDomain builds the API view of c.
func ContainerFromDomain(c domain.Container) Container {
	ports := make([]string, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, p.String())
	}
	resp := Container{
		ID:               c.ID,
		Name:             c.Name,
		Image:            c.Image,
		Status:           string(c.Status),
		Ports:            ports,
		Labels:           c.Labels,
		CreatedAt:        c.CreatedAt,
		LastTransitionAt: c.LastTransitionAt,
	}
	if !c.RemovedAt.IsZero() {
		removedAt := c.RemovedAt
		resp.RemovedAt = &removedAt
	}
	return resp
}

// ContainersResponse wraps a container listing.
type ContainersResponse struct {
	Containers []Container `json:"containers"`
}

// Event is the API view of a status change, streamed over SSE.
type Event struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"container_id"`
	Name        string    `json:"name"`
	Previous    string    `json:"previous"`
	Current     string    `json:"current"`
	Timestamp   time.Time `json:"timestamp"`
	Cause       string    `json:"cause"`
	Message     string    `json:"message,omitempty"`
}

// EventFromDomain builds the API view of e.
func EventFromDomain(e domain.Event) Event {
	return Event{
		ID:          e.ID,
		ContainerID: e.ContainerID,
		Name:        e.Name,
		Previous:    string(e.Previous),
		Current:     string(e.Current),
		Timestamp:   e.Timestamp,
		Cause:       string(e.Cause),
		Message:     e.Message,
	}
}

// ReconcileResponse reports one reconciliation pass.
type ReconcileResponse struct {
	Observed  int `json:"observed"`
	Corrected int `json:"corrected"`
	Adopted   int `json:"adopted"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

// HealthResponse reports the manager's view of the runtime.
type HealthResponse struct {
	Status  string `json:"status"`
	Runtime string `json:"runtime"`
	Error   string `json:"error,omitempty"`
}

// VersionResponse reports the server build.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}
