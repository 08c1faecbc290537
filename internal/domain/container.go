// Package domain contains pure business types without external dependencies.
// These types are used throughout the application and have no tags or framework dependencies.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContainerStatus represents the lifecycle state of a managed container.
type ContainerStatus string

const (
	StatusCreated  ContainerStatus = "created"
	StatusRunning  ContainerStatus = "running"
	StatusPaused   ContainerStatus = "paused"
	StatusStopped  ContainerStatus = "stopped"
	StatusRemoving ContainerStatus = "removing"
	StatusRemoved  ContainerStatus = "removed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []ContainerStatus{
	StatusCreated,
	StatusRunning,
	StatusPaused,
	StatusStopped,
	StatusRemoving,
	StatusRemoved,
}

// Valid reports whether s belongs to the closed status set.
func (s ContainerStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a user supplied status string.
func ParseStatus(raw string) (ContainerStatus, error) {
	s := ContainerStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
	return s, nil
}

// PortMapping binds a host port to a container port.
type PortMapping struct {
	Host      int
	Container int
}

// String renders the mapping the way docker ps does ("host:container").
func (p PortMapping) String() string {
	return fmt.Sprintf("%d:%d", p.Host, p.Container)
}

// ParsePortMapping parses "host:container" or a bare "port" (same on both sides).
func ParsePortMapping(raw string) (PortMapping, error) {
	hostPart, ctrPart, found := strings.Cut(strings.TrimSpace(raw), ":")
	if !found {
		ctrPart = hostPart
	}

	var p PortMapping
	if _, err := fmt.Sscanf(hostPart, "%d", &p.Host); err != nil {
		return PortMapping{}, fmt.Errorf("%w: invalid host port in %q", ErrValidation, raw)
	}
	if _, err := fmt.Sscanf(ctrPart, "%d", &p.Container); err != nil {
		return PortMapping{}, fmt.Errorf("%w: invalid container port in %q", ErrValidation, raw)
	}
	if err := p.Validate(); err != nil {
		return PortMapping{}, err
	}
	return p, nil
}

// Validate checks both ports are in the TCP range. Host port 0 lets the runtime pick one.
func (p PortMapping) Validate() error {
	if p.Host < 0 || p.Host > 65535 {
		return fmt.Errorf("%w: host port %d out of range", ErrValidation, p.Host)
	}
	if p.Container < 1 || p.Container > 65535 {
		return fmt.Errorf("%w: container port %d out of range", ErrValidation, p.Container)
	}
	return nil
}

// Container is one managed unit as recorded by the lifecycle manager.
type Container struct {
	ID               string
	Name             string
	Image            string
	Status           ContainerStatus
	Ports            []PortMapping
	Labels           map[string]string
	UnitID           string // runtime-side identifier, empty until first start
	CreatedAt        time.Time
	LastTransitionAt time.Time
	RemovedAt        time.Time
}

// Clone returns a deep copy so callers never share slices or maps with the store.
func (c Container) Clone() Container {
	out := c
	if c.Ports != nil {
		out.Ports = make([]PortMapping, len(c.Ports))
		copy(out.Ports, c.Ports)
	}
	if c.Labels != nil {
		out.Labels = make(map[string]string, len(c.Labels))
		for k, v := range c.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// Tombstoned reports whether the container has been logically destroyed.
func (c Container) Tombstoned() bool {
	return c.Status == StatusRemoved
}

// ContainerSpec holds the caller supplied parameters for creating a container.
type ContainerSpec struct {
	Name   string
	Image  string
	Ports  []PortMapping
	Labels map[string]string
}

// Validate checks the creation request before any record is allocated.
func (s ContainerSpec) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if name != s.Name {
		return fmt.Errorf("%w: name %q has surrounding whitespace", ErrValidation, s.Name)
	}
	if strings.ContainsAny(name, " /\t\n") {
		return fmt.Errorf("%w: name %q contains invalid characters", ErrValidation, s.Name)
	}
	if strings.TrimSpace(s.Image) == "" {
		return fmt.Errorf("%w: image is required", ErrValidation)
	}

	seen := make(map[int]struct{}, len(s.Ports))
	for _, p := range s.Ports {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Host == 0 {
			continue
		}
		if _, dup := seen[p.Host]; dup {
			return fmt.Errorf("%w: host port %d mapped twice", ErrValidation, p.Host)
		}
		seen[p.Host] = struct{}{}
	}
	return nil
}

// Filter selects containers from a listing. Zero value matches every live container.
type Filter struct {
	Statuses       []ContainerStatus
	NamePrefix     string
	IncludeRemoved bool
}

// Match reports whether c passes the filter.
func (f Filter) Match(c Container) bool {
	if c.Tombstoned() && !f.IncludeRemoved && !f.wantsStatus(StatusRemoved) {
		return false
	}
	if len(f.Statuses) > 0 && !f.wantsStatus(c.Status) {
		return false
	}
	if f.NamePrefix != "" && !strings.HasPrefix(c.Name, f.NamePrefix) {
		return false
	}
	return true
}

func (f Filter) wantsStatus(s ContainerStatus) bool {
	for _, want := range f.Statuses {
		if want == s {
			return true
		}
	}
	return false
}
