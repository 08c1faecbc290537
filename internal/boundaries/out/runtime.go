// Package out defines output ports (interfaces) for infrastructure.
// These interfaces define the contract between use cases and driven adapters
// (Docker, the simulated engine, SQLite, etc.).
package out

import (
	"context"

	"github.com/bnema/berth/internal/domain"
)

// UnitSpec is what a runtime needs to materialise a container.
type UnitSpec struct {
	ContainerID string
	Name        string
	Image       string
	Ports       []domain.PortMapping
	Labels      map[string]string
}

// UnitState is one unit as observed by the runtime.
type UnitState struct {
	UnitID      string
	ContainerID string // value of the berth.id label, empty for foreign units
	Name        string
	Image       string
	Ports       []domain.PortMapping
	Status      domain.ContainerStatus
	Managed     bool
}

// RuntimeDriver defines the contract for the engine that actually runs containers.
// All operations may block; callers apply timeouts through ctx.
// Drivers mark retryable failures with domain.Transient.
type RuntimeDriver interface {
	CreateUnit(ctx context.Context, spec UnitSpec) (string, error)
	StartUnit(ctx context.Context, unitID string) error
	StopUnit(ctx context.Context, unitID string) error
	PauseUnit(ctx context.Context, unitID string) error
	ResumeUnit(ctx context.Context, unitID string) error
	RemoveUnit(ctx context.Context, unitID string, force bool) error
	ListUnits(ctx context.Context) ([]UnitState, error)

	// Ping reports whether the engine is reachable.
	Ping(ctx context.Context) error
}
