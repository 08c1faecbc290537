// Package in defines input ports (interfaces) for use cases.
// These interfaces define the contract between driving adapters (HTTP, CLI)
// and the business logic (use cases).
package in

import (
	"context"
	"iter"

	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

// LifecycleService defines the control surface consumed by the API and CLI.
// Every intent returns either the resulting container snapshot or one typed error.
type LifecycleService interface {
	Create(ctx context.Context, spec domain.ContainerSpec) (domain.Container, error)
	Start(ctx context.Context, id string) (domain.Container, error)
	Stop(ctx context.Context, id string) (domain.Container, error)
	Pause(ctx context.Context, id string) (domain.Container, error)
	Resume(ctx context.Context, id string) (domain.Container, error)
	Remove(ctx context.Context, id string, force bool) (domain.Container, error)

	Get(ctx context.Context, id string) (domain.Container, error)
	List(ctx context.Context, filter domain.Filter) iter.Seq[domain.Container]

	// Subscribe opens an event stream; the caller must Close it.
	Subscribe(buffer int) (out.Subscription, error)

	// Reconcile runs one reconciliation pass on demand.
	Reconcile(ctx context.Context) (ReconcileReport, error)
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Observed  int
	Corrected int
	Adopted   int
	Pending   int // drift seen but still inside the grace period
	Errors    int
}

// HealthService reports whether the runtime behind the manager is reachable.
type HealthService interface {
	CheckRuntime(ctx context.Context) error
}
