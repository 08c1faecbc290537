// Package simulated implements an in-process runtime engine. It backs local
// mode, demos and tests without a container daemon.
package simulated

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bnema/zerowrap"

	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

// SeedUnits are the containers the dashboard mockup ships with.
var SeedUnits = []out.UnitSpec{
	{Name: "postgres-db", Image: "postgres:15", Ports: []domain.PortMapping{{Host: 5432, Container: 5432}}},
	{Name: "redis-cache", Image: "redis:alpine", Ports: []domain.PortMapping{{Host: 6379, Container: 6379}}},
	{Name: "nginx-proxy", Image: "nginx:latest", Ports: []domain.PortMapping{{Host: 80, Container: 80}}},
}

type unit struct {
	state  out.UnitState
	labels map[string]string
}

// Driver is an in-memory out.RuntimeDriver.
type Driver struct {
	mu            sync.Mutex
	units         map[string]*unit
	seq           int
	delay         time.Duration
	missingImages map[string]struct{}
	failures      map[string][]error // op -> errors returned by the next calls
	calls         map[string]int
	log           zerowrap.Logger
}

var _ out.RuntimeDriver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithDelay makes every call take d, honouring ctx.
func WithDelay(d time.Duration) Option {
	return func(drv *Driver) { drv.delay = d }
}

// WithMissingImages makes CreateUnit fail for these image references.
func WithMissingImages(images ...string) Option {
	return func(drv *Driver) {
		for _, img := range images {
			drv.missingImages[img] = struct{}{}
		}
	}
}

// WithLogger sets the driver logger.
func WithLogger(log zerowrap.Logger) Option {
	return func(drv *Driver) {
		drv.log = log
	}
}

// WithSeed starts the engine with the mockup containers running, labelled as
// managed but not yet known to any store.
func WithSeed() Option {
	return func(drv *Driver) {
		for _, spec := range SeedUnits {
			id := drv.nextUnitID()
			drv.units[id] = &unit{
				state: out.UnitState{
					UnitID:  id,
					Name:    spec.Name,
					Image:   spec.Image,
					Ports:   slices.Clone(spec.Ports),
					Status:  domain.StatusRunning,
					Managed: true,
				},
				labels: map[string]string{domain.LabelManaged: "true", domain.LabelName: spec.Name},
			}
		}
	}
}

// NewDriver creates a simulated engine.
func NewDriver(opts ...Option) *Driver {
	drv := &Driver{
		units:         make(map[string]*unit),
		missingImages: make(map[string]struct{}),
		failures:      make(map[string][]error),
		calls:         make(map[string]int),
		log:           zerowrap.Default(),
	}
	for _, opt := range opts {
		opt(drv)
	}
	return drv
}

// FailNext queues err as the result of the next call to op
// ("create", "start", "stop", "pause", "resume", "remove", "list", "ping").
func (d *Driver) FailNext(op string, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = append(d.failures[op], errs...)
}

// Calls returns how many times op was invoked.
func (d *Driver) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// SetStatus changes a unit behind the manager's back.
func (d *Driver) SetStatus(unitID string, status domain.ContainerStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.units[unitID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnitNotFound, unitID)
	}
	u.state.Status = status
	return nil
}

// Drop deletes a unit behind the manager's back.
func (d *Driver) Drop(unitID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.units, unitID)
}

// Unit returns the current state of a unit.
func (d *Driver) Unit(unitID string) (out.UnitState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.units[unitID]
	if !ok {
		return out.UnitState{}, false
	}
	return cloneState(u.state), true
}

// CreateUnit registers a new unit in the created state.
func (d *Driver) CreateUnit(ctx context.Context, spec out.UnitSpec) (string, error) {
	if err := d.begin(ctx, "create"); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, missing := d.missingImages[spec.Image]; missing || spec.Image == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrImageNotFound, spec.Image)
	}
	for _, u := range d.units {
		if u.state.Name == spec.Name {
			return "", fmt.Errorf("unit name %q is already in use by %s", spec.Name, u.state.UnitID)
		}
	}

	id := d.nextUnitID()
	labels := maps.Clone(spec.Labels)
	d.units[id] = &unit{
		state: out.UnitState{
			UnitID:      id,
			ContainerID: labels[domain.LabelContainerID],
			Name:        spec.Name,
			Image:       spec.Image,
			Ports:       slices.Clone(spec.Ports),
			Status:      domain.StatusCreated,
			Managed:     labels[domain.LabelManaged] == "true",
		},
		labels: labels,
	}

	d.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "simulated").
		Str("unit_id", id).Str("name", spec.Name).Msg("unit created")
	return id, nil
}

// StartUnit runs a created, stopped or already running unit.
func (d *Driver) StartUnit(ctx context.Context, unitID string) error {
	if err := d.begin(ctx, "start"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, err := d.lookup(unitID)
	if err != nil {
		return err
	}
	switch u.state.Status {
	case domain.StatusRunning:
		return nil
	case domain.StatusPaused:
		return fmt.Errorf("unit %s is paused, resume it instead", unitID)
	}

	for _, other := range d.units {
		if other == u || other.state.Status != domain.StatusRunning && other.state.Status != domain.StatusPaused {
			continue
		}
		for _, p := range u.state.Ports {
			for _, q := range other.state.Ports {
				if p.Host != 0 && p.Host == q.Host {
					return fmt.Errorf("port %d is already allocated by %s", p.Host, other.state.Name)
				}
			}
		}
	}

	u.state.Status = domain.StatusRunning
	return nil
}

// StopUnit stops a running or paused unit.
func (d *Driver) StopUnit(ctx context.Context, unitID string) error {
	return d.move(ctx, "stop", unitID, domain.StatusStopped, domain.StatusRunning, domain.StatusPaused, domain.StatusStopped)
}

// PauseUnit freezes a running unit.
func (d *Driver) PauseUnit(ctx context.Context, unitID string) error {
	return d.move(ctx, "pause", unitID, domain.StatusPaused, domain.StatusRunning)
}

// ResumeUnit unfreezes a paused unit.
func (d *Driver) ResumeUnit(ctx context.Context, unitID string) error {
	return d.move(ctx, "resume", unitID, domain.StatusRunning, domain.StatusPaused)
}

// RemoveUnit deletes a unit. Running units need force.
func (d *Driver) RemoveUnit(ctx context.Context, unitID string, force bool) error {
	if err := d.begin(ctx, "remove"); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, err := d.lookup(unitID)
	if err != nil {
		return err
	}
	if !force && (u.state.Status == domain.StatusRunning || u.state.Status == domain.StatusPaused) {
		return fmt.Errorf("unit %s is %s, stop it before removal or force remove", unitID, u.state.Status)
	}
	delete(d.units, unitID)

	d.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "simulated").
		Str("unit_id", unitID).Bool("force", force).Msg("unit removed")
	return nil
}

// ListUnits returns every unit, ordered by unit id.
func (d *Driver) ListUnits(ctx context.Context) ([]out.UnitState, error) {
	if err := d.begin(ctx, "list"); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	states := make([]out.UnitState, 0, len(d.units))
	for _, u := range d.units {
		states = append(states, cloneState(u.state))
	}
	slices.SortFunc(states, func(a, b out.UnitState) int {
		return cmp.Or(
			cmp.Compare(len(a.UnitID), len(b.UnitID)),
			strings.Compare(a.UnitID, b.UnitID),
		)
	})
	return states, nil
}

// Ping always succeeds unless a failure is queued.
func (d *Driver) Ping(ctx context.Context) error {
	return d.begin(ctx, "ping")
}

func (d *Driver) move(ctx context.Context, op, unitID string, to domain.ContainerStatus, from ...domain.ContainerStatus) error {
	if err := d.begin(ctx, op); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, err := d.lookup(unitID)
	if err != nil {
		return err
	}
	if !slices.Contains(from, u.state.Status) {
		return fmt.Errorf("cannot %s unit %s: it is %s", op, unitID, u.state.Status)
	}
	u.state.Status = to
	return nil
}

// begin counts the call, applies the configured delay and pops a queued failure.
func (d *Driver) begin(ctx context.Context, op string) error {
	d.mu.Lock()
	d.calls[op]++
	var queued error
	if errs := d.failures[op]; len(errs) > 0 {
		queued = errs[0]
		d.failures[op] = errs[1:]
	}
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return queued
}

func (d *Driver) lookup(unitID string) (*unit, error) {
	u, ok := d.units[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnitNotFound, unitID)
	}
	return u, nil
}

func (d *Driver) nextUnitID() string {
	d.seq++
	return fmt.Sprintf("sim-%d", d.seq)
}

func cloneState(s out.UnitState) out.UnitState {
	s.Ports = slices.Clone(s.Ports)
	return s
}
