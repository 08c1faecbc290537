// Package lifecycle implements the container lifecycle use case: the state
// machine, per-container serialisation, driver orchestration and reconciliation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/berth/internal/adapters/out/telemetry"
	"github.com/bnema/berth/internal/boundaries/in"
	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

// RetryConfig bounds driver retries for transient failures.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// Config holds configuration needed by the lifecycle service.
type Config struct {
	OperationTimeout     time.Duration `mapstructure:"operation_timeout"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval"`
	ReconcileConcurrency int           `mapstructure:"reconcile_concurrency"`
	DriftGrace           time.Duration `mapstructure:"drift_grace"`
	TombstoneRetention   time.Duration `mapstructure:"tombstone_retention"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	Retry                RetryConfig   `mapstructure:"retry"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		OperationTimeout:     30 * time.Second,
		ReconcileInterval:    15 * time.Second,
		ReconcileConcurrency: 4,
		DriftGrace:           10 * time.Second,
		TombstoneRetention:   10 * time.Minute,
		SweepInterval:        time.Minute,
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = def.OperationTimeout
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = def.ReconcileInterval
	}
	if c.ReconcileConcurrency <= 0 {
		c.ReconcileConcurrency = def.ReconcileConcurrency
	}
	if c.DriftGrace < 0 {
		c.DriftGrace = 0
	}
	if c.TombstoneRetention <= 0 {
		c.TombstoneRetention = def.TombstoneRetention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry.InitialInterval = def.Retry.InitialInterval
	}
	if c.Retry.MaxInterval < c.Retry.InitialInterval {
		c.Retry.MaxInterval = c.Retry.InitialInterval
	}
	return c
}

// Service implements the LifecycleService interface.
type Service struct {
	driver  out.RuntimeDriver
	bus     out.EventBus
	store   *Store
	locks   *keyedLock
	config  Config
	metrics *telemetry.Metrics
	now     func() time.Time

	driftMu sync.Mutex
	drift   map[string]driftSighting
}

var _ in.LifecycleService = (*Service)(nil)

// NewService creates a new lifecycle service.
func NewService(driver out.RuntimeDriver, bus out.EventBus, config Config) *Service {
	return &Service{
		driver: driver,
		bus:    bus,
		store:  NewStore(),
		locks:  newKeyedLock(),
		config: config.withDefaults(),
		now:    time.Now,
		drift:  make(map[string]driftSighting),
	}
}

// SetMetrics sets the telemetry metrics. Must be called before serving intents.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Create validates spec and records a new container in the created status.
// The runtime is not contacted until Start.
func (s *Service) Create(ctx context.Context, spec domain.ContainerSpec) (domain.Container, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Create",
		"name":               spec.Name,
		"image":              spec.Image,
	})
	log := zerowrap.FromCtx(ctx)
	start := s.now()

	if err := spec.Validate(); err != nil {
		s.recordIntent(ctx, "create", start, err)
		return domain.Container{}, rejected(log, err, "invalid container spec")
	}

	if holder, taken := s.store.NameOwner(spec.Name); taken {
		err := fmt.Errorf("%w: name %q is used by container %s", domain.ErrConflict, spec.Name, holder)
		s.recordIntent(ctx, "create", start, err)
		return domain.Container{}, rejected(log, err, "name already taken")
	}

	now := s.now()
	c := domain.Container{
		ID:               s.allocateID(),
		Name:             spec.Name,
		Image:            spec.Image,
		Status:           domain.StatusCreated,
		Ports:            append([]domain.PortMapping(nil), spec.Ports...),
		Labels:           copyLabels(spec.Labels),
		CreatedAt:        now,
		LastTransitionAt: now,
	}

	// The store re-checks the name under its own lock; a concurrent Create
	// with the same name loses here.
	if err := s.store.Upsert(c); err != nil {
		s.recordIntent(ctx, "create", start, err)
		return domain.Container{}, rejected(log, err, "failed to record container")
	}

	s.addManaged(ctx, 1)
	s.emit(ctx, c, "", domain.CauseIntent, "")
	s.recordIntent(ctx, "create", start, nil)

	log.Info().Str(zerowrap.FieldEntityID, c.ID).Msg("container created")
	return c, nil
}

// Start brings a created or stopped container to running.
func (s *Service) Start(ctx context.Context, id string) (domain.Container, error) {
	return s.runIntent(ctx, id, domain.ActionStart)
}

// Stop stops a running container.
func (s *Service) Stop(ctx context.Context, id string) (domain.Container, error) {
	return s.runIntent(ctx, id, domain.ActionStop)
}

// Pause freezes a running container.
func (s *Service) Pause(ctx context.Context, id string) (domain.Container, error) {
	return s.runIntent(ctx, id, domain.ActionPause)
}

// Resume unfreezes a paused container.
func (s *Service) Resume(ctx context.Context, id string) (domain.Container, error) {
	return s.runIntent(ctx, id, domain.ActionResume)
}

// Remove removes a created or stopped container. With force it removes from
// any non-terminal status, bypassing stop. The returned snapshot is the tombstone.
func (s *Service) Remove(ctx context.Context, id string, force bool) (domain.Container, error) {
	return s.runIntent(ctx, id, domain.RemoveAction(force))
}

// Get returns a live container; removed ones answer ErrNotFound.
func (s *Service) Get(_ context.Context, id string) (domain.Container, error) {
	return s.store.Get(id)
}

// Lookup returns a container including tombstones still inside retention.
func (s *Service) Lookup(id string) (domain.Container, error) {
	return s.store.Lookup(id)
}

// List returns a point-in-time snapshot of the containers matching filter.
func (s *Service) List(_ context.Context, filter domain.Filter) iter.Seq[domain.Container] {
	return s.store.List(filter)
}

// Subscribe opens an event stream on the underlying bus.
func (s *Service) Subscribe(buffer int) (out.Subscription, error) {
	if s.bus == nil {
		return nil, errors.New("event bus not configured")
	}
	return s.bus.Subscribe(buffer)
}

// CheckRuntime pings the runtime driver.
func (s *Service) CheckRuntime(ctx context.Context) error {
	return s.driver.Ping(ctx)
}

// Restore loads previously persisted records. Ids are reserved even when a
// record cannot be restored, so they are never handed out again.
func (s *Service) Restore(ctx context.Context, records []domain.Container) int {
	log := zerowrap.FromCtx(ctx)

	restored := 0
	for _, c := range records {
		if c.Status == domain.StatusRemoving {
			// The removal never got its ack; reconciliation decides what is left.
			c.Status = domain.StatusStopped
		}
		if err := s.store.Upsert(c); err != nil {
			log.Warn().Err(err).Str(zerowrap.FieldEntityID, c.ID).Msg("skipping persisted record")
			s.store.reserve(c.ID)
			continue
		}
		if !c.Tombstoned() {
			s.addManaged(ctx, 1)
		}
		restored++
	}
	return restored
}

type intentResult struct {
	container domain.Container
	err       error
}

// errAbandoned rejects store writes from an intent that outlived its operation timeout.
var errAbandoned = errors.New("intent abandoned after operation timeout")

// opGuard arbitrates between the store writes of one intent and its operation
// timeout. Once abandoned, no further write of that intent lands.
type opGuard struct {
	mu        sync.Mutex
	abandoned bool
	settled   bool
}

// commit runs write unless the intent was abandoned. final marks the write
// that settles the intent. A nil guard writes unconditionally.
func (g *opGuard) commit(final bool, write func() error) error {
	if g == nil {
		return write()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.abandoned {
		return errAbandoned
	}
	if err := write(); err != nil {
		return err
	}
	if final {
		g.settled = true
	}
	return nil
}

// abandon blocks further writes. It reports false when the intent already settled.
func (g *opGuard) abandon() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.settled {
		return false
	}
	g.abandoned = true
	return true
}

// runIntent drives one lifecycle intent: check, lock, re-check, driver call,
// store update, event. A caller giving up early does not release the lock;
// the operation timeout does.
func (s *Service) runIntent(ctx context.Context, id string, action domain.Action) (domain.Container, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  "Intent",
		zerowrap.FieldAction:   string(action),
		zerowrap.FieldEntityID: id,
	})
	log := zerowrap.FromCtx(ctx)
	start := s.now()

	current, err := s.checkIntent(id, action)
	if err != nil {
		s.recordIntent(ctx, string(action), start, err)
		return current, rejected(log, err, fmt.Sprintf("cannot %s container", action))
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		err = fmt.Errorf("%w: waiting for in-flight operation on %s: %v", domain.ErrTimeout, id, err)
		s.recordIntent(ctx, string(action), start, err)
		return current, err
	}

	// Re-check under the lock: a concurrent intent may have won the race.
	current, err = s.checkIntent(id, action)
	if err != nil {
		unlock()
		s.recordIntent(ctx, string(action), start, err)
		return current, rejected(log, err, fmt.Sprintf("cannot %s container", action))
	}

	done := make(chan intentResult, 1)
	go s.supervise(ctx, current, action, unlock, done)

	select {
	case res := <-done:
		s.recordIntent(ctx, string(action), start, res.err)
		if res.err != nil {
			return res.container, log.WrapErr(res.err, fmt.Sprintf("failed to %s container", action))
		}
		log.Info().Str(zerowrap.FieldStatus, string(res.container.Status)).Msg("intent applied")
		return res.container, nil

	case <-ctx.Done():
		err := fmt.Errorf("%w: %s %s: %v", domain.ErrTimeout, action, id, ctx.Err())
		s.recordIntent(ctx, string(action), start, err)
		log.Warn().Err(ctx.Err()).Msg("caller gave up; operation keeps running until it settles or times out")
		return current, err
	}
}

// supervise owns the per-id lock for one intent and releases it when the
// driver side settles or the operation timeout fires, whichever comes first.
// A driver call still blocked at the timeout is abandoned: its late result is
// never written and reconciliation picks up whatever the runtime ends up doing.
func (s *Service) supervise(ctx context.Context, current domain.Container, action domain.Action, unlock func(), done chan<- intentResult) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.OperationTimeout)
	defer cancel()

	guard := &opGuard{}
	applied := make(chan intentResult, 1)
	go func() {
		c, err := s.apply(opCtx, guard, current, action)
		applied <- intentResult{container: c, err: err}
	}()

	var res intentResult
	select {
	case res = <-applied:
	case <-opCtx.Done():
		if guard.abandon() {
			res = s.abandonIntent(ctx, current, action)
		} else {
			// Settled right as the timeout fired; the result is on its way.
			res = <-applied
		}
	}

	unlock()
	done <- res
}

// abandonIntent gives up on an intent whose driver call outlived the operation
// timeout. It runs with the per-id lock still held.
func (s *Service) abandonIntent(ctx context.Context, current domain.Container, action domain.Action) intentResult {
	s.restoreStatus(ctx, current)

	log := zerowrap.FromCtx(ctx)
	log.Error().
		Dur("timeout", s.config.OperationTimeout).
		Msg("runtime call exceeded the operation timeout, intent abandoned")

	return intentResult{
		container: current,
		err: &domain.RuntimeError{
			ID:       current.ID,
			Op:       string(action),
			Attempts: 1,
			Err:      fmt.Errorf("%w after %s", context.DeadlineExceeded, s.config.OperationTimeout),
		},
	}
}

// restoreStatus puts back the pre-intent status when an abandoned intent left
// the record mid-way, as in removing.
func (s *Service) restoreStatus(ctx context.Context, before domain.Container) {
	got, err := s.store.Get(before.ID)
	if err != nil || got.Status == before.Status {
		return
	}
	if _, err := s.transition(ctx, nil, false, got, before.Status, domain.CauseIntent); err != nil {
		log := zerowrap.FromCtx(ctx)
		log.Error().Err(err).Msg("failed to restore status of abandoned intent")
	}
}

// checkIntent loads the container and validates the transition.
func (s *Service) checkIntent(id string, action domain.Action) (domain.Container, error) {
	current, err := s.store.Get(id)
	if err != nil {
		return domain.Container{}, err
	}
	if _, err := domain.NextStatus(current.Status, action); err != nil {
		var terr *domain.TransitionError
		if errors.As(err, &terr) {
			terr.ID = id
		}
		return current, err
	}
	return current, nil
}

// apply runs the driver side of an intent. It is called with the per-id lock held.
func (s *Service) apply(ctx context.Context, guard *opGuard, current domain.Container, action domain.Action) (domain.Container, error) {
	switch action {
	case domain.ActionStart:
		return s.applyStart(ctx, guard, current)
	case domain.ActionStop:
		return s.applySimple(ctx, guard, current, action, "stop", s.driver.StopUnit)
	case domain.ActionPause:
		return s.applySimple(ctx, guard, current, action, "pause", s.driver.PauseUnit)
	case domain.ActionResume:
		return s.applySimple(ctx, guard, current, action, "resume", s.driver.ResumeUnit)
	case domain.ActionRemove, domain.ActionForceRemove:
		return s.applyRemove(ctx, guard, current, action == domain.ActionForceRemove)
	default:
		return current, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action)
	}
}

func (s *Service) applyStart(ctx context.Context, guard *opGuard, current domain.Container) (domain.Container, error) {
	if current.UnitID == "" {
		spec := out.UnitSpec{
			ContainerID: current.ID,
			Name:        current.Name,
			Image:       current.Image,
			Ports:       current.Ports,
			Labels:      domain.ManagedLabels(current),
		}
		var unitID string
		err := s.callDriver(ctx, "create", current.ID, func(ctx context.Context) error {
			var err error
			unitID, err = s.driver.CreateUnit(ctx, spec)
			return err
		})
		if err != nil {
			return current, err
		}

		// Record the unit right away so a failed start does not leak it.
		current.UnitID = unitID
		if err := guard.commit(false, func() error { return s.store.Upsert(current) }); err != nil {
			return current, err
		}
	}

	unitID := current.UnitID
	err := s.callDriver(ctx, "start", current.ID, func(ctx context.Context) error {
		return s.driver.StartUnit(ctx, unitID)
	})
	if err != nil {
		return current, err
	}
	return s.transition(ctx, guard, true, current, domain.StatusRunning, domain.CauseIntent)
}

func (s *Service) applySimple(
	ctx context.Context,
	guard *opGuard,
	current domain.Container,
	action domain.Action,
	op string,
	call func(ctx context.Context, unitID string) error,
) (domain.Container, error) {
	next, err := domain.NextStatus(current.Status, action)
	if err != nil {
		return current, err
	}
	if current.UnitID == "" {
		return current, &domain.RuntimeError{ID: current.ID, Op: op, Err: domain.ErrUnitNotFound}
	}

	unitID := current.UnitID
	if err := s.callDriver(ctx, op, current.ID, func(ctx context.Context) error {
		return call(ctx, unitID)
	}); err != nil {
		return current, err
	}
	return s.transition(ctx, guard, true, current, next, domain.CauseIntent)
}

func (s *Service) applyRemove(ctx context.Context, guard *opGuard, current domain.Container, force bool) (domain.Container, error) {
	previous := current

	removing, err := s.transition(ctx, guard, false, current, domain.StatusRemoving, domain.CauseIntent)
	if err != nil {
		return previous, err
	}

	if removing.UnitID != "" {
		unitID := removing.UnitID
		err := s.callDriver(ctx, "remove", removing.ID, func(ctx context.Context) error {
			err := s.driver.RemoveUnit(ctx, unitID, force)
			if errors.Is(err, domain.ErrUnitNotFound) {
				// Already gone counts as an ack.
				return nil
			}
			return err
		})
		if err != nil {
			// Roll back to the status held before the intent.
			if _, rbErr := s.transition(ctx, guard, true, removing, previous.Status, domain.CauseIntent); rbErr != nil && !errors.Is(rbErr, errAbandoned) {
				log := zerowrap.FromCtx(ctx)
				log.Error().Err(rbErr).Msg("failed to roll back removing status")
			}
			return previous, err
		}
	}

	var tomb domain.Container
	err = guard.commit(true, func() error {
		var err error
		if tomb, err = s.store.Remove(removing.ID); err != nil {
			return err
		}
		s.addManaged(ctx, -1)
		s.forgetDrift(removing.ID)
		s.emit(ctx, tomb, domain.StatusRemoving, domain.CauseIntent, "")
		return nil
	})
	if err != nil {
		return removing, err
	}
	return tomb, nil
}

// transition writes the new status and emits the matching event.
func (s *Service) transition(
	ctx context.Context,
	guard *opGuard,
	final bool,
	c domain.Container,
	to domain.ContainerStatus,
	cause domain.EventCause,
) (domain.Container, error) {
	previous := c.Status
	c.Status = to
	c.LastTransitionAt = s.nextTransitionTime(c.LastTransitionAt)

	err := guard.commit(final, func() error {
		if err := s.store.Upsert(c); err != nil {
			return err
		}
		s.emit(ctx, c, previous, cause, "")
		return nil
	})
	return c, err
}

// nextTransitionTime keeps LastTransitionAt strictly increasing per container.
func (s *Service) nextTransitionTime(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

func (s *Service) allocateID() string {
	for {
		id := uuid.NewString()
		if !s.store.IDUsed(id) {
			return id
		}
	}
}

func (s *Service) emit(ctx context.Context, c domain.Container, previous domain.ContainerStatus, cause domain.EventCause, message string) {
	if s.bus == nil {
		return
	}

	event := domain.Event{
		ID:          uuid.NewString(),
		ContainerID: c.ID,
		Name:        c.Name,
		Previous:    previous,
		Current:     c.Status,
		Timestamp:   s.now(),
		Cause:       cause,
		Message:     message,
	}
	if err := s.bus.Publish(event); err != nil {
		log := zerowrap.FromCtx(ctx)
		log.Warn().Err(err).
			Str(zerowrap.FieldEvent, string(cause)).
			Msg("failed to publish event")
	}
}

func (s *Service) recordIntent(ctx context.Context, action string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = domain.ErrorKind(err)
		s.metrics.IntentErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("error", result),
		))
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	)
	s.metrics.IntentTotal.Add(ctx, 1, attrs)
	s.metrics.IntentDuration.Record(ctx, s.now().Sub(start).Seconds(), attrs)
}

func (s *Service) addManaged(ctx context.Context, delta int64) {
	if s.metrics != nil {
		s.metrics.ManagedContainers.Add(ctx, delta)
	}
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	return cp
}

// rejected logs an expected refusal at debug level and wraps it with msg.
func rejected(log zerowrap.Logger, err error, msg string) error {
	log.Debug().Err(err).Msg(msg)
	return fmt.Errorf("%s: %w", msg, err)
}
