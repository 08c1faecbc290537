package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/berth/internal/boundaries/in"
	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

// Reconcile compares the store with the runtime and corrects drift that
// outlived the grace period. Per-container problems are logged and published
// as reconcile-error events; only a failed runtime listing is returned.
func (s *Service) Reconcile(ctx context.Context) (in.ReconcileReport, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "Reconcile",
	})
	log := zerowrap.FromCtx(ctx)

	var units []out.UnitState
	err := s.callDriver(ctx, "list", "*", func(ctx context.Context) error {
		var err error
		units, err = s.driver.ListUnits(ctx)
		return err
	})
	if err != nil {
		s.emit(ctx, domain.Container{}, "", domain.CauseReconcileError, err.Error())
		return in.ReconcileReport{}, log.WrapErr(err, "failed to list runtime units")
	}

	records := make([]domain.Container, 0)
	for c := range s.store.List(domain.Filter{}) {
		records = append(records, c)
	}

	byUnit := make(map[string]out.UnitState, len(units))
	byLabel := make(map[string]out.UnitState, len(units))
	for _, u := range units {
		byUnit[u.UnitID] = u
		if u.ContainerID != "" {
			byLabel[u.ContainerID] = u
		}
	}

	report := &reconcileTally{}
	report.observed = len(units)
	matched := make(map[string]struct{}, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ReconcileConcurrency)

	live := make(map[string]struct{}, len(records))
	for _, rec := range records {
		live[rec.ID] = struct{}{}

		unit, found := matchUnit(rec, byUnit, byLabel)
		if found {
			matched[unit.UnitID] = struct{}{}
		}

		target, drifted := driftTarget(rec, unit, found)
		if !drifted {
			s.forgetDrift(rec.ID)
			continue
		}
		if !s.driftDue(rec.ID, target) {
			report.add(func(t *reconcileTally) { t.pending++ })
			continue
		}

		g.Go(func() error {
			s.correct(gctx, rec, unit, found, target, report)
			return nil
		})
	}

	for _, u := range units {
		if _, ok := matched[u.UnitID]; ok {
			continue
		}
		if u.ContainerID != "" {
			if _, ok := live[u.ContainerID]; ok {
				continue
			}
		}
		g.Go(func() error {
			s.adopt(gctx, u, report)
			return nil
		})
	}

	_ = g.Wait()
	s.pruneDrift(live)

	result := report.result()
	log.Debug().
		Int("observed", result.Observed).
		Int("corrected", result.Corrected).
		Int("adopted", result.Adopted).
		Int("pending", result.Pending).
		Int("errors", result.Errors).
		Msg("reconciliation pass finished")
	return result, nil
}

// matchUnit finds the runtime unit backing rec, by unit id first, then by label.
func matchUnit(rec domain.Container, byUnit, byLabel map[string]out.UnitState) (out.UnitState, bool) {
	if rec.UnitID != "" {
		if u, ok := byUnit[rec.UnitID]; ok {
			return u, true
		}
	}
	if u, ok := byLabel[rec.ID]; ok {
		return u, true
	}
	return out.UnitState{}, false
}

// driftTarget returns the status rec should hold given what the runtime shows.
func driftTarget(rec domain.Container, unit out.UnitState, found bool) (domain.ContainerStatus, bool) {
	switch rec.Status {
	case domain.StatusRemoving, domain.StatusRemoved:
		// Owned by an in-flight remove.
		return "", false
	case domain.StatusCreated:
		if !found {
			// Not materialised yet, nothing to compare.
			return "", false
		}
	}

	if !found {
		if rec.Status == domain.StatusStopped {
			return "", false
		}
		return domain.StatusStopped, true
	}

	target := domain.ObservedTarget(unit.Status)
	if rec.Status == domain.StatusCreated && target == domain.StatusCreated {
		return "", false
	}
	return target, target != rec.Status
}

// correct applies a drift correction under the per-id lock.
func (s *Service) correct(ctx context.Context, rec domain.Container, unit out.UnitState, found bool, target domain.ContainerStatus, report *reconcileTally) {
	ctx = zerowrap.CtxWithField(ctx, zerowrap.FieldEntityID, rec.ID)
	log := zerowrap.FromCtx(ctx)

	unlock, err := s.locks.Lock(ctx, rec.ID)
	if err != nil {
		report.add(func(t *reconcileTally) { t.errors++ })
		return
	}
	defer unlock()

	current, err := s.store.Get(rec.ID)
	if err != nil {
		// Removed while we were waiting.
		s.forgetDrift(rec.ID)
		return
	}
	if current.Status != rec.Status || current.UnitID != rec.UnitID {
		// An intent changed the record since the snapshot; re-evaluate next pass.
		s.forgetDrift(rec.ID)
		return
	}

	previous := current.Status
	current.Status = target
	current.LastTransitionAt = s.nextTransitionTime(current.LastTransitionAt)
	if found {
		current.UnitID = unit.UnitID
	} else {
		// The unit is gone; the next start creates a fresh one.
		current.UnitID = ""
	}

	if err := s.store.Upsert(current); err != nil {
		report.add(func(t *reconcileTally) { t.errors++ })
		s.emit(ctx, current, previous, domain.CauseReconcileError, err.Error())
		log.Error().Err(err).Msg("failed to apply drift correction")
		return
	}

	s.forgetDrift(rec.ID)
	s.emit(ctx, current, previous, domain.CauseDriftCorrected, "")
	if s.metrics != nil {
		s.metrics.DriftCorrections.Add(ctx, 1)
	}
	report.add(func(t *reconcileTally) { t.corrected++ })

	log.Info().
		Str("previous", string(previous)).
		Str(zerowrap.FieldStatus, string(target)).
		Bool("unit_present", found).
		Msg("drift corrected")
}

// adopt records a runtime unit the store does not know about as running. A
// unit observed in another state is brought in line by the next pass.
func (s *Service) adopt(ctx context.Context, unit out.UnitState, report *reconcileTally) {
	ctx = zerowrap.CtxWithField(ctx, "unit_id", unit.UnitID)
	log := zerowrap.FromCtx(ctx)

	id := unit.ContainerID
	if id == "" || s.store.IDUsed(id) {
		// Foreign unit, or a label pointing at an id already spent: never reuse it.
		id = s.allocateID()
	}

	name := unit.Name
	if name == "" {
		name = "unit-" + shortID(unit.UnitID)
	}
	if _, taken := s.store.NameOwner(name); taken {
		name = fmt.Sprintf("%s-adopted-%s", name, shortID(id))
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		report.add(func(t *reconcileTally) { t.errors++ })
		return
	}
	defer unlock()

	now := s.now()
	c := domain.Container{
		ID:               id,
		Name:             name,
		Image:            unit.Image,
		Status:           domain.StatusRunning,
		Ports:            append([]domain.PortMapping(nil), unit.Ports...),
		UnitID:           unit.UnitID,
		CreatedAt:        now,
		LastTransitionAt: now,
	}
	if err := s.store.Upsert(c); err != nil {
		report.add(func(t *reconcileTally) { t.errors++ })
		s.emit(ctx, c, "", domain.CauseReconcileError, err.Error())
		log.Error().Err(err).Msg("failed to adopt runtime unit")
		return
	}

	s.addManaged(ctx, 1)
	s.emit(ctx, c, "", domain.CauseAdopted, "")
	if s.metrics != nil {
		s.metrics.Adoptions.Add(ctx, 1)
	}
	report.add(func(t *reconcileTally) { t.adopted++ })

	log.Info().
		Str(zerowrap.FieldEntityID, id).
		Str("name", name).
		Str("observed", string(unit.Status)).
		Msg("runtime unit adopted")
}

// driftSighting is the drift observed for one container and when it began.
type driftSighting struct {
	target domain.ContainerStatus
	since  time.Time
}

// driftDue records a sighting of drift towards target and reports whether the
// grace period has elapsed. A different target restarts the grace period.
func (s *Service) driftDue(id string, target domain.ContainerStatus) bool {
	s.driftMu.Lock()
	defer s.driftMu.Unlock()

	now := s.now()
	seen, ok := s.drift[id]
	if !ok || seen.target != target {
		seen = driftSighting{target: target, since: now}
		s.drift[id] = seen
	}
	return now.Sub(seen.since) >= s.config.DriftGrace
}

func (s *Service) forgetDrift(id string) {
	s.driftMu.Lock()
	delete(s.drift, id)
	s.driftMu.Unlock()
}

func (s *Service) pruneDrift(live map[string]struct{}) {
	s.driftMu.Lock()
	defer s.driftMu.Unlock()
	for id := range s.drift {
		if _, ok := live[id]; !ok {
			delete(s.drift, id)
		}
	}
}

// reconcileTally accumulates counters from concurrent corrections.
type reconcileTally struct {
	mu        sync.Mutex
	observed  int
	corrected int
	adopted   int
	pending   int
	errors    int
}

func (t *reconcileTally) add(fn func(t *reconcileTally)) {
	t.mu.Lock()
	fn(t)
	t.mu.Unlock()
}

func (t *reconcileTally) result() in.ReconcileReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return in.ReconcileReport{
		Observed:  t.observed,
		Corrected: t.corrected,
		Adopted:   t.adopted,
		Pending:   t.pending,
		Errors:    t.errors,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
