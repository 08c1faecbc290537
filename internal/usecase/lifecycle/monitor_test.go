package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/adapters/out/simulated"
	"github.com/bnema/berth/internal/domain"
)

func TestMonitor_ReconcilesOnStartAndTick(t *testing.T) {
	cfg := testConfig()
	cfg.ReconcileInterval = 20 * time.Millisecond
	drv := simulated.NewDriver(simulated.WithSeed())
	svc := NewService(drv, &recorder{}, cfg)

	m := NewMonitor(svc)
	m.Start(testCtx())
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return len(collect(svc, domain.Filter{})) == 3
	}, time.Second, 5*time.Millisecond)

	c := startedContainer(t, svc, "db")
	drv.Drop(c.UnitID)

	assert.Eventually(t, func() bool {
		got, err := svc.Get(testCtx(), c.ID)
		return err == nil && got.Status == domain.StatusStopped
	}, time.Second, 5*time.Millisecond)
}

func TestMonitor_StopIsIdempotentAndHonoursContext(t *testing.T) {
	svc, _, _ := newTestService(t)

	ctx, cancel := context.WithCancel(testCtx())
	m := NewMonitor(svc)
	m.Start(ctx)
	m.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Stop()
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestService_Sweep(t *testing.T) {
	ctx := testCtx()
	svc, _, bus := newTestService(t)

	c := mustCreate(t, svc, "db", "postgres:15")
	_, err := svc.Remove(ctx, c.ID, false)
	require.NoError(t, err)
	keep := mustCreate(t, svc, "web", "nginx")

	assert.Zero(t, svc.Sweep(ctx), "tombstone is inside retention")

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, svc.Sweep(ctx))

	_, err = svc.Lookup(c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, svc.store.IDUsed(c.ID))

	_, err = svc.Get(ctx, keep.ID)
	assert.NoError(t, err)

	purged := bus.byCause(domain.CausePurged)
	require.Len(t, purged, 1)
	assert.Equal(t, c.ID, purged[0].ContainerID)
}
