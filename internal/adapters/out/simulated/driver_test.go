package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

func TestDriver_UnitLifecycle(t *testing.T) {
	ctx := context.Background()
	drv := NewDriver()

	id, err := drv.CreateUnit(ctx, out.UnitSpec{
		Name:   "db",
		Image:  "postgres:15",
		Ports:  []domain.PortMapping{{Host: 5432, Container: 5432}},
		Labels: map[string]string{domain.LabelManaged: "true", domain.LabelContainerID: "c-1"},
	})
	require.NoError(t, err)

	u, ok := drv.Unit(id)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCreated, u.Status)
	assert.Equal(t, "c-1", u.ContainerID)
	assert.True(t, u.Managed)

	require.NoError(t, drv.StartUnit(ctx, id))
	require.NoError(t, drv.PauseUnit(ctx, id))
	require.NoError(t, drv.ResumeUnit(ctx, id))
	require.NoError(t, drv.StopUnit(ctx, id))
	require.NoError(t, drv.RemoveUnit(ctx, id, false))

	_, ok = drv.Unit(id)
	assert.False(t, ok)
}

func TestDriver_Errors(t *testing.T) {
	ctx := context.Background()
	drv := NewDriver(WithMissingImages("ghost:latest"))

	_, err := drv.CreateUnit(ctx, out.UnitSpec{Name: "ghost", Image: "ghost:latest"})
	assert.ErrorIs(t, err, domain.ErrImageNotFound)
	assert.False(t, domain.IsTransient(err))

	err = drv.StartUnit(ctx, "sim-404")
	assert.ErrorIs(t, err, domain.ErrUnitNotFound)

	id, err := drv.CreateUnit(ctx, out.UnitSpec{Name: "web", Image: "nginx:latest"})
	require.NoError(t, err)
	require.NoError(t, drv.StartUnit(ctx, id))

	err = drv.RemoveUnit(ctx, id, false)
	assert.Error(t, err, "running units need force")
	assert.NoError(t, drv.RemoveUnit(ctx, id, true))
}

func TestDriver_PortAllocation(t *testing.T) {
	ctx := context.Background()
	drv := NewDriver()
	ports := []domain.PortMapping{{Host: 8080, Container: 80}}

	a, err := drv.CreateUnit(ctx, out.UnitSpec{Name: "a", Image: "nginx", Ports: ports})
	require.NoError(t, err)
	b, err := drv.CreateUnit(ctx, out.UnitSpec{Name: "b", Image: "nginx", Ports: ports})
	require.NoError(t, err)

	require.NoError(t, drv.StartUnit(ctx, a))
	err = drv.StartUnit(ctx, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already allocated")

	require.NoError(t, drv.StopUnit(ctx, a))
	assert.NoError(t, drv.StartUnit(ctx, b))
}

func TestDriver_Seed(t *testing.T) {
	drv := NewDriver(WithSeed())

	units, err := drv.ListUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 3)

	names := []string{units[0].Name, units[1].Name, units[2].Name}
	assert.Equal(t, []string{"postgres-db", "redis-cache", "nginx-proxy"}, names)
	for _, u := range units {
		assert.Equal(t, domain.StatusRunning, u.Status)
		assert.True(t, u.Managed)
		assert.Empty(t, u.ContainerID)
	}
}

func TestDriver_FailNextAndCalls(t *testing.T) {
	ctx := context.Background()
	drv := NewDriver()
	boom := domain.Transient(errors.New("daemon busy"))

	drv.FailNext("ping", boom)
	err := drv.Ping(ctx)
	assert.True(t, domain.IsTransient(err))
	assert.NoError(t, drv.Ping(ctx))
	assert.Equal(t, 2, drv.Calls("ping"))
}

func TestDriver_DelayHonoursContext(t *testing.T) {
	drv := NewDriver(WithDelay(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := drv.ListUnits(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
