package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/domain"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "berth.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	now := time.Now().Truncate(time.Microsecond)

	c := domain.Container{
		ID:               "c-1",
		Name:             "db",
		Image:            "postgres:15",
		Status:           domain.StatusRunning,
		Ports:            []domain.PortMapping{{Host: 5432, Container: 5432}},
		Labels:           map[string]string{"tier": "data"},
		UnitID:           "u-1",
		CreatedAt:        now,
		LastTransitionAt: now.Add(time.Second),
	}
	require.NoError(t, s.Save(ctx, c))

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)
	assert.Equal(t, c.Ports, got[0].Ports)
	assert.Equal(t, c.Labels, got[0].Labels)
	assert.Equal(t, c.UnitID, got[0].UnitID)
	assert.True(t, c.CreatedAt.Equal(got[0].CreatedAt))
	assert.True(t, c.LastTransitionAt.Equal(got[0].LastTransitionAt))
	assert.True(t, got[0].RemovedAt.IsZero())
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	now := time.Now()

	c := domain.Container{ID: "c-1", Name: "db", Image: "postgres:15", Status: domain.StatusCreated, CreatedAt: now, LastTransitionAt: now}
	require.NoError(t, s.Save(ctx, c))

	c.Status = domain.StatusRemoved
	c.RemovedAt = now.Add(time.Minute)
	require.NoError(t, s.Save(ctx, c))

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StatusRemoved, got[0].Status)
	assert.False(t, got[0].RemovedAt.IsZero())
	assert.Nil(t, got[0].Ports)
	assert.Nil(t, got[0].Labels)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	now := time.Now()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.Save(ctx, domain.Container{ID: id, Name: id, Image: "alpine", Status: domain.StatusStopped, CreatedAt: now, LastTransitionAt: now}))
	}
	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"))

	got, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.Save(ctx, domain.Container{ID: "a", Name: "db", Image: "postgres:15", Status: domain.StatusStopped, CreatedAt: now, LastTransitionAt: now}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "db", got[0].Name)
}
