package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/domain"
)

func TestCreateContainerRequest_Spec(t *testing.T) {
	req := CreateContainerRequest{Name: "db", Image: "postgres:15", Ports: []string{"5432:5432", "8080"}}

	spec, err := req.Spec()
	require.NoError(t, err)
	assert.Equal(t, []domain.PortMapping{{Host: 5432, Container: 5432}, {Host: 8080, Container: 8080}}, spec.Ports)

	_, err = CreateContainerRequest{Name: "db", Image: "x", Ports: []string{"abc"}}.Spec()
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestContainerFromDomain(t *testing.T) {
	now := time.Now()
	c := domain.Container{
		ID:               "c-1",
		Name:             "db",
		Image:            "postgres:15",
		Status:           domain.StatusRunning,
		Ports:            []domain.PortMapping{{Host: 15432, Container: 5432}},
		CreatedAt:        now,
		LastTransitionAt: now,
	}

	got := ContainerFromDomain(c)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, []string{"15432:5432"}, got.Ports)
	assert.Nil(t, got.RemovedAt)

	c.Status = domain.StatusRemoved
	c.RemovedAt = now
	got = ContainerFromDomain(c)
	require.NotNil(t, got.RemovedAt)
	assert.True(t, now.Equal(*got.RemovedAt))
}
