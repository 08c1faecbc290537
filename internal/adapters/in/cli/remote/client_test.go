package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/adapters/dto"
)

func withFastRetry(t *testing.T) {
	t.Helper()
	prevAttempts := retryMaxAttempts
	prevDelay := retryBaseDelay
	retryMaxAttempts = 3
	retryBaseDelay = 5 * time.Millisecond
	t.Cleanup(func() {
		retryMaxAttempts = prevAttempts
		retryBaseDelay = prevDelay
	})
}

func TestClientListContainers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/containers", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "running,paused", r.URL.Query().Get("status"))
		assert.Equal(t, "db", r.URL.Query().Get("name"))
		assert.Equal(t, "true", r.URL.Query().Get("all"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"containers":[{"id":"c-1","name":"db","image":"postgres:15","status":"running","ports":["5432:5432"]}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", WithToken("secret"))
	containers, err := client.ListContainers(context.Background(), ListOptions{
		Statuses: []string{"running", "paused"},
		Name:     "db",
		All:      true,
	})
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "c-1", containers[0].ID)
	assert.Equal(t, []string{"5432:5432"}, containers[0].Ports)
}

func TestClientCreateContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/containers", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req dto.CreateContainerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cache", req.Name)
		assert.Equal(t, []string{"6379:6379"}, req.Ports)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"c-2","name":"cache","image":"redis:alpine","status":"created","ports":["6379:6379"]}`))
	}))
	defer srv.Close()

	ctr, err := NewClient(srv.URL).CreateContainer(context.Background(), dto.CreateContainerRequest{
		Name:  "cache",
		Image: "redis:alpine",
		Ports: []string{"6379:6379"},
	})
	require.NoError(t, err)
	assert.Equal(t, "created", ctr.Status)
}

func TestClientIntents(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c-1","status":"running"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()
	_, err := client.Start(ctx, "c-1")
	require.NoError(t, err)
	_, err = client.Stop(ctx, "c-1")
	require.NoError(t, err)
	_, err = client.Pause(ctx, "c-1")
	require.NoError(t, err)
	_, err = client.Resume(ctx, "c-1")
	require.NoError(t, err)
	_, err = client.Remove(ctx, "c-1", false)
	require.NoError(t, err)
	_, err = client.Remove(ctx, "c-1", true)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /api/v1/containers/c-1/start",
		"POST /api/v1/containers/c-1/stop",
		"POST /api/v1/containers/c-1/pause",
		"POST /api/v1/containers/c-1/resume",
		"DELETE /api/v1/containers/c-1",
		"DELETE /api/v1/containers/c-1?force=true",
	}, paths)
}

func TestClientErrorCarriesKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"invalid transition: cannot pause a stopped container","kind":"invalid_transition"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Pause(context.Background(), "c-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Kind)
	assert.Contains(t, err.Error(), "409 Conflict: invalid transition")
}

func TestClientGetRetriesOn5xx(t *testing.T) {
	withFastRetry(t)

	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/containers/c-1", r.URL.Path)
		current := atomic.AddInt32(&attempts, 1)
		if current < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"temporary outage"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c-1","status":"stopped"}`))
	}))
	defer srv.Close()

	ctr, err := NewClient(srv.URL).GetContainer(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", ctr.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestClientGetReturnsErrorAfterRetryExhaustion(t *testing.T) {
	withFastRetry(t)

	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"runtime unavailable","kind":"runtime"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListContainers(context.Background(), ListOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502 Bad Gateway: runtime unavailable")
	assert.EqualValues(t, retryMaxAttempts, atomic.LoadInt32(&attempts))
}

func TestClientIntentsAreNotRetried(t *testing.T) {
	withFastRetry(t)

	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"runtime: start failed","kind":"runtime"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Start(context.Background(), "c-1")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestClientHealthDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"degraded","runtime":"unreachable","error":"dial unix: no such file"}`))
	}))
	defer srv.Close()

	health, err := NewClient(srv.URL).Health(context.Background())
	require.Error(t, err)
	require.NotNil(t, health)
	assert.Equal(t, "degraded", health.Status)
}

func TestClientStreamEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/events", r.URL.Path)
		assert.Equal(t, "c-1", r.URL.Query().Get("container"))
		w.Header().Set("Content-Type", "text/event-stream")
		for i, cause := range []string{"intent", "drift-corrected"} {
			_, _ = fmt.Fprint(w, ": ping\n\n")
			_, _ = fmt.Fprintf(w, "id: e-%d\nevent: %s\ndata: {\"id\":\"e-%d\",\"container_id\":\"c-1\",\"cause\":%q}\n\n", i, cause, i, cause)
		}
	}))
	defer srv.Close()

	var got []dto.Event
	err := NewClient(srv.URL).StreamEvents(context.Background(), "c-1", func(ev dto.Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e-0", got[0].ID)
	assert.Equal(t, "drift-corrected", got[1].Cause)
}

func TestReadEventsStopsOnCallbackError(t *testing.T) {
	stream := strings.Repeat("data: {\"id\":\"x\"}\n\n", 3)
	stop := errors.New("enough")

	var n int
	err := readEvents(context.Background(), strings.NewReader(stream), func(dto.Event) error {
		n++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestReadEventsRejectsMalformedData(t *testing.T) {
	err := readEvents(context.Background(), strings.NewReader("data: {nope\n\n"), func(dto.Event) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode event")
}
