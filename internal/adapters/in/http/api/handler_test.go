package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/adapters/out/eventbus"
	"github.com/bnema/berth/internal/adapters/out/simulated"
	"github.com/bnema/berth/internal/domain"
	"github.com/bnema/berth/internal/usecase/lifecycle"
)

type testEnv struct {
	server *Server
	driver *simulated.Driver
	svc    *lifecycle.Service
}

func newTestEnv(t *testing.T, cfg ServerConfig, opts ...simulated.Option) *testEnv {
	t.Helper()

	bus := eventbus.NewNotifier(eventbus.Config{}, zerowrap.New(zerowrap.Config{Level: "fatal"}))
	require.NoError(t, bus.Start())
	t.Cleanup(func() { _ = bus.Stop() })

	driver := simulated.NewDriver(opts...)
	lcfg := lifecycle.DefaultConfig()
	lcfg.OperationTimeout = 200 * time.Millisecond
	lcfg.Retry.InitialInterval = time.Millisecond
	lcfg.Retry.MaxInterval = 2 * time.Millisecond
	svc := lifecycle.NewService(driver, bus, lcfg)

	handler := NewHandler(svc, svc, cfg.Events, dto.VersionResponse{Version: "test", Commit: "abc"})
	return &testEnv{
		server: NewServer(cfg, handler, nil, zerowrap.New(zerowrap.Config{Level: "fatal"})),
		driver: driver,
		svc:    svc,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) create(t *testing.T, name, image string) dto.Container {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/containers", `{"name":"`+name+`","image":"`+image+`","ports":["15432:5432"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.Container](t, rec)
}

func TestAPI_Lifecycle(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	created := env.create(t, "db", "postgres:15")
	assert.Equal(t, "created", created.Status)
	assert.Equal(t, []string{"15432:5432"}, created.Ports)

	for _, step := range []struct{ action, want string }{
		{"start", "running"},
		{"pause", "paused"},
		{"resume", "running"},
		{"stop", "stopped"},
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/containers/"+created.ID+"/"+step.action, "")
		require.Equal(t, http.StatusOK, rec.Code, step.action)
		assert.Equal(t, step.want, decode[dto.Container](t, rec).Status, step.action)
	}

	rec := env.do(t, http.MethodDelete, "/api/v1/containers/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	removed := decode[dto.Container](t, rec)
	assert.Equal(t, "removed", removed.Status)
	assert.NotNil(t, removed.RemovedAt)

	rec = env.do(t, http.MethodGet, "/api/v1/containers/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[dto.ErrorResponse](t, rec).Kind)
}

func TestAPI_List(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	db := env.create(t, "db", "postgres:15")
	env.create(t, "cache", "redis:alpine")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/containers/"+db.ID+"/start", "").Code)

	rec := env.do(t, http.MethodGet, "/api/v1/containers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[dto.ContainersResponse](t, rec).Containers, 2)

	rec = env.do(t, http.MethodGet, "/api/v1/containers?status=running", "")
	list := decode[dto.ContainersResponse](t, rec).Containers
	require.Len(t, list, 1)
	assert.Equal(t, db.ID, list[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/containers?name=ca", "")
	list = decode[dto.ContainersResponse](t, rec).Containers
	require.Len(t, list, 1)
	assert.Equal(t, "cache", list[0].Name)

	rec = env.do(t, http.MethodGet, "/api/v1/containers?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, simulated.WithMissingImages("ghost:latest"))
	ctr := env.create(t, "db", "postgres:15")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"malformed body", http.MethodPost, "/api/v1/containers", `{"name":`, http.StatusBadRequest, "validation"},
		{"missing image field", http.MethodPost, "/api/v1/containers", `{"name":"x"}`, http.StatusBadRequest, "validation"},
		{"bad port", http.MethodPost, "/api/v1/containers", `{"name":"x","image":"y","ports":["a:b"]}`, http.StatusBadRequest, "validation"},
		{"duplicate name", http.MethodPost, "/api/v1/containers", `{"name":"db","image":"postgres:15"}`, http.StatusConflict, "conflict"},
		{"unknown id", http.MethodPost, "/api/v1/containers/nope/start", "", http.StatusNotFound, "not_found"},
		{"invalid transition", http.MethodPost, "/api/v1/containers/" + ctr.ID + "/pause", "", http.StatusConflict, "invalid_transition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[dto.ErrorResponse](t, rec).Kind)
		})
	}
}

func TestAPI_RuntimeFailure(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctr := env.create(t, "db", "postgres:15")

	env.driver.FailNext("start", errors.New("engine exploded"))
	rec := env.do(t, http.MethodPost, "/api/v1/containers/"+ctr.ID+"/start", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "runtime", decode[dto.ErrorResponse](t, rec).Kind)

	got, err := env.svc.Get(context.Background(), ctr.ID)
	require.NoError(t, err)
	assert.Equal(t, "created", string(got.Status))
}

func TestAPI_Timeouts(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, simulated.WithDelay(time.Second))

	rec := env.do(t, http.MethodPost, "/api/v1/containers", `{"name":"slow","image":"alpine"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	ctr := decode[dto.Container](t, rec)

	// Caller deadline: the request gives up before the driver answers.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/containers/"+ctr.ID+"/start", nil).WithContext(ctx)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", decode[dto.ErrorResponse](t, rec).Kind)

	// Stuck driver call: the operation timeout turns it into a runtime error.
	rec = env.do(t, http.MethodPost, "/api/v1/containers/"+ctr.ID+"/start", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "runtime", decode[dto.ErrorResponse](t, rec).Kind)
}

func TestAPI_RemoveRequiresForce(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	ctr := env.create(t, "db", "postgres:15")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/containers/"+ctr.ID+"/start", "").Code)

	rec := env.do(t, http.MethodDelete, "/api/v1/containers/"+ctr.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/containers/"+ctr.ID+"?force=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "removed", decode[dto.Container](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/v1/containers", "")
	assert.Empty(t, decode[dto.ContainersResponse](t, rec).Containers)
}

func TestAPI_Reconcile(t *testing.T) {
	env := newTestEnv(t, ServerConfig{}, simulated.WithSeed())

	rec := env.do(t, http.MethodPost, "/api/v1/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[dto.ReconcileResponse](t, rec)
	assert.Equal(t, 3, report.Observed)
	assert.Equal(t, 3, report.Adopted)

	env.driver.FailNext("list", errors.New("daemon gone"))
	rec = env.do(t, http.MethodPost, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t, ServerConfig{Token: "s3cret"})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[dto.HealthResponse](t, rec).Status)

	env.driver.FailNext("ping", errors.New("daemon gone"))
	rec = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unreachable", decode[dto.HealthResponse](t, rec).Runtime)
}

func TestAPI_TokenRequired(t *testing.T) {
	env := newTestEnv(t, ServerConfig{Token: "s3cret"})

	rec := env.do(t, http.MethodGet, "/api/v1/containers", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/containers", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode[dto.VersionResponse](t, rec).Version)
}

func TestAPI_UnknownRoute(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodGet, "/api/v1/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[dto.ErrorResponse](t, rec).Error)
}

func TestAPI_EventStream(t *testing.T) {
	env := newTestEnv(t, ServerConfig{Events: EventsConfig{Heartbeat: 20 * time.Millisecond}})
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription is open once headers are flushed.
	ctr, err := env.svc.Create(context.Background(), domain.ContainerSpec{Name: "db", Image: "postgres:15"})
	require.NoError(t, err)

	var got dto.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &got))
			break
		}
	}
	assert.Equal(t, ctr.ID, got.ContainerID)
	assert.Equal(t, "created", got.Current)
	assert.Equal(t, "intent", got.Cause)

	env.server.handler.CloseStreams()
}
