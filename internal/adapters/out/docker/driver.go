// Package docker implements the runtime driver adapter using the Docker API.
package docker

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/domain"
)

// Config holds Docker driver settings.
type Config struct {
	Host        string        `mapstructure:"docker_host"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// AdoptAll lists every container, not only the ones labelled as managed.
	AdoptAll bool `mapstructure:"adopt_all"`
}

// Driver implements out.RuntimeDriver using the Docker API.
type Driver struct {
	client *client.Client
	config Config
}

var _ out.RuntimeDriver = (*Driver)(nil)

// NewDriver creates a Docker driver. An empty host falls back to DOCKER_HOST.
func NewDriver(config Config) (*Driver, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if config.Host != "" {
		opts = append(opts, client.WithHost(config.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return NewDriverWithClient(cli, config), nil
}

// NewDriverWithClient creates a Docker driver with a custom client (for testing).
func NewDriverWithClient(cli *client.Client, config Config) *Driver {
	if config.StopTimeout <= 0 {
		config.StopTimeout = 10 * time.Second
	}
	return &Driver{client: cli, config: config}
}

// Close releases the underlying client.
func (d *Driver) Close() error {
	return d.client.Close()
}

// CreateUnit creates a container for spec without starting it.
func (d *Driver) CreateUnit(ctx context.Context, spec out.UnitSpec) (string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "CreateUnit",
		"container_name":     spec.Name,
		"image":              spec.Image,
	})
	log := zerowrap.FromCtx(ctx)

	exposedPorts, portBindings := portSpecs(spec.Ports)

	containerConfig := &container.Config{
		Image:        spec.Image,
		ExposedPorts: exposedPorts,
		Labels:       spec.Labels,
	}
	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", log.WrapErr(classify(err, true), "failed to create container")
	}
	for _, w := range resp.Warnings {
		log.Warn().Str("warning", w).Msg("docker create warning")
	}

	log.Info().Str(zerowrap.FieldEntityID, resp.ID).Msg("container created")
	return resp.ID, nil
}

// StartUnit starts a container.
func (d *Driver) StartUnit(ctx context.Context, unitID string) error {
	return d.do(ctx, "StartUnit", unitID, "failed to start container", func(ctx context.Context) error {
		return d.client.ContainerStart(ctx, unitID, container.StartOptions{})
	})
}

// StopUnit stops a container, killing it after the stop timeout.
func (d *Driver) StopUnit(ctx context.Context, unitID string) error {
	timeout := int(d.config.StopTimeout.Seconds())
	return d.do(ctx, "StopUnit", unitID, "failed to stop container", func(ctx context.Context) error {
		return d.client.ContainerStop(ctx, unitID, container.StopOptions{Timeout: &timeout})
	})
}

// PauseUnit freezes a container.
func (d *Driver) PauseUnit(ctx context.Context, unitID string) error {
	return d.do(ctx, "PauseUnit", unitID, "failed to pause container", func(ctx context.Context) error {
		return d.client.ContainerPause(ctx, unitID)
	})
}

// ResumeUnit unfreezes a container.
func (d *Driver) ResumeUnit(ctx context.Context, unitID string) error {
	return d.do(ctx, "ResumeUnit", unitID, "failed to unpause container", func(ctx context.Context) error {
		return d.client.ContainerUnpause(ctx, unitID)
	})
}

// RemoveUnit removes a container.
func (d *Driver) RemoveUnit(ctx context.Context, unitID string, force bool) error {
	return d.do(ctx, "RemoveUnit", unitID, "failed to remove container", func(ctx context.Context) error {
		return d.client.ContainerRemove(ctx, unitID, container.RemoveOptions{Force: force})
	})
}

// ListUnits lists containers labelled as managed by berth, or every container
// when AdoptAll is set.
func (d *Driver) ListUnits(ctx context.Context) ([]out.UnitState, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "ListUnits",
	})
	log := zerowrap.FromCtx(ctx)

	opts := container.ListOptions{All: true}
	if !d.config.AdoptAll {
		opts.Filters = filters.NewArgs(filters.Arg("label", domain.LabelManaged+"=true"))
	}

	containers, err := d.client.ContainerList(ctx, opts)
	if err != nil {
		return nil, log.WrapErr(classify(err, false), "failed to list containers")
	}

	units := make([]out.UnitState, 0, len(containers))
	for _, c := range containers {
		// Get the primary name (remove leading slash)
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		var ports []domain.PortMapping
		for _, p := range c.Ports {
			if p.PublicPort == 0 {
				continue
			}
			pm := domain.PortMapping{Host: int(p.PublicPort), Container: int(p.PrivatePort)}
			// IPv4 and IPv6 bindings show up twice.
			if !slices.Contains(ports, pm) {
				ports = append(ports, pm)
			}
		}

		units = append(units, out.UnitState{
			UnitID:      c.ID,
			ContainerID: c.Labels[domain.LabelContainerID],
			Name:        name,
			Image:       c.Image,
			Ports:       ports,
			Status:      mapState(c.State),
			Managed:     c.Labels[domain.LabelManaged] == "true",
		})
	}

	log.Debug().Int(zerowrap.FieldCount, len(units)).Msg("listed containers")
	return units, nil
}

// Ping checks if Docker is responsive.
func (d *Driver) Ping(ctx context.Context) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "docker",
		zerowrap.FieldAction:  "Ping",
	})
	log := zerowrap.FromCtx(ctx)

	if _, err := d.client.Ping(ctx); err != nil {
		log.Debug().Err(err).Msg("Docker ping failed")
		return fmt.Errorf("docker ping failed: %w", classify(err, false))
	}
	return nil
}

func (d *Driver) do(ctx context.Context, action, unitID, failMsg string, call func(ctx context.Context) error) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "adapter",
		zerowrap.FieldAdapter:  "docker",
		zerowrap.FieldAction:   action,
		zerowrap.FieldEntityID: unitID,
	})
	log := zerowrap.FromCtx(ctx)

	if err := call(ctx); err != nil {
		return log.WrapErr(classify(err, false), failMsg)
	}

	log.Debug().Msg("docker call succeeded")
	return nil
}

// portSpecs converts mappings into Docker's exposed ports and bindings.
func portSpecs(mappings []domain.PortMapping) (nat.PortSet, nat.PortMap) {
	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)

	for _, m := range mappings {
		containerPort := nat.Port(fmt.Sprintf("%d/tcp", m.Container))
		exposedPorts[containerPort] = struct{}{}

		hostPort := "0" // Docker will assign a random available port
		if m.Host > 0 {
			hostPort = strconv.Itoa(m.Host)
		}
		portBindings[containerPort] = append(portBindings[containerPort], nat.PortBinding{
			HostIP:   "0.0.0.0",
			HostPort: hostPort,
		})
	}
	return exposedPorts, portBindings
}

// mapState maps a Docker container state onto the status set.
func mapState(state string) domain.ContainerStatus {
	switch strings.ToLower(state) {
	case "running", "restarting":
		return domain.StatusRunning
	case "paused":
		return domain.StatusPaused
	case "created":
		return domain.StatusCreated
	default: // exited, dead, removing
		return domain.StatusStopped
	}
}
