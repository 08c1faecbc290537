package docker

import (
	"context"
	"errors"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/client"

	"github.com/bnema/berth/internal/domain"
)

// classify maps Docker client errors onto the domain error taxonomy.
// onCreate turns a 404 into ErrImageNotFound, since create 404s on a missing image.
func classify(err error, onCreate bool) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case cerrdefs.IsNotFound(err):
		if onCreate {
			return fmt.Errorf("%w: %v", domain.ErrImageNotFound, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrUnitNotFound, err)
	case client.IsErrConnectionFailed(err),
		cerrdefs.IsUnavailable(err),
		cerrdefs.IsDeadlineExceeded(err),
		cerrdefs.IsResourceExhausted(err):
		return domain.Transient(fmt.Errorf("%w: %v", domain.ErrRuntimeTransient, err))
	default:
		return err
	}
}
