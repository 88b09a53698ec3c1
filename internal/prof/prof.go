// Package prof runs the pyroscope agent and labels page work so profiles
// can be sliced by surface.
package prof

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/onterra/onterra-web/internal/log"
)

var ErrInvalidOptions = errors.New("prof: invalid options")

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	AuthToken     string
	TenantID      string
	Tags          map[string]string

	// runtime sampling for the mutex and block profiles; zero leaves the
	// runtime setting alone
	MutexFraction int
	BlockRate     int

	Logger log.Logger
}

func (o Options) validate() error {
	if o.ServerAddress == "" {
		return fmt.Errorf("%w: ServerAddress is required", ErrInvalidOptions)
	}
	if o.AppName == "" {
		return fmt.Errorf("%w: AppName is required", ErrInvalidOptions)
	}
	return nil
}

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Start launches the agent. The returned stop is never nil and may be
// called more than once.
func Start(ctx context.Context, opts Options) (stop func(), err error) {
	L := opts.Logger
	if L == nil {
		L = log.FromContext(ctx)
	}
	if !opts.Enabled {
		L.Debug(ctx, "continuous profiling disabled")
		return func() {}, nil
	}
	if err := opts.validate(); err != nil {
		return func() {}, err
	}

	if opts.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.MutexFraction)
	}
	if opts.BlockRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockRate)
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		AuthToken:       opts.AuthToken,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    profileTypes,
	})
	if err != nil {
		return func() {}, fmt.Errorf("start pyroscope: %w", err)
	}
	L.Info(ctx, "continuous profiling started", "server", opts.ServerAddress)

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := p.Stop(); err != nil {
				L.Warn(context.Background(), "pyroscope stop", "err", err)
			}
		})
	}, nil
}

// Labeled runs fn with surface attached as a profiling label.
func Labeled(ctx context.Context, surface string, fn func(context.Context)) {
	pyroscope.TagWrapper(ctx, pyroscope.Labels("surface", surface), fn)
}
