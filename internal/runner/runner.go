// Package runner executes commands under the dynamic loader of an
// installed rootfs.
package runner

import (
	"context"
	"os"

	"github.com/rtbox/rtbox/internal/linker"
	"github.com/rtbox/rtbox/internal/models"
	"github.com/sirupsen/logrus"
)

// Store provides installed trees.
type Store interface {
	EnsureInstalled(ctx context.Context, distro models.Distro) (*models.InstalledRootfs, error)
}

// Runner ties the store, the loader lookup and a Spawner together
type Runner struct {
	store   Store
	spawner Spawner
	environ func() []string
}

// Option configures a Runner during construction.
type Option func(*Runner)

// WithEnviron replaces os.Environ as the source of the child environment.
func WithEnviron(environ func() []string) Option {
	return func(r *Runner) {
		r.environ = environ
	}
}

// New creates a Runner.
func New(store Store, spawner Spawner, opts ...Option) *Runner {
	r := &Runner{store: store, spawner: spawner, environ: os.Environ}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prepare installs distro if needed and builds the invocation for command
// without starting it.
func (r *Runner) Prepare(ctx context.Context, distro models.Distro, command []string, opts Options) (*Invocation, error) {
	rf, err := r.store.EnsureInstalled(ctx, distro)
	if err != nil {
		return nil, err
	}

	layout, err := linker.Locate(rf.Path, rf.Architecture)
	if err != nil {
		if re, ok := err.(*models.RtboxError); ok && re.Distro == "" {
			re.Distro = distro.Name
		}
		return nil, err
	}

	opts.Distro = distro.Name
	inv, err := BuildInvocation(rf.Path, layout, command, r.environ(), opts)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Invocation: %q (dir %q)", inv.Args, inv.Dir)
	return inv, nil
}

// Run executes command against distro's glibc and returns the child's
// exit code.
func (r *Runner) Run(ctx context.Context, distro models.Distro, command []string, opts Options) (int, error) {
	inv, err := r.Prepare(ctx, distro, command, opts)
	if err != nil {
		return 0, err
	}
	code, err := r.spawner.Spawn(ctx, inv)
	if err != nil {
		return 0, err
	}
	if code != 0 {
		logrus.Debugf("%s exited with %d", command[0], code)
	}
	return code, nil
}
