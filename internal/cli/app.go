package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rtbox/rtbox/internal/catalog"
	"github.com/rtbox/rtbox/internal/config"
	"github.com/rtbox/rtbox/internal/fetch"
	"github.com/rtbox/rtbox/internal/installer"
	"github.com/rtbox/rtbox/internal/models"
	"github.com/rtbox/rtbox/internal/platform"
	"github.com/rtbox/rtbox/internal/runner"
	"github.com/rtbox/rtbox/internal/store"
	"github.com/rtbox/rtbox/internal/verify"
	"github.com/sirupsen/logrus"
)

type (
	// App holds the shared dependencies of the command tree. Configuration
	// is loaded once the global flags are parsed.
	App struct {
		deps Dependencies
		cfg  *config.Config
	}

	// Dependencies are the injection points for building an App. Nil
	// fields get production defaults.
	Dependencies struct {
		Catalog *catalog.Catalog
		// Arch overrides host detection.
		Arch models.Architecture
		// DetectArch replaces platform.Detect.
		DetectArch func() (models.Architecture, error)
		// Installer replaces the HTTP backed installer.
		Installer store.Installer
		// Spawner replaces both the fork and the exec spawner.
		Spawner runner.Spawner
		Environ func() []string
		Stdout  io.Writer
		Stderr  io.Writer
	}
)

// NewApp creates an App, filling in defaults for unset dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.DetectArch == nil {
		deps.DetectArch = platform.Detect
	}
	if deps.Environ == nil {
		deps.Environ = os.Environ
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	return &App{deps: deps}
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, deps Dependencies) int {
	app := NewApp(deps)
	rootCmd := NewRootCmd(app)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(app.deps.Stdout)
	rootCmd.SetErr(app.deps.Stderr)

	err := rootCmd.ExecuteContext(ctx)
	if errors.Is(err, context.Canceled) {
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			err = fmt.Errorf("%w: %w", err, cause)
		}
	}
	code := ExitCode(err)
	var exitErr *ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Err == nil) {
		logrus.Error(err)
	}
	return code
}

func (a *App) loadConfig(home, configFile string) error {
	cfg, err := config.Load(config.LoadOptions{Home: home, ConfigFile: configFile})
	if err != nil {
		return err
	}
	logrus.Debugf("Using home %s", cfg.Home)
	if cfg.ConfigFile != "" {
		logrus.Debugf("Using config file %s", cfg.ConfigFile)
	}
	a.cfg = cfg
	return nil
}

func (a *App) arch() (models.Architecture, error) {
	if a.deps.Arch != "" {
		return a.deps.Arch, nil
	}
	return a.deps.DetectArch()
}

// lazyInstaller defers building the download stack until a tree is
// actually installed, so keyring problems only affect commands that
// download.
type lazyInstaller struct {
	build func() (store.Installer, error)
}

func (l lazyInstaller) Install(ctx context.Context, req installer.Request) (*installer.Result, error) {
	inst, err := l.build()
	if err != nil {
		return nil, err
	}
	return inst.Install(ctx, req)
}

func (a *App) installer() (store.Installer, error) {
	if a.deps.Installer != nil {
		return a.deps.Installer, nil
	}

	opts := []fetch.Option{fetch.WithUserAgent("rtbox/" + version)}
	if a.cfg.Progress {
		opts = append(opts, fetch.WithProgress(a.deps.Stderr))
	}
	client := fetch.New(opts...)

	verifier := verify.New(client, nil)
	if a.cfg.Keyring != "" {
		keyring, err := verify.LoadKeyring(a.cfg.Keyring)
		if err != nil {
			return nil, models.NewError(models.ErrInvalidConfig, "", "%w", err)
		}
		verifier = verify.New(client, keyring)
	}

	return installer.New(client,
		installer.WithImageServer(a.cfg.ImageServer),
		installer.WithVerifier(verifier),
	), nil
}

// store opens the rootfs store for the host architecture.
func (a *App) store() (*store.Store, error) {
	arch, err := a.arch()
	if err != nil {
		return nil, err
	}
	return store.New(a.cfg.RootfsDir(), arch, lazyInstaller{build: a.installer}), nil
}

func (a *App) spawner(replace bool) runner.Spawner {
	if a.deps.Spawner != nil {
		return a.deps.Spawner
	}
	if replace {
		return runner.ExecSpawner{}
	}
	return runner.ForkSpawner{}
}

func (a *App) lookup(name string) (models.Distro, error) {
	return a.deps.Catalog.Lookup(name)
}
