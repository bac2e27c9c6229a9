package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rtbox/rtbox/internal/linker"
	"github.com/rtbox/rtbox/internal/models"
)

// Environment variables set for every child.
const (
	EnvRootfs      = "RTBOX_ROOTFS"
	EnvDistro      = "RTBOX_DISTRO"
	EnvLibraryPath = "LD_LIBRARY_PATH"
)

// safeVars are the host variables kept when the environment is cleaned.
var safeVars = []string{
	"PATH", "HOME", "USER", "LOGNAME", "SHELL", "TERM", "COLORTERM",
	"LANG", "LC_ALL", "LC_CTYPE", "TZ",
	"DISPLAY", "WAYLAND_DISPLAY", "XDG_RUNTIME_DIR", "XDG_SESSION_TYPE",
	"DBUS_SESSION_BUS_ADDRESS", "SSH_AUTH_SOCK", "SSH_TTY",
	"TMPDIR", "TEMP", "TMP",
	"CI", "GITHUB_ACTIONS", "RUNNER_OS",
}

// Options tune how an invocation is built.
type Options struct {
	// ExtraLibDirs are searched after the rootfs directories.
	ExtraLibDirs []string
	// Env holds KEY=VALUE assignments applied last.
	Env []string
	// CleanEnv starts from a small allowlist instead of the full environment.
	CleanEnv bool
	// FromRootfs runs an absolute command path from inside the rootfs
	// when the rootfs has it.
	FromRootfs bool
	Distro     string
	Dir        string
}

// Invocation is everything needed to start the child
type Invocation struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// ParseEnv checks that every assignment has the KEY=VALUE form.
func ParseEnv(assignments []string) error {
	for _, a := range assignments {
		k, _, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return models.NewError(models.ErrInvalidConfig, "", "invalid environment variable %q, use KEY=VALUE", a)
		}
	}
	return nil
}

// BuildInvocation returns the argv and environment that run command under
// the loader of the rootfs at rootfs. The loader receives every library
// directory in a single --library-path value, in the same order as the
// child's LD_LIBRARY_PATH: rootfs directories, then ExtraLibDirs, then
// whatever LD_LIBRARY_PATH the environment already had.
func BuildInvocation(rootfs string, layout *linker.Layout, command, environ []string, opts Options) (*Invocation, error) {
	if len(command) == 0 {
		return nil, models.NewError(models.ErrInvalidConfig, opts.Distro, "no command given")
	}
	if err := ParseEnv(opts.Env); err != nil {
		return nil, err
	}

	env := newEnv(environ, opts.CleanEnv)

	dirs := append([]string{}, layout.LibraryDirs...)
	dirs = append(dirs, opts.ExtraLibDirs...)
	if prev, ok := env.get(EnvLibraryPath); ok {
		dirs = append(dirs, filepath.SplitList(prev)...)
	}
	env.set(EnvLibraryPath, joinPath(dirs))
	env.set(EnvRootfs, rootfs)
	if opts.Distro != "" {
		env.set(EnvDistro, opts.Distro)
	}
	for _, a := range opts.Env {
		k, v, _ := strings.Cut(a, "=")
		env.set(k, v)
	}

	libraryPath, _ := env.get(EnvLibraryPath)
	program := resolveProgram(rootfs, command[0], env, opts)

	args := make([]string, 0, len(command)+3)
	args = append(args, layout.Interpreter, "--library-path", libraryPath, program)
	args = append(args, command[1:]...)

	return &Invocation{
		Path: layout.Interpreter,
		Args: args,
		Env:  env.list(),
		Dir:  opts.Dir,
	}, nil
}

// resolveProgram turns the command name into a path the loader can open.
// The loader does not search PATH, so bare names are looked up in the
// child's PATH here.
func resolveProgram(rootfs, name string, env *environment, opts Options) string {
	if filepath.IsAbs(name) {
		if opts.FromRootfs && linker.Exists(rootfs, name) {
			if p, err := linker.Resolve(rootfs, name); err == nil {
				return p
			}
		}
		return name
	}
	if strings.Contains(name, "/") {
		return name
	}
	path, _ := env.get("PATH")
	if p, ok := lookPath(name, path, opts.Dir); ok {
		return p
	}
	return name
}

func lookPath(name, path, dir string) (string, bool) {
	for _, d := range filepath.SplitList(path) {
		if d == "" {
			d = "."
		}
		if !filepath.IsAbs(d) && dir != "" {
			d = filepath.Join(dir, d)
		}
		p := filepath.Join(d, name)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0111 == 0 {
			continue
		}
		if !filepath.IsAbs(p) {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
		}
		return p, true
	}
	return "", false
}

func joinPath(dirs []string) string {
	var parts []string
	for _, d := range dirs {
		if d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, string(filepath.ListSeparator))
}

// environment is an ordered KEY=VALUE set. Later duplicates in the input
// win, as they do for execve consumers such as getenv.
type environment struct {
	keys []string
	vals map[string]string
}

func newEnv(environ []string, clean bool) *environment {
	e := &environment{vals: make(map[string]string)}
	if clean {
		host := make(map[string]string)
		for _, kv := range environ {
			if k, v, ok := strings.Cut(kv, "="); ok {
				host[k] = v
			}
		}
		for _, k := range safeVars {
			if v, ok := host[k]; ok {
				e.set(k, v)
			}
		}
		return e
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			e.set(k, v)
		}
	}
	return e
}

func (e *environment) get(k string) (string, bool) {
	v, ok := e.vals[k]
	return v, ok
}

func (e *environment) set(k, v string) {
	if _, ok := e.vals[k]; !ok {
		e.keys = append(e.keys, k)
	}
	e.vals[k] = v
}

func (e *environment) list() []string {
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, fmt.Sprintf("%s=%s", k, e.vals[k]))
	}
	return out
}
