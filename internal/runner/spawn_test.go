package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rtbox/rtbox/internal/models"
)

func shell(t *testing.T, script string) *Invocation {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	return &Invocation{Path: "/bin/sh", Args: []string{"/bin/sh", "-c", script}, Env: []string{"FOO=bar"}}
}

func TestForkSpawnerExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"success", "exit 0", 0},
		{"exit code passes through", "exit 7", 7},
		{"killed by signal", "kill -9 $$", models.SignalExitBase + 9},
		{"terminated", "kill -TERM $$", models.SignalExitBase + 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ForkSpawner{}.Spawn(context.Background(), shell(t, tt.script))
			if err != nil {
				t.Fatalf("Spawn failed: %v", err)
			}
			if code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestForkSpawnerEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	inv := shell(t, `echo "$FOO"; pwd`)
	inv.Dir = dir

	var out bytes.Buffer
	code, err := ForkSpawner{Stdout: &out}.Spawn(context.Background(), inv)
	if err != nil || code != 0 {
		t.Fatalf("Spawn = %d, %v", code, err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != "bar" {
		t.Fatalf("unexpected output %q", out.String())
	}
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(lines[1])
	if got != want {
		t.Errorf("child ran in %q, want %q", got, want)
	}
}

func TestForkSpawnerStartFailure(t *testing.T) {
	inv := &Invocation{Path: "/nonexistent/ld.so", Args: []string{"/nonexistent/ld.so"}}
	_, err := ForkSpawner{}.Spawn(context.Background(), inv)
	if !models.IsType(err, models.ErrSpawnFailed) {
		t.Fatalf("expected SpawnFailed, got %v", err)
	}
	if models.ExitCodeFor(err) != models.ExitExecution {
		t.Errorf("exit code = %d", models.ExitCodeFor(err))
	}
}
