package shellwrap

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	got, err := Render(Params{
		Distro:       "bookworm",
		GlibcVersion: "2.36",
		Rootfs:       "/home/u/.local/share/rtbox/rootfs/bookworm",
		Interpreter:  "/home/u/.local/share/rtbox/rootfs/bookworm/usr/lib/x86_64-linux-gnu/ld-linux-x86-64.so.2",
		LibraryDirs: []string{
			"/home/u/.local/share/rtbox/rootfs/bookworm/usr/lib/x86_64-linux-gnu",
			"/home/u/.local/share/rtbox/rootfs/bookworm/usr/lib",
		},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	want := `#!/bin/bash
# rtbox wrapper script for bookworm (glibc 2.36)
# Source this script or use it as a prefix for commands

export RTBOX_ROOTFS='/home/u/.local/share/rtbox/rootfs/bookworm'
export RTBOX_DISTRO='bookworm'
export LD_LIBRARY_PATH='/home/u/.local/share/rtbox/rootfs/bookworm/usr/lib/x86_64-linux-gnu:/home/u/.local/share/rtbox/rootfs/bookworm/usr/lib'${LD_LIBRARY_PATH:+:$LD_LIBRARY_PATH}

# Function to run commands with the rtbox glibc
rtbox_run() {
    '/home/u/.local/share/rtbox/rootfs/bookworm/usr/lib/x86_64-linux-gnu/ld-linux-x86-64.so.2' --library-path "$LD_LIBRARY_PATH" "$@"
}

# If arguments were passed, run them
if [ $# -gt 0 ]; then
    rtbox_run "$@"
fi
`
	if got != want {
		t.Errorf("Render mismatch\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"plain":      "'plain'",
		"with space": "'with space'",
		"it's":       `'it'\''s'`,
		"$HOME`x`":   "'$HOME`x`'",
		"":           "''",
	}
	for in, want := range tests {
		if got := quote(in); got != want {
			t.Errorf("quote(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRenderedScriptRuns(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	dir := t.TempDir()
	// a stand-in loader that prints what it was given
	loader := filepath.Join(dir, "it's ld.so")
	if err := os.WriteFile(loader, []byte("#!/bin/sh\necho \"$RTBOX_DISTRO|$1|$2|$3|$4\"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	out, err := Render(Params{Distro: "trixie", Rootfs: dir, Interpreter: loader, LibraryDirs: []string{"/a", "/b"}})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "wrapper.sh")
	if err := os.WriteFile(path, []byte(out), 0755); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(bash, path, "/bin/prog", "x y")
	cmd.Env = []string{"LD_LIBRARY_PATH=/host"}
	res, err := cmd.Output()
	if err != nil {
		t.Fatalf("wrapper failed: %v", err)
	}
	if got, want := strings.TrimSpace(string(res)), "trixie|--library-path|/a:/b:/host|/bin/prog|x y"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
