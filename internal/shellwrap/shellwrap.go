// Package shellwrap renders a shell script that sets up the environment
// for running commands under an installed rootfs.
package shellwrap

import (
	"bytes"
	"strings"
	"text/template"
)

// Params are the values baked into the script
type Params struct {
	Distro       string
	GlibcVersion string
	Rootfs       string
	Interpreter  string
	LibraryDirs  []string
}

var script = template.Must(template.New("wrapper").Funcs(template.FuncMap{
	"quote": quote,
	"join":  func(dirs []string) string { return strings.Join(dirs, ":") },
}).Parse(`#!/bin/bash
# rtbox wrapper script for {{.Distro}} (glibc {{.GlibcVersion}})
# Source this script or use it as a prefix for commands

export RTBOX_ROOTFS={{quote .Rootfs}}
export RTBOX_DISTRO={{quote .Distro}}
export LD_LIBRARY_PATH={{quote (join .LibraryDirs)}}${LD_LIBRARY_PATH:+:$LD_LIBRARY_PATH}

# Function to run commands with the rtbox glibc
rtbox_run() {
    {{quote .Interpreter}} --library-path "$LD_LIBRARY_PATH" "$@"
}

# If arguments were passed, run them
if [ $# -gt 0 ]; then
    rtbox_run "$@"
fi
`))

// quote returns s as a single-quoted shell word.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Render returns the wrapper script for p.
func Render(p Params) (string, error) {
	var buf bytes.Buffer
	if err := script.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}
