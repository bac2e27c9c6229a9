package models

import (
	"fmt"
	"slices"
	"strings"
)

// Architecture is a CPU architecture a rootfs can be built for
type Architecture string

const (
	ArchAMD64 Architecture = "amd64"
	ArchARM64 Architecture = "arm64"
)

// SupportedArchitectures lists every architecture rtbox knows how to run.
var SupportedArchitectures = []Architecture{ArchAMD64, ArchARM64}

// Triplet returns the Debian multiarch tuple for the architecture.
func (a Architecture) Triplet() string {
	switch a {
	case ArchAMD64:
		return "x86_64-linux-gnu"
	case ArchARM64:
		return "aarch64-linux-gnu"
	default:
		return ""
	}
}

// Valid reports whether a is one of SupportedArchitectures.
func (a Architecture) Valid() bool {
	return slices.Contains(SupportedArchitectures, a)
}

// URL template placeholders
const (
	PlaceholderServer = "{server}"
	PlaceholderArch   = "{arch}"
	PlaceholderBuild  = "{build}"
)

// Distro is an entry of the distro catalog
type Distro struct {
	Name          string
	Version       string
	DebianRelease string
	GlibcVersion  string
	URLTemplate   string
	Architectures []Architecture
}

// Supports reports whether the distro publishes images for arch.
func (d Distro) Supports(arch Architecture) bool {
	return slices.Contains(d.Architectures, arch)
}

// ResolveURL expands the server and architecture placeholders of the URL
// template. A {build} placeholder is left for the fetcher to resolve.
func (d Distro) ResolveURL(server string, arch Architecture) (string, error) {
	if !arch.Valid() || !d.Supports(arch) {
		return "", NewError(ErrUnsupportedArchitecture, d.Name,
			"no %s image published for %q", d.Name, arch)
	}
	u := strings.ReplaceAll(d.URLTemplate, PlaceholderServer, strings.TrimRight(server, "/"))
	u = strings.ReplaceAll(u, PlaceholderArch, string(arch))
	return u, nil
}

// String returns a short human readable description
func (d Distro) String() string {
	return fmt.Sprintf("%s (Debian %s, glibc %s)", d.Name, d.Version, d.GlibcVersion)
}
