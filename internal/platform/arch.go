// Package platform detects the host architecture.
package platform

import (
	"runtime"
	"strings"

	"github.com/elastic/go-sysinfo"
	"github.com/rtbox/rtbox/internal/models"
)

// Normalize maps a machine string as reported by uname to an Architecture.
func Normalize(machine string) (models.Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(machine)) {
	case "x86_64", "amd64", "x64":
		return models.ArchAMD64, nil
	case "aarch64", "arm64", "armv8":
		return models.ArchARM64, nil
	default:
		return "", models.NewError(models.ErrUnsupportedArchitecture, "",
			"unsupported host architecture %q", machine)
	}
}

// HostMachine returns the raw machine string of the running host. It falls
// back to the Go runtime's GOARCH if host info is unavailable.
func HostMachine() string {
	host, err := sysinfo.Host()
	if err == nil {
		if arch := host.Info().Architecture; arch != "" {
			return arch
		}
	}
	return runtime.GOARCH
}

// Detect returns the architecture of the running host.
func Detect() (models.Architecture, error) {
	return Normalize(HostMachine())
}
