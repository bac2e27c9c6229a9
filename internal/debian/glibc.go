package debian

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"

	"github.com/rtbox/rtbox/internal/linker"
	"github.com/rtbox/rtbox/internal/models"
)

// StatusFile is the dpkg database inside a rootfs.
const StatusFile = "var/lib/dpkg/status"

var (
	// "GNU C Library (Debian GLIBC 2.36-9+deb12u4) stable release version 2.36."
	releasePattern = regexp.MustCompile(`release version (\d+\.\d+)`)
	glibcPattern   = regexp.MustCompile(`^(\d+\.\d+)`)

	// ErrUnknownGlibc is returned when neither dpkg nor libc reveal a version.
	ErrUnknownGlibc = errors.New("glibc version not found")
)

// GlibcVersion reports the glibc version installed in the rootfs, reading
// the libc6 entry of the dpkg database and falling back to the version
// banner compiled into libc.so.6.
func GlibcVersion(rootfs string, arch models.Architecture) (string, error) {
	if v, err := glibcFromDpkg(rootfs); err == nil {
		return v, nil
	}
	return glibcFromLibrary(rootfs, arch)
}

func glibcFromDpkg(rootfs string) (string, error) {
	p, err := linker.Resolve(rootfs, StatusFile)
	if err != nil {
		return "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	paragraphs, err := ParseControl(f)
	if err != nil {
		return "", err
	}
	libc, ok := FindInstalled(paragraphs, "libc6")
	if !ok {
		return "", ErrUnknownGlibc
	}
	m := glibcPattern.FindStringSubmatch(UpstreamVersion(libc["Version"]))
	if m == nil {
		return "", fmt.Errorf("unexpected libc6 version %q", libc["Version"])
	}
	return m[1], nil
}

func glibcFromLibrary(rootfs string, arch models.Architecture) (string, error) {
	for _, dir := range []string{"lib/" + arch.Triplet(), "usr/lib/" + arch.Triplet(), "lib64", "lib"} {
		p, err := linker.Resolve(rootfs, path.Join(dir, "libc.so.6"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if m := releasePattern.FindSubmatch(data); m != nil {
			return string(m[1]), nil
		}
	}
	return "", ErrUnknownGlibc
}
