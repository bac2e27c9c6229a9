// Package catalog holds the fixed set of Debian distributions rtbox can
// provision.
package catalog

import (
	"fmt"
	"strings"

	"github.com/rtbox/rtbox/internal/models"
)

// DefaultImageServer is the public LXC image server hosting the rootfs builds.
const DefaultImageServer = "https://images.linuxcontainers.org"

func lxcTemplate(codename string) string {
	return models.PlaceholderServer + "/images/debian/" + codename + "/" +
		models.PlaceholderArch + "/default/" + models.PlaceholderBuild + "/rootfs.tar.xz"
}

func debian(name, version, glibc string) models.Distro {
	return models.Distro{
		Name:          name,
		Version:       version,
		DebianRelease: "Debian " + version,
		GlibcVersion:  glibc,
		URLTemplate:   lxcTemplate(name),
		Architectures: []models.Architecture{models.ArchAMD64, models.ArchARM64},
	}
}

// Catalog is an immutable, ordered set of distros
type Catalog struct {
	entries []models.Distro
	byName  map[string]int
	byVer   map[string]int
}

// New builds a catalog, rejecting duplicate names or versions.
func New(entries ...models.Distro) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[string]int, len(entries)),
		byVer:  make(map[string]int, len(entries)),
	}
	for i, d := range entries {
		if d.Name == "" {
			return nil, fmt.Errorf("catalog entry %d has no name", i)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate distro name %q", d.Name)
		}
		c.byName[d.Name] = i
		if d.Version != "" {
			if _, dup := c.byVer[d.Version]; dup {
				return nil, fmt.Errorf("duplicate distro version %q", d.Version)
			}
			c.byVer[d.Version] = i
		}
	}
	c.entries = append([]models.Distro(nil), entries...)
	return c, nil
}

var defaultCatalog = mustNew(
	debian("bullseye", "11", "2.31"),
	debian("bookworm", "12", "2.36"),
	debian("trixie", "13", "2.41"),
	debian("forky", "14", "2.41"),
)

func mustNew(entries ...models.Distro) *Catalog {
	c, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Lookup finds a distro by codename or Debian version number.
func (c *Catalog) Lookup(name string) (models.Distro, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if i, ok := c.byName[key]; ok {
		return c.entries[i], nil
	}
	if i, ok := c.byVer[key]; ok {
		return c.entries[i], nil
	}
	return models.Distro{}, models.NewError(models.ErrUnknownDistro, "",
		"unknown distro %q (valid: %s)", name, strings.Join(c.Names(), ", "))
}

// All returns every entry in declaration order.
func (c *Catalog) All() []models.Distro {
	return append([]models.Distro(nil), c.entries...)
}

// Names returns the codenames in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, d := range c.entries {
		names[i] = d.Name
	}
	return names
}
