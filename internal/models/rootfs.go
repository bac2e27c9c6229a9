package models

import "time"

// InstalledRootfs describes a completed rootfs tree in the store
type InstalledRootfs struct {
	Name         string
	Path         string
	Architecture Architecture
	SourceURL    string
	SHA256       string
	InstalledAt  time.Time

	// Computed on demand by Describe.
	SizeBytes    int64
	GlibcVersion string
}
