package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rtbox/rtbox/internal/catalog"
	"github.com/rtbox/rtbox/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RTBOX_HOME", home)
	t.Setenv("RTBOX_IMAGE_SERVER", "")

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Home != home {
		t.Errorf("Home = %q, want %q", cfg.Home, home)
	}
	if cfg.ImageServer != catalog.DefaultImageServer {
		t.Errorf("ImageServer = %q, want default", cfg.ImageServer)
	}
	if cfg.RootfsDir() != filepath.Join(home, "rootfs") {
		t.Errorf("RootfsDir = %q", cfg.RootfsDir())
	}
	if cfg.StagingMaxAge != 24*time.Hour {
		t.Errorf("StagingMaxAge = %s", cfg.StagingMaxAge)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("unexpected config file %q", cfg.ConfigFile)
	}
}

func TestProgressDefaultFollowsTerminal(t *testing.T) {
	t.Setenv("RTBOX_HOME", t.TempDir())
	t.Setenv("RTBOX_PROGRESS", "")
	orig := stderrIsTerminal
	t.Cleanup(func() { stderrIsTerminal = orig })

	for _, tty := range []bool{false, true} {
		stderrIsTerminal = func() bool { return tty }
		cfg, err := Load(LoadOptions{})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Progress != tty {
			t.Errorf("terminal=%v: Progress = %v", tty, cfg.Progress)
		}
	}

	stderrIsTerminal = func() bool { return false }
	t.Setenv("RTBOX_PROGRESS", "true")
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Progress {
		t.Error("RTBOX_PROGRESS=true should enable progress off a terminal")
	}
}

func TestLoadConfigFileFromHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("RTBOX_HOME", home)

	data := "image_server = \"https://mirror.example.org\"\nprogress = false\nstaging_max_age = \"1h\"\n"
	if err := os.WriteFile(filepath.Join(home, ConfigFileName), []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ImageServer != "https://mirror.example.org" {
		t.Errorf("ImageServer = %q", cfg.ImageServer)
	}
	if cfg.Progress {
		t.Error("Progress should be disabled by the config file")
	}
	if cfg.StagingMaxAge != time.Hour {
		t.Errorf("StagingMaxAge = %s, want 1h", cfg.StagingMaxAge)
	}
}

func TestHomeOptionOverridesEnv(t *testing.T) {
	t.Setenv("RTBOX_HOME", t.TempDir())
	override := t.TempDir()

	cfg, err := Load(LoadOptions{Home: override})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Home != override {
		t.Errorf("Home = %q, want %q", cfg.Home, override)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RTBOX_HOME", t.TempDir())

	t.Setenv("RTBOX_IMAGE_SERVER", "ftp://example.org")
	if _, err := Load(LoadOptions{}); !models.IsType(err, models.ErrInvalidConfig) {
		t.Errorf("expected InvalidConfig for ftp server, got %v", err)
	}

	t.Setenv("RTBOX_IMAGE_SERVER", "")
	if _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.toml")}); !models.IsType(err, models.ErrInvalidConfig) {
		t.Errorf("expected InvalidConfig for missing config file, got %v", err)
	}
}
