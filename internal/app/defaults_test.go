package app

import (
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("CREDBAK_CONFIG_PATH", "/etc/credbak/config.toml")
		t.Setenv("CREDBAK_HOME", "/srv/credbak")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error: %v", err)
		}

		if defaults["config_path"] != "/etc/credbak/config.toml" {
			t.Errorf("config_path = %q", defaults["config_path"])
		}
		if defaults["base_dir"] != "/srv/credbak" {
			t.Errorf("base_dir = %q", defaults["base_dir"])
		}
		if defaults["backup_root"] != filepath.Join("/srv/credbak", "backups") {
			t.Errorf("backup_root = %q", defaults["backup_root"])
		}
	})

	t.Run("home directory fallback", func(t *testing.T) {
		t.Setenv("CREDBAK_CONFIG_PATH", "")
		t.Setenv("CREDBAK_HOME", "")
		home := t.TempDir()
		t.Setenv("HOME", home)

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error: %v", err)
		}

		if want := filepath.Join(home, ".config", "credbak.toml"); defaults["config_path"] != want {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
		}
		if want := filepath.Join(home, ".local", "share", "credbak"); defaults["base_dir"] != want {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], want)
		}
	})
}
