package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	tests := map[string]struct {
		env  map[string]string
		want Defaults
	}{
		"home directory fallbacks": {
			want: Defaults{
				ConfigPath: filepath.Join(homeDir, ".config", "docchat.toml"),
				BaseDir:    filepath.Join(homeDir, ".local", "share", "docchat"),
				EnvFile:    ".env",
			},
		},
		"xdg directories": {
			env: map[string]string{
				"XDG_CONFIG_HOME": "/xdg/config",
				"XDG_DATA_HOME":   "/xdg/data",
			},
			want: Defaults{
				ConfigPath: "/xdg/config/docchat.toml",
				BaseDir:    "/xdg/data/docchat",
				EnvFile:    ".env",
			},
		},
		"relative xdg directories are ignored": {
			env: map[string]string{
				"XDG_CONFIG_HOME": "config",
				"XDG_DATA_HOME":   "data",
			},
			want: Defaults{
				ConfigPath: filepath.Join(homeDir, ".config", "docchat.toml"),
				BaseDir:    filepath.Join(homeDir, ".local", "share", "docchat"),
				EnvFile:    ".env",
			},
		},
		"docchat variables win over xdg": {
			env: map[string]string{
				"XDG_CONFIG_HOME":     "/xdg/config",
				"XDG_DATA_HOME":       "/xdg/data",
				"DOCCHAT_CONFIG_PATH": "/custom/config.toml",
				"DOCCHAT_HOME":        "/custom/docchat",
				"DOCCHAT_ENV_FILE":    "/custom/docchat.env",
			},
			want: Defaults{
				ConfigPath: "/custom/config.toml",
				BaseDir:    "/custom/docchat",
				EnvFile:    "/custom/docchat.env",
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"XDG_CONFIG_HOME", "XDG_DATA_HOME", "DOCCHAT_CONFIG_PATH", "DOCCHAT_HOME", "DOCCHAT_ENV_FILE"} {
				t.Setenv(k, tt.env[k])
			}

			got, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("GetDefaults() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestDefaults_Config(t *testing.T) {
	d := &Defaults{BaseDir: "/data/docchat"}
	cfg := d.Config()

	if cfg.BaseDir != "/data/docchat" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if want := filepath.Join("/data/docchat", "log"); cfg.LogDir != want {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, want)
	}
	if want := filepath.Join("/data/docchat", "state.db"); cfg.State.Path != want {
		t.Errorf("State.Path = %q, want %q", cfg.State.Path, want)
	}
}
