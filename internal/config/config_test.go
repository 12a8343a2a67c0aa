package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	"golang.org/x/exp/slices"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "toml",
			file: "respatch.toml",
			body: "backup = false\nsection_name = \".icons\"\ndefault_lang = \"0x0804\"\nicon_sizes = [48, 16]\nlog_level = \"debug\"\n",
		},
		{
			name: "yaml",
			file: "respatch.yml",
			body: "backup: false\nsection_name: .icons\ndefault_lang: \"2052\"\nicon_sizes: [48, 16]\nlog_level: debug\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Backup {
				t.Error("backup = true, want false from file")
			}
			if !cfg.UpdateChecksum {
				t.Error("update_checksum lost its default")
			}
			if cfg.SectionName != ".icons" {
				t.Errorf("section_name = %q", cfg.SectionName)
			}
			if lang, err := cfg.Lang(); err != nil || lang != 0x0804 {
				t.Errorf("Lang = 0x%x, %v", lang, err)
			}
			if !slices.Equal(cfg.IconSizes, []int{48, 16}) {
				t.Errorf("icon_sizes = %v", cfg.IconSizes)
			}
			if cfg.Level() != log.DebugLevel {
				t.Errorf("Level = %v", cfg.Level())
			}
		})
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "empty.yaml", ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !slices.Equal(cfg.IconSizes, DefaultIconSizes) || !cfg.Backup {
		t.Errorf("empty file did not keep defaults: %+v", cfg)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown extension", "cfg.json", "{}"},
		{"long section name", "cfg.toml", "section_name = \".resources\"\n"},
		{"bad language", "cfg.toml", "default_lang = \"en-US\"\n"},
		{"icon too large", "cfg.yaml", "icon_sizes: [512]\n"},
		{"bad level", "cfg.yaml", "log_level: loud\n"},
		{"unknown yaml key", "cfg.yaml", "colour: red\n"},
		{"broken toml", "cfg.toml", "backup = \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.file, tt.body)); err == nil {
				t.Error("Load succeeded, want an error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.toml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
