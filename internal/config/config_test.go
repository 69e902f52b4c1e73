package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terrain.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RenderDistance != 12 || cfg.MaxRetries != 3 || !cfg.Smooth() || cfg.World.Source != "generated" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	path := writeConfig(t, `
workers: 3
render_distance: 99
light_mode: FLAT
max_retries: -1
strict_guard: true
world:
  source: anvil
  path: /tmp/region
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 3 || cfg.RenderDistance != MaxRenderDistance {
		t.Fatalf("workers/render distance = %d/%d", cfg.Workers, cfg.RenderDistance)
	}
	if cfg.Smooth() || cfg.MaxRetries != 3 || !cfg.StrictGuard {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.World.Source != "anvil" || cfg.World.Path != "/tmp/region" {
		t.Fatalf("world = %+v", cfg.World)
	}
	// keys absent from the file keep their defaults
	if cfg.MaxSectionY != 19 || cfg.FrameSubmitBudget != 64 || cfg.NearDistance != 2 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"light_mode: neon\n", "light_mode"},
		{"render_distance: 4\nnear_distance: 5\n", "near_distance"},
		{"min_section_y: 4\nmax_section_y: 1\n", "min_section_y"},
		{"world:\n  source: anvil\n", "world.path"},
		{"world:\n  source: lava\n", "world.source"},
		{"workers: [\n", "terrain.yaml"},
	}
	for _, tt := range tests {
		_, err := Load(writeConfig(t, tt.body))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("Load(%q) error = %v, want mention of %q", tt.body, err, tt.want)
		}
	}
}

func TestNearDistanceNormalize(t *testing.T) {
	cfg := Defaults()
	cfg.NearDistance = -3
	cfg.Normalize()
	if cfg.NearDistance != 0 {
		t.Fatalf("negative near distance normalised to %d, want 0", cfg.NearDistance)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("near distance 0 rejected: %v", err)
	}
}

func TestRenderDistanceClamp(t *testing.T) {
	defer SetRenderDistance(GetRenderDistance())
	if got := SetRenderDistance(1); got != MinRenderDistance {
		t.Fatalf("SetRenderDistance(1) = %d", got)
	}
	if got := SetRenderDistance(100); got != MaxRenderDistance || GetRenderDistance() != MaxRenderDistance {
		t.Fatalf("SetRenderDistance(100) = %d", got)
	}
	SetRenderDistance(8)
	if GetLoadRadius() != 9 {
		t.Fatalf("load radius = %d, want 9", GetLoadRadius())
	}
}
