package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"dynlights.ai/internal/sim/lighting/mode"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "lighting.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := writeFile(t, "mode: fastest\nchunk_size: 32\n")
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.Mode != mode.Fastest || tune.ChunkSize != 32 {
		t.Fatalf("mode=%v chunk=%d", tune.Mode, tune.ChunkSize)
	}
	if tune.TickRateHz != 20 || !tune.EntitiesLightSource {
		t.Fatalf("defaults lost: %+v", tune)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	if _, err := Load(writeFile(t, "mode: dazzling\n")); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	if _, err := Load(writeFile(t, "chunk_size: 1\n")); err == nil {
		t.Fatalf("expected chunk_size validation error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file: err=%v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	tune := Defaults()
	env := map[string]string{
		"DL_MODE":                  "off",
		"DL_ENTITIES_LIGHT_SOURCE": "false",
		"DL_CHUNK_SIZE":            "8",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	if err := tune.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if tune.Mode != mode.Off || tune.EntitiesLightSource || tune.ChunkSize != 8 {
		t.Fatalf("tune=%+v", tune)
	}

	env["DL_CHUNK_SIZE"] = "big"
	if err := tune.ApplyEnv(lookup); err == nil {
		t.Fatalf("expected DL_CHUNK_SIZE parse error")
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	for _, k := range []string{"DL_MODE", "DL_ENTITIES_LIGHT_SOURCE", "DL_CHUNK_SIZE"} {
		t.Setenv(k, "")
	}
	tune, err := Load("../../../configs/lighting.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune != Defaults() {
		t.Fatalf("shipped config drifted from defaults: %+v", tune)
	}
}
