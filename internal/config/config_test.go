package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	data map[string]any
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m *memBackend) SetString(key, val string) error { m.data[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.data[key] = val; return nil }
func (m *memBackend) Delete(key string) error          { delete(m.data, key); return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{data: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir should have a default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{data: map[string]any{
		"server.port":     7777,
		"storage.backend": "csv",
		"log.level":       "debug",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "csv" {
		t.Errorf("Storage.Backend = %q, want csv", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLEETKEEP_SERVER_PORT", "9999")
	t.Setenv("FLEETKEEP_STORAGE_DATA_DIR", "/tmp/fleet-test")

	cfg, err := loadWith(&memBackend{data: map[string]any{
		"server.port": 7777,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want env override 9999", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/fleet-test" {
		t.Errorf("Storage.DataDir = %q, want /tmp/fleet-test", cfg.Storage.DataDir)
	}
}

func TestInvalidBackendRejected(t *testing.T) {
	clearEnv(t)

	_, err := loadWith(&memBackend{data: map[string]any{
		"storage.backend": "gsheets",
	}})
	if err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("expected storage.backend error, got %v", err)
	}
}

func TestGetAPITokenStable(t *testing.T) {
	dir := t.TempDir()

	first, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("first GetAPIToken: %v", err)
	}
	if first == "" {
		t.Fatal("empty token generated")
	}

	second, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("second GetAPIToken: %v", err)
	}
	if first != second {
		t.Errorf("token changed across calls: %q vs %q", first, second)
	}

	data, err := os.ReadFile(filepath.Join(dir, "api_token"))
	if err != nil {
		t.Fatalf("reading token file: %v", err)
	}
	if strings.TrimSpace(string(data)) != first {
		t.Error("token file content does not match returned token")
	}
}

func TestShowAllCoversAllKeys(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{data: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}

	infos := ShowAll(cfg)
	if len(infos) != len(specs) {
		t.Errorf("ShowAll returned %d keys, want %d", len(infos), len(specs))
	}
	for _, k := range infos {
		if k.Value == "" && k.Key != "storage.data_dir" {
			t.Errorf("key %s has empty value", k.Key)
		}
	}
}
