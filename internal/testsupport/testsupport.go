// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"menagerie/internal/config"
)

// NewConfig returns a validated config whose paths all live under a
// test-scoped temporary directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Paths.CatalogFile = filepath.Join(root, "catalog.json")
	cfg.Paths.RichCatalogFile = filepath.Join(root, "rich_catalog.json")
	cfg.Paths.FactsFile = filepath.Join(root, "facts.json")
	cfg.Paths.AudioRoot = filepath.Join(root, "audio")
	cfg.Paths.LocksDir = filepath.Join(root, "audio", ".locks")
	cfg.Paths.ScriptsFile = filepath.Join(root, "scripts.json")
	cfg.Paths.ManifestPath = filepath.Join(root, "state", "manifest.db")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.TextGen.APIKey = "test-textgen-key"
	cfg.Speech.APIKey = "test-speech-key"
	cfg.Pipeline.BatchPauseSeconds = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WriteJSON marshals v to path, creating parent directories.
func WriteJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
