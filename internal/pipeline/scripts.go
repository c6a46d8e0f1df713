package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScriptEntry is one reviewed simple line, keyed by entity identifier in the
// scripts file so a human can read and edit lines before any audio is spent
// on them.
type ScriptEntry struct {
	Name      string `json:"name"`
	Simple    string `json:"simple"`
	UpdatedAt string `json:"updated_at"`
}

// LoadScripts reads a scripts file. A missing file is an empty collection.
func LoadScripts(path string) (map[string]ScriptEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ScriptEntry{}, nil
		}
		return nil, fmt.Errorf("load scripts file: %w", err)
	}
	scripts := map[string]ScriptEntry{}
	if err := json.Unmarshal(data, &scripts); err != nil {
		return nil, fmt.Errorf("parse scripts file %s: %w", path, err)
	}
	return scripts, nil
}

// SaveScripts writes the collection atomically.
func SaveScripts(path string, scripts map[string]ScriptEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create scripts dir: %w", err)
	}
	data, err := json.MarshalIndent(scripts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scripts file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write scripts file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize scripts file: %w", err)
	}
	return nil
}

func newScriptEntry(name, simple string) ScriptEntry {
	return ScriptEntry{
		Name:      name,
		Simple:    simple,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
