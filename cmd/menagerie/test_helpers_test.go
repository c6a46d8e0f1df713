package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	audioRoot  string
	server     *httptest.Server
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	for _, key := range []string{
		"MENAGERIE_TEXTGEN_API_KEY", "OPENAI_API_KEY",
		"MENAGERIE_SPEECH_API_KEY", "ELEVENLABS_API_KEY",
		"ELEVENLABS_VOICE_ID",
	} {
		t.Setenv(key, "")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3 fake audio payload"))
	}))
	t.Cleanup(server.Close)

	catalogPath := filepath.Join(base, "animals.json")
	catalogJSON := `[
		{"name": "Lion", "category": "Savanna", "fact": "Lions live in prides."},
		{"name": "Sea Otter", "category": "Shallow Water", "fact": "Sea otters hold hands while they sleep."}
	]`
	if err := os.WriteFile(catalogPath, []byte(catalogJSON), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	audioRoot := filepath.Join(base, "audio")
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
catalog_file = %q
audio_root = %q
scripts_file = %q
manifest_path = %q
log_dir = %q

[speech]
api_key = "test-speech-key"
base_url = %q

[pipeline]
batch_pause_seconds = 0

[logging]
level = "error"
`,
		catalogPath,
		audioRoot,
		filepath.Join(base, "scripts.json"),
		filepath.Join(base, "manifest.db"),
		filepath.Join(base, "logs"),
		server.URL,
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{
		baseDir:    base,
		configPath: configPath,
		audioRoot:  audioRoot,
		server:     server,
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
