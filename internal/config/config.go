// Package config loads and validates the TOML configuration for menagerie.
//
// Secrets (provider API keys) may live in the TOML file, in the process
// environment, or in a .env file next to the working directory; environment
// values win so credentials never have to be committed alongside paths.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains catalog inputs and output locations.
type Paths struct {
	// CatalogFile is the working entity list: [{name, category, fact}].
	CatalogFile string `toml:"catalog_file"`
	// RichCatalogFile is the full fact payload dataset (fact_level_1/2).
	RichCatalogFile string `toml:"rich_catalog_file"`
	// FactsFile is the supplementary curated fact table.
	FactsFile string `toml:"facts_file"`
	// AudioRoot is the artifact tree root; field subdirectories live below it.
	AudioRoot string `toml:"audio_root"`
	// LocksDir holds per-entity advisory lock files. Defaults to
	// {audio_root}/.locks so every worker sharing the tree shares the locks.
	LocksDir string `toml:"locks_dir"`
	// ScriptsFile is the review JSON written by scripts-only runs.
	ScriptsFile string `toml:"scripts_file"`
	// ManifestPath is the sqlite render-history database.
	ManifestPath string `toml:"manifest_path"`
	LogDir       string `toml:"log_dir"`
}

// TextGen contains the chat-completion provider settings used for script synthesis.
type TextGen struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Speech contains the speech-synthesis provider settings.
type Speech struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	VoiceID string `toml:"voice_id"`
	// Model renders fact lines; NameModel renders the single-word name lines.
	Model           string  `toml:"model"`
	NameModel       string  `toml:"name_model"`
	Stability       float64 `toml:"stability"`
	SimilarityBoost float64 `toml:"similarity_boost"`
	Style           float64 `toml:"style"`
	SpeakerBoost    bool    `toml:"speaker_boost"`
	OutputFormat    string  `toml:"output_format"`
}

// Pipeline contains batching, retry, and lock coordination settings.
type Pipeline struct {
	BatchSize          int  `toml:"batch_size"`
	BatchPauseSeconds  int  `toml:"batch_pause_seconds"`
	MaxRenderAttempts  int  `toml:"max_render_attempts"`
	RetryBaseSeconds   int  `toml:"retry_base_seconds"`
	LockStaleSeconds   int  `toml:"lock_stale_seconds"`
	AllowInventedFacts bool `toml:"allow_invented_facts"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for menagerie.
type Config struct {
	Paths    Paths    `toml:"paths"`
	TextGen  TextGen  `toml:"textgen"`
	Speech   Speech   `toml:"speech"`
	Pipeline Pipeline `toml:"pipeline"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/menagerie/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file.
// Returns the config, the resolved path, and whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnv overlays secrets from the environment (and a .env file when
// present). Environment values take precedence over the TOML file.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := strings.TrimSpace(os.Getenv("MENAGERIE_TEXTGEN_API_KEY")); v != "" {
		c.TextGen.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && c.TextGen.APIKey == "" {
		c.TextGen.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MENAGERIE_SPEECH_API_KEY")); v != "" {
		c.Speech.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")); v != "" && c.Speech.APIKey == "" {
		c.Speech.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ELEVENLABS_VOICE_ID")); v != "" && c.Speech.VoiceID == "" {
		c.Speech.VoiceID = v
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("menagerie.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.CatalogFile, err = expandPath(c.Paths.CatalogFile); err != nil {
		return fmt.Errorf("paths.catalog_file: %w", err)
	}
	if c.Paths.RichCatalogFile, err = expandPath(c.Paths.RichCatalogFile); err != nil {
		return fmt.Errorf("paths.rich_catalog_file: %w", err)
	}
	if c.Paths.FactsFile, err = expandPath(c.Paths.FactsFile); err != nil {
		return fmt.Errorf("paths.facts_file: %w", err)
	}
	if c.Paths.AudioRoot, err = expandPath(c.Paths.AudioRoot); err != nil {
		return fmt.Errorf("paths.audio_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LocksDir) == "" {
		c.Paths.LocksDir = filepath.Join(c.Paths.AudioRoot, ".locks")
	}
	if c.Paths.LocksDir, err = expandPath(c.Paths.LocksDir); err != nil {
		return fmt.Errorf("paths.locks_dir: %w", err)
	}
	if c.Paths.ScriptsFile, err = expandPath(c.Paths.ScriptsFile); err != nil {
		return fmt.Errorf("paths.scripts_file: %w", err)
	}
	if c.Paths.ManifestPath, err = expandPath(c.Paths.ManifestPath); err != nil {
		return fmt.Errorf("paths.manifest_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.Speech.Model = strings.TrimSpace(c.Speech.Model)
	c.Speech.NameModel = strings.TrimSpace(c.Speech.NameModel)
	if c.Speech.NameModel == "" {
		c.Speech.NameModel = c.Speech.Model
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// EnsureDirectories creates the directories a pipeline run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.AudioRoot,
		c.Paths.LocksDir,
		c.Paths.LogDir,
	}
	if dir := filepath.Dir(c.Paths.ManifestPath); dir != "" {
		dirs = append(dirs, dir)
	}
	if dir := filepath.Dir(c.Paths.ScriptsFile); dir != "" {
		dirs = append(dirs, dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
