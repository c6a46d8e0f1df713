package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"menagerie/internal/catalog"
	"menagerie/internal/config"
	"menagerie/internal/locks"
	"menagerie/internal/logging"
	"menagerie/internal/manifest"
	"menagerie/internal/pipeline"
	"menagerie/internal/services/speech"
	"menagerie/internal/services/textgen"
	"menagerie/internal/synth"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds the run logger: console (or JSON) on stderr plus an
// append-mode log file under the configured log directory.
func (c *commandContext) newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	cleanup := func() {}

	if strings.TrimSpace(cfg.Paths.LogDir) != "" {
		file, err := logging.OpenLogFile(filepath.Join(cfg.Paths.LogDir, "menagerie.log"))
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
		cleanup = func() { file.Close() }
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Writers: writers,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return logger, cleanup, nil
}

// newPipeline assembles the full pipeline from configuration. The returned
// cleanup must run when the command finishes.
func (c *commandContext) newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	resolver, err := catalog.Load(catalog.Sources{
		CatalogFile:     cfg.Paths.CatalogFile,
		RichCatalogFile: cfg.Paths.RichCatalogFile,
		FactsFile:       cfg.Paths.FactsFile,
	})
	if err != nil {
		return nil, nil, err
	}

	synthesizer := newSynthesizer(cfg, logger)
	renderer := speech.NewClient(speechConfig(cfg), logger,
		speech.WithRetry(cfg.Pipeline.MaxRenderAttempts, retryBase(cfg)))
	lockManager := locks.NewManager(cfg.Paths.LocksDir, lockStale(cfg), logger)

	history, err := manifest.Open(ctx, cfg.Paths.ManifestPath)
	if err != nil {
		// History is an audit log, not a requirement; run without it.
		logger.Warn("render history unavailable", logging.Error(err))
		history = nil
	}
	cleanup := func() {
		if history != nil {
			history.Close()
		}
	}

	p := pipeline.New(cfg, resolver, synthesizer, renderer, lockManager, history, logger)
	return p, cleanup, nil
}

func newSynthesizer(cfg *config.Config, logger *slog.Logger) *synth.Synthesizer {
	requireTag := strings.EqualFold(strings.TrimSpace(cfg.Speech.Model), "eleven_v3")
	if strings.TrimSpace(cfg.TextGen.APIKey) == "" {
		return synth.New(nil, requireTag, logger)
	}
	client := textgen.NewClient(textgen.Config{
		APIKey:         cfg.TextGen.APIKey,
		BaseURL:        cfg.TextGen.BaseURL,
		Model:          cfg.TextGen.Model,
		TimeoutSeconds: cfg.TextGen.TimeoutSeconds,
	})
	return synth.New(client, requireTag, logger)
}

func speechConfig(cfg *config.Config) speech.Config {
	return speech.Config{
		APIKey:          cfg.Speech.APIKey,
		BaseURL:         cfg.Speech.BaseURL,
		VoiceID:         cfg.Speech.VoiceID,
		Model:           cfg.Speech.Model,
		NameModel:       cfg.Speech.NameModel,
		Stability:       cfg.Speech.Stability,
		SimilarityBoost: cfg.Speech.SimilarityBoost,
		Style:           cfg.Speech.Style,
		SpeakerBoost:    cfg.Speech.SpeakerBoost,
		OutputFormat:    cfg.Speech.OutputFormat,
	}
}

func retryBase(cfg *config.Config) time.Duration {
	if cfg.Pipeline.RetryBaseSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(cfg.Pipeline.RetryBaseSeconds) * time.Second
}

func lockStale(cfg *config.Config) time.Duration {
	if cfg.Pipeline.LockStaleSeconds <= 0 {
		return locks.DefaultStale
	}
	return time.Duration(cfg.Pipeline.LockStaleSeconds) * time.Second
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
