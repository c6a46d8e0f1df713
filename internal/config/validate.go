package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}
	if err := c.validateTextGen(); err != nil {
		return err
	}
	return c.validatePipeline()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.CatalogFile) == "" {
		return errors.New("paths.catalog_file must be set")
	}
	if strings.TrimSpace(c.Paths.AudioRoot) == "" {
		return errors.New("paths.audio_root must be set")
	}
	return nil
}

func (c *Config) validateSpeech() error {
	if strings.TrimSpace(c.Speech.VoiceID) == "" {
		return errors.New("speech.voice_id must be set")
	}
	if c.Speech.Stability < 0 || c.Speech.Stability > 1 {
		return errors.New("speech.stability must be between 0 and 1")
	}
	if c.Speech.SimilarityBoost < 0 || c.Speech.SimilarityBoost > 1 {
		return errors.New("speech.similarity_boost must be between 0 and 1")
	}
	if c.Speech.Style < 0 || c.Speech.Style > 1 {
		return errors.New("speech.style must be between 0 and 1")
	}
	if strings.TrimSpace(c.Speech.OutputFormat) == "" {
		return errors.New("speech.output_format must be set")
	}
	return nil
}

func (c *Config) validateTextGen() error {
	if strings.TrimSpace(c.TextGen.BaseURL) == "" {
		return errors.New("textgen.base_url must be set")
	}
	if c.TextGen.TimeoutSeconds < 0 {
		return errors.New("textgen.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be at least 1 (got %d)", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxRenderAttempts < 1 {
		return errors.New("pipeline.max_render_attempts must be at least 1")
	}
	if c.Pipeline.RetryBaseSeconds < 0 {
		return errors.New("pipeline.retry_base_seconds must not be negative")
	}
	if c.Pipeline.LockStaleSeconds < 1 {
		return errors.New("pipeline.lock_stale_seconds must be at least 1")
	}
	return nil
}
