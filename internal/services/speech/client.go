// Package speech renders spoken audio through an ElevenLabs-compatible
// text-to-speech endpoint and writes the result to disk atomically.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"menagerie/internal/logging"
	"menagerie/internal/services"
)

const (
	providerName         = "speech"
	defaultHTTPTimeout   = 120 * time.Second
	defaultRenderRetries = 3
	defaultRetryBase     = 3 * time.Second
)

// Config captures the voice and account settings for the renderer.
type Config struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	Model           string
	NameModel       string
	Stability       float64
	SimilarityBoost float64
	Style           float64
	SpeakerBoost    bool
	OutputFormat    string
}

// Client renders text to audio files with bounded retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	maxAttempts int
	retryBase   time.Duration
	sleeper     func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry overrides the attempt budget and the linear backoff base.
func WithRetry(attempts int, base time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = attempts
		c.retryBase = base
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a speech renderer.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	client := &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:      logging.WithComponent(logger, providerName),
		maxAttempts: defaultRenderRetries,
		retryBase:   defaultRetryBase,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured fact model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// NameModel returns the model used for short name announcements, falling back
// to the fact model when none is configured.
func (c *Client) NameModel() string {
	if strings.TrimSpace(c.cfg.NameModel) != "" {
		return c.cfg.NameModel
	}
	return c.cfg.Model
}

type renderRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost bool     `json:"use_speaker_boost"`
}

type errorDetail struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// Render converts text to speech with modelID and writes the audio to dest.
// The file appears atomically: it is written next to dest and renamed into
// place only after the full body has been received.
func (c *Client) Render(ctx context.Context, text, dest, modelID string) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return services.Wrap(services.ErrConfiguration, providerName, "api key required", nil)
	}
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrValidation, providerName, "empty render text", nil)
	}
	if modelID == "" {
		modelID = c.cfg.Model
	}

	payload := renderRequest{
		Text:    text,
		ModelID: modelID,
		VoiceSettings: voiceSettings{
			Stability:       c.stabilityFor(modelID),
			SimilarityBoost: c.cfg.SimilarityBoost,
			UseSpeakerBoost: c.cfg.SpeakerBoost,
		},
	}
	if c.cfg.Style > 0 {
		style := c.cfg.Style
		payload.VoiceSettings.Style = &style
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("speech render: encode body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", c.cfg.BaseURL, c.cfg.VoiceID)
	if format := strings.TrimSpace(c.cfg.OutputFormat); format != "" {
		endpoint += "?output_format=" + format
	}

	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retry, err := c.renderOnce(ctx, endpoint, encoded, dest)
		if err == nil {
			return nil
		}
		if !retry || attempt == attempts {
			if retry {
				return services.Wrap(services.ErrTransient, providerName,
					fmt.Sprintf("render failed after %d attempts", attempts), err)
			}
			return err
		}
		lastErr = err
		delay := c.retryBase * time.Duration(attempt)
		c.logger.Warn("render attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return services.Wrap(services.ErrTransient, providerName, "render failed", lastErr)
}

// renderOnce performs a single HTTP round trip. The bool result reports
// whether the failure is retryable.
func (c *Client) renderOnce(ctx context.Context, endpoint string, body []byte, dest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("speech render: new request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return true, fmt.Errorf("speech render: http error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := writeAtomic(dest, resp.Body); err != nil {
			return false, err
		}
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("speech render: http 429: rate limited")
	default:
		return c.classifyFailure(resp)
	}
}

// classifyFailure inspects an error response body. Account-limit detail codes
// and credential failures are fatal; everything else is retryable.
func (c *Client) classifyFailure(resp *http.Response) (bool, error) {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail errorDetail
	if err := json.Unmarshal(raw, &detail); err == nil && services.KnownLimitReason(detail.Detail.Status) {
		return false, &services.ProviderLimitError{
			Provider:   providerName,
			Reason:     strings.ToLower(strings.TrimSpace(detail.Detail.Status)),
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, &services.AuthError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return true, fmt.Errorf("speech render: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// stabilityFor snaps stability to the values v3 models accept. Older models
// take the configured value unchanged.
func (c *Client) stabilityFor(modelID string) float64 {
	if !strings.Contains(modelID, "v3") {
		return c.cfg.Stability
	}
	switch {
	case c.cfg.Stability < 0.25:
		return 0.0
	case c.cfg.Stability < 0.75:
		return 0.5
	default:
		return 1.0
	}
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// writeAtomic streams body to a temp file beside dest and renames it into
// place, creating parent directories as needed. A partially received body
// never lands at dest.
func writeAtomic(dest string, body io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("speech render: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("speech render: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("speech render: write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("speech render: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("speech render: finalize %s: %w", dest, err)
	}
	return nil
}
