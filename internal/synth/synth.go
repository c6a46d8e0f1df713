// Package synth turns catalog entities into spoken scripts. It prefers the
// generative model, validates everything the model returns, repairs once, and
// falls back to deterministic construction from curated facts rather than
// shipping a bad line.
package synth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"menagerie/internal/catalog"
	"menagerie/internal/logging"
	"menagerie/internal/script"
	"menagerie/internal/services"
	"menagerie/internal/services/textgen"
)

// Script is the full three-part spoken script for one entity.
type Script struct {
	Name     string
	Simple   string
	Detailed string
}

// overrides pins scripts for entities the model reliably gets wrong.
var overrides = map[string]Script{
	"bottlenose dolphin": {
		Simple:   "[curious] I'm a Bottlenose Dolphin. I talk to my friends using clicks and whistles underwater.",
		Detailed: "I'm a Bottlenose Dolphin. I can grow up to 12 feet long and weigh around 600 pounds. Each dolphin has a unique whistle, like a name, so we can find our friends. I live in warm oceans all around the world.",
	},
	"dolphin": {
		Simple:   "[curious] I'm a Dolphin. I use clicks and whistles to chat with my pod.",
		Detailed: "I'm a Dolphin. I can hold my breath for up to 10 minutes and swim as fast as 20 miles per hour. I'm one of the smartest animals in the ocean and I love to play.",
	},
}

// Override returns the pinned script for a display name, if one exists.
func Override(displayName string) (Script, bool) {
	s, ok := overrides[strings.ToLower(strings.TrimSpace(displayName))]
	if ok {
		s.Name = strings.TrimSpace(displayName) + "!"
	}
	return s, ok
}

// textClient is the slice of the textgen client the synthesizer needs.
type textClient interface {
	CompleteJSON(ctx context.Context, req textgen.Request) (string, error)
}

// Synthesizer produces validated scripts. A nil client runs fully offline:
// every line is built deterministically from curated facts.
type Synthesizer struct {
	client     textClient
	logger     *slog.Logger
	requireTag bool
}

// New builds a Synthesizer. requireTag forces a leading mood tag on simple
// lines, which the v3 speech models want for animated delivery.
func New(client textClient, requireTag bool, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{
		client:     client,
		logger:     logging.WithComponent(logger, "synth"),
		requireTag: requireTag,
	}
}

// SimpleLine writes the single simple fact line for one entity. The returned
// line is empty when the entity has no facts and invention is disallowed, or
// when no factual line could be formed; callers skip rendering in that case.
// Credential failures from the model abort the run.
func (s *Synthesizer) SimpleLine(ctx context.Context, entity catalog.Entity, facts catalog.Facts, allowInvented bool) (string, error) {
	if pinned, ok := Override(entity.Name); ok {
		return s.FinishSimple(pinned.Simple, entity), nil
	}

	line, err := s.modelSimpleLine(ctx, entity, facts, allowInvented)
	if err != nil {
		return "", err
	}
	if line == "" {
		if facts.Empty() && !allowInvented {
			return "", nil
		}
		line = script.Fallback(entity.Name, facts)
	}
	line = s.FinishSimple(line, entity)

	if !usableSimpleLine(line) {
		s.logger.Warn("no usable fact found, skipping",
			logging.String("entity", entity.Name))
		return "", nil
	}
	return line, nil
}

// modelSimpleLine asks the model for a simple line, validating and repairing
// once. Returns "" when the model is unavailable or both attempts failed
// validation; only fatal errors are returned.
func (s *Synthesizer) modelSimpleLine(ctx context.Context, entity catalog.Entity, facts catalog.Facts, allowInvented bool) (string, error) {
	if s.client == nil {
		return "", nil
	}
	if facts.Empty() && !allowInvented {
		return "", nil
	}

	userPrompt := simpleUserPrompt(entity.Name, facts)
	if facts.Empty() {
		userPrompt = inventedUserPrompt(entity.Name, entity.Category)
	}

	req := textgen.Request{
		System:      simpleSystemPrompt,
		Users:       []string{userPrompt},
		Temperature: 0.6,
		MaxTokens:   120,
	}
	line, err := s.client.CompleteJSON(ctx, req)
	if err != nil {
		if services.IsFatal(err) || isContextErr(err) {
			return "", err
		}
		s.logger.Warn("simple line generation failed",
			logging.String("entity", entity.Name),
			logging.Error(err))
		return "", nil
	}
	line = script.SanitizeSpoken(line)
	if script.IsValid(line, entity.Name) {
		return line, nil
	}

	req.Users = append(req.Users, simpleRepairPrompt)
	line, err = s.client.CompleteJSON(ctx, req)
	if err != nil {
		if services.IsFatal(err) || isContextErr(err) {
			return "", err
		}
		return "", nil
	}
	line = script.SanitizeSpoken(line)
	if script.IsValid(line, entity.Name) {
		return line, nil
	}
	s.logger.Warn("model line failed validation twice",
		logging.String("entity", entity.Name))
	return "", nil
}

// FinishSimple applies the post-processing every simple line gets before
// rendering, whatever produced it (model, fallback, or a reviewed file): the
// repeated-name rewrite and, when required, a deterministic mood tag.
// Idempotent, so re-finishing an already finished line is harmless.
func (s *Synthesizer) FinishSimple(line string, entity catalog.Entity) string {
	line = script.RewriteRepeatedName(line, entity.Name)
	if s.requireTag {
		line = script.EnsureTag(line, entity.ID())
	}
	return script.SanitizeSpoken(line)
}

// usableSimpleLine rejects lines that are an opener with no fact attached.
func usableSimpleLine(line string) bool {
	base := strings.ToLower(script.StripLeadingTag(line))
	if base == "" {
		return false
	}
	if !strings.HasPrefix(base, "i'm ") {
		return true
	}
	after := script.AfterFirstSentence(base)
	return len(strings.Fields(after)) >= 3
}

// FullScript writes the complete name/simple/detailed script for one entity.
// Transient model failures degrade to a deterministic script built from the
// curated facts; credential failures abort.
func (s *Synthesizer) FullScript(ctx context.Context, entity catalog.Entity, facts catalog.Facts) (Script, error) {
	nameText := script.SanitizeSpoken(entity.Name)
	if pinned, ok := Override(entity.Name); ok {
		pinned.Name = nameText
		return pinned, nil
	}

	fallback := s.deterministicScript(entity, facts)
	if s.client == nil {
		return fallback, nil
	}

	req := textgen.Request{
		System:      fullSystemPrompt,
		Users:       []string{fullUserPrompt(entity.Name, facts)},
		Temperature: 0.9,
		MaxTokens:   260,
	}
	if result, ok, err := s.tryFullScript(ctx, req, entity, nameText); err != nil {
		return Script{}, err
	} else if ok {
		return result, nil
	}

	req.Users = append(req.Users, fullRepairPrompt)
	req.Temperature = 0.95
	if result, ok, err := s.tryFullScript(ctx, req, entity, nameText); err != nil {
		return Script{}, err
	} else if ok {
		return result, nil
	}

	s.logger.Warn("full script failed validation twice, using deterministic fallback",
		logging.String("entity", entity.Name))
	return fallback, nil
}

func (s *Synthesizer) tryFullScript(ctx context.Context, req textgen.Request, entity catalog.Entity, nameText string) (Script, bool, error) {
	content, err := s.client.CompleteJSON(ctx, req)
	if err != nil {
		if services.IsFatal(err) || isContextErr(err) {
			return Script{}, false, err
		}
		s.logger.Warn("full script generation failed",
			logging.String("entity", entity.Name),
			logging.Error(err))
		return Script{}, false, nil
	}
	var decoded struct {
		Name     string `json:"name"`
		Simple   string `json:"simple"`
		Detailed string `json:"detailed"`
	}
	if err := textgen.DecodeJSON(content, &decoded); err != nil {
		return Script{}, false, nil
	}
	result := Script{
		Name:     script.SanitizeSpoken(decoded.Name),
		Simple:   script.SanitizeSpoken(decoded.Simple),
		Detailed: script.SanitizeSpoken(decoded.Detailed),
	}
	if !validFullScript(result, entity.Name) {
		return Script{}, false, nil
	}
	result.Name = nameText
	result.Simple = script.RewriteRepeatedName(result.Simple, entity.Name)
	return result, true, nil
}

// validFullScript enforces the structural rules for a three-part script:
// every field present and clean, word counts inside the spoken-length bands,
// and the simple line opening with the standard intro.
func validFullScript(s Script, entityName string) bool {
	for _, field := range []string{s.Name, s.Simple, s.Detailed} {
		if strings.TrimSpace(field) == "" {
			return false
		}
		if _, banned := script.ContainsBanned(field); banned {
			return false
		}
		if script.HasMarkup(field) {
			return false
		}
	}
	if n := len(strings.Fields(s.Name)); n < 1 || n > 10 {
		return false
	}
	if n := len(strings.Fields(s.Simple)); n < 6 || n > 28 {
		return false
	}
	if n := len(strings.Fields(s.Detailed)); n < 20 || n > 80 {
		return false
	}
	return script.IsValid(s.Simple, entityName)
}

// deterministicScript builds a script with no model call.
func (s *Synthesizer) deterministicScript(entity catalog.Entity, facts catalog.Facts) Script {
	simple := facts.Simple
	if simple == "" {
		simple = script.Fallback(entity.Name, facts)
	}
	var parts []string
	if facts.Size != "" {
		parts = append(parts, sentence(facts.Size))
	}
	if facts.UniqueTrait != "" {
		parts = append(parts, sentence(facts.UniqueTrait))
	}
	if facts.Habitat != "" {
		parts = append(parts, sentence(facts.Habitat))
	}
	detailed := strings.Join(parts, " ")
	if detailed == "" {
		detailed = simple
	}
	return Script{
		Name:     script.SanitizeSpoken(entity.Name + "."),
		Simple:   script.SanitizeSpoken(simple),
		Detailed: script.SanitizeSpoken(detailed),
	}
}

func sentence(text string) string {
	text = script.SanitizeSpoken(text)
	if text == "" {
		return ""
	}
	if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		text += "."
	}
	return text
}

// BatchItem pairs an entity with its merged facts for batch synthesis.
type BatchItem struct {
	Entity catalog.Entity
	Facts  catalog.Facts
}

// SimpleBatch asks the model for one simple line per entity in a single call.
// The result maps normalized entity names to finished lines; entities the
// model skipped map to "". A nil map means the batch failed validation twice
// and callers should fall back to per-entity synthesis.
func (s *Synthesizer) SimpleBatch(ctx context.Context, items []BatchItem, allowInvented bool) (map[string]string, error) {
	if s.client == nil || len(items) == 0 {
		return nil, nil
	}

	payload := make([]batchPromptItem, 0, len(items))
	expected := make([]string, 0, len(items))
	for _, item := range items {
		payload = append(payload, batchPromptItem{
			Name:        item.Entity.Name,
			Category:    item.Entity.Category,
			SimpleFact:  script.SanitizeSpoken(item.Facts.Simple),
			Fact:        script.SanitizeSpoken(item.Facts.Flat),
			SizeDetails: script.SanitizeSpoken(item.Facts.Size),
			UniqueFact:  script.SanitizeSpoken(item.Facts.UniqueTrait),
			Habitat:     script.SanitizeSpoken(item.Facts.Habitat),
		})
		expected = append(expected, item.Entity.Name)
	}
	allowEmpty := !allowInvented

	req := textgen.Request{
		System:      batchSystemPrompt,
		Users:       []string{batchUserPrompt(payload, allowInvented, s.requireTag)},
		Temperature: 0.7,
		MaxTokens:   900,
	}
	lines, ok, err := s.tryBatch(ctx, req, expected, allowEmpty)
	if err != nil {
		return nil, err
	}
	if !ok {
		req.Users = append(req.Users, batchRepairPrompt)
		lines, ok, err = s.tryBatch(ctx, req, expected, allowEmpty)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		s.logger.Warn("batch failed validation twice",
			logging.Int("entities", len(items)))
		return nil, nil
	}

	finished := make(map[string]string, len(lines))
	for _, item := range items {
		key := catalog.NormalizeName(item.Entity.Name)
		line := lines[key]
		if line != "" {
			line = s.FinishSimple(line, item.Entity)
		}
		finished[key] = line
	}
	return finished, nil
}

func (s *Synthesizer) tryBatch(ctx context.Context, req textgen.Request, expected []string, allowEmpty bool) (map[string]string, bool, error) {
	content, err := s.client.CompleteJSON(ctx, req)
	if err != nil {
		if services.IsFatal(err) || isContextErr(err) {
			return nil, false, err
		}
		s.logger.Warn("batch generation failed", logging.Error(err))
		return nil, false, nil
	}
	var decoded struct {
		Items []struct {
			Name   string `json:"name"`
			Simple string `json:"simple"`
		} `json:"items"`
	}
	if err := textgen.DecodeJSON(content, &decoded); err != nil {
		return nil, false, nil
	}
	lines := make(map[string]string, len(decoded.Items))
	for _, item := range decoded.Items {
		if key := catalog.NormalizeName(item.Name); key != "" {
			lines[key] = script.SanitizeSpoken(item.Simple)
		}
	}
	if !script.ValidateBatch(lines, expected, s.requireTag, allowEmpty) {
		return nil, false, nil
	}
	return lines, true, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
