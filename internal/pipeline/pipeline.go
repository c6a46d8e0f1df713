// Package pipeline orchestrates batch rendering: it walks the catalog in
// batches, claims entities, synthesizes scripts, renders audio, and records
// history. Completion is always derived from the files on disk, so an
// interrupted run resumes by rerunning the same command.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"menagerie/internal/artifact"
	"menagerie/internal/catalog"
	"menagerie/internal/config"
	"menagerie/internal/locks"
	"menagerie/internal/logging"
	"menagerie/internal/manifest"
	"menagerie/internal/script"
	"menagerie/internal/services"
	"menagerie/internal/synth"
)

// Renderer is the slice of the speech client the pipeline needs.
type Renderer interface {
	Render(ctx context.Context, text, dest, modelID string) error
	Model() string
	NameModel() string
}

// Options selects what a run processes and how.
type Options struct {
	// Start is the 1-based catalog index to begin at. Zero means 1.
	Start int
	// Limit caps how many entities are processed. Zero means no limit.
	Limit int
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
	// Reverse walks the catalog from the end toward the start.
	Reverse bool
	// Resume skips ahead to the first (or, reversed, last) incomplete entity.
	Resume bool
	// RedoAll re-renders even when artifacts already exist.
	RedoAll bool
	// Wipe deletes every existing artifact before rendering.
	Wipe bool
	// DryRun synthesizes and logs scripts without rendering any audio.
	DryRun bool
	// Category restricts the run to one catalog category.
	Category string
	// Fields selects which artifacts to render. Empty means all fields.
	Fields []artifact.Field
	// UseModelSimple asks the generative model for simple lines; otherwise
	// simple lines are built deterministically from curated facts.
	UseModelSimple bool
	// AllowInvented permits model-invented lines for entities with no facts.
	AllowInvented bool
	// ScriptsFile, when set, supplies pre-reviewed simple lines by identifier.
	ScriptsFile string
	// ScriptsOnly writes the review scripts file and renders nothing.
	ScriptsOnly bool
}

// Summary reports what a run accomplished.
type Summary struct {
	Rendered    int
	Skipped     int
	Failed      int
	Scripted    int
	Halted      bool
	ResumeIndex int
}

// Pipeline wires the catalog, synthesizer, renderer, locks, and manifest
// into one runnable unit.
type Pipeline struct {
	cfg      *config.Config
	resolver *catalog.Resolver
	synth    *synth.Synthesizer
	renderer Renderer
	locks    *locks.Manager
	history  *manifest.Store
	layout   artifact.Layout
	logger   *slog.Logger
	runID    string
	pause    func(context.Context, time.Duration) error
}

// New assembles a pipeline. The manifest store may be nil; history is then
// simply not recorded.
func New(cfg *config.Config, resolver *catalog.Resolver, synthesizer *synth.Synthesizer,
	renderer Renderer, lockManager *locks.Manager, history *manifest.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		resolver: resolver,
		synth:    synthesizer,
		renderer: renderer,
		locks:    lockManager,
		history:  history,
		layout:   artifact.NewLayout(cfg.Paths.AudioRoot),
		logger:   logging.WithComponent(logger, "pipeline"),
		runID:    uuid.NewString(),
		pause:    sleepContext,
	}
}

// RunID identifies this pipeline instance in the render history.
func (p *Pipeline) RunID() string { return p.runID }

// workItem is one claimed entity in a batch.
type workItem struct {
	index  int // 1-based position in the selected entity list
	entity catalog.Entity
	handle *locks.Handle
}

// Run executes one pipeline pass. The returned Summary is valid even when an
// error is returned; a halted run carries the index to resume from.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary

	entities := p.resolver.FilterCategory(opts.Category)
	if opts.Category != "" && len(entities) == 0 {
		return summary, fmt.Errorf("no entities found for category %q (available: %v)",
			opts.Category, p.resolver.Categories())
	}
	if len(entities) == 0 {
		return summary, errors.New("catalog is empty")
	}

	fields := opts.Fields
	if len(fields) == 0 {
		fields = artifact.AllFields
	}

	if err := p.layout.EnsureDirs(); err != nil {
		return summary, err
	}

	if opts.Wipe {
		if err := p.wipe(); err != nil {
			return summary, err
		}
	}

	if opts.ScriptsOnly {
		return p.writeScripts(ctx, entities, opts)
	}

	var reviewed map[string]ScriptEntry
	if opts.ScriptsFile != "" {
		var err error
		if reviewed, err = LoadScripts(opts.ScriptsFile); err != nil {
			return summary, err
		}
	}

	indices, err := p.selectIndices(entities, opts, fields)
	if err != nil {
		return summary, err
	}
	if len(indices) == 0 {
		p.logger.Info("everything already rendered, nothing to do")
		return summary, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = p.cfg.Pipeline.BatchSize
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	totalBatches := (len(indices) + batchSize - 1) / batchSize
	for batchNum := 0; batchNum < totalBatches; batchNum++ {
		lo := batchNum * batchSize
		if ctx.Err() != nil {
			halted, herr := p.handleInterrupt(ctx.Err(), indices[lo], &summary)
			summary.Halted = halted
			return summary, herr
		}
		hi := min(lo+batchSize, len(indices))
		p.logger.Info("processing batch",
			logging.Int("batch", batchNum+1),
			logging.Int("total", totalBatches))

		halted, err := p.runBatch(ctx, entities, indices[lo:hi], fields, opts, reviewed, &summary)
		if err != nil || halted {
			summary.Halted = halted
			return summary, err
		}

		if batchNum+1 < totalBatches && p.cfg.Pipeline.BatchPauseSeconds > 0 {
			if err := p.pause(ctx, time.Duration(p.cfg.Pipeline.BatchPauseSeconds)*time.Second); err != nil {
				halted, herr := p.handleInterrupt(err, indices[hi], &summary)
				summary.Halted = halted
				return summary, herr
			}
		}
	}

	p.logger.Info("run complete",
		logging.Int("rendered", summary.Rendered),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed))
	return summary, nil
}

// runBatch claims, synthesizes, and renders one batch. Locks acquired here
// are always released before returning. The bool result reports a fatal halt.
func (p *Pipeline) runBatch(ctx context.Context, entities []catalog.Entity, indices []int,
	fields []artifact.Field, opts Options, reviewed map[string]ScriptEntry, summary *Summary) (bool, error) {

	var work []workItem
	defer func() {
		for _, item := range work {
			p.locks.Release(item.handle)
		}
	}()

	for _, idx := range indices {
		entity := entities[idx-1]
		identifier := entity.ID()

		handle, err := p.locks.Acquire(identifier)
		if err != nil {
			if errors.Is(err, locks.ErrHeld) {
				p.logger.Info("skipping, claimed by another run",
					logging.String("entity", entity.Name))
				summary.Skipped++
				continue
			}
			return false, err
		}

		if !opts.RedoAll && p.layout.IsComplete(identifier, fields) {
			p.logger.Debug("skipping, already rendered",
				logging.String("entity", entity.Name))
			p.locks.Release(handle)
			summary.Skipped++
			continue
		}
		work = append(work, workItem{index: idx, entity: entity, handle: handle})
	}

	// One model call covers the whole batch when simple lines come from the
	// model; per-entity synthesis is the fallback.
	var batchLines map[string]string
	if opts.UseModelSimple && simpleOnly(fields) && len(work) > 0 {
		items := make([]synth.BatchItem, 0, len(work))
		for _, item := range work {
			items = append(items, synth.BatchItem{
				Entity: item.entity,
				Facts:  p.resolver.Merged(item.entity.Name),
			})
		}
		var err error
		batchLines, err = p.synth.SimpleBatch(ctx, items, opts.AllowInvented)
		if err != nil {
			if isContextErr(err) {
				return p.handleInterrupt(err, firstIndex(work), summary)
			}
			return p.handleFatal(err, firstIndex(work), summary)
		}
	}

	for i := range work {
		item := &work[i]
		if ctx.Err() != nil {
			return p.handleInterrupt(ctx.Err(), item.index, summary)
		}
		p.logger.Info("processing entity",
			logging.Int("index", item.index),
			logging.Int("total", len(entities)),
			logging.String("entity", item.entity.Name))

		halted, err := p.processEntity(ctx, item, fields, opts, reviewed, batchLines, summary)
		p.locks.Release(item.handle)
		item.handle = nil
		if err != nil || halted {
			return halted, err
		}
	}
	return false, nil
}

// processEntity synthesizes the script and renders the selected fields for
// one claimed entity.
func (p *Pipeline) processEntity(ctx context.Context, item *workItem, fields []artifact.Field,
	opts Options, reviewed map[string]ScriptEntry, batchLines map[string]string, summary *Summary) (bool, error) {

	entity := item.entity
	identifier := entity.ID()
	facts := p.resolver.Merged(entity.Name)

	scripts, skip, err := p.buildScript(ctx, entity, facts, fields, opts, reviewed, batchLines)
	if err != nil {
		if isContextErr(err) {
			return p.handleInterrupt(err, item.index, summary)
		}
		return p.handleFatal(err, item.index, summary)
	}
	if skip {
		summary.Skipped++
		return false, nil
	}

	p.logScript(scripts, fields)
	if opts.DryRun {
		return false, nil
	}

	for _, field := range fields {
		text, modelID := p.renderInputs(scripts, field)
		if text == "" {
			continue
		}
		dest := p.layout.Path(identifier, field)
		if !opts.RedoAll && p.layout.Exists(identifier, field) {
			continue
		}

		started := time.Now()
		if err := p.renderer.Render(ctx, text, dest, modelID); err != nil {
			if services.IsFatal(err) {
				return p.handleFatal(err, item.index, summary)
			}
			if isContextErr(err) {
				return p.handleInterrupt(err, item.index, summary)
			}
			p.logger.Error("render failed",
				logging.String("entity", entity.Name),
				logging.String("field", string(field)),
				logging.Error(err))
			summary.Failed++
			continue
		}
		summary.Rendered++
		p.recordRender(ctx, identifier, field, dest, time.Since(started))
		p.logger.Info("rendered",
			logging.String("entity", entity.Name),
			logging.String("field", string(field)))
	}
	return false, nil
}

// buildScript assembles the spoken script for the selected fields. skip is
// true when no usable line could be formed and rendering would waste credits.
func (p *Pipeline) buildScript(ctx context.Context, entity catalog.Entity, facts catalog.Facts,
	fields []artifact.Field, opts Options, reviewed map[string]ScriptEntry, batchLines map[string]string) (synth.Script, bool, error) {

	nameText := script.SanitizeSpoken(entity.Name)

	if nameOnly(fields) {
		return synth.Script{Name: nameText}, false, nil
	}

	if simpleOnly(fields) {
		simple := ""
		if row, ok := reviewed[entity.ID()]; ok {
			simple = script.SanitizeSpoken(row.Simple)
		}
		if simple == "" && batchLines != nil {
			simple = batchLines[catalog.NormalizeName(entity.Name)]
		}
		if simple == "" {
			var err error
			if opts.UseModelSimple {
				simple, err = p.synth.SimpleLine(ctx, entity, facts, opts.AllowInvented)
			} else {
				simple = script.Fallback(entity.Name, facts)
				if !usable(simple) {
					simple = ""
				}
			}
			if err != nil {
				return synth.Script{}, false, err
			}
		}
		if simple == "" {
			p.logger.Warn("no usable fact found, skipping",
				logging.String("entity", entity.Name))
			return synth.Script{}, true, nil
		}
		// Reviewed and fallback lines get the same rewrite-and-tag pass the
		// model path applies, so audio quality does not depend on the source.
		simple = p.synth.FinishSimple(simple, entity)
		return synth.Script{Name: nameText, Simple: simple}, false, nil
	}

	full, err := p.synth.FullScript(ctx, entity, facts)
	if err != nil {
		return synth.Script{}, false, err
	}
	full.Name = nameText
	if full.Simple != "" {
		full.Simple = p.synth.FinishSimple(full.Simple, entity)
	}
	return full, false, nil
}

// renderInputs picks the text and speech model for one field. Name lines use
// the dedicated name model.
func (p *Pipeline) renderInputs(scripts synth.Script, field artifact.Field) (string, string) {
	switch field {
	case artifact.FieldName:
		return scripts.Name, p.renderer.NameModel()
	case artifact.FieldSimple:
		return scripts.Simple, p.renderer.Model()
	case artifact.FieldDetailed:
		return scripts.Detailed, p.renderer.Model()
	default:
		return "", ""
	}
}

// handleFatal turns a provider-limit or credential error into a halt with a
// resume index. Other errors pass through unchanged.
func (p *Pipeline) handleFatal(err error, index int, summary *Summary) (bool, error) {
	if err == nil {
		return false, nil
	}
	summary.ResumeIndex = index
	if limitErr, ok := services.AsProviderLimit(err); ok {
		p.logger.Error("provider limit reached, stopping",
			logging.String("reason", limitErr.Reason),
			logging.Int("resume_index", index))
		fmt.Fprintf(os.Stderr, "Stopping: %s\nResume with: menagerie generate --start %d\n", limitErr, index)
		return true, err
	}
	var authErr *services.AuthError
	if errors.As(err, &authErr) {
		p.logger.Error("authentication failed, stopping",
			logging.String("provider", authErr.Provider),
			logging.Int("resume_index", index))
		fmt.Fprintf(os.Stderr, "Stopping: %s\nResume with: menagerie generate --start %d\n", authErr, index)
		return true, err
	}
	return false, err
}

// handleInterrupt records the resume point when the run is cancelled mid
// entity and prints the same resume guidance a fatal halt gets, so an
// interrupted user needs no manual bookkeeping.
func (p *Pipeline) handleInterrupt(err error, index int, summary *Summary) (bool, error) {
	summary.ResumeIndex = index
	p.logger.Info("run interrupted", logging.Int("resume_index", index))
	fmt.Fprintf(os.Stderr, "Interrupted.\nResume with: menagerie generate --start %d\n", index)
	return true, err
}

// selectIndices computes the 1-based entity indices this run will visit,
// honoring start, limit, reverse, and resume.
func (p *Pipeline) selectIndices(entities []catalog.Entity, opts Options, fields []artifact.Field) ([]int, error) {
	identifiers := make([]string, len(entities))
	for i, e := range entities {
		identifiers[i] = e.ID()
	}

	start := opts.Start
	if start < 1 {
		start = 1
	}
	if start > len(entities) {
		return nil, fmt.Errorf("start index %d exceeds catalog size %d", start, len(entities))
	}

	if opts.Resume && !opts.RedoAll {
		if opts.Reverse {
			last := artifact.LastIncomplete(p.layout, identifiers, fields)
			if last < 0 {
				return nil, nil
			}
			auto := last + 1
			if opts.Start <= 1 || auto < start {
				start = auto
			}
			p.logger.Info("resuming in reverse", logging.Int("start", start))
		} else {
			first := artifact.FirstIncomplete(p.layout, identifiers, fields)
			if first < 0 {
				return nil, nil
			}
			auto := first + 1
			if auto > start {
				start = auto
			}
			p.logger.Info("resuming", logging.Int("start", start))
		}
	}

	var indices []int
	if opts.Reverse {
		from := start
		if opts.Resume || opts.Start > 1 {
			// Walk downward from the chosen start.
			for i := from; i >= 1; i-- {
				indices = append(indices, i)
			}
		} else {
			for i := len(entities); i >= 1; i-- {
				indices = append(indices, i)
			}
		}
	} else {
		for i := start; i <= len(entities); i++ {
			indices = append(indices, i)
		}
	}
	if opts.Limit > 0 && len(indices) > opts.Limit {
		indices = indices[:opts.Limit]
	}
	return indices, nil
}

// writeScripts is the scripts-only mode: synthesize simple lines in batches
// and save them to the review file, saving after every batch so an
// interrupted run keeps its progress.
func (p *Pipeline) writeScripts(ctx context.Context, entities []catalog.Entity, opts Options) (Summary, error) {
	var summary Summary

	path := opts.ScriptsFile
	if path == "" {
		path = p.cfg.Paths.ScriptsFile
	}
	out, err := LoadScripts(path)
	if err != nil {
		return summary, err
	}

	start := opts.Start
	if start < 1 {
		start = 1
	}
	end := len(entities)
	if opts.Limit > 0 {
		end = min(end, start+opts.Limit-1)
	}
	var indices []int
	if opts.Reverse {
		for i := end; i >= start; i-- {
			indices = append(indices, i)
		}
	} else {
		for i := start; i <= end; i++ {
			indices = append(indices, i)
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = p.cfg.Pipeline.BatchSize
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	for lo := 0; lo < len(indices); lo += batchSize {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		hi := min(lo+batchSize, len(indices))

		items := make([]synth.BatchItem, 0, hi-lo)
		for _, idx := range indices[lo:hi] {
			entity := entities[idx-1]
			items = append(items, synth.BatchItem{
				Entity: entity,
				Facts:  p.resolver.Merged(entity.Name),
			})
		}
		batchLines, err := p.synth.SimpleBatch(ctx, items, opts.AllowInvented)
		if err != nil {
			if halted, herr := p.handleFatal(err, indices[lo], &summary); halted {
				summary.Halted = true
				return summary, herr
			}
			return summary, err
		}

		for _, item := range items {
			entity := item.Entity
			line := ""
			if batchLines != nil {
				line = batchLines[catalog.NormalizeName(entity.Name)]
			}
			if line == "" {
				line, err = p.synth.SimpleLine(ctx, entity, item.Facts, opts.AllowInvented)
				if err != nil {
					if halted, herr := p.handleFatal(err, indices[lo], &summary); halted {
						summary.Halted = true
						return summary, herr
					}
					return summary, err
				}
			}
			if !usable(line) {
				p.logger.Warn("script skipped, no usable fact",
					logging.String("entity", entity.Name))
				summary.Skipped++
				continue
			}
			out[entity.ID()] = newScriptEntry(entity.Name, line)
			summary.Scripted++
			p.logger.Info("scripted",
				logging.String("entity", entity.Name),
				logging.String("line", line))
		}
		if err := SaveScripts(path, out); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// wipe deletes every rendered artifact. Guarded by the run-level lock so two
// processes cannot wipe and render over each other.
func (p *Pipeline) wipe() error {
	runLock, err := locks.AcquireRun(p.cfg.Paths.LocksDir)
	if err != nil {
		return err
	}
	defer runLock.Release()

	p.logger.Warn("wiping rendered artifacts", logging.String("root", p.layout.Root))
	if err := p.layout.Wipe(); err != nil {
		return err
	}
	return p.layout.EnsureDirs()
}

func (p *Pipeline) recordRender(ctx context.Context, identifier string, field artifact.Field, dest string, took time.Duration) {
	if p.history == nil {
		return
	}
	var size int64
	if info, err := os.Stat(dest); err == nil {
		size = info.Size()
	}
	err := p.history.RecordRender(ctx, manifest.Render{
		RunID:      p.runID,
		Identifier: identifier,
		Field:      field,
		Path:       dest,
		Bytes:      size,
		Duration:   took,
	})
	if err != nil {
		p.logger.Warn("failed to record render history", logging.Error(err))
	}
}

func (p *Pipeline) logScript(scripts synth.Script, fields []artifact.Field) {
	for _, field := range fields {
		text, _ := p.renderInputs(scripts, field)
		if text != "" {
			p.logger.Info("script",
				logging.String("field", string(field)),
				logging.String("text", text))
		}
	}
}

func nameOnly(fields []artifact.Field) bool {
	return len(fields) == 1 && fields[0] == artifact.FieldName
}

func simpleOnly(fields []artifact.Field) bool {
	return len(fields) == 1 && fields[0] == artifact.FieldSimple
}

// usable rejects lines that are just an opener with no fact attached.
func usable(line string) bool {
	base := script.StripLeadingTag(script.SanitizeSpoken(line))
	if base == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(base), "i'm ") {
		after := script.AfterFirstSentence(base)
		if len(strings.Fields(after)) < 3 {
			return false
		}
	}
	return true
}

func firstIndex(work []workItem) int {
	if len(work) == 0 {
		return 1
	}
	return work[0].index
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
