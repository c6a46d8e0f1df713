package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"menagerie/internal/artifact"
	"menagerie/internal/catalog"
	"menagerie/internal/config"
	"menagerie/internal/locks"
	"menagerie/internal/script"
	"menagerie/internal/services"
	"menagerie/internal/synth"
	"menagerie/internal/testsupport"
)

type fakeRenderer struct {
	calls []string
	err   error
}

func (f *fakeRenderer) Render(_ context.Context, text, dest, _ string) error {
	f.calls = append(f.calls, dest)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(text), 0o644)
}

func (f *fakeRenderer) Model() string     { return "eleven_monolingual_v1" }
func (f *fakeRenderer) NameModel() string { return "eleven_multilingual_v2" }

func testEntities() []catalog.Entity {
	return []catalog.Entity{
		{Name: "Lion", Category: "Savanna", Fact: "Lions live in prides."},
		{Name: "Sea Otter", Category: "Shallow Water", Fact: "Sea otters hold hands while sleeping."},
	}
}

func newTestPipeline(t *testing.T, renderer Renderer) (*Pipeline, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	resolver := catalog.NewResolver(testEntities(), nil, nil)
	synthesizer := synth.New(nil, false, nil)
	lockManager := locks.NewManager(cfg.Paths.LocksDir, time.Hour, nil)
	p := New(cfg, resolver, synthesizer, renderer, lockManager, nil, nil)
	return p, cfg
}

func TestRunRendersAllFieldsThenIsIdempotent(t *testing.T) {
	renderer := &fakeRenderer{}
	p, cfg := newTestPipeline(t, renderer)

	summary, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Rendered != 6 {
		t.Errorf("rendered = %d, want 6 (2 entities x 3 fields)", summary.Rendered)
	}

	layout := artifact.NewLayout(cfg.Paths.AudioRoot)
	for _, id := range []string{"lion", "sea_otter"} {
		if !layout.IsComplete(id, artifact.AllFields) {
			t.Errorf("%s not complete", id)
		}
	}

	renderer.calls = nil
	summary, err = p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(renderer.calls) != 0 {
		t.Errorf("second run made %d render calls, want 0", len(renderer.calls))
	}
	if summary.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", summary.Skipped)
	}

	locksLeft, _ := filepath.Glob(filepath.Join(cfg.Paths.LocksDir, "*.lock"))
	if len(locksLeft) != 0 {
		t.Errorf("leftover lock files: %v", locksLeft)
	}
}

func TestRunResumeSkipsCompletedPrefix(t *testing.T) {
	renderer := &fakeRenderer{}
	p, cfg := newTestPipeline(t, renderer)
	layout := artifact.NewLayout(cfg.Paths.AudioRoot)

	for _, field := range artifact.AllFields {
		path := layout.Path("lion", field)
		os.MkdirAll(filepath.Dir(path), 0o755)
		os.WriteFile(path, []byte("x"), 0o644)
	}

	summary, err := p.Run(context.Background(), Options{Resume: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Rendered != 3 {
		t.Errorf("rendered = %d, want 3 (sea otter only)", summary.Rendered)
	}
	for _, dest := range renderer.calls {
		if filepath.Base(dest)[:4] == "lion" {
			t.Errorf("rendered for completed entity: %s", dest)
		}
	}
}

func TestRunResumeWithNothingToDo(t *testing.T) {
	renderer := &fakeRenderer{}
	p, _ := newTestPipeline(t, renderer)
	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}

	renderer.calls = nil
	summary, err := p.Run(context.Background(), Options{Resume: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(renderer.calls) != 0 || summary.Rendered != 0 || summary.Skipped != 0 {
		t.Errorf("resume with complete tree did work: %+v, calls %v", summary, renderer.calls)
	}
}

func TestRunHaltsOnProviderLimit(t *testing.T) {
	renderer := &fakeRenderer{err: &services.ProviderLimitError{
		Provider: "speech", Reason: "insufficient_credits", StatusCode: 401,
	}}
	p, cfg := newTestPipeline(t, renderer)

	summary, err := p.Run(context.Background(), Options{})
	if _, ok := services.AsProviderLimit(err); !ok {
		t.Fatalf("err = %v, want ProviderLimitError", err)
	}
	if !summary.Halted {
		t.Error("summary not halted")
	}
	if summary.ResumeIndex != 1 {
		t.Errorf("resume index = %d, want 1", summary.ResumeIndex)
	}
	if len(renderer.calls) != 1 {
		t.Errorf("render calls = %d, want 1 (stop immediately)", len(renderer.calls))
	}

	locksLeft, _ := filepath.Glob(filepath.Join(cfg.Paths.LocksDir, "*.lock"))
	if len(locksLeft) != 0 {
		t.Errorf("leftover lock files after halt: %v", locksLeft)
	}
}

func TestRunDryRunRendersNothing(t *testing.T) {
	renderer := &fakeRenderer{}
	p, _ := newTestPipeline(t, renderer)

	summary, err := p.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(renderer.calls) != 0 {
		t.Errorf("dry run made %d render calls", len(renderer.calls))
	}
	if summary.Rendered != 0 {
		t.Errorf("rendered = %d", summary.Rendered)
	}
}

func TestRunSkipsEntitiesLockedElsewhere(t *testing.T) {
	renderer := &fakeRenderer{}
	p, cfg := newTestPipeline(t, renderer)

	other := locks.NewManager(cfg.Paths.LocksDir, time.Hour, nil)
	handle, err := other.Acquire("lion")
	if err != nil {
		t.Fatal(err)
	}
	defer other.Release(handle)

	summary, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Rendered != 3 {
		t.Errorf("rendered = %d, want 3 (sea otter only)", summary.Rendered)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
}

func TestRunCategoryFilter(t *testing.T) {
	renderer := &fakeRenderer{}
	p, _ := newTestPipeline(t, renderer)

	summary, err := p.Run(context.Background(), Options{Category: "Savanna"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Rendered != 3 {
		t.Errorf("rendered = %d, want 3", summary.Rendered)
	}
	if _, err := p.Run(context.Background(), Options{Category: "Deep Space"}); err == nil {
		t.Error("unknown category should error")
	}
}

func TestRunWipeClearsArtifacts(t *testing.T) {
	renderer := &fakeRenderer{}
	p, cfg := newTestPipeline(t, renderer)
	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}

	renderer.calls = nil
	summary, err := p.Run(context.Background(), Options{Wipe: true})
	if err != nil {
		t.Fatalf("Run with wipe: %v", err)
	}
	if summary.Rendered != 6 {
		t.Errorf("rendered = %d, want 6 after wipe", summary.Rendered)
	}
	_ = cfg
}

func TestRunNameOnlyField(t *testing.T) {
	renderer := &fakeRenderer{}
	p, cfg := newTestPipeline(t, renderer)

	summary, err := p.Run(context.Background(), Options{Fields: []artifact.Field{artifact.FieldName}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Rendered != 2 {
		t.Errorf("rendered = %d, want 2", summary.Rendered)
	}
	layout := artifact.NewLayout(cfg.Paths.AudioRoot)
	if layout.Exists("lion", artifact.FieldSimple) {
		t.Error("simple artifact rendered in name-only mode")
	}
	data, err := os.ReadFile(layout.Path("lion", artifact.FieldName))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Lion" {
		t.Errorf("name audio text = %q", data)
	}
}

func TestRunUsesReviewedScripts(t *testing.T) {
	renderer := &fakeRenderer{}
	p, cfg := newTestPipeline(t, renderer)

	scriptsPath := filepath.Join(filepath.Dir(cfg.Paths.ScriptsFile), "reviewed.json")
	err := SaveScripts(scriptsPath, map[string]ScriptEntry{
		"lion": newScriptEntry("Lion", "I'm a Lion. I was reviewed by a human before rendering."),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Run(context.Background(), Options{
		Fields:      []artifact.Field{artifact.FieldSimple},
		ScriptsFile: scriptsPath,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	layout := artifact.NewLayout(cfg.Paths.AudioRoot)
	data, err := os.ReadFile(layout.Path("lion", artifact.FieldSimple))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "I'm a Lion. I was reviewed by a human before rendering." {
		t.Errorf("simple audio text = %q", data)
	}
}

func TestWriteScriptsMode(t *testing.T) {
	p, cfg := newTestPipeline(t, &fakeRenderer{})

	summary, err := p.Run(context.Background(), Options{ScriptsOnly: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Scripted != 2 {
		t.Errorf("scripted = %d, want 2", summary.Scripted)
	}
	scripts, err := LoadScripts(cfg.Paths.ScriptsFile)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := scripts["lion"]
	if !ok {
		t.Fatalf("scripts = %v", scripts)
	}
	if entry.Simple != "I'm a Lion. Lions live in prides." {
		t.Errorf("lion script = %q", entry.Simple)
	}
	if entry.UpdatedAt == "" {
		t.Error("updated_at not set")
	}
}

func TestRunSimpleOnlyFinishesFallbackLines(t *testing.T) {
	renderer := &fakeRenderer{}
	cfg := testsupport.NewConfig(t)
	entities := []catalog.Entity{{Name: "Trumpet Fish", Fact: "Trumpet Fish swim straight up to hide."}}
	resolver := catalog.NewResolver(entities, nil, nil)
	synthesizer := synth.New(nil, true, nil)
	lockManager := locks.NewManager(cfg.Paths.LocksDir, time.Hour, nil)
	p := New(cfg, resolver, synthesizer, renderer, lockManager, nil, nil)

	_, err := p.Run(context.Background(), Options{Fields: []artifact.Field{artifact.FieldSimple}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	layout := artifact.NewLayout(cfg.Paths.AudioRoot)
	data, err := os.ReadFile(layout.Path("trumpet_fish", artifact.FieldSimple))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if script.LeadingTag(line) == "" {
		t.Errorf("fallback line rendered without a mood tag: %q", line)
	}
	want := "I'm a Trumpet Fish. I swim straight up to hide."
	if got := script.StripLeadingTag(line); got != want {
		t.Errorf("rendered line = %q, want repeated name rewritten: %q", got, want)
	}
}

type cancellingRenderer struct {
	fakeRenderer
	cancel context.CancelFunc
}

func (c *cancellingRenderer) Render(_ context.Context, _, dest, _ string) error {
	c.calls = append(c.calls, dest)
	c.cancel()
	return context.Canceled
}

func TestRunInterruptionReportsResumeIndex(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	renderer := &cancellingRenderer{cancel: cancel}
	p, cfg := newTestPipeline(t, renderer)

	summary, err := p.Run(ctx, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !summary.Halted {
		t.Error("summary not halted after interruption")
	}
	if summary.ResumeIndex != 1 {
		t.Errorf("resume index = %d, want the in-flight entity", summary.ResumeIndex)
	}

	locksLeft, _ := filepath.Glob(filepath.Join(cfg.Paths.LocksDir, "*.lock"))
	if len(locksLeft) != 0 {
		t.Errorf("leftover lock files after interruption: %v", locksLeft)
	}
}

func TestRunHaltsOnAuthError(t *testing.T) {
	renderer := &fakeRenderer{err: &services.AuthError{Provider: "speech", StatusCode: 401}}
	p, _ := newTestPipeline(t, renderer)

	summary, err := p.Run(context.Background(), Options{})
	var authErr *services.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if !summary.Halted {
		t.Error("summary not halted")
	}
}
