package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"menagerie/internal/artifact"
)

func TestStoreRecordsAndListsRenders(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "state", "manifest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	events := []Render{
		{RunID: "run-1", Identifier: "lion", Field: artifact.FieldName, Path: "/a/names/lion_name.mp3", Bytes: 1200, Duration: 900 * time.Millisecond},
		{RunID: "run-1", Identifier: "lion", Field: artifact.FieldSimple, Path: "/a/facts/lion_fact_simple.mp3", Bytes: 4800, Duration: 2 * time.Second},
		{RunID: "run-2", Identifier: "owl", Field: artifact.FieldName, Path: "/a/names/owl_name.mp3", Bytes: 1100, Duration: 800 * time.Millisecond},
	}
	for _, event := range events {
		if err := store.RecordRender(ctx, event); err != nil {
			t.Fatalf("RecordRender: %v", err)
		}
	}

	count, err := store.CountRenders(ctx)
	if err != nil {
		t.Fatalf("CountRenders: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	recent, err := store.RecentRenders(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRenders: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Identifier != "owl" || recent[0].Field != artifact.FieldName {
		t.Errorf("newest = %+v", recent[0])
	}
	if recent[1].Identifier != "lion" || recent[1].Field != artifact.FieldSimple {
		t.Errorf("second = %+v", recent[1])
	}
	if recent[0].RenderedAt.IsZero() {
		t.Error("rendered_at not round-tripped")
	}
	if recent[1].Duration != 2*time.Second {
		t.Errorf("duration = %v", recent[1].Duration)
	}
}
