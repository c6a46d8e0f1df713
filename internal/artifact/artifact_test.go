package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func writeArtifact(t *testing.T, layout Layout, identifier string, field Field, data string) {
	t.Helper()
	path := layout.Path(identifier, field)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLayoutPaths(t *testing.T) {
	layout := NewLayout("/audio")
	cases := []struct {
		field Field
		want  string
	}{
		{FieldName, "/audio/names/lion_name.mp3"},
		{FieldSimple, "/audio/facts/lion_fact_simple.mp3"},
		{FieldDetailed, "/audio/facts/lion_fact_detailed.mp3"},
	}
	for _, tc := range cases {
		if got := layout.Path("lion", tc.field); got != filepath.FromSlash(tc.want) {
			t.Errorf("Path(lion, %s) = %q, want %q", tc.field, got, tc.want)
		}
	}
}

func TestExistsIgnoresEmptyFiles(t *testing.T) {
	layout := NewLayout(t.TempDir())
	writeArtifact(t, layout, "lion", FieldName, "")
	if layout.Exists("lion", FieldName) {
		t.Error("zero-byte file should not count as existing")
	}
	writeArtifact(t, layout, "lion", FieldName, "mp3")
	if !layout.Exists("lion", FieldName) {
		t.Error("non-empty file should exist")
	}
}

func TestIsComplete(t *testing.T) {
	layout := NewLayout(t.TempDir())
	fields := []Field{FieldName, FieldSimple}

	if layout.IsComplete("lion", fields) {
		t.Error("nothing rendered yet")
	}
	writeArtifact(t, layout, "lion", FieldName, "a")
	if layout.IsComplete("lion", fields) {
		t.Error("only one of two fields rendered")
	}
	writeArtifact(t, layout, "lion", FieldSimple, "b")
	if !layout.IsComplete("lion", fields) {
		t.Error("both fields rendered")
	}
	if layout.IsComplete("lion", nil) {
		t.Error("empty field list is never complete")
	}
}

func TestFirstAndLastIncomplete(t *testing.T) {
	layout := NewLayout(t.TempDir())
	fields := []Field{FieldName}
	ids := []string{"ant", "bee", "cat", "dog"}

	for _, id := range []string{"ant", "cat"} {
		writeArtifact(t, layout, id, FieldName, "x")
	}
	if got := FirstIncomplete(layout, ids, fields); got != 1 {
		t.Errorf("FirstIncomplete = %d, want 1 (bee)", got)
	}
	if got := LastIncomplete(layout, ids, fields); got != 3 {
		t.Errorf("LastIncomplete = %d, want 3 (dog)", got)
	}

	for _, id := range []string{"bee", "dog"} {
		writeArtifact(t, layout, id, FieldName, "x")
	}
	if got := FirstIncomplete(layout, ids, fields); got != -1 {
		t.Errorf("FirstIncomplete = %d, want -1", got)
	}
	if got := LastIncomplete(layout, ids, fields); got != -1 {
		t.Errorf("LastIncomplete = %d, want -1", got)
	}
	if got := CountComplete(layout, ids, fields); got != 4 {
		t.Errorf("CountComplete = %d, want 4", got)
	}
}

func TestWipeRemovesArtifactDirsOnly(t *testing.T) {
	root := t.TempDir()
	layout := NewLayout(root)
	writeArtifact(t, layout, "lion", FieldName, "x")
	writeArtifact(t, layout, "lion", FieldSimple, "x")
	keep := filepath.Join(root, "keep.txt")
	if err := os.WriteFile(keep, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := layout.Wipe(); err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if layout.Exists("lion", FieldName) || layout.Exists("lion", FieldSimple) {
		t.Error("artifacts survived wipe")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("unrelated file should survive wipe")
	}
}

func TestParseField(t *testing.T) {
	if f, err := ParseField(" Simple "); err != nil || f != FieldSimple {
		t.Errorf("ParseField(Simple) = %v, %v", f, err)
	}
	if _, err := ParseField("bogus"); err == nil {
		t.Error("expected error for unknown field")
	}
}
