// Package artifact maps catalog entities to their audio files on disk and
// derives completion state from the filesystem. The files themselves are the
// source of truth: a non-empty file at the expected path means the render is
// done, and nothing else is consulted.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Field identifies one of the audio artifacts rendered per entity.
type Field string

const (
	FieldName     Field = "name"
	FieldSimple   Field = "simple"
	FieldDetailed Field = "detailed"
)

// AllFields lists every renderable field in render order.
var AllFields = []Field{FieldName, FieldSimple, FieldDetailed}

// Dir returns the directory an artifact of this field lives under, relative
// to the audio root.
func (f Field) Dir() string {
	if f == FieldName {
		return "names"
	}
	return "facts"
}

// Suffix returns the filename suffix for this field.
func (f Field) Suffix() string {
	switch f {
	case FieldName:
		return "_name"
	case FieldSimple:
		return "_fact_simple"
	case FieldDetailed:
		return "_fact_detailed"
	default:
		return "_" + string(f)
	}
}

// ParseField converts a flag value into a Field.
func ParseField(value string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "name":
		return FieldName, nil
	case "simple":
		return FieldSimple, nil
	case "detailed":
		return FieldDetailed, nil
	default:
		return "", fmt.Errorf("unknown field %q", value)
	}
}

// Store answers completion queries for rendered artifacts. Layout is the
// filesystem implementation; the scans below only need this much of it.
type Store interface {
	IsComplete(identifier string, fields []Field) bool
}

// Layout resolves artifact paths under an audio root.
type Layout struct {
	Root string
	Ext  string
}

// NewLayout builds a layout rooted at root producing .mp3 files.
func NewLayout(root string) Layout {
	return Layout{Root: root, Ext: ".mp3"}
}

// Path returns the absolute path for an entity's artifact.
func (l Layout) Path(identifier string, field Field) string {
	return filepath.Join(l.Root, field.Dir(), identifier+field.Suffix()+l.Ext)
}

// Dirs returns every directory the layout writes into.
func (l Layout) Dirs() []string {
	return []string{
		filepath.Join(l.Root, FieldName.Dir()),
		filepath.Join(l.Root, FieldSimple.Dir()),
	}
}

// EnsureDirs creates the layout's directories.
func (l Layout) EnsureDirs() error {
	for _, dir := range l.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the artifact is present and non-empty. Zero-byte
// files count as missing so an interrupted write is redone rather than
// shipped silent.
func (l Layout) Exists(identifier string, field Field) bool {
	info, err := os.Stat(l.Path(identifier, field))
	return err == nil && info.Size() > 0
}

// IsComplete reports whether every requested field exists for the entity.
func (l Layout) IsComplete(identifier string, fields []Field) bool {
	for _, field := range fields {
		if !l.Exists(identifier, field) {
			return false
		}
	}
	return len(fields) > 0
}

// Remove deletes the artifacts for the given fields, ignoring ones that do
// not exist.
func (l Layout) Remove(identifier string, fields []Field) error {
	for _, field := range fields {
		if err := os.Remove(l.Path(identifier, field)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove artifact: %w", err)
		}
	}
	return nil
}

// Wipe deletes every artifact directory under the root. The root itself is
// kept.
func (l Layout) Wipe() error {
	seen := map[string]struct{}{}
	for _, field := range AllFields {
		dir := filepath.Join(l.Root, field.Dir())
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("wipe artifact dir %s: %w", dir, err)
		}
	}
	return nil
}

// FirstIncomplete returns the index of the first entity whose artifacts are
// not all present, or -1 when every entity is complete.
func FirstIncomplete(store Store, identifiers []string, fields []Field) int {
	for i, id := range identifiers {
		if !store.IsComplete(id, fields) {
			return i
		}
	}
	return -1
}

// LastIncomplete returns the index of the last incomplete entity, or -1 when
// every entity is complete.
func LastIncomplete(store Store, identifiers []string, fields []Field) int {
	for i := len(identifiers) - 1; i >= 0; i-- {
		if !store.IsComplete(identifiers[i], fields) {
			return i
		}
	}
	return -1
}

// CountComplete returns how many of the identifiers are fully rendered.
func CountComplete(store Store, identifiers []string, fields []Field) int {
	complete := 0
	for _, id := range identifiers {
		if store.IsComplete(id, fields) {
			complete++
		}
	}
	return complete
}
