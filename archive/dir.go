package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/termsync/termsync/entry"
)

// Dir stores one JSON file per entry in a flat directory, named
// deterministically so the same entry always maps to the same file. The
// directory is created on first save.
type Dir struct {
	path string
}

// NewDir returns a directory-backed store rooted at path.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the archive directory.
func (d *Dir) Path() string { return d.path }

func (d *Dir) Save(_ context.Context, e *entry.Entry) error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("create archive dir %s: %w", d.path, err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	name := filepath.Join(d.path, e.Filename())
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	log.Printf("[archive] saved %s", name)
	return nil
}

func (d *Dir) FindPending(_ context.Context, oplogID int, uuid string) (*entry.Entry, error) {
	if uuid == "" {
		return nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(d.path, entry.FilenamePattern(oplogID, uuid)))
	if err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", matches[0], err)
	}

	var e entry.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", matches[0], err)
	}
	return &e, nil
}

func (d *Dir) Remove(_ context.Context, e *entry.Entry) error {
	err := os.Remove(filepath.Join(d.path, e.Filename()))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
