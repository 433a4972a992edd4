package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/evalmesh/core"
)

var (
	_ core.Store     = (*FileStore)(nil)
	_ core.RunLoader = (*FileStore)(nil)
)

// FileStore writes one JSON document per run into a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string { return filepath.Join(s.dir, id+".json") }

// Save atomically writes <id>.json via a temporary file and rename.
func (s *FileStore) Save(_ context.Context, state *core.RunState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidID)
	}
	if err := validateID(state.ID); err != nil {
		return err
	}
	data, err := encode(state)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, state.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("save run %s: %w", state.ID, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save run %s: %w", state.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save run %s: %w", state.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(state.ID)); err != nil {
		return fmt.Errorf("save run %s: %w", state.ID, err)
	}
	return nil
}

// Load reads <id>.json or returns ErrNotFound.
func (s *FileStore) Load(_ context.Context, id string) (*core.RunState, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return decode(data)
}

// List decodes every *.json file in the directory, oldest run first.
func (s *FileStore) List(ctx context.Context) ([]*core.RunState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]*core.RunState, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		state, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		runs = append(runs, state)
	}
	sortRuns(runs)
	return runs, nil
}

// Delete removes <id>.json. Deleting an unknown id returns ErrNotFound.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
