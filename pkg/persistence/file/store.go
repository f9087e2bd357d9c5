package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/barela/flowdeck/pkg/persistence"
)

// store persists one record collection as versioned JSON blobs, one file per
// record, under root/<collection>/<id>.json.
type store[T any] struct {
	root        string
	collection  string
	migrations  persistence.Migrations
	notFoundErr error
}

func newStore[T any](root, collection string, migrations persistence.Migrations, notFoundErr error) *store[T] {
	return &store[T]{
		root:        root,
		collection:  collection,
		migrations:  migrations,
		notFoundErr: notFoundErr,
	}
}

func (s *store[T]) dir() string {
	return path.Join(s.root, s.collection)
}

func (s *store[T]) path(id string) string {
	return filepath.Clean(path.Join(s.dir(), id+".json"))
}

// get returns (nil, nil) when the record does not exist.
func (s *store[T]) get(id string) (*T, error) {
	body, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s %s: %w", s.collection, id, err)
	}

	var blob persistence.VersionedBlob

	if err := json.Unmarshal(body, &blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s: %w", s.collection, id, err)
	}

	record := new(T)
	if err := persistence.DecodeBlob(&blob, record, s.migrations); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", s.collection, id, err)
	}

	return record, nil
}

func (s *store[T]) all() ([]*T, error) {
	root := os.DirFS(s.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", s.collection, err)
	}

	records := make([]*T, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		id := name[:len(name)-len(".json")]

		record, err := s.get(id)
		if err != nil {
			return nil, err
		}

		if record != nil {
			records = append(records, record)
		}
	}

	return records, nil
}

// save writes the whole record as one snapshot, stamped with the current
// schema version. The blob goes to a temp file first and is renamed into
// place, so a crash mid-write never leaves a torn record behind.
func (s *store[T]) save(id string, record *T) error {
	if err := os.MkdirAll(s.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", s.collection, err)
	}

	blob, err := persistence.EncodeBlob(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", s.collection, id, err)
	}

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", s.collection, id, err)
	}

	tmp, err := os.CreateTemp(s.dir(), id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s %s: %w", s.collection, id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s %s: %w", s.collection, id, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to close temp file for %s %s: %w", s.collection, id, err)
	}

	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s %s: %w", s.collection, id, err)
	}

	return nil
}

func (s *store[T]) delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewStoreError("Delete", s.collection, id, s.notFoundErr)
		}

		return fmt.Errorf("failed to delete %s %s: %w", s.collection, id, err)
	}

	return nil
}
