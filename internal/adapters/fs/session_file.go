// Package fs stores sessions as JSON documents on the local filesystem.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/extropian/motionsync/internal/domain"
)

// SessionFileSink implements ports.SessionSink by writing one JSON document
// per session into a directory.
type SessionFileSink struct {
	dir string
}

// NewSessionFileSink creates a sink writing into dir.
func NewSessionFileSink(dir string) *SessionFileSink {
	return &SessionFileSink{dir: dir}
}

// Persist writes the session document atomically (temp file, then rename).
// An existing document with the same id is replaced.
func (s *SessionFileSink) Persist(ctx context.Context, p *domain.SessionPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" || strings.ContainsAny(p.ID, `/\`) {
		return fmt.Errorf("invalid session id %q", p.ID)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(p.Document(), "", "  ")
	if err != nil {
		return err
	}

	path := s.Path(p.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a stored session document. Returns os.ErrNotExist if missing.
func (s *SessionFileSink) Load(id string) (domain.SessionDocument, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return domain.SessionDocument{}, err
	}
	var doc domain.SessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.SessionDocument{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return doc, nil
}

// List returns the ids of stored sessions in lexical order, which is start
// order for time-derived ids.
func (s *SessionFileSink) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	return ids, nil
}

// Path returns the document path for id.
func (s *SessionFileSink) Path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Exists reports whether a document for id is stored.
func (s *SessionFileSink) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return !errors.Is(err, os.ErrNotExist)
}
