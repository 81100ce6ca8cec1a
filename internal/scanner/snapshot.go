package scanner

import (
	"time"

	"codesync/internal/identity"
)

// FileRecord describes one tracked file at scan time. Records are
// produced fresh on every scan and never mutated.
type FileRecord struct {
	// Path is the slash-separated path relative to the workspace root.
	Path string
	// Size in bytes at scan time.
	Size int64
	// ModTime is the file modification timestamp at scan time.
	ModTime time.Time
	// Identity is the content digest of the file bytes.
	Identity identity.Identity
}

// Snapshot is an immutable view of the workspace at one scan: an
// ordered mapping from relative path to FileRecord. Iteration order is
// traversal order and carries no semantic meaning.
type Snapshot struct {
	order   []string
	records map[string]FileRecord
}

func newSnapshot(records []FileRecord) *Snapshot {
	s := &Snapshot{
		order:   make([]string, 0, len(records)),
		records: make(map[string]FileRecord, len(records)),
	}
	for _, rec := range records {
		if _, ok := s.records[rec.Path]; !ok {
			s.order = append(s.order, rec.Path)
		}
		s.records[rec.Path] = rec
	}
	return s
}

// Len returns the number of tracked files.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Lookup returns the record for a relative path.
func (s *Snapshot) Lookup(path string) (FileRecord, bool) {
	rec, ok := s.records[path]
	return rec, ok
}

// Paths returns the tracked paths in traversal order.
func (s *Snapshot) Paths() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Records returns all file records in traversal order.
func (s *Snapshot) Records() []FileRecord {
	out := make([]FileRecord, 0, len(s.order))
	for _, path := range s.order {
		out = append(out, s.records[path])
	}
	return out
}
