// Package scanner walks a workspace root and produces an immutable
// snapshot of tracked files with their content identities.
//
// The directory walk uses an explicit worklist rather than recursion,
// so pathological directory depths cannot exhaust the stack and
// cancellation is checkable between steps. Hashing runs on a bounded
// worker pool so a slow file read never stalls the walk itself.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"codesync/internal/identity"
)

// binarySniffLen is how many leading bytes are inspected for a NUL
// byte to classify a file as binary. Binary files are not indexed.
const binarySniffLen = 8000

// ScanError reports a fatal scan condition: an unreadable root or a
// filesystem state the walk cannot make sense of. Per-file read
// failures are not fatal; they are logged and the file is skipped.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan failed at %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Scanner enumerates a workspace root.
type Scanner struct {
	root        string
	rules       *Rules
	workers     int
	maxFileSize int64
	log         *slog.Logger
}

// Options configures a Scanner.
type Options struct {
	// IgnorePatterns are layered on top of the built-in defaults.
	IgnorePatterns []string
	// Workers bounds concurrent file hashing. Values below 1 mean 1.
	Workers int
	// MaxFileSize: larger files are skipped. Values below 1 disable
	// the limit.
	MaxFileSize int64
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a Scanner for the given workspace root.
func New(root string, opts Options) *Scanner {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		root:        filepath.Clean(root),
		rules:       NewRules(opts.IgnorePatterns),
		workers:     workers,
		maxFileSize: opts.MaxFileSize,
		log:         log,
	}
}

// fileTask is one discovered file handed to the hashing pool. seq
// preserves traversal order in the final snapshot.
type fileTask struct {
	seq     int
	relPath string
	absPath string
}

type fileResult struct {
	seq    int
	record FileRecord
	ok     bool
}

// Scan walks the root and returns a snapshot of all tracked files.
// The same on-disk state always yields the same snapshot content.
func (s *Scanner) Scan(ctx context.Context) (*Snapshot, error) {
	if _, err := os.ReadDir(s.root); err != nil {
		return nil, &ScanError{Path: s.root, Err: err}
	}

	tasks := make(chan fileTask, s.workers*4)
	results := make(chan fileResult, s.workers*4)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					continue
				}
				results <- s.hashFile(task)
			}
		}()
	}

	var collected []fileResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range results {
			if res.ok {
				collected = append(collected, res)
			}
		}
	}()

	walkErr := s.walk(ctx, tasks)
	close(tasks)
	wg.Wait()
	close(results)
	<-done

	if walkErr != nil {
		return nil, walkErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].seq < collected[j].seq })
	records := make([]FileRecord, 0, len(collected))
	for _, res := range collected {
		records = append(records, res.record)
	}
	return newSnapshot(records), nil
}

// walk performs the worklist-based directory traversal, pruning
// ignored directories and emitting file tasks. Symlinked directories
// are followed through a visited set of resolved paths; a revisit is a
// cycle and is skipped with a warning.
func (s *Scanner) walk(ctx context.Context, tasks chan<- fileTask) error {
	rootReal, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return &ScanError{Path: s.root, Err: err}
	}
	visited := map[string]struct{}{rootReal: {}}

	type dirItem struct {
		relPath string
		absPath string
	}
	stack := []dirItem{{relPath: "", absPath: s.root}}
	seq := 0

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir.absPath)
		if err != nil {
			if dir.relPath == "" {
				return &ScanError{Path: dir.absPath, Err: err}
			}
			s.log.Warn("skipping unreadable directory", "path", dir.absPath, "error", err)
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			relPath := name
			if dir.relPath != "" {
				relPath = dir.relPath + "/" + name
			}
			absPath := filepath.Join(dir.absPath, name)

			entryIsDir := entry.IsDir()
			if entry.Type()&os.ModeSymlink != 0 {
				info, err := os.Stat(absPath)
				if err != nil {
					s.log.Warn("skipping broken symlink", "path", absPath, "error", err)
					continue
				}
				entryIsDir = info.IsDir()
			}

			if s.rules.Match(relPath, entryIsDir) {
				continue
			}

			if entryIsDir {
				real, err := filepath.EvalSymlinks(absPath)
				if err != nil {
					s.log.Warn("skipping unresolvable directory", "path", absPath, "error", err)
					continue
				}
				if _, seen := visited[real]; seen {
					s.log.Warn("symlink cycle detected, skipping", "path", absPath, "target", real)
					continue
				}
				visited[real] = struct{}{}
				stack = append(stack, dirItem{relPath: relPath, absPath: absPath})
				continue
			}

			if !entry.Type().IsRegular() && entry.Type()&os.ModeSymlink == 0 {
				continue
			}

			tasks <- fileTask{seq: seq, relPath: relPath, absPath: absPath}
			seq++
		}
	}
	return nil
}

// hashFile computes the content identity for one file. Read failures,
// oversized files, and binary content cause the file to be skipped,
// never the scan to fail.
func (s *Scanner) hashFile(task fileTask) fileResult {
	info, err := os.Stat(task.absPath)
	if err != nil {
		s.log.Warn("skipping unreadable file", "path", task.relPath, "error", err)
		return fileResult{}
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		s.log.Debug("skipping large file", "path", task.relPath, "size", info.Size())
		return fileResult{}
	}

	f, err := os.Open(task.absPath)
	if err != nil {
		s.log.Warn("skipping unreadable file", "path", task.relPath, "error", err)
		return fileResult{}
	}
	defer f.Close()

	head := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		s.log.Warn("skipping unreadable file", "path", task.relPath, "error", err)
		return fileResult{}
	}
	head = head[:n]
	if bytes.IndexByte(head, 0) >= 0 {
		s.log.Debug("skipping binary file", "path", task.relPath)
		return fileResult{}
	}

	id, size, err := identity.HashReader(io.MultiReader(bytes.NewReader(head), f))
	if err != nil {
		s.log.Warn("skipping unreadable file", "path", task.relPath, "error", err)
		return fileResult{}
	}

	return fileResult{
		seq: task.seq,
		record: FileRecord{
			Path:     task.relPath,
			Size:     size,
			ModTime:  info.ModTime(),
			Identity: id,
		},
		ok: true,
	}
}
