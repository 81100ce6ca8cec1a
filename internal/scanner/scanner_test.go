package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func scan(t *testing.T, root string, opts Options) *Snapshot {
	t.Helper()
	snap, err := New(root, opts).Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	return snap
}

func TestScanTracksFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "pkg/util/util.go", "package util")

	snap := scan(t, root, Options{Workers: 4})
	if snap.Len() != 2 {
		t.Fatalf("expected 2 files, got %d: %v", snap.Len(), snap.Paths())
	}

	rec, ok := snap.Lookup("pkg/util/util.go")
	if !ok {
		t.Fatal("nested file missing from snapshot")
	}
	if rec.Size != int64(len("package util")) {
		t.Errorf("size: got %d", rec.Size)
	}
	if rec.Identity.IsZero() {
		t.Error("identity not computed")
	}
}

func TestScanDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "b/b.txt", "beta")
	writeFile(t, root, "c/d/e.txt", "gamma")

	first := scan(t, root, Options{Workers: 3})
	second := scan(t, root, Options{Workers: 1})

	if first.Len() != second.Len() {
		t.Fatalf("path sets differ: %d vs %d", first.Len(), second.Len())
	}
	for _, path := range first.Paths() {
		a, _ := first.Lookup(path)
		b, ok := second.Lookup(path)
		if !ok {
			t.Fatalf("path %s missing from second scan", path)
		}
		if a.Identity != b.Identity {
			t.Errorf("identity for %s differs between scans", path)
		}
	}
}

func TestScanIdenticalContentSameIdentity(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.txt", "same bytes")
	writeFile(t, root, "deep/two.txt", "same bytes")

	snap := scan(t, root, Options{Workers: 2})
	a, _ := snap.Lookup("one.txt")
	b, _ := snap.Lookup("deep/two.txt")
	if a.Identity != b.Identity {
		t.Fatal("identical content must produce identical identities")
	}
}

func TestScanIgnoreRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "kept.go", "package kept")
	writeFile(t, root, "node_modules/dep/index.js", "js")
	writeFile(t, root, ".git/config", "git")
	writeFile(t, root, "secrets/server.pem", "key material")
	writeFile(t, root, "logs/run.log", "log line")
	writeFile(t, root, "logs/keep.txt", "kept log dir file")

	snap := scan(t, root, Options{IgnorePatterns: []string{"*.log"}})

	for _, banned := range []string{
		"node_modules/dep/index.js",
		".git/config",
		"secrets/server.pem",
		"logs/run.log",
	} {
		if _, ok := snap.Lookup(banned); ok {
			t.Errorf("ignored path present in snapshot: %s", banned)
		}
	}
	if _, ok := snap.Lookup("kept.go"); !ok {
		t.Error("kept.go missing")
	}
	if _, ok := snap.Lookup("logs/keep.txt"); !ok {
		t.Error("non-matching file in partially-ignored directory missing")
	}
}

func TestScanNegatedPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/raw.bin.txt", "x")
	writeFile(t, root, "data/keep.txt", "y")

	snap := scan(t, root, Options{IgnorePatterns: []string{"*.txt", "!keep.txt"}})
	if _, ok := snap.Lookup("data/raw.bin.txt"); ok {
		t.Error("*.txt should be ignored")
	}
	if _, ok := snap.Lookup("data/keep.txt"); !ok {
		t.Error("negated pattern should re-include keep.txt")
	}
}

func TestScanSkipsBinaryAndLargeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "text.txt", "plain")
	writeFile(t, root, "blob.bin", "abc\x00def")

	large := make([]byte, 2048)
	for i := range large {
		large[i] = 'a'
	}
	writeFile(t, root, "big.txt", string(large))

	snap := scan(t, root, Options{MaxFileSize: 1024})
	if _, ok := snap.Lookup("blob.bin"); ok {
		t.Error("binary file should be skipped")
	}
	if _, ok := snap.Lookup("big.txt"); ok {
		t.Error("oversized file should be skipped")
	}
	if _, ok := snap.Lookup("text.txt"); !ok {
		t.Error("text.txt missing")
	}
}

func TestScanSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/file.txt", "content")
	// dir/loop -> dir creates a cycle when followed.
	if err := os.Symlink(filepath.Join(root, "dir"), filepath.Join(root, "dir", "loop")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	snap := scan(t, root, Options{})
	if _, ok := snap.Lookup("dir/file.txt"); !ok {
		t.Error("file in cyclic directory missing")
	}
	if _, ok := snap.Lookup("dir/loop/file.txt"); ok {
		t.Error("cycle was followed instead of skipped")
	}
}

func TestScanUnreadableRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{}).Scan(context.Background())
	var scanErr *ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("expected *ScanError, got %v", err)
	}
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(root, Options{}).Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
