// Package agent orchestrates full synchronization passes: scan the
// workspace, reconcile against the blob cache, upload what is missing,
// and publish the resulting manifest for the tool layer.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"codesync/internal/blobcache"
	"codesync/internal/config"
	"codesync/internal/identity"
	"codesync/internal/scanner"
	"codesync/internal/uploader"
)

// Status reports the outcome of the most recent synchronization pass.
type Status struct {
	// SyncedAt is zero until the first pass completes.
	SyncedAt time.Time     `json:"synced_at,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Files    int           `json:"files"`
	Uploaded int           `json:"uploaded"`
	Reused   int           `json:"reused"`
	Failed   int           `json:"failed"`
	// LastError is the message of the last failed pass, cleared on
	// success.
	LastError string `json:"last_error,omitempty"`
}

// Agent runs synchronization passes over one workspace. Passes are
// serialized; a resync triggered while one is running waits for it and
// then runs against the then-current workspace state.
type Agent struct {
	root    string
	scanner *scanner.Scanner
	cache   *blobcache.Cache
	coord   *uploader.Coordinator
	log     *slog.Logger

	runMu sync.Mutex

	mu       sync.Mutex
	manifest map[string]identity.Identity
	status   Status
}

// New wires an Agent from the merged configuration and its
// already-constructed collaborators.
func New(cfg *config.Config, cache *blobcache.Cache, client uploader.BlobUploader, creds uploader.CredentialSource, log *slog.Logger) *Agent {
	if log == nil {
		log = slog.Default()
	}
	sc := scanner.New(cfg.WorkspaceRoot, scanner.Options{
		IgnorePatterns: cfg.IgnorePatterns,
		Workers:        cfg.ScanWorkers,
		MaxFileSize:    cfg.MaxFileSizeBytes,
		Logger:         log,
	})
	coord := uploader.New(cache, client, creds, uploader.Options{
		Workers:  cfg.UploadWorkers,
		Attempts: cfg.UploadAttempts,
		Logger:   log,
	})
	return &Agent{
		root:    cfg.WorkspaceRoot,
		scanner: sc,
		cache:   cache,
		coord:   coord,
		log:     log,
	}
}

// Sync runs one full pass and returns its result. Scan and credential
// failures abort the pass and are recorded in the status; per-blob
// upload failures are reported in the result without aborting.
func (a *Agent) Sync(ctx context.Context) (*uploader.Result, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	started := time.Now()

	snap, err := a.scanner.Scan(ctx)
	if err != nil {
		a.recordFailure(err)
		return nil, err
	}

	result, err := a.coord.Run(ctx, a.root, snap)
	if err != nil {
		a.recordFailure(err)
		return nil, err
	}

	if evicted, err := a.cache.EvictIfNeeded(); err != nil {
		a.log.Warn("cache eviction failed", "error", err)
	} else if evicted > 0 {
		a.log.Debug("evicted cache entries", "count", evicted)
	}

	a.mu.Lock()
	a.manifest = result.Manifest
	a.status = Status{
		SyncedAt: started,
		Duration: time.Since(started),
		Files:    snap.Len(),
		Uploaded: result.Uploaded,
		Reused:   result.Reused,
		Failed:   len(result.Failed),
	}
	a.mu.Unlock()

	a.log.Info("sync pass complete",
		"files", snap.Len(),
		"uploaded", result.Uploaded,
		"reused", result.Reused,
		"failed", len(result.Failed),
		"duration", time.Since(started))
	return result, nil
}

func (a *Agent) recordFailure(err error) {
	a.mu.Lock()
	a.status.LastError = err.Error()
	a.mu.Unlock()
}

// Manifest returns a copy of the latest published manifest. Nil until
// the first successful pass.
func (a *Agent) Manifest() map[string]identity.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.manifest == nil {
		return nil
	}
	out := make(map[string]identity.Identity, len(a.manifest))
	for path, id := range a.manifest {
		out[path] = id
	}
	return out
}

// Status returns the counters of the most recent pass.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Root returns the workspace root this agent synchronizes.
func (a *Agent) Root() string { return a.root }

// CacheStats exposes blob cache statistics for status reporting.
func (a *Agent) CacheStats() (blobcache.Stats, error) {
	return a.cache.Stats()
}
