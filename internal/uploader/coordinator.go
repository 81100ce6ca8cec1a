// Package uploader turns a workspace snapshot into the minimal set of
// remote uploads that make the remote service consistent with the
// workspace.
//
// The coordinator diffs the snapshot against the blob cache, schedules
// uploads of missing content on a bounded worker pool, retries
// transient failures with exponential backoff, and commits successful
// uploads back into the cache. The upload key is the content identity,
// so re-submitting content the remote side already holds is a safe
// no-op; crash recovery leans on that.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codesync/internal/api"
	"codesync/internal/blobcache"
	"codesync/internal/identity"
	"codesync/internal/scanner"
	"codesync/internal/session"
)

const (
	defaultWorkers   = 4
	defaultAttempts  = 4
	defaultRetryBase = time.Second
)

// BlobUploader is the remote transport dependency.
type BlobUploader interface {
	UploadBlob(ctx context.Context, token string, id identity.Identity, payload []byte) error
}

// CredentialSource hands out a read-only credential per request. The
// session manager implements it.
type CredentialSource interface {
	Credential(ctx context.Context) (session.Credential, error)
}

// TaskFailure is one upload that exhausted its attempts or was
// rejected permanently. It never aborts the rest of the pass.
type TaskFailure struct {
	Identity identity.Identity
	Paths    []string
	Reason   string
}

// Result is the outcome of one coordination pass. Manifest covers
// every file in the snapshot, whether newly uploaded or already
// confirmed; it is the handoff artifact for the tool-routing layer.
type Result struct {
	Manifest map[string]identity.Identity
	// Uploaded counts blobs acknowledged by the remote service in
	// this pass; Reused counts blobs already confirmed in the cache.
	Uploaded int
	Reused   int
	Failed   []TaskFailure
}

// Options configures a Coordinator.
type Options struct {
	// Workers bounds concurrent uploads.
	Workers int
	// Attempts is the total attempt limit per blob, first try
	// included.
	Attempts int
	// RetryBase is the first backoff delay; it doubles per attempt
	// with up to 25% jitter added.
	RetryBase time.Duration
	Logger    *slog.Logger
}

// Coordinator schedules and commits blob uploads.
type Coordinator struct {
	cache     *blobcache.Cache
	client    BlobUploader
	creds     CredentialSource
	workers   int
	attempts  int
	retryBase time.Duration
	log       *slog.Logger
}

// New creates a Coordinator.
func New(cache *blobcache.Cache, client BlobUploader, creds CredentialSource, opts Options) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = defaultWorkers
	}
	if opts.Attempts < 1 {
		opts.Attempts = defaultAttempts
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cache:     cache,
		client:    client,
		creds:     creds,
		workers:   opts.Workers,
		attempts:  opts.Attempts,
		retryBase: opts.RetryBase,
		log:       log,
	}
}

// task is one blob to upload. Several snapshot paths may share one
// identity; payload is read from srcPath at upload time.
type task struct {
	id      identity.Identity
	size    int64
	srcPath string
	paths   []string
}

// Run executes one coordination pass over the snapshot. root is the
// workspace root the snapshot was taken from. A credential rejection
// halts the pass and is returned; per-blob failures are collected in
// the result instead.
func (c *Coordinator) Run(ctx context.Context, root string, snap *scanner.Snapshot) (*Result, error) {
	result := &Result{Manifest: make(map[string]identity.Identity, snap.Len())}

	// Group snapshot records by identity: identical content anywhere
	// in the tree costs at most one upload.
	byIdentity := make(map[identity.Identity]*task)
	var order []identity.Identity
	for _, rec := range snap.Records() {
		result.Manifest[rec.Path] = rec.Identity
		if existing, ok := byIdentity[rec.Identity]; ok {
			existing.paths = append(existing.paths, rec.Path)
			continue
		}
		byIdentity[rec.Identity] = &task{
			id:      rec.Identity,
			size:    rec.Size,
			srcPath: filepath.Join(root, filepath.FromSlash(rec.Path)),
			paths:   []string{rec.Path},
		}
		order = append(order, rec.Identity)
	}

	// Diff against the cache: confirmed identities are the
	// deduplication fast path and cost zero network traffic.
	var pending []*task
	for _, id := range order {
		t := byIdentity[id]
		entry, ok, err := c.cache.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("cache lookup for %s: %w", id, err)
		}
		if ok && entry.State == blobcache.StateConfirmed {
			if err := c.cache.Touch(id); err != nil {
				return nil, fmt.Errorf("cache touch for %s: %w", id, err)
			}
			result.Reused++
			continue
		}
		if err := c.cache.MarkPending(id, t.size); err != nil {
			return nil, fmt.Errorf("cache mark pending for %s: %w", id, err)
		}
		c.cache.Pin(id)
		pending = append(pending, t)
	}

	if len(pending) == 0 {
		return result, nil
	}

	// Bounded worker pool with an aggregation point. An auth
	// rejection cancels the remaining work; aborted tasks stay
	// Unconfirmed and are retried on the next pass.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type taskOutcome struct {
		task     *task
		uploaded bool
		failure  *TaskFailure
		authErr  error
	}

	tasks := make(chan *task)
	outcomes := make(chan taskOutcome, len(pending))

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				outcome := taskOutcome{task: t}
				err := c.uploadOne(runCtx, t)
				switch {
				case err == nil:
					outcome.uploaded = true
				case isAuthError(err):
					outcome.authErr = err
					cancel()
				case errors.Is(err, context.Canceled):
					// Pass aborted; leave Unconfirmed.
				default:
					outcome.failure = &TaskFailure{
						Identity: t.id,
						Paths:    t.paths,
						Reason:   err.Error(),
					}
				}
				c.cache.Unpin(t.id)
				outcomes <- outcome
			}
		}()
	}

dispatch:
	for _, t := range pending {
		select {
		case tasks <- t:
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()
	close(outcomes)

	var authErr error
	dispatched := 0
	for outcome := range outcomes {
		dispatched++
		switch {
		case outcome.uploaded:
			result.Uploaded++
		case outcome.authErr != nil && authErr == nil:
			authErr = outcome.authErr
		case outcome.failure != nil:
			result.Failed = append(result.Failed, *outcome.failure)
		}
	}
	// Tasks never dispatched (pass aborted) keep their pins released.
	for _, t := range pending[dispatched:] {
		c.cache.Unpin(t.id)
	}

	if authErr != nil {
		return nil, authErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// uploadOne reads the payload, uploads it with retries, and commits
// the cache entry after the remote acknowledgment.
func (c *Coordinator) uploadOne(ctx context.Context, t *task) error {
	payload, err := os.ReadFile(t.srcPath)
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	// The workspace may mutate under us. Stale content converges on
	// the next scan; uploading it under the old identity would poison
	// the cache.
	if got := identity.HashBytes(payload); got != t.id {
		return fmt.Errorf("content changed since scan (identity %s, now %s)", t.id, got)
	}

	for attempt := 1; ; attempt++ {
		cred, err := c.creds.Credential(ctx)
		if err != nil {
			if isAuthError(err) || !api.IsTransient(err) {
				return err
			}
		} else {
			err = c.client.UploadBlob(ctx, cred.AccessToken, t.id, payload)
			if err == nil {
				if commitErr := c.cache.Commit(t.id); commitErr != nil {
					return commitErr
				}
				return nil
			}
			if isAuthError(err) || !api.IsTransient(err) {
				return err
			}
		}

		if attempt >= c.attempts {
			return fmt.Errorf("upload failed after %d attempts: %w", attempt, err)
		}
		delay := backoffDelay(c.retryBase, attempt)
		c.log.Debug("retrying upload", "identity", t.id.String(), "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoffDelay doubles the base per attempt and adds up to 25% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func isAuthError(err error) bool {
	var authErr *api.AuthError
	return errors.As(err, &authErr)
}
