// Package fetcher implements the fetch-stage worker: given a Distribution's
// source (registry HTTP download or git clone), it materializes the
// distfile on local disk and reports back directory/revision metadata for
// the Master to absorb into the corresponding fetch JobResult. Extraction of
// the downloaded archive happens in internal/builder's configure worker, not
// here — fetch only has to get the bytes onto disk.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/errgroup"

	"github.com/bilusteknoloji/cpm/internal/cache"
	"github.com/bilusteknoloji/cpm/internal/job"
)

const maxRetries = 3

// retryableError marks a transient failure worth retrying with backoff.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Request is one fetch job's payload.
type Request struct {
	Distfile string
	Source   job.Source
	URI      string
	Rev      string
	Ref      string
	SHA256   string // expected digest for registry distfiles, if known
}

// Result is what a fetch produces for the Master to absorb.
type Result struct {
	Distfile  string
	Directory string // for registry/local: the directory holding the downloaded archive; for git: the checkout root
	Rev       string // resolved commit hash, populated for git sources
}

// Fetcher fetches a batch of distributions concurrently.
type Fetcher interface {
	Fetch(ctx context.Context, requests []Request) ([]Result, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxWorkers bounds fetch concurrency. Defaults to runtime.GOMAXPROCS(0).
func WithMaxWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxWorkers = n
		}
	}
}

// WithHTTPClient sets the HTTP client used for registry downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.httpClient = c
		}
	}
}

// WithCache sets the distfile cache consulted before a registry download.
func WithCache(c cache.Store) Option {
	return func(m *Manager) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager fetches distributions concurrently with a bounded worker pool,
// using golang.org/x/sync/errgroup the way downloader.Manager does.
type Manager struct {
	destDir    string
	maxWorkers int
	httpClient *http.Client
	cache      cache.Store
	logger     *slog.Logger
}

var _ Fetcher = (*Manager)(nil)

// New creates a Manager that places fetched material under destDir.
func New(destDir string, opts ...Option) *Manager {
	m := &Manager{
		destDir:    destDir,
		maxWorkers: runtime.GOMAXPROCS(0),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Fetch runs every request concurrently, bounded by maxWorkers, and returns
// one Result per Request in the same order. The first error encountered
// aborts the remaining in-flight fetches (errgroup.WithContext semantics),
// matching downloader.Manager.Download.
func (m *Manager) Fetch(ctx context.Context, requests []Request) ([]Result, error) {
	results := make([]Result, len(requests))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxWorkers)

	for i, req := range requests {
		g.Go(func() error {
			m.logger.Debug("fetching", slog.String("distfile", req.Distfile), slog.String("source", req.Source.String()))

			var (
				result Result
				err    error
			)

			switch req.Source {
			case job.SourceGit:
				result, err = m.fetchGit(ctx, req)
			default:
				result, err = m.fetchWithRetry(ctx, req)
			}

			if err != nil {
				return fmt.Errorf("fetching %s: %w", req.Distfile, err)
			}

			results[i] = result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (m *Manager) fetchWithRetry(ctx context.Context, req Request) (Result, error) {
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 500 * time.Millisecond

			m.logger.Debug("retrying fetch",
				slog.String("distfile", req.Distfile), slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return Result{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := m.fetchRegistry(ctx, req)
		if err == nil {
			return result, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return Result{}, err
		}

		lastErr = err
	}

	return Result{}, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

// fetchRegistry downloads req.URI into destDir, consulting the distfile
// cache first and populating it afterward.
func (m *Manager) fetchRegistry(ctx context.Context, req Request) (Result, error) {
	dir := filepath.Join(m.destDir, req.Distfile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating fetch directory: %w", err)
	}

	dstPath := filepath.Join(dir, filepath.Base(req.Distfile))

	if m.cache != nil {
		if cached, ok := m.cache.Get(req.Distfile, req.SHA256); ok {
			m.logger.Debug("distfile cache hit", slog.String("distfile", req.Distfile))

			return Result{Distfile: req.Distfile, Directory: dir, Rev: ""}, copyFile(cached, dstPath)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URI, nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("requesting %s: %w", req.URI, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URI)
		if resp.StatusCode >= http.StatusInternalServerError {
			return Result{}, &retryableError{err: err}
		}

		return Result{}, err
	}

	if m.cache != nil {
		cached, err := m.cache.Put(resp.Body, req.Distfile, req.SHA256)
		if err != nil {
			if errors.Is(err, cache.ErrDigestMismatch) {
				return Result{}, err
			}

			return Result{}, &retryableError{err: fmt.Errorf("caching %s: %w", req.Distfile, err)}
		}

		return Result{Distfile: req.Distfile, Directory: dir}, copyFile(cached, dstPath)
	}

	if err := writeAndVerify(resp.Body, dstPath, req.SHA256); err != nil {
		return Result{}, err
	}

	return Result{Distfile: req.Distfile, Directory: dir}, nil
}

// fetchGit clones req.URI into destDir (only branch req.Ref when one is
// set), then checks out commit req.Rev when one is set.
func (m *Manager) fetchGit(ctx context.Context, req Request) (Result, error) {
	dir := filepath.Join(m.destDir, req.Distfile)

	opts := &git.CloneOptions{URL: req.URI, SingleBranch: true}
	if req.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Ref)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return Result{}, fmt.Errorf("cloning %s: %w", req.URI, err)
	}

	if req.Rev != "" {
		wt, err := repo.Worktree()
		if err != nil {
			return Result{}, fmt.Errorf("opening worktree: %w", err)
		}

		if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(req.Rev)}); err != nil {
			return Result{}, fmt.Errorf("checking out %s: %w", req.Rev, err)
		}
	}

	head, err := repo.Head()
	if err != nil {
		return Result{}, fmt.Errorf("resolving HEAD: %w", err)
	}

	return Result{Distfile: req.Distfile, Directory: dir, Rev: head.Hash().String()}, nil
}

func writeAndVerify(r io.Reader, dstPath, expectedSHA256 string) error {
	tmpPath := dstPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}

	h := sha256.New()

	if _, err := io.Copy(f, io.TeeReader(r, h)); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)

		return &retryableError{err: fmt.Errorf("writing %s: %w", tmpPath, err)}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if expectedSHA256 != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != expectedSHA256 {
			_ = os.Remove(tmpPath)

			return fmt.Errorf("sha256 mismatch for %s: got %s, want %s", dstPath, got, expectedSHA256)
		}
	}

	return os.Rename(tmpPath, dstPath)
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dstPath, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying to %s: %w", dstPath, err)
	}

	return nil
}
