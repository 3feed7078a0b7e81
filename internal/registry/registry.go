// Package registry implements the package-index HTTP client a resolve
// worker uses to turn a package name and version range into a concrete
// distribution to fetch. The core state machine never talks to it
// directly — it only ever sees the JobResult a worker built from this
// client's response.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://fastapi.metacpan.org/v1"
	maxRetries     = 3
	clientTimeout  = 30 * time.Second
)

// retryableError marks a transient failure worth retrying with backoff.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Release is the metadata the registry returns for a package's best-matching
// release: enough to build a resolve JobResult.
type Release struct {
	Package  string `json:"name"`
	Version  string `json:"version"`
	Distfile string `json:"distfile"`
	URI      string `json:"download_url"`
	SHA256   string `json:"sha256,omitempty"`
}

// Client resolves a package name and version-range string to a Release.
type Client interface {
	Resolve(ctx context.Context, pkg, versionRange string) (*Release, error)
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the HTTP client used for registry requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL, useful for pointing at an
// httptest.Server in tests or a private mirror in production.
func WithBaseURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service communicates with a CPAN-style package index over HTTP.
type Service struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

var _ Client = (*Service)(nil)

// New creates a registry Service.
func New(opts ...Option) *Service {
	s := &Service{
		httpClient: &http.Client{Timeout: clientTimeout},
		baseURL:    defaultBaseURL,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Resolve fetches the best release of pkg matching versionRange.
// Endpoint: GET {baseURL}/release/{package}?version={versionRange}
func (s *Service) Resolve(ctx context.Context, pkg, versionRange string) (*Release, error) {
	url := fmt.Sprintf("%s/release/%s", s.baseURL, pkg)
	if versionRange != "" {
		url += "?version=" + versionRange
	}

	return s.fetchWithRetry(ctx, url, pkg)
}

func (s *Service) fetchWithRetry(ctx context.Context, url, pkg string) (*Release, error) {
	var lastErr error

	for attempt := range maxRetries {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 500 * time.Millisecond

			s.logger.Debug("retrying registry lookup",
				slog.String("package", pkg), slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("registry lookup canceled: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		release, err := s.fetch(ctx, url, pkg)
		if err == nil {
			return release, nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return nil, err
		}

		lastErr = err

		s.logger.Debug("registry lookup attempt failed",
			slog.String("package", pkg), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
	}

	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

func (s *Service) fetch(ctx context.Context, url, pkg string) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("requesting %s: %w", url, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("registry: package %s not found", pkg)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &retryableError{err: err}
		}

		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("reading response: %w", err)}
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("decoding release for %s: %w", pkg, err)
	}

	return &release, nil
}
