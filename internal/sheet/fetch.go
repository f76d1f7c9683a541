package sheet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "citadash/internal/log"
)

// ErrEmptyURL is returned when a source has no URL configured.
var ErrEmptyURL = errors.New("source URL is empty")

// Source is one CSV export endpoint.
type Source struct {
	// ID names the dataset in logs (e.g. "appointments").
	ID string
	// URL is the CSV export endpoint.
	URL string
}

// TransportError is a failed fetch. StatusCode is the HTTP status, or 0
// when the request never produced a response.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch csv: status %d: %s", e.StatusCode, e.Message)
	}
	return "fetch csv: " + e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed.
func (e *TransportError) Temporary() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// FetchResult contains the outcome of fetching a single source.
type FetchResult struct {
	Source    Source
	Body      string
	FromCache bool // true if the cached body was reused after a 304
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetcherOptions tunes the HTTP client and retry policy.
type FetcherOptions struct {
	CacheDir   string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Client     *http.Client
}

// Fetcher downloads CSV exports with conditional requests (ETag /
// Last-Modified) backed by a small on-disk cache.
type Fetcher struct {
	client     *http.Client
	cacheDir   string
	retries    int
	retryDelay time.Duration
}

// NewFetcher creates a Fetcher. An empty CacheDir disables the disk cache.
func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{
		client:     client,
		cacheDir:   opts.CacheDir,
		retries:    retries,
		retryDelay: delay,
	}
}

// Fetch downloads src, retrying transient failures with exponential
// backoff. Failures are returned as *TransportError.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, ErrEmptyURL
	}

	delay := f.retryDelay
	for attempt := 0; ; attempt++ {
		res, err := f.fetchOnce(ctx, src)
		if err == nil {
			return res, nil
		}

		var te *TransportError
		if !errors.As(err, &te) || !te.Temporary() || attempt >= f.retries {
			return FetchResult{}, err
		}

		appLog.Warn("csv fetch failed, retrying",
			"id", src.ID,
			"url", redactURL(src.URL),
			"attempt", attempt+1,
			"max_attempts", f.retries+1,
			"delay", delay,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return FetchResult{}, &TransportError{Message: ctx.Err().Error(), Err: ctx.Err()}
		case <-time.After(delay):
			delay *= 2
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, src Source) (FetchResult, error) {
	var (
		cachePath  string
		meta       cacheEntry
		cachedBody []byte
	)
	if f.cacheDir != "" {
		cachePath = f.cachePathForURL(src.URL)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return FetchResult{}, err
		}
		meta, _ = f.loadCacheMeta(cachePath)
		cachedBody, _ = f.loadCacheBody(cachePath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, &TransportError{Message: err.Error(), Err: err}
	}

	// Conditional headers only make sense when we can serve the cached body.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("csv fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{}, &TransportError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && len(cachedBody) > 0:
		appLog.Debug("csv fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: string(cachedBody), FromCache: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, &TransportError{Message: readErr.Error(), Err: readErr}
		}

		if cachePath != "" {
			newMeta := cacheEntry{
				URL:          src.URL,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}
			if err := f.saveCache(cachePath, newMeta, body); err != nil {
				// Log but still return the freshly fetched body.
				appLog.Error("csv cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
			}
		}

		appLog.Info("csv fetch success", "id", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{Source: src, Body: string(body)}, nil

	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return FetchResult{}, &TransportError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.csv"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.csv"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; spreadsheet IDs in the path are
// effectively credentials.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "csv://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
