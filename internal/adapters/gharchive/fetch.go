package gharchive

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	perr "ghdistill/internal/platform/errors"
	"ghdistill/internal/platform/logger"
)

// DefaultBaseURL is the public GH Archive host
const DefaultBaseURL = "https://data.gharchive.org"

// Fetcher fetches a reader for a given hour's gzip archive
type Fetcher interface {
	Fetch(ctx context.Context, hour HourStamp) (io.ReadCloser, error)
}

// HTTPFetcher fetches directly from the archive host with bounded retries.
// A 404 response is returned immediately as a NotFound error (the hour will
// never exist); every other failure is retried with exponential backoff and,
// once attempts are exhausted, surfaces as a retryable Unavailable error.
type HTTPFetcher struct {
	BaseURL     string
	Client      *http.Client
	MaxAttempts int           // <=0 -> 1
	RetryBase   time.Duration // <=0 -> 500ms
}

// NewHTTPFetcher creates an HTTPFetcher with the given client timeout and retry policy
func NewHTTPFetcher(timeout time.Duration, maxAttempts int, retryBase time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL:     DefaultBaseURL,
		Client:      &http.Client{Timeout: timeout},
		MaxAttempts: maxAttempts,
		RetryBase:   retryBase,
	}
}

// Fetch returns a reader for the gzip file for the given hour
func (f *HTTPFetcher) Fetch(ctx context.Context, hour HourStamp) (io.ReadCloser, error) {
	base := f.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	url := fmt.Sprintf("%s/%s.json.gz", base, hour.String())

	attempts := max(f.MaxAttempts, 1)
	backoff := f.RetryBase
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var last error
	for i := range attempts {
		rc, err := f.fetchOnce(ctx, url)
		if err == nil {
			return rc, nil
		}
		if !perr.Retryable(err) {
			return nil, err
		}
		last = err
		if i == attempts-1 {
			break
		}
		logger.C(ctx).Warn().
			Int("attempt", i+1).
			Int("max_attempts", attempts).
			Str("url", url).
			Err(err).
			Msg("gharchive: fetch failed, backing off")

		// exponential backoff with jitter, capped at 30s
		d := min(backoff<<i, 30*time.Second)
		j := d
		if half := d / 2; half > 0 {
			j = half + time.Duration(rand.Int63n(int64(half)))
		}
		if se := sleepCtx(ctx, j); se != nil {
			return nil, perr.Wrap(se, perr.ErrorCodeUnavailable, "gharchive: fetch interrupted")
		}
	}
	return nil, last
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "gharchive: bad request for %s", url)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		// timeouts and connection failures are all transient
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "gharchive: request failed for %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.C(ctx).Warn().Err(cerr).Str("url", url).Msg("gharchive: error closing response body")
		}
		return nil, perr.Newf(perr.FromHTTPStatus(resp.StatusCode),
			"gharchive: unexpected status %d for %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
