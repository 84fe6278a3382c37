package gharchive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	perr "ghdistill/internal/platform/errors"
)

// CachedFetcher wraps another Fetcher with an on-disk cache.
// The cache dir holds one .json.gz per hour. Archive hours are immutable
// once published, so a cached file is served forever (subject to retention);
// there is no revalidation. NotFound results are never cached - the daily
// index is the durable record of permanently absent hours.
type CachedFetcher struct {
	dir             string
	inner           Fetcher
	retainMaxAge    time.Duration
	retainMaxBytes  int64
	lastCleanupUnix atomic.Int64
}

// CachedOption configures the fetcher
type CachedOption func(*CachedFetcher)

// WithRetention sets optional age and size retention
// Pass zero to disable either dimension
func WithRetention(maxAge time.Duration, maxBytes int64) CachedOption {
	return func(c *CachedFetcher) {
		c.retainMaxAge = maxAge
		c.retainMaxBytes = maxBytes
	}
}

// NewCachedFetcher builds a caching fetcher; dir is required, inner serves misses
func NewCachedFetcher(dir string, inner Fetcher, opts ...CachedOption) *CachedFetcher {
	_ = os.MkdirAll(dir, 0o755)
	c := &CachedFetcher{dir: dir, inner: inner}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch serves the hour from disk when present, otherwise downloads and stores it
func (c *CachedFetcher) Fetch(ctx context.Context, hour HourStamp) (io.ReadCloser, error) {
	path := filepath.Join(c.dir, hour.String()+".json.gz")

	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		f, err := os.Open(path)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeIO, "gharchive cache: open %s", path)
		}
		c.maybeCleanup()
		return f, nil
	}

	rc, err := c.inner.Fetch(ctx, hour)
	if err != nil {
		return nil, err
	}
	return c.store(rc, path)
}

// store saves the body atomically and returns a reader over the cached file
func (c *CachedFetcher) store(body io.ReadCloser, path string) (io.ReadCloser, error) {
	tmp := path + ".part"
	defer func() { _ = os.Remove(tmp) }()

	out, err := os.Create(tmp)
	if err != nil {
		_ = body.Close()
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "gharchive cache: create %s", tmp)
	}
	_, werr := io.Copy(out, body)
	cerr := out.Close()
	_ = body.Close()
	if werr != nil {
		// download died mid-stream; treat like any other transient fetch failure
		return nil, perr.Wrap(werr, perr.ErrorCodeUnavailable, "gharchive cache: download truncated")
	}
	if cerr != nil {
		return nil, perr.Wrapf(cerr, perr.ErrorCodeIO, "gharchive cache: close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "gharchive cache: rename %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeIO, "gharchive cache: open %s", path)
	}
	c.maybeCleanup()
	return f, nil
}

// maybeCleanup throttles retention cleanup to once per ten minutes
func (c *CachedFetcher) maybeCleanup() {
	if c.retainMaxAge <= 0 && c.retainMaxBytes <= 0 {
		return
	}
	now := time.Now().Unix()
	last := c.lastCleanupUnix.Load()
	if last != 0 && now-last < 600 {
		return
	}
	if !c.lastCleanupUnix.CompareAndSwap(last, now) {
		return
	}
	_ = c.cleanupOnce()
}

// cleanupOnce applies age and size retention, oldest hours first
func (c *CachedFetcher) cleanupOnce() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	type item struct {
		path string
		size int64
		hour time.Time
	}
	var items []item
	var total int64
	cutoff := time.Now().Add(-c.retainMaxAge)

	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json.gz") {
			continue
		}
		full := filepath.Join(c.dir, name)
		fi, err := os.Stat(full)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		hs, err := ParseHourStamp(strings.TrimSuffix(name, ".json.gz"))
		if err != nil {
			continue
		}
		if c.retainMaxAge > 0 && hs.UTC().Before(cutoff) {
			_ = os.Remove(full)
			continue
		}
		items = append(items, item{path: full, size: fi.Size(), hour: hs.UTC()})
		total += fi.Size()
	}

	if c.retainMaxBytes > 0 && total > c.retainMaxBytes {
		sort.Slice(items, func(i, j int) bool { return items[i].hour.Before(items[j].hour) })
		for _, it := range items {
			if total <= c.retainMaxBytes {
				break
			}
			_ = os.Remove(it.path)
			total -= it.size
		}
	}
	return nil
}
