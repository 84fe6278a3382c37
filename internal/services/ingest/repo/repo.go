// Package repo persists daily indexes and resolves per-day storage on the
// local filesystem.
package repo

import (
	"encoding/json"
	"os"
	"time"

	perr "ghdistill/internal/platform/errors"
	"ghdistill/internal/platform/logger"
	"ghdistill/internal/services/ingest/domain"
	"ghdistill/internal/services/ingest/writer"
)

// FS implements domain.IndexRepo over a base directory.
// Writers are pooled per day for the lifetime of one run and released by
// Close. Not safe for concurrent use; all hours of a day go through the
// same writer, one at a time.
type FS struct {
	base    string
	writers map[string]*writer.DayEventWriter
	log     *logger.Logger
}

// NewFS constructs a filesystem-backed index repository rooted at base
func NewFS(base string) *FS {
	return &FS{
		base:    base,
		writers: map[string]*writer.DayEventWriter{},
		log:     logger.Named("repo"),
	}
}

// GetByDay loads the day's index. A missing or unreadable index file yields
// a fresh empty index: the checkpoint degrades to "nothing known", never to
// an error that would block re-ingestion.
func (r *FS) GetByDay(day time.Time) (*domain.DailyIndex, error) {
	p := Paths{Base: r.base, Day: day}
	b, err := os.ReadFile(p.IndexPath())
	if err != nil {
		return domain.NewDailyIndex(), nil
	}
	var idx domain.DailyIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		r.log.Warn().Str("path", p.IndexPath()).Err(err).Msg("repo: corrupt index, starting fresh")
		return domain.NewDailyIndex(), nil
	}
	idx.Normalize()
	return &idx, nil
}

// Save writes the day's index atomically (temp file + rename)
func (r *FS) Save(day time.Time, idx *domain.DailyIndex) error {
	p := Paths{Base: r.base, Day: day}
	if err := os.MkdirAll(p.DayDir(), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "repo: mkdir %s", p.DayDir())
	}
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "repo: marshal index")
	}
	tmp := p.IndexPath() + ".part"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "repo: write %s", tmp)
	}
	if err := os.Rename(tmp, p.IndexPath()); err != nil {
		_ = os.Remove(tmp)
		return perr.Wrapf(err, perr.ErrorCodeIO, "repo: rename %s", p.IndexPath())
	}
	return nil
}

// WriterFor returns the day's writer, creating it on first use
func (r *FS) WriterFor(day time.Time) (domain.DayWriter, error) {
	k := dayKey(day)
	if w, ok := r.writers[k]; ok {
		return w, nil
	}
	p := Paths{Base: r.base, Day: day}
	w := writer.New(p.EventsPath(), p.PartitionDir())
	r.writers[k] = w
	return w, nil
}

// PartitionExists reports whether the day's consolidated partition is on disk
func (r *FS) PartitionExists(day time.Time) bool {
	p := Paths{Base: r.base, Day: day}
	fi, err := os.Stat(p.PartitionFile())
	return err == nil && fi.Mode().IsRegular()
}

// Close discards any staged writes and releases the writer pool
func (r *FS) Close() error {
	for _, w := range r.writers {
		w.CloseAbort()
	}
	r.writers = map[string]*writer.DayEventWriter{}
	return nil
}
