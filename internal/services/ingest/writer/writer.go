// Package writer accumulates a day's distilled records and consolidates
// them into the final columnar partition.
package writer

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	perr "ghdistill/internal/platform/errors"
	"ghdistill/internal/platform/logger"
	"ghdistill/internal/services/ingest/domain"
)

const (
	maxLineSize  = 8 * 1024 * 1024
	parquetBatch = 1024
	flushBufSize = 1 << 20
)

// DayEventWriter implements domain.DayWriter for one calendar day.
//
// One instance is shared by all 24 hours of the day, so writes are staged in
// memory per hour: CloseOK appends the staged hour to the day's events.jsonl
// in one pass, CloseAbort drops the stage. A failed hour therefore leaves no
// trace in the intermediate store and cannot contaminate consolidation.
type DayEventWriter struct {
	eventsPath   string
	partitionDir string
	staged       []domain.DistilledEvent
	log          *logger.Logger
}

// New constructs a writer for the day owning the given paths
func New(eventsPath, partitionDir string) *DayEventWriter {
	return &DayEventWriter{
		eventsPath:   eventsPath,
		partitionDir: partitionDir,
		log:          logger.Named("writer"),
	}
}

// WriteEvent stages one record for the hour currently being processed
func (w *DayEventWriter) WriteEvent(ev domain.DistilledEvent) error {
	w.staged = append(w.staged, ev)
	return nil
}

// CloseOK merges the staged hour into the day's intermediate store
func (w *DayEventWriter) CloseOK() error {
	if len(w.staged) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.eventsPath), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: mkdir %s", filepath.Dir(w.eventsPath))
	}
	f, err := os.OpenFile(w.eventsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: open %s", w.eventsPath)
	}
	bw := bufio.NewWriterSize(f, flushBufSize)
	for i := range w.staged {
		b, err := json.Marshal(&w.staged[i])
		if err != nil {
			_ = f.Close()
			return perr.Wrap(err, perr.ErrorCodeJSON, "writer: marshal record")
		}
		if _, err := bw.Write(append(b, '\n')); err != nil {
			_ = f.Close()
			return perr.Wrapf(err, perr.ErrorCodeIO, "writer: append %s", w.eventsPath)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: flush %s", w.eventsPath)
	}
	if err := f.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: close %s", w.eventsPath)
	}
	w.staged = nil
	return nil
}

// CloseAbort discards the staged hour
func (w *DayEventWriter) CloseAbort() {
	if n := len(w.staged); n > 0 {
		w.log.Debug().Int("discarded", n).Str("path", w.eventsPath).Msg("writer: dropping staged hour")
	}
	w.staged = nil
}

// Staged returns how many records are currently staged (tests and debugging)
func (w *DayEventWriter) Staged() int { return len(w.staged) }

// Consolidate converts the day's intermediate store into the final parquet
// partition and deletes the intermediate store. Missing or empty input is a
// no-op. Conversion errors leave the intermediate store in place so a later
// run can retry.
func (w *DayEventWriter) Consolidate() error {
	fi, err := os.Stat(w.eventsPath)
	if os.IsNotExist(err) || (err == nil && fi.Size() == 0) {
		return nil
	}
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: stat %s", w.eventsPath)
	}

	if err := os.MkdirAll(w.partitionDir, 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: mkdir %s", w.partitionDir)
	}
	out := filepath.Join(w.partitionDir, "events.parquet")
	tmp := out + ".part"
	defer func() { _ = os.Remove(tmp) }()

	if err := w.convert(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: rename %s", out)
	}
	if err := os.Remove(w.eventsPath); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: remove %s", w.eventsPath)
	}
	w.log.Info().Str("partition", out).Msg("writer: day consolidated")
	return nil
}

// convert streams events.jsonl into a zstd-compressed parquet file
func (w *DayEventWriter) convert(dst string) error {
	in, err := os.Open(w.eventsPath)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: open %s", w.eventsPath)
	}
	defer func() { _ = in.Close() }()

	f, err := os.Create(dst)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: create %s", dst)
	}
	pw := parquet.NewGenericWriter[domain.DistilledEvent](f, parquet.Compression(&zstd.Codec{}))

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	batch := make([]domain.DistilledEvent, 0, parquetBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.Write(batch); err != nil {
			return perr.Wrapf(err, perr.ErrorCodeIO, "writer: parquet write %s", dst)
		}
		batch = batch[:0]
		return nil
	}

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev domain.DistilledEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			_ = f.Close()
			return perr.Wrapf(err, perr.ErrorCodeJSON, "writer: corrupt record in %s", w.eventsPath)
		}
		batch = append(batch, ev)
		if len(batch) == parquetBatch {
			if err := flush(); err != nil {
				_ = f.Close()
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		_ = f.Close()
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: read %s", w.eventsPath)
	}
	if err := flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := pw.Close(); err != nil {
		_ = f.Close()
		return perr.Wrapf(err, perr.ErrorCodeIO, "writer: parquet close %s", dst)
	}
	return f.Close()
}
