package domain

import (
	"context"
	"io"
	"time"
)

// RunnerPort is the public port exposed by the ingest module
type RunnerPort interface {
	ProcessHour(ctx context.Context, stamp string, force bool) (HourResult, error)
	ProcessRange(ctx context.Context, start, end HourStamp, force bool) (RangeTotals, error)
	FinalizeDays(ctx context.Context, days []time.Time)
	DatasetInfo(ctx context.Context) (DatasetInfo, error)
}

// Fetcher fetches the gzip archive stream for one hour
type Fetcher interface {
	Fetch(ctx context.Context, hour HourStamp) (io.ReadCloser, error)
}

// ReaderPort streams decoded event envelopes from a fetched archive.
// Malformed lines are skipped by Next but reported through Stats so the
// caller can count them as discarded.
type ReaderPort interface {
	Next() (EventEnvelope, error)
	Close() error
	Stats() (events, malformed int, bytes int64) // zeros if not supported
}

// ReaderFactory builds a ReaderPort over a fetched stream
type ReaderFactory interface {
	New(io.ReadCloser) (ReaderPort, error)
}

// Distiller projects one raw event into a compact record, or discards it
type Distiller interface {
	Distill(env EventEnvelope) (DistilledEvent, bool)
}

// DayWriter accumulates one day's distilled records.
// Writes between the start of an hour and CloseOK/CloseAbort are staged:
// CloseOK merges the staged hour into the day's intermediate store,
// CloseAbort discards it, so an aborted hour never leaks partial records.
type DayWriter interface {
	WriteEvent(ev DistilledEvent) error
	CloseOK() error
	CloseAbort()

	// Consolidate converts the day's intermediate store into the final
	// columnar partition and removes the intermediate store. A missing or
	// empty intermediate store is a no-op.
	Consolidate() error
}

// IndexRepo persists daily indexes and resolves per-day storage
type IndexRepo interface {
	GetByDay(day time.Time) (*DailyIndex, error)
	Save(day time.Time, idx *DailyIndex) error

	// WriterFor returns the day's writer, one instance per day per run
	WriterFor(day time.Time) (DayWriter, error)

	// PartitionExists reports whether the day's final partition is on disk
	PartitionExists(day time.Time) bool

	// Stats summarizes the dataset on disk
	Stats() (DatasetInfo, error)

	// Close releases any writers held for the run
	Close() error
}
