package gharchive

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

const maxScanTokenSize = 32 * 1024 * 1024

// Reader streams EventEnvelope items from a gzip NDJSON stream.
// The stream is consumed incrementally; the decompressed hour is never held
// in memory at once. Malformed lines are skipped, not surfaced, but counted
// so callers can fold them into their discard totals.
type Reader struct {
	r         io.ReadCloser
	gz        *gzip.Reader
	sc        *bufio.Scanner
	err       error
	events    int
	malformed int
	bytes     int64
}

// NewReader creates a new Reader from the given ReadCloser
func NewReader(r io.ReadCloser) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		if cerr := r.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}
	sc := bufio.NewScanner(gz)
	buf := make([]byte, 512*1024)
	sc.Buffer(buf, maxScanTokenSize)
	return &Reader{r: r, gz: gz, sc: sc}, nil
}

// Next reads the next event; returns io.EOF when done
func (rd *Reader) Next() (EventEnvelope, error) {
	if rd.err != nil {
		return EventEnvelope{}, rd.err
	}
	for {
		if !rd.sc.Scan() {
			if err := rd.sc.Err(); err != nil {
				rd.err = err
				return EventEnvelope{}, err
			}
			rd.err = io.EOF
			return EventEnvelope{}, io.EOF
		}
		line := rd.sc.Bytes()
		// copy: env.Payload aliases the decoded bytes and the scanner reuses its buffer
		cp := make([]byte, len(line))
		copy(cp, line)

		var env EventEnvelope
		if err := json.Unmarshal(cp, &env); err != nil {
			// skip malformed lines
			rd.malformed++
			continue
		}
		rd.events++
		rd.bytes += int64(len(cp) + 1) // include newline

		return env, nil
	}
}

// Close closes the underlying readers
func (rd *Reader) Close() error {
	var first error
	if rd.gz != nil {
		if err := rd.gz.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			first = err
		}
	}
	if rd.r != nil {
		if err := rd.r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Stats returns the number of events parsed, the number of malformed lines
// skipped, and total uncompressed bytes read so far
func (rd *Reader) Stats() (events, malformed int, bytes int64) {
	return rd.events, rd.malformed, rd.bytes
}
