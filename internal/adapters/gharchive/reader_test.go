package gharchive

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func gzipLines(t *testing.T, lines ...string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		if _, err := gz.Write([]byte(l + "\n")); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return io.NopCloser(&buf)
}

func TestReaderStreamsEvents(t *testing.T) {
	rd, err := NewReader(gzipLines(t,
		`{"id":"1","type":"PushEvent","actor":{"id":10,"login":"alice"},"repo":{"id":20,"name":"alice/r"},"created_at":"2024-01-15T03:00:01Z","payload":{"ref":"refs/heads/main"}}`,
		`{"id":"2","type":"WatchEvent","actor":{"id":11,"login":"bob"},"repo":{"id":21,"name":"bob/r"},"created_at":"2024-01-15T03:00:02Z"}`,
	))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	e1, err := rd.Next()
	if err != nil {
		t.Fatalf("Next 1: %v", err)
	}
	if e1.ID != "1" || e1.Type != "PushEvent" || e1.Actor.Login != "alice" || e1.Repo.Name != "alice/r" {
		t.Fatalf("event 1 = %+v", e1)
	}
	if e1.CreatedAt != "2024-01-15T03:00:01Z" {
		t.Fatalf("created_at = %q, want source string preserved", e1.CreatedAt)
	}

	e2, err := rd.Next()
	if err != nil {
		t.Fatalf("Next 2: %v", err)
	}

	// payloads must not alias each other across Next calls
	if string(e1.Payload) != `{"ref":"refs/heads/main"}` {
		t.Fatalf("event 1 payload corrupted after reading event 2: %s", e1.Payload)
	}
	if e2.ID != "2" {
		t.Fatalf("event 2 = %+v", e2)
	}

	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
	events, malformed, bytesRead := rd.Stats()
	if events != 2 || malformed != 0 || bytesRead == 0 {
		t.Fatalf("Stats = (%d, %d, %d)", events, malformed, bytesRead)
	}
}

func TestReaderSkipsMalformedLines(t *testing.T) {
	rd, err := NewReader(gzipLines(t,
		`not json at all`,
		`{"id":"ok","type":"WatchEvent","actor":{"id":1},"repo":{"id":2,"name":"x/y"},"created_at":"2024-01-15T03:00:00Z"}`,
		`{"truncated":`,
	))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()

	e, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if e.ID != "ok" {
		t.Fatalf("event = %+v", e)
	}
	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
	// skipped lines are still accounted for
	events, malformed, _ := rd.Stats()
	if events != 1 || malformed != 2 {
		t.Fatalf("Stats = (%d events, %d malformed), want (1, 2)", events, malformed)
	}
}

func TestReaderRejectsNonGzip(t *testing.T) {
	if _, err := NewReader(io.NopCloser(bytes.NewBufferString("plain text"))); err == nil {
		t.Fatalf("expected gzip header error")
	}
}

func TestReaderEmptyStream(t *testing.T) {
	rd, err := NewReader(gzipLines(t))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer rd.Close()
	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
}
