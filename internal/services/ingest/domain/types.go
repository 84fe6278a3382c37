// Package domain holds the core entities and ports for the ingestion service
package domain

import (
	"time"

	"ghdistill/internal/adapters/gharchive"
)

// EventEnvelope re-exports the archive envelope shape consumed by the distiller
type EventEnvelope = gharchive.EventEnvelope

// HourStamp re-exports the hour identity used across the service
type HourStamp = gharchive.HourStamp

// ParseHourStamp parses and validates an hour stamp string
func ParseHourStamp(s string) (HourStamp, error) { return gharchive.ParseHourStamp(s) }

// NewHourStamp builds the stamp for the hour containing t (UTC)
func NewHourStamp(t time.Time) HourStamp { return gharchive.NewHourStamp(t) }

// DistilledEvent is the compact projection of one raw archive event.
// The first five fields are always present; the rest are copied from the
// source only when present (pointers stay nil / strings stay empty, and the
// columnar schema marks them optional).
type DistilledEvent struct {
	CaseID      string `json:"case_id" parquet:"case_id"`
	Activity    string `json:"activity" parquet:"activity"`
	Timestamp   string `json:"timestamp" parquet:"timestamp"`
	ActorID     int64  `json:"actor_id" parquet:"actor_id"`
	RepoName    string `json:"repo_name" parquet:"repo_name"`
	PayloadType string `json:"payload_type,omitempty" parquet:"payload_type,optional"`
	RepoID      *int64 `json:"repo_id,omitempty" parquet:"repo_id,optional"`
	ActorLogin  string `json:"actor_login,omitempty" parquet:"actor_login,optional"`
	OrgLogin    string `json:"org_login,omitempty" parquet:"org_login,optional"`

	// event-type specific extras, copy-if-present
	Action          string `json:"action,omitempty" parquet:"action,optional"`
	IssueNumber     *int64 `json:"issue_number,omitempty" parquet:"issue_number,optional"`
	IssueState      string `json:"issue_state,omitempty" parquet:"issue_state,optional"`
	PRNumber        *int64 `json:"pr_number,omitempty" parquet:"pr_number,optional"`
	PRMerged        *bool  `json:"pr_merged,omitempty" parquet:"pr_merged,optional"`
	CommentID       *int64 `json:"comment_id,omitempty" parquet:"comment_id,optional"`
	PushRef         string `json:"push_ref,omitempty" parquet:"push_ref,optional"`
	PushCommitCount *int64 `json:"push_commit_count,omitempty" parquet:"push_commit_count,optional"`
	PushSize        *int64 `json:"push_size,omitempty" parquet:"push_size,optional"`
	CreateRefType   string `json:"create_ref_type,omitempty" parquet:"create_ref_type,optional"`
	ReleaseTag      string `json:"release_tag_name,omitempty" parquet:"release_tag_name,optional"`
	ForkFullName    string `json:"fork_full_name,omitempty" parquet:"fork_full_name,optional"`
}

// HourStatus is the terminal outcome of processing one hour
type HourStatus string

const (
	// StatusSuccess means the hour streamed, distilled and checkpointed cleanly
	StatusSuccess HourStatus = "SUCCESS"
	// StatusSkippedProcessed means the hour was already checkpointed as done
	StatusSkippedProcessed HourStatus = "SKIPPED_PROCESSED"
	// StatusSkipped404 means the hour was already checkpointed as permanently absent
	StatusSkipped404 HourStatus = "SKIPPED_404"
	// StatusFailed404 means the archive returned 404 this run; recorded durably
	StatusFailed404 HourStatus = "FAILED_404"
	// StatusFailedOther means a transient failure; nothing recorded, retried next run
	StatusFailedOther HourStatus = "FAILED_OTHER"
)

// HourResult is what processing one hour reports back
type HourResult struct {
	Status    HourStatus
	Parsed    int
	Distilled int
	Discarded int
}

// RangeTotals aggregates outcomes and counts across the hours of a run
type RangeTotals struct {
	Hours     int
	Succeeded int
	Skipped   int
	Failed404 int
	FailedOth int
	Parsed    int
	Distilled int
	Discarded int
}

// Add accumulates one hour's outcome
func (t *RangeTotals) Add(r HourResult) {
	t.Hours++
	switch r.Status {
	case StatusSuccess:
		t.Succeeded++
	case StatusSkippedProcessed, StatusSkipped404:
		t.Skipped++
	case StatusFailed404:
		t.Failed404++
	case StatusFailedOther:
		t.FailedOth++
	}
	t.Parsed += r.Parsed
	t.Distilled += r.Distilled
	t.Discarded += r.Discarded
}

// CoverageSummary describes which hours of the dataset's covered span are present
type CoverageSummary struct {
	MinHour string
	MaxHour string
	Found   int
	Total   int
	Pct     float64
}

// DatasetInfo is the answer to the info query
type DatasetInfo struct {
	Path    string
	SizeMB  float64
	Summary *CoverageSummary // nil when the dataset is empty
}
