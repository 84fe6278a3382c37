package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	perr "ghdistill/internal/platform/errors"
	"ghdistill/internal/services/ingest/domain"
)

// --- fakes ---

type fakeFetcher struct {
	calls map[string]int
	errs  map[string]error // per stamp; nil means success
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, hour domain.HourStamp) (io.ReadCloser, error) {
	s := hour.String()
	f.calls[s]++
	if err := f.errs[s]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

type fakeReader struct {
	events    []domain.EventEnvelope
	pos       int
	malformed int
	err       error // returned after the events are exhausted, instead of io.EOF
}

func (r *fakeReader) Next() (domain.EventEnvelope, error) {
	if r.pos >= len(r.events) {
		if r.err != nil {
			return domain.EventEnvelope{}, r.err
		}
		return domain.EventEnvelope{}, io.EOF
	}
	ev := r.events[r.pos]
	r.pos++
	return ev, nil
}

func (r *fakeReader) Close() error             { return nil }
func (r *fakeReader) Stats() (int, int, int64) { return r.pos, r.malformed, 0 }

type fakeReaderFactory struct {
	events    []domain.EventEnvelope
	malformed int
	streamErr error
}

func (f *fakeReaderFactory) New(rc io.ReadCloser) (domain.ReaderPort, error) {
	_ = rc.Close()
	evs := make([]domain.EventEnvelope, len(f.events))
	copy(evs, f.events)
	return &fakeReader{events: evs, malformed: f.malformed, err: f.streamErr}, nil
}

type passDistiller struct{}

func (passDistiller) Distill(env domain.EventEnvelope) (domain.DistilledEvent, bool) {
	if env.Repo.Name == "" {
		return domain.DistilledEvent{}, false
	}
	return domain.DistilledEvent{
		CaseID:    env.Repo.Name,
		Activity:  env.Type,
		Timestamp: env.CreatedAt,
		ActorID:   env.Actor.ID,
		RepoName:  env.Repo.Name,
	}, true
}

type fakeWriter struct {
	staged       []domain.DistilledEvent
	committed    []domain.DistilledEvent
	aborts       int
	consolidates int
	commitErr    error
}

func (w *fakeWriter) WriteEvent(ev domain.DistilledEvent) error {
	w.staged = append(w.staged, ev)
	return nil
}

func (w *fakeWriter) CloseOK() error {
	if w.commitErr != nil {
		return w.commitErr
	}
	w.committed = append(w.committed, w.staged...)
	w.staged = nil
	return nil
}

func (w *fakeWriter) CloseAbort() {
	w.aborts++
	w.staged = nil
}

func (w *fakeWriter) Consolidate() error {
	w.consolidates++
	return nil
}

type fakeRepo struct {
	indexes    map[string]*domain.DailyIndex
	writers    map[string]*fakeWriter
	partitions map[string]bool
	saves      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		indexes:    map[string]*domain.DailyIndex{},
		writers:    map[string]*fakeWriter{},
		partitions: map[string]bool{},
	}
}

func dayKey(day time.Time) string { return day.UTC().Format("2006-01-02") }

func (r *fakeRepo) GetByDay(day time.Time) (*domain.DailyIndex, error) {
	if idx, ok := r.indexes[dayKey(day)]; ok {
		return idx, nil
	}
	return domain.NewDailyIndex(), nil
}

func (r *fakeRepo) Save(day time.Time, idx *domain.DailyIndex) error {
	r.saves++
	r.indexes[dayKey(day)] = idx
	return nil
}

func (r *fakeRepo) WriterFor(day time.Time) (domain.DayWriter, error) {
	k := dayKey(day)
	if w, ok := r.writers[k]; ok {
		return w, nil
	}
	w := &fakeWriter{}
	r.writers[k] = w
	return w, nil
}

func (r *fakeRepo) PartitionExists(day time.Time) bool { return r.partitions[dayKey(day)] }
func (r *fakeRepo) Stats() (domain.DatasetInfo, error) { return domain.DatasetInfo{}, nil }
func (r *fakeRepo) Close() error                       { return nil }

// --- helpers ---

func someEvents(n int) []domain.EventEnvelope {
	evs := make([]domain.EventEnvelope, 0, n)
	for i := 0; i < n; i++ {
		var env domain.EventEnvelope
		env.ID = fmt.Sprintf("%d", i)
		env.Type = "PushEvent"
		env.CreatedAt = "2024-01-15T03:00:00Z"
		env.Actor.ID = int64(i + 1)
		env.Repo.Name = "a/b"
		evs = append(evs, env)
	}
	return evs
}

func newService(repo *fakeRepo, f *fakeFetcher, events []domain.EventEnvelope) *Service {
	return New(repo, f, &fakeReaderFactory{events: events}, passDistiller{})
}

var testDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

// --- tests ---

func TestProcessHourSuccess(t *testing.T) {
	repo := newFakeRepo()
	fetch := newFakeFetcher()
	evs := someEvents(3)
	evs = append(evs, domain.EventEnvelope{}) // discarded: no repo name
	svc := newService(repo, fetch, evs)

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("ProcessHour: %v", err)
	}
	if res.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	if res.Parsed != 4 || res.Distilled != 3 || res.Discarded != 1 {
		t.Fatalf("counts = %+v", res)
	}

	idx := repo.indexes[dayKey(testDay)]
	if idx == nil || !idx.IsProcessed("2024-01-15-3") {
		t.Fatalf("hour not checkpointed")
	}
	if got := idx.HoursProcessed["2024-01-15-3"]; got != (domain.HourStats{Total: 4, Distilled: 3, Bad: 1}) {
		t.Fatalf("stats = %+v", got)
	}
	if idx.DailyCounts["PushEvent"] != 3 {
		t.Fatalf("daily counts = %v", idx.DailyCounts)
	}
	if w := repo.writers[dayKey(testDay)]; len(w.committed) != 3 {
		t.Fatalf("committed %d records, want 3", len(w.committed))
	}
}

func TestProcessHourCountsMalformedLinesAsDiscarded(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, newFakeFetcher(),
		&fakeReaderFactory{events: someEvents(3), malformed: 2},
		passDistiller{})

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("ProcessHour: %v", err)
	}
	if res.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	// unreadable lines show up in the totals like any other unusable event
	if res.Parsed != 5 || res.Distilled != 3 || res.Discarded != 2 {
		t.Fatalf("counts = %+v, want 5 parsed / 3 distilled / 2 discarded", res)
	}
	got := repo.indexes[dayKey(testDay)].HoursProcessed["2024-01-15-3"]
	if got != (domain.HourStats{Total: 5, Distilled: 3, Bad: 2}) {
		t.Fatalf("checkpointed stats = %+v", got)
	}
}

func TestProcessHourBadStamp(t *testing.T) {
	svc := newService(newFakeRepo(), newFakeFetcher(), nil)
	_, err := svc.ProcessHour(context.Background(), "2024-01-15-05", false)
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("code = %v, want InvalidArgument", perr.CodeOf(err))
	}
}

func TestProcessHourSkipsCheckpointed(t *testing.T) {
	repo := newFakeRepo()
	idx := domain.NewDailyIndex()
	idx.MarkHour("2024-01-15-3", domain.HourStats{Total: 1, Distilled: 1})
	repo.indexes[dayKey(testDay)] = idx
	fetch := newFakeFetcher()
	svc := newService(repo, fetch, someEvents(1))

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("ProcessHour: %v", err)
	}
	if res.Status != domain.StatusSkippedProcessed {
		t.Fatalf("status = %s", res.Status)
	}
	if fetch.calls["2024-01-15-3"] != 0 {
		t.Fatalf("skipped hour must not hit the network")
	}
}

func TestProcessHourSkips404(t *testing.T) {
	repo := newFakeRepo()
	idx := domain.NewDailyIndex()
	idx.MarkHourNotFound("2024-01-15-3")
	repo.indexes[dayKey(testDay)] = idx
	fetch := newFakeFetcher()
	svc := newService(repo, fetch, someEvents(1))

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("ProcessHour: %v", err)
	}
	if res.Status != domain.StatusSkipped404 {
		t.Fatalf("status = %s", res.Status)
	}
	if fetch.calls["2024-01-15-3"] != 0 {
		t.Fatalf("known-404 hour must not hit the network")
	}
}

func TestProcessHourForceReprocesses(t *testing.T) {
	repo := newFakeRepo()
	idx := domain.NewDailyIndex()
	idx.MarkHour("2024-01-15-3", domain.HourStats{Total: 1, Distilled: 1})
	repo.indexes[dayKey(testDay)] = idx
	fetch := newFakeFetcher()
	svc := newService(repo, fetch, someEvents(5))

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", true)
	if err != nil {
		t.Fatalf("ProcessHour: %v", err)
	}
	if res.Status != domain.StatusSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	if fetch.calls["2024-01-15-3"] != 1 {
		t.Fatalf("force must refetch")
	}
	got := repo.indexes[dayKey(testDay)].HoursProcessed["2024-01-15-3"]
	if got.Total != 5 {
		t.Fatalf("stats not overwritten: %+v", got)
	}
}

func TestProcessHour404RecordedDurably(t *testing.T) {
	repo := newFakeRepo()
	fetch := newFakeFetcher()
	fetch.errs["2024-01-15-3"] = perr.NotFoundf("gone")
	svc := newService(repo, fetch, someEvents(1))

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("404 must not surface as an error: %v", err)
	}
	if res.Status != domain.StatusFailed404 {
		t.Fatalf("status = %s", res.Status)
	}
	idx := repo.indexes[dayKey(testDay)]
	if idx == nil || !idx.IsNotFound("2024-01-15-3") {
		t.Fatalf("404 not checkpointed")
	}
	if w := repo.writers[dayKey(testDay)]; w.aborts != 1 || len(w.committed) != 0 {
		t.Fatalf("writer state after 404: aborts=%d committed=%d", w.aborts, len(w.committed))
	}

	// the next run trusts the checkpoint and skips the hour entirely
	res, _ = svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if res.Status != domain.StatusSkipped404 {
		t.Fatalf("second run status = %s", res.Status)
	}
	if fetch.calls["2024-01-15-3"] != 1 {
		t.Fatalf("404 hour refetched")
	}
}

func TestProcessHourForced404SupersedesSuccess(t *testing.T) {
	repo := newFakeRepo()
	idx := domain.NewDailyIndex()
	idx.MarkHour("2024-01-15-3", domain.HourStats{Total: 5, Distilled: 5})
	repo.indexes[dayKey(testDay)] = idx
	fetch := newFakeFetcher()
	fetch.errs["2024-01-15-3"] = perr.NotFoundf("gone")
	svc := newService(repo, fetch, someEvents(1))

	// forced rerun of a once-successful hour that now 404s
	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", true)
	if err != nil {
		t.Fatalf("ProcessHour: %v", err)
	}
	if res.Status != domain.StatusFailed404 {
		t.Fatalf("status = %s", res.Status)
	}

	got := repo.indexes[dayKey(testDay)]
	if got.IsProcessed("2024-01-15-3") && got.IsNotFound("2024-01-15-3") {
		t.Fatalf("hour recorded in both sets")
	}
	if !got.IsNotFound("2024-01-15-3") {
		t.Fatalf("404 outcome not recorded")
	}
	if got.IsProcessed("2024-01-15-3") {
		t.Fatalf("stale success entry survived the 404")
	}
	if got.KnownHours() != 1 {
		t.Fatalf("KnownHours = %d, want 1", got.KnownHours())
	}
}

func TestProcessHourTransientNotCheckpointed(t *testing.T) {
	repo := newFakeRepo()
	fetch := newFakeFetcher()
	fetch.errs["2024-01-15-3"] = perr.Unavailablef("flaky upstream")
	svc := newService(repo, fetch, someEvents(1))

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("transient must not surface as an error: %v", err)
	}
	if res.Status != domain.StatusFailedOther {
		t.Fatalf("status = %s", res.Status)
	}
	if repo.saves != 0 {
		t.Fatalf("transient failure must not persist the index")
	}

	// failure clears; the hour retries from scratch on the next run
	fetch.errs["2024-01-15-3"] = nil
	res, err = svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil || res.Status != domain.StatusSuccess {
		t.Fatalf("retry run = %s, %v", res.Status, err)
	}
}

func TestProcessHourMidStreamErrorAbortsStage(t *testing.T) {
	repo := newFakeRepo()
	fetch := newFakeFetcher()
	svc := New(repo, fetch,
		&fakeReaderFactory{events: someEvents(2), streamErr: io.ErrUnexpectedEOF},
		passDistiller{})

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("mid-stream failure must not surface as an error: %v", err)
	}
	if res.Status != domain.StatusFailedOther {
		t.Fatalf("status = %s", res.Status)
	}
	// the two staged records must not leak into the store
	if w := repo.writers[dayKey(testDay)]; w.aborts != 1 || len(w.committed) != 0 {
		t.Fatalf("writer state: aborts=%d committed=%d", w.aborts, len(w.committed))
	}
	if repo.saves != 0 {
		t.Fatalf("partial hour must not be checkpointed")
	}
}

func TestProcessHourCommitFailureNotCheckpointed(t *testing.T) {
	repo := newFakeRepo()
	w := &fakeWriter{commitErr: perr.IOf("disk full")}
	repo.writers[dayKey(testDay)] = w
	svc := newService(repo, newFakeFetcher(), someEvents(2))

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", false)
	if err != nil {
		t.Fatalf("ProcessHour: %v", err)
	}
	if res.Status != domain.StatusFailedOther {
		t.Fatalf("status = %s", res.Status)
	}
	if repo.saves != 0 {
		t.Fatalf("uncommitted hour must not be checkpointed")
	}
}

func TestProcessHourHeals404(t *testing.T) {
	repo := newFakeRepo()
	idx := domain.NewDailyIndex()
	idx.MarkHourNotFound("2024-01-15-3")
	repo.indexes[dayKey(testDay)] = idx
	svc := newService(repo, newFakeFetcher(), someEvents(2))

	res, err := svc.ProcessHour(context.Background(), "2024-01-15-3", true)
	if err != nil || res.Status != domain.StatusSuccess {
		t.Fatalf("forced rerun = %s, %v", res.Status, err)
	}
	got := repo.indexes[dayKey(testDay)]
	if got.IsNotFound("2024-01-15-3") {
		t.Fatalf("404 record not healed")
	}
	if !got.IsProcessed("2024-01-15-3") {
		t.Fatalf("healed hour not processed")
	}
}

func TestProcessRangeConsolidatesCompleteDay(t *testing.T) {
	repo := newFakeRepo()
	fetch := newFakeFetcher()
	// hour 7 is permanently absent; the other 23 succeed
	fetch.errs["2024-01-15-7"] = perr.NotFoundf("gone")
	svc := newService(repo, fetch, someEvents(2))

	start := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 0}
	end := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 23}
	totals, err := svc.ProcessRange(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("ProcessRange: %v", err)
	}
	if totals.Hours != 24 || totals.Succeeded != 23 || totals.Failed404 != 1 {
		t.Fatalf("totals = %+v", totals)
	}

	idx := repo.indexes[dayKey(testDay)]
	if !idx.Complete() {
		t.Fatalf("day should be complete: %d known", idx.KnownHours())
	}
	if w := repo.writers[dayKey(testDay)]; w.consolidates != 1 {
		t.Fatalf("consolidated %d times, want 1", w.consolidates)
	}
}

func TestProcessRangeIncompleteDayNotConsolidated(t *testing.T) {
	repo := newFakeRepo()
	fetch := newFakeFetcher()
	// one transient failure keeps the day open
	fetch.errs["2024-01-15-7"] = perr.Unavailablef("flaky")
	svc := newService(repo, fetch, someEvents(1))

	start := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 0}
	end := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 23}
	if _, err := svc.ProcessRange(context.Background(), start, end, false); err != nil {
		t.Fatalf("ProcessRange: %v", err)
	}

	if w := repo.writers[dayKey(testDay)]; w.consolidates != 0 {
		t.Fatalf("incomplete day consolidated")
	}
	if repo.indexes[dayKey(testDay)].KnownHours() != 23 {
		t.Fatalf("known hours = %d, want 23", repo.indexes[dayKey(testDay)].KnownHours())
	}
}

func TestProcessRangeSkipsConsolidationWhenPartitionExists(t *testing.T) {
	repo := newFakeRepo()
	repo.partitions[dayKey(testDay)] = true
	idx := domain.NewDailyIndex()
	for h := 0; h < 24; h++ {
		idx.MarkHour(fmt.Sprintf("2024-01-15-%d", h), domain.HourStats{Total: 1, Distilled: 1})
	}
	repo.indexes[dayKey(testDay)] = idx
	svc := newService(repo, newFakeFetcher(), someEvents(1))

	start := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 0}
	end := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 23}
	totals, err := svc.ProcessRange(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("ProcessRange: %v", err)
	}
	if totals.Skipped != 24 {
		t.Fatalf("skipped = %d, want 24", totals.Skipped)
	}
	// never even asked for a writer
	if w := repo.writers[dayKey(testDay)]; w != nil && w.consolidates != 0 {
		t.Fatalf("existing partition reconsolidated")
	}
}

func TestProcessRangeCrossesDayBoundary(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, newFakeFetcher(), someEvents(1))

	// last two hours of day one, first hour of day two
	start := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 22}
	end := domain.HourStamp{Year: 2024, Month: 1, Day: 16, Hour: 0}
	totals, err := svc.ProcessRange(context.Background(), start, end, false)
	if err != nil {
		t.Fatalf("ProcessRange: %v", err)
	}
	if totals.Succeeded != 3 {
		t.Fatalf("totals = %+v", totals)
	}

	day2 := testDay.Add(24 * time.Hour)
	if repo.indexes[dayKey(testDay)].KnownHours() != 2 {
		t.Fatalf("day one hours = %d", repo.indexes[dayKey(testDay)].KnownHours())
	}
	if repo.indexes[dayKey(day2)].KnownHours() != 1 {
		t.Fatalf("day two hours = %d", repo.indexes[dayKey(day2)].KnownHours())
	}
	// neither day is complete; nothing consolidates
	for k, w := range repo.writers {
		if w.consolidates != 0 {
			t.Fatalf("incomplete day %s consolidated", k)
		}
	}
}

func TestProcessRangeEndBeforeStart(t *testing.T) {
	svc := newService(newFakeRepo(), newFakeFetcher(), nil)
	start := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 5}
	end := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 4}
	if _, err := svc.ProcessRange(context.Background(), start, end, false); !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
}

func TestProcessRangeSingleHour(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, newFakeFetcher(), someEvents(1))
	hs := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 5}
	totals, err := svc.ProcessRange(context.Background(), hs, hs, false)
	if err != nil {
		t.Fatalf("ProcessRange: %v", err)
	}
	if totals.Hours != 1 || totals.Succeeded != 1 {
		t.Fatalf("totals = %+v", totals)
	}
}

func TestProcessRangeHonorsCancellation(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, newFakeFetcher(), someEvents(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 0}
	end := domain.HourStamp{Year: 2024, Month: 1, Day: 15, Hour: 23}
	if _, err := svc.ProcessRange(ctx, start, end, false); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if repo.saves != 0 {
		t.Fatalf("cancelled run must not have processed hours")
	}
}

func TestFinalizeDays(t *testing.T) {
	repo := newFakeRepo()
	idx := domain.NewDailyIndex()
	for h := 0; h < 24; h++ {
		idx.MarkHour(fmt.Sprintf("2024-01-15-%d", h), domain.HourStats{Total: 1, Distilled: 1})
	}
	repo.indexes[dayKey(testDay)] = idx
	svc := newService(repo, newFakeFetcher(), nil)

	svc.FinalizeDays(context.Background(), []time.Time{testDay})
	if w := repo.writers[dayKey(testDay)]; w == nil || w.consolidates != 1 {
		t.Fatalf("complete day not consolidated via FinalizeDays")
	}
}

func TestFinalizeDaysAllNotFoundDay(t *testing.T) {
	repo := newFakeRepo()
	idx := domain.NewDailyIndex()
	for h := 0; h < 24; h++ {
		idx.MarkHourNotFound(fmt.Sprintf("2024-01-15-%d", h))
	}
	repo.indexes[dayKey(testDay)] = idx
	svc := newService(repo, newFakeFetcher(), nil)

	// complete but empty: there is nothing to consolidate
	svc.FinalizeDays(context.Background(), []time.Time{testDay})
	if w := repo.writers[dayKey(testDay)]; w != nil && w.consolidates != 0 {
		t.Fatalf("empty day consolidated")
	}
}

func TestNewPanicsOnNilDeps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on nil repo")
		}
	}()
	New(nil, newFakeFetcher(), &fakeReaderFactory{}, passDistiller{})
}
