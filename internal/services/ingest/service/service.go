// Package service provides the ingestion orchestrator
package service

import (
	"context"
	"io"
	"time"

	perr "ghdistill/internal/platform/errors"
	"ghdistill/internal/platform/logger"
	"ghdistill/internal/services/ingest/domain"
)

// Service implements domain.RunnerPort.
//
// Processing is sequential hour by hour. Operational failures (permanent
// absence, transient network errors) become status values, never error
// returns; only caller mistakes and checkpoint-write failures surface as
// errors.
type Service struct {
	Repo    domain.IndexRepo
	Fetch   domain.Fetcher
	Reader  domain.ReaderFactory
	Distill domain.Distiller
}

// New constructs the ingestion service
func New(repo domain.IndexRepo, f domain.Fetcher, rf domain.ReaderFactory, d domain.Distiller) *Service {
	if repo == nil {
		panic("ingest.Service requires a non nil IndexRepo")
	}
	if f == nil {
		panic("ingest.Service requires a non nil Fetcher")
	}
	if rf == nil {
		panic("ingest.Service requires a non nil ReaderFactory")
	}
	if d == nil {
		panic("ingest.Service requires a non nil Distiller")
	}
	return &Service{Repo: repo, Fetch: f, Reader: rf, Distill: d}
}

// ProcessHour runs the fetch-distill-append sequence for one hour.
// Already-checkpointed hours are skipped without I/O unless force is set.
func (s *Service) ProcessHour(ctx context.Context, stamp string, force bool) (domain.HourResult, error) {
	hs, err := domain.ParseHourStamp(stamp)
	if err != nil {
		return domain.HourResult{}, err
	}
	return s.processHour(ctx, hs, force)
}

func (s *Service) processHour(ctx context.Context, hs domain.HourStamp, force bool) (domain.HourResult, error) {
	stamp := hs.String()
	ctx = logger.WithHour(ctx, stamp)
	log := logger.C(ctx)
	day := hs.DayStart()

	idx, err := s.Repo.GetByDay(day)
	if err != nil {
		return domain.HourResult{}, err
	}
	if idx.IsProcessed(stamp) && !force {
		log.Info().Msg("ingest: hour already processed, skipping")
		return domain.HourResult{Status: domain.StatusSkippedProcessed}, nil
	}
	if idx.IsNotFound(stamp) && !force {
		log.Info().Msg("ingest: hour already marked 404, skipping")
		return domain.HourResult{Status: domain.StatusSkipped404}, nil
	}

	w, err := s.Repo.WriterFor(day)
	if err != nil {
		return domain.HourResult{}, err
	}

	res, counts, runErr := s.streamHour(ctx, hs, w)
	if runErr == nil {
		if err := w.CloseOK(); err != nil {
			// the staged hour failed to reach the intermediate store; the
			// checkpoint must not claim it
			log.Error().Err(err).Msg("ingest: failed to commit staged hour")
			w.CloseAbort()
			res.Status = domain.StatusFailedOther
			return res, nil
		}
		idx.MarkHour(stamp, domain.HourStats{Total: res.Parsed, Distilled: res.Distilled, Bad: res.Discarded})
		idx.AddCounts(counts)
		if err := s.Repo.Save(day, idx); err != nil {
			return domain.HourResult{}, err
		}
		log.Info().
			Int("total", res.Parsed).
			Int("distilled", res.Distilled).
			Int("bad", res.Discarded).
			Msg("ingest: hour completed")
		res.Status = domain.StatusSuccess
		return res, nil
	}

	w.CloseAbort()

	if perr.IsCode(runErr, perr.ErrorCodeNotFound) {
		log.Warn().Msg("ingest: hour archive not found (404)")
		idx.MarkHourNotFound(stamp)
		if err := s.Repo.Save(day, idx); err != nil {
			return domain.HourResult{}, err
		}
		return domain.HourResult{Status: domain.StatusFailed404}, nil
	}

	// transient: deliberately not checkpointed so a future run retries
	log.Error().Err(runErr).Msg("ingest: source error")
	res.Status = domain.StatusFailedOther
	return res, nil
}

// streamHour fetches, decodes and distills one hour, staging writes on w.
// It returns partial counts along with any classified error.
func (s *Service) streamHour(
	ctx context.Context,
	hs domain.HourStamp,
	w domain.DayWriter,
) (domain.HourResult, map[string]int, error) {
	var res domain.HourResult
	counts := map[string]int{}

	rc, err := s.Fetch.Fetch(ctx, hs)
	if err != nil {
		return res, counts, err
	}

	rd, err := s.Reader.New(rc)
	if err != nil {
		// could not even read the gzip header; retryable on a later run
		return res, counts, perr.Wrap(err, perr.ErrorCodeUnavailable, "ingest: open stream")
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil {
			logger.C(ctx).Warn().Err(cerr).Msg("ingest: error closing stream")
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return res, counts, perr.Wrap(err, perr.ErrorCodeUnavailable, "ingest: cancelled")
		}
		env, err := rd.Next()
		if err == io.EOF {
			// malformed lines never surface from Next; count them as
			// seen-and-discarded like any other unusable event
			_, malformed, _ := rd.Stats()
			res.Parsed += malformed
			res.Discarded += malformed
			break
		}
		if err != nil {
			// truncated gzip, mid-stream network drop, oversized line
			return res, counts, perr.Wrap(err, perr.ErrorCodeUnavailable, "ingest: stream error")
		}
		res.Parsed++

		ev, ok := s.Distill.Distill(env)
		if !ok {
			res.Discarded++
			continue
		}
		if err := w.WriteEvent(ev); err != nil {
			return res, counts, perr.Wrap(err, perr.ErrorCodeIO, "ingest: stage record")
		}
		res.Distilled++
		counts[ev.Activity]++
	}
	return res, counts, nil
}

// ProcessRange iterates hour by hour from start to end inclusive. Whenever
// the walk crosses into a new calendar day the finished day is checked for
// consolidation; the last day touched is checked after the walk.
func (s *Service) ProcessRange(ctx context.Context, start, end domain.HourStamp, force bool) (domain.RangeTotals, error) {
	var totals domain.RangeTotals
	from, to := start.UTC(), end.UTC()
	if to.Before(from) {
		return totals, perr.InvalidArgf("range end %s before start %s", end, start)
	}

	var prevDay time.Time
	for cur := from; !cur.After(to); cur = cur.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return totals, err
		}
		day := cur.Truncate(24 * time.Hour)
		if !prevDay.IsZero() && !day.Equal(prevDay) {
			s.maybeConsolidate(ctx, prevDay)
		}

		res, err := s.processHour(ctx, domain.NewHourStamp(cur), force)
		if err != nil {
			return totals, err
		}
		totals.Add(res)
		prevDay = day
	}
	if !prevDay.IsZero() {
		s.maybeConsolidate(ctx, prevDay)
	}
	return totals, nil
}

// FinalizeDays runs the day-completion check for an explicit list of days,
// used when individual hours rather than a range were requested
func (s *Service) FinalizeDays(ctx context.Context, days []time.Time) {
	for _, day := range days {
		s.maybeConsolidate(ctx, day)
	}
}

// maybeConsolidate consolidates the day iff every hour has a terminal
// outcome and the final partition does not exist yet. Failures are logged,
// not escalated: consolidation re-arms on the next run.
func (s *Service) maybeConsolidate(ctx context.Context, day time.Time) {
	log := logger.C(ctx).With().Str("day", day.UTC().Format("2006-01-02")).Logger()

	if s.Repo.PartitionExists(day) {
		log.Debug().Msg("ingest: day already consolidated")
		return
	}
	idx, err := s.Repo.GetByDay(day)
	if err != nil {
		log.Warn().Err(err).Msg("ingest: consolidation check skipped")
		return
	}
	if !idx.Complete() {
		log.Info().Int("known", idx.KnownHours()).Msg("ingest: day incomplete, consolidation deferred")
		return
	}
	if len(idx.HoursProcessed) == 0 {
		log.Info().Msg("ingest: day complete but empty, nothing to consolidate")
		return
	}
	w, err := s.Repo.WriterFor(day)
	if err != nil {
		log.Warn().Err(err).Msg("ingest: consolidation skipped")
		return
	}
	log.Info().Msg("ingest: day complete, consolidating storage")
	if err := w.Consolidate(); err != nil {
		log.Error().Err(err).Msg("ingest: consolidation failed")
	}
}

// DatasetInfo reports the dataset path, size and hour coverage
func (s *Service) DatasetInfo(_ context.Context) (domain.DatasetInfo, error) {
	return s.Repo.Stats()
}
