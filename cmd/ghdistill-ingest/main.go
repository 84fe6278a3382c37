package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"ghdistill/internal/platform/config"
	"ghdistill/internal/platform/logger"
	"ghdistill/internal/services/ingest/domain"
	ingestmod "ghdistill/internal/services/ingest/module"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	var (
		fData  = flag.String("data", "", "dataset root directory (default data/dataset)")
		fStart = flag.String("start", "", "UTC start hour YYYY-MM-DD-H (inclusive)")
		fEnd   = flag.String("end", "", "UTC end hour YYYY-MM-DD-H (inclusive)")
		fHours = flag.String("hours", "", "comma separated list of hour stamps to process")
		fForce = flag.Bool("force", false, "reprocess hours already checkpointed")
		fInfo  = flag.Bool("info", false, "print dataset location, size and coverage, then exit")
		fReset = flag.Bool("reset", false, "delete the dataset after confirmation, then exit")
	)
	flag.Parse()

	l := logger.Get()

	// Surface -data to the module, which reads CORE_INGEST_* from config
	mustSetEnv("CORE_INGEST_DATA_DIR", *fData)
	root := config.New()

	mod, err := ingestmod.New(ingestmod.Deps{Cfg: root})
	if err != nil {
		l.Fatal().Err(err).Msg("ingest module init failed")
	}
	defer func() {
		if err := mod.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close ingest module")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRun(ctx, uuid.NewString())

	runner := mod.Ports().Runner

	switch {
	case *fReset:
		runReset(mod.DataDir(), l)
		return

	case *fInfo:
		runInfo(ctx, runner, l)
		return

	case *fHours != "":
		if *fStart != "" || *fEnd != "" {
			l.Panic().Msg("-hours is mutually exclusive with -start/-end")
		}
		runHours(ctx, runner, *fHours, *fForce)
		return

	default:
		if *fStart == "" || *fEnd == "" {
			l.Panic().Msg("must provide -start and -end, or -hours, or -info/-reset")
		}
		start, err := domain.ParseHourStamp(*fStart)
		if err != nil {
			l.Panic().Err(err).Msg("bad -start")
		}
		end, err := domain.ParseHourStamp(*fEnd)
		if err != nil {
			l.Panic().Err(err).Msg("bad -end")
		}
		totals, err := runner.ProcessRange(ctx, start, end, *fForce)
		logSummary(ctx, totals)
		if err != nil {
			l.Fatal().Err(err).Msg("ingest run failed")
		}
	}
}

// runHours processes an explicit list of stamps. Invalid stamps are warned
// about and dropped; duplicates collapse; processing order is chronological.
func runHours(ctx context.Context, runner domain.RunnerPort, list string, force bool) {
	log := logger.C(ctx)

	seen := map[string]domain.HourStamp{}
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		hs, err := domain.ParseHourStamp(raw)
		if err != nil {
			log.Warn().Str("stamp", raw).Err(err).Msg("skipping invalid hour stamp")
			continue
		}
		seen[hs.String()] = hs
	}
	if len(seen) == 0 {
		log.Panic().Msg("no valid hour stamps in -hours")
	}

	stamps := make([]domain.HourStamp, 0, len(seen))
	for _, hs := range seen {
		stamps = append(stamps, hs)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].UTC().Before(stamps[j].UTC()) })

	var totals domain.RangeTotals
	days := map[time.Time]struct{}{}
	for _, hs := range stamps {
		res, err := runner.ProcessHour(ctx, hs.String(), force)
		if err != nil {
			log.Fatal().Err(err).Str("hour", hs.String()).Msg("ingest run failed")
		}
		totals.Add(res)
		days[hs.DayStart()] = struct{}{}
	}

	ordered := make([]time.Time, 0, len(days))
	for d := range days {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })
	runner.FinalizeDays(ctx, ordered)

	logSummary(ctx, totals)
}

func runInfo(ctx context.Context, runner domain.RunnerPort, l *logger.Logger) {
	info, err := runner.DatasetInfo(ctx)
	if err != nil {
		l.Fatal().Err(err).Msg("dataset info failed")
	}
	fmt.Printf("dataset: %s\n", info.Path)
	fmt.Printf("size:    %.2f MB\n", info.SizeMB)
	if info.Summary == nil {
		fmt.Println("hours:   none ingested yet")
		return
	}
	s := info.Summary
	fmt.Printf("range:   %s .. %s\n", s.MinHour, s.MaxHour)
	fmt.Printf("hours:   %d of %d in range (%.1f%% coverage)\n", s.Found, s.Total, s.Pct)
}

// runReset deletes the dataset root after an interactive confirmation
func runReset(dataDir string, l *logger.Logger) {
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		fmt.Printf("nothing to reset: %s does not exist\n", dataDir)
		return
	}
	fmt.Printf("this will permanently delete %s. type 'yes' to confirm: ", dataDir)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "yes" {
		fmt.Println("aborted")
		return
	}
	if err := os.RemoveAll(dataDir); err != nil {
		l.Fatal().Err(err).Str("dir", dataDir).Msg("reset failed")
	}
	fmt.Printf("deleted %s\n", dataDir)
}

func logSummary(ctx context.Context, t domain.RangeTotals) {
	logger.C(ctx).Info().
		Int("hours", t.Hours).
		Int("succeeded", t.Succeeded).
		Int("skipped", t.Skipped).
		Int("failed_404", t.Failed404).
		Int("failed_other", t.FailedOth).
		Int("events_parsed", t.Parsed).
		Int("events_distilled", t.Distilled).
		Int("events_discarded", t.Discarded).
		Msg("ingest run summary")
}
