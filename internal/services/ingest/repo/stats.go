package repo

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ghdistill/internal/adapters/gharchive"
	"ghdistill/internal/services/ingest/domain"
)

// Stats walks the dataset and summarizes size and hour coverage.
// Coverage is computed over the span between the earliest and latest
// processed hour found in any day index.
func (r *FS) Stats() (domain.DatasetInfo, error) {
	abs, err := filepath.Abs(r.base)
	if err != nil {
		abs = r.base
	}
	info := domain.DatasetInfo{Path: abs}

	if _, err := os.Stat(r.base); err != nil {
		return info, nil
	}

	var totalBytes int64
	var hours []time.Time

	walkErr := filepath.WalkDir(r.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries don't abort the summary
		}
		if d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			totalBytes += fi.Size()
		}
		if d.Name() != "index.json" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var idx domain.DailyIndex
		if err := json.Unmarshal(b, &idx); err != nil {
			return nil
		}
		for stamp := range idx.HoursProcessed {
			if hs, err := gharchive.ParseHourStamp(stamp); err == nil {
				hours = append(hours, hs.UTC())
			}
		}
		return nil
	})
	if walkErr != nil {
		return info, walkErr
	}

	info.SizeMB = float64(totalBytes) / (1024 * 1024)
	if len(hours) == 0 {
		return info, nil
	}

	minH, maxH := hours[0], hours[0]
	for _, h := range hours[1:] {
		if h.Before(minH) {
			minH = h
		}
		if h.After(maxH) {
			maxH = h
		}
	}
	total := int(maxH.Sub(minH).Hours()) + 1
	pct := 0.0
	if total > 0 {
		pct = float64(len(hours)) / float64(total) * 100
	}
	info.Summary = &domain.CoverageSummary{
		MinHour: gharchive.NewHourStamp(minH).String(),
		MaxHour: gharchive.NewHourStamp(maxH).String(),
		Found:   len(hours),
		Total:   total,
		Pct:     pct,
	}
	return info, nil
}
