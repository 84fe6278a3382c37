package repo

import (
	"fmt"
	"path/filepath"
	"time"
)

// Paths resolves the on-disk locations for one calendar day.
//
// Working layout:   <base>/YYYY/MM/DD/{events.jsonl,index.json}
// Final partition:  <base>/anno=YYYY/mese=MM/giorno=DD/events.parquet
// The partition naming is the hive-style scheme downstream readers glob.
type Paths struct {
	Base string
	Day  time.Time
}

// DayDir is the working directory for the day
func (p Paths) DayDir() string {
	return filepath.Join(p.Base, p.Day.UTC().Format("2006/01/02"))
}

// EventsPath is the day's intermediate append-only store
func (p Paths) EventsPath() string {
	return filepath.Join(p.DayDir(), "events.jsonl")
}

// IndexPath is the day's durable checkpoint file
func (p Paths) IndexPath() string {
	return filepath.Join(p.DayDir(), "index.json")
}

// PartitionDir is the day's final columnar partition directory
func (p Paths) PartitionDir() string {
	d := p.Day.UTC()
	return filepath.Join(
		p.Base,
		fmt.Sprintf("anno=%04d", d.Year()),
		fmt.Sprintf("mese=%02d", int(d.Month())),
		fmt.Sprintf("giorno=%02d", d.Day()),
	)
}

// PartitionFile is the consolidated parquet file inside the partition
func (p Paths) PartitionFile() string {
	return filepath.Join(p.PartitionDir(), "events.parquet")
}

// dayKey keys the per-run writer pool
func dayKey(day time.Time) string { return day.UTC().Format("2006-01-02") }
