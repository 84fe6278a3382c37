package domain

import "sort"

// HourStats are the per-hour counters checkpointed for a successful hour
type HourStats struct {
	Total     int `json:"total"`
	Distilled int `json:"distilled"`
	Bad       int `json:"bad"`
}

// DailyIndex is the durable checkpoint for one UTC calendar day.
// A day is complete when every one of its 24 hours has a terminal outcome,
// success or permanent absence. The two sets are disjoint at all times.
type DailyIndex struct {
	HoursProcessed map[string]HourStats `json:"hours_processed"`
	HoursNotFound  []string             `json:"hours_not_found"`
	DailyCounts    map[string]int       `json:"daily_counts,omitempty"`
}

// NewDailyIndex returns an empty index
func NewDailyIndex() *DailyIndex {
	return &DailyIndex{
		HoursProcessed: map[string]HourStats{},
		HoursNotFound:  []string{},
	}
}

// Normalize repairs nil maps after JSON decoding and re-sorts the not-found set
func (x *DailyIndex) Normalize() {
	if x.HoursProcessed == nil {
		x.HoursProcessed = map[string]HourStats{}
	}
	if x.HoursNotFound == nil {
		x.HoursNotFound = []string{}
	}
	sort.Strings(x.HoursNotFound)
}

// MarkHour records a successful hour, overwriting any previous entry.
// If the hour was previously recorded as not found, the 404 record is
// healed: the stamp is removed from the not-found set.
func (x *DailyIndex) MarkHour(stamp string, stats HourStats) {
	x.HoursProcessed[stamp] = stats
	if i := x.notFoundIndex(stamp); i >= 0 {
		x.HoursNotFound = append(x.HoursNotFound[:i], x.HoursNotFound[i+1:]...)
	}
}

// MarkHourNotFound records a permanently absent hour; idempotent.
// The mirror of MarkHour: any previous success entry for the stamp is
// removed so the two sets stay disjoint (a forced rerun can observe a 404
// for an hour that once succeeded).
func (x *DailyIndex) MarkHourNotFound(stamp string) {
	delete(x.HoursProcessed, stamp)
	if x.notFoundIndex(stamp) >= 0 {
		return
	}
	x.HoursNotFound = append(x.HoursNotFound, stamp)
	sort.Strings(x.HoursNotFound)
}

// IsProcessed reports whether the hour succeeded in a previous run
func (x *DailyIndex) IsProcessed(stamp string) bool {
	_, ok := x.HoursProcessed[stamp]
	return ok
}

// IsNotFound reports whether the hour is recorded as permanently absent
func (x *DailyIndex) IsNotFound(stamp string) bool {
	return x.notFoundIndex(stamp) >= 0
}

// AddCounts accumulates per-activity counters into the daily aggregate
func (x *DailyIndex) AddCounts(counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	if x.DailyCounts == nil {
		x.DailyCounts = map[string]int{}
	}
	for k, v := range counts {
		x.DailyCounts[k] += v
	}
}

// KnownHours is the number of hours with a terminal outcome
func (x *DailyIndex) KnownHours() int {
	return len(x.HoursProcessed) + len(x.HoursNotFound)
}

// Complete reports whether all 24 hours of the day have a terminal outcome
func (x *DailyIndex) Complete() bool { return x.KnownHours() == 24 }

func (x *DailyIndex) notFoundIndex(stamp string) int {
	i := sort.SearchStrings(x.HoursNotFound, stamp)
	if i < len(x.HoursNotFound) && x.HoursNotFound[i] == stamp {
		return i
	}
	return -1
}
