package gharchive

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	perr "ghdistill/internal/platform/errors"
)

// Sane bounds for archive hours; anything outside is a caller mistake,
// not a fetchable hour.
const (
	minYear = 2000
	maxYear = 2100
)

// HourStamp identifies one GH Archive hour (UTC).
// Its string form "YYYY-MM-DD-H" (hour not zero-padded) is the archive URL
// suffix, the daily index key, and the unit of idempotent work.
type HourStamp struct {
	Year  int
	Month int
	Day   int
	Hour  int
}

// NewHourStamp creates an HourStamp from a time.Time, converting to UTC
func NewHourStamp(t time.Time) HourStamp {
	ut := t.UTC()
	return HourStamp{Year: ut.Year(), Month: int(ut.Month()), Day: ut.Day(), Hour: ut.Hour()}
}

// ParseHourStamp parses "YYYY-MM-DD-H". The hour must not be zero-padded:
// "2024-01-01-05" is rejected while "2024-01-01-5" is accepted, matching the
// archive's file naming. Returns an InvalidArgument error on any violation.
func ParseHourStamp(s string) (HourStamp, error) {
	bad := func() (HourStamp, error) {
		return HourStamp{}, perr.InvalidArgf("malformed hour stamp %q (want YYYY-MM-DD-H)", s)
	}
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return bad()
	}
	if len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return bad()
	}
	hp := parts[3]
	if len(hp) < 1 || len(hp) > 2 || (len(hp) == 2 && hp[0] == '0') {
		return bad()
	}
	for _, p := range parts {
		for i := 0; i < len(p); i++ {
			if p[i] < '0' || p[i] > '9' {
				return bad()
			}
		}
	}
	y, _ := strconv.Atoi(parts[0])
	mo, _ := strconv.Atoi(parts[1])
	d, _ := strconv.Atoi(parts[2])
	h, _ := strconv.Atoi(hp)

	if y < minYear || y > maxYear {
		return HourStamp{}, perr.InvalidArgf("hour stamp %q outside supported year range %d..%d", s, minYear, maxYear)
	}
	if h > 23 {
		return HourStamp{}, perr.InvalidArgf("hour stamp %q has invalid hour %d", s, h)
	}
	t := time.Date(y, time.Month(mo), d, h, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return HourStamp{}, perr.InvalidArgf("hour stamp %q is not a valid calendar date", s)
	}
	return HourStamp{Year: y, Month: mo, Day: d, Hour: h}, nil
}

// String returns the archive naming form: YYYY-MM-DD-H
func (h HourStamp) String() string {
	return fmtStamp(h.Year, h.Month, h.Day, h.Hour)
}

// UTC returns the UTC time at the start of the hour
func (h HourStamp) UTC() time.Time {
	return time.Date(h.Year, time.Month(h.Month), h.Day, h.Hour, 0, 0, 0, time.UTC)
}

// DayStart returns UTC midnight of the stamp's calendar day
func (h HourStamp) DayStart() time.Time {
	return time.Date(h.Year, time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
}

func fmtStamp(y, mo, d, h int) string {
	return fmt.Sprintf("%04d-%02d-%02d-%d", y, mo, d, h)
}
