package gharchive

import (
	"testing"
	"time"

	perr "ghdistill/internal/platform/errors"
)

func TestParseHourStampValid(t *testing.T) {
	cases := []struct {
		in   string
		want HourStamp
	}{
		{"2024-01-15-0", HourStamp{2024, 1, 15, 0}},
		{"2024-01-15-5", HourStamp{2024, 1, 15, 5}},
		{"2024-01-15-10", HourStamp{2024, 1, 15, 10}},
		{"2024-12-31-23", HourStamp{2024, 12, 31, 23}},
		{"2024-02-29-12", HourStamp{2024, 2, 29, 12}}, // leap day
		{"2000-01-01-0", HourStamp{2000, 1, 1, 0}},
		{"2100-12-31-23", HourStamp{2100, 12, 31, 23}},
	}
	for _, c := range cases {
		got, err := ParseHourStamp(c.in)
		if err != nil {
			t.Fatalf("ParseHourStamp(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseHourStamp(%q) = %+v, want %+v", c.in, got, c.want)
		}
		if got.String() != c.in {
			t.Fatalf("String() = %q, want roundtrip %q", got.String(), c.in)
		}
	}
}

func TestParseHourStampInvalid(t *testing.T) {
	cases := []string{
		"",
		"2024-01-15",       // missing hour
		"2024-01-15-05",    // zero-padded hour
		"2024-01-15-24",    // hour out of range
		"2024-1-15-5",      // month not padded
		"2024-01-5-5",      // day not padded
		"24-01-15-5",       // short year
		"2024-01-15-5-0",   // extra segment
		"2024-13-01-5",     // bad month
		"2024-02-30-5",     // bad calendar date
		"2023-02-29-5",     // not a leap year
		"1999-01-01-5",     // below year floor
		"2101-01-01-5",     // above year ceiling
		"2024-01-15-5x",    // trailing junk
		"2024-01-xx-5",     // non-digit
		"2024-01-15- 5",    // whitespace
		"2024-01-15-5.0",   // fractional
		"2024-01-15-055",   // hour too long
		"2024-01-15-+5",    // sign
		"hello-wo-rl-d",    // nonsense
		"2024_01_15_5",     // wrong separator
		"2024-01-15-05:00", // time suffix
	}
	for _, in := range cases {
		if _, err := ParseHourStamp(in); err == nil {
			t.Fatalf("ParseHourStamp(%q) accepted, want error", in)
		} else if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
			t.Fatalf("ParseHourStamp(%q) code = %v, want InvalidArgument", in, perr.CodeOf(err))
		}
	}
}

func TestHourStampTimes(t *testing.T) {
	hs := HourStamp{2024, 3, 10, 7}
	if got := hs.UTC(); !got.Equal(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("UTC() = %v", got)
	}
	if got := hs.DayStart(); !got.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("DayStart() = %v", got)
	}
}

func TestNewHourStampConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("plus2", 2*60*60)
	// 01:30 at +02:00 is 23:30 UTC the previous day
	local := time.Date(2024, 6, 2, 1, 30, 0, 0, loc)
	hs := NewHourStamp(local)
	if hs.String() != "2024-06-01-23" {
		t.Fatalf("NewHourStamp = %s, want 2024-06-01-23", hs)
	}
}
