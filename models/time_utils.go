package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KST is the exchange's local time. Korea does not observe DST.
var KST = time.FixedZone("KST", 9*60*60)

// IsWeekend reports whether t falls on Saturday or Sunday in KST.
func IsWeekend(t time.Time) bool {
	wd := t.In(KST).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsSleepTime reports the quiet hours when notifications are held back:
// Monday 00:00-07:00 and Tuesday to Friday 02:00-07:00 KST.
func IsSleepTime(t time.Time) bool {
	k := t.In(KST)
	hour := k.Hour()
	switch k.Weekday() {
	case time.Monday:
		return hour < 7
	case time.Tuesday, time.Wednesday, time.Thursday, time.Friday:
		return hour >= 2 && hour < 7
	default:
		return false
	}
}

// IsMarketOpen reports whether the Seoul FX market is in session (09:00-15:30 KST, weekdays).
func IsMarketOpen(t time.Time) bool {
	if IsWeekend(t) {
		return false
	}
	k := t.In(KST)
	minutes := k.Hour()*60 + k.Minute()
	return minutes >= 9*60 && minutes <= 15*60+30
}

const (
	// SummaryBlock is the length of the periodic market recap.
	SummaryBlock = 30 * time.Minute
	// SummaryGrace is how far from a block boundary the recap may still be sent.
	SummaryGrace = 2 * time.Minute
)

// CompletedBlock returns the half-hour block ending at the boundary nearest
// to t and whether t is within SummaryGrace of that boundary.
func CompletedBlock(t time.Time) (start, end time.Time, due bool) {
	k := t.In(KST)
	end = k.Add(SummaryBlock / 2).Truncate(SummaryBlock)
	diff := k.Sub(end)
	if diff < 0 {
		diff = -diff
	}
	return end.Add(-SummaryBlock), end, diff <= SummaryGrace
}

// IsScrapeTime reports whether the daily expected-range scrape is due:
// a weekday between 11:00 and 12:00 KST that has not been scraped yet.
func IsScrapeTime(t time.Time, lastScraped time.Time) bool {
	if IsWeekend(t) {
		return false
	}
	k := t.In(KST)
	if k.Hour() != 11 {
		return false
	}
	return lastScraped.IsZero() || !SameDay(lastScraped, k)
}

// SameDay compares calendar dates in KST.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(KST).Date()
	by, bm, bd := b.In(KST).Date()
	return ay == by && am == bm && ad == bd
}

// ClockTime is a daily wall-clock time in KST, e.g. a scheduled data release.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTimes parses a comma separated "HH:MM" list.
func ParseClockTimes(s string) ([]ClockTime, error) {
	var out []ClockTime
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hh, mm, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid clock time %q", part)
		}
		h, err := strconv.Atoi(hh)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid hour in %q", part)
		}
		m, err := strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid minute in %q", part)
		}
		out = append(out, ClockTime{Hour: h, Minute: m})
	}
	return out, nil
}

// NearEvent reports whether t is within window of any scheduled event on t's KST day.
func NearEvent(t time.Time, events []ClockTime, window time.Duration) bool {
	k := t.In(KST)
	y, mo, d := k.Date()
	for _, e := range events {
		at := time.Date(y, mo, d, e.Hour, e.Minute, 0, 0, KST)
		diff := k.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return true
		}
	}
	return false
}
