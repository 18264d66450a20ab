package domain

import (
	"sort"
	"time"
)

// MaxHistoryDays bounds the rolling statistics window. Inserting a day
// beyond the bound evicts the oldest day.
const MaxHistoryDays = 150

// DailyRecord is one day-bucketed entry of the rolling statistics
// tracker. Day is a calendar-day ordinal (days since the Unix epoch,
// UTC), so at most one record exists per ordinal.
type DailyRecord struct {
	Day           int
	MarginBalance float64
	Price         float64
	Rate          float64 // rate series used by the advisory moving averages
	Count         int     // samples merged into Rate; 0 for plain snapshots

	// Derived 24h/48h percentage deltas against the 1- and 2-day-prior
	// records. Nil (omitted, not zero) when the prior day is absent.
	Change24 *float64
	Change48 *float64
}

// DayOrdinal returns the calendar-day ordinal for t in UTC.
func DayOrdinal(t time.Time) int {
	return int(t.UTC().Unix() / 86400)
}

// History is the bounded, same-day-merging time series of daily records,
// kept ascending by day ordinal.
type History struct {
	days []DailyRecord
}

// NewHistory builds a History from persisted records in any order.
func NewHistory(records []DailyRecord) *History {
	h := &History{days: make([]DailyRecord, len(records))}
	copy(h.days, records)
	sort.Slice(h.days, func(i, j int) bool { return h.days[i].Day < h.days[j].Day })
	if len(h.days) > MaxHistoryDays {
		h.days = h.days[len(h.days)-MaxHistoryDays:]
	}
	return h
}

// Len returns the number of stored days.
func (h *History) Len() int {
	return len(h.days)
}

// Days returns a copy of the stored records, ascending by day.
func (h *History) Days() []DailyRecord {
	out := make([]DailyRecord, len(h.days))
	copy(out, h.days)
	return out
}

// Get returns the record for a day ordinal, if stored.
func (h *History) Get(day int) (DailyRecord, bool) {
	for i := len(h.days) - 1; i >= 0; i-- {
		if h.days[i].Day == day {
			return h.days[i], true
		}
		if h.days[i].Day < day {
			break
		}
	}
	return DailyRecord{}, false
}

// AddDay inserts or merges a record. A second write for an already
// stored day merges by count-weighted average of the rate when both
// records carry a count, and plain overwrite otherwise. Exceeding the
// window evicts exactly the oldest day.
func (h *History) AddDay(rec DailyRecord) {
	for i := range h.days {
		if h.days[i].Day != rec.Day {
			continue
		}
		if h.days[i].Count > 0 && rec.Count > 0 {
			prev := h.days[i]
			total := prev.Count + rec.Count
			rec.Rate = (prev.Rate*float64(prev.Count) + rec.Rate*float64(rec.Count)) / float64(total)
			rec.Count = total
		}
		h.days[i] = rec
		return
	}

	h.days = append(h.days, rec)
	sort.Slice(h.days, func(i, j int) bool { return h.days[i].Day < h.days[j].Day })
	if len(h.days) > MaxHistoryDays {
		h.days = h.days[1:]
	}
}

// CalculateDailyStatistics builds the snapshot record for day, deriving
// the 24h/48h percentage deltas from the 1- and 2-day-prior records when
// present.
func (h *History) CalculateDailyStatistics(day int, marginBalance, price float64) DailyRecord {
	rec := DailyRecord{
		Day:           day,
		MarginBalance: marginBalance,
		Price:         price,
	}
	if prev, ok := h.Get(day - 1); ok && prev.MarginBalance != 0 {
		d := (marginBalance - prev.MarginBalance) / prev.MarginBalance * 100
		rec.Change24 = &d
	}
	if prev, ok := h.Get(day - 2); ok && prev.MarginBalance != 0 {
		d := (marginBalance - prev.MarginBalance) / prev.MarginBalance * 100
		rec.Change48 = &d
	}
	return rec
}

// MovingAverage returns the average rate over the most recent n days.
// The second return is false when fewer than n days are stored.
func (h *History) MovingAverage(n int) (float64, bool) {
	if n <= 0 || len(h.days) < n {
		return 0, false
	}
	sum := 0.0
	for _, d := range h.days[len(h.days)-n:] {
		sum += d.Rate
	}
	return sum / float64(n), true
}
