package clinic

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseDate accepts a YYYY-MM-DD date (UTC midnight), an RFC 3339 timestamp
// or a zone-less ISO timestamp (read as UTC).
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ComputeDaysSaved returns floor((current - candidate) / 24h). Positive means
// the candidate is earlier than the current appointment.
func ComputeDaysSaved(currentISODate string, candidate time.Time) (int, error) {
	current, err := ParseDate(currentISODate)
	if err != nil {
		return 0, err
	}
	ms := current.Sub(candidate).Milliseconds()
	return int(math.Floor(float64(ms) / float64(24*time.Hour/time.Millisecond))), nil
}

type RescheduleRecord struct {
	PatientID string `json:"patientId"`
	DaysSaved int    `json:"daysSaved"`
	Date      string `json:"date"`
}

// RescheduleHistory is the session-scoped log of appointment moves. It is
// never sent to the backend. Zero-day moves are not recorded.
type RescheduleHistory struct {
	mu      sync.Mutex
	records []RescheduleRecord
}

func NewRescheduleHistory(records ...RescheduleRecord) *RescheduleHistory {
	h := &RescheduleHistory{}
	for _, r := range records {
		h.Append(r)
	}
	return h
}

// Append records r and reports whether it was kept.
func (h *RescheduleHistory) Append(r RescheduleRecord) bool {
	if r.DaysSaved == 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return true
}

func (h *RescheduleHistory) Records() []RescheduleRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RescheduleRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *RescheduleHistory) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, r := range h.records {
		total += r.DaysSaved
	}
	return total
}
