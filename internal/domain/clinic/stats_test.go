package clinic

import (
	"math"
	"testing"
	"time"
)

func TestComputeDaysSaved(t *testing.T) {
	tests := []struct {
		current   string
		candidate time.Time
		want      int
	}{
		{"2024-01-20", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 5},
		{"2024-01-10", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), -5},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 0},
		// partial days floor toward negative infinity
		{"2024-01-15", time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC), 0},
		{"2024-01-15", time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), -1},
		{"2024-01-20T00:00:00Z", time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC), 2},
	}
	for _, tt := range tests {
		got, err := ComputeDaysSaved(tt.current, tt.candidate)
		if err != nil {
			t.Fatalf("ComputeDaysSaved(%q): %v", tt.current, err)
		}
		if got != tt.want {
			t.Errorf("ComputeDaysSaved(%q, %s) = %d, want %d", tt.current, tt.candidate.Format(time.RFC3339), got, tt.want)
		}
	}
}

func TestComputeDaysSaved_BadDate(t *testing.T) {
	if _, err := ComputeDaysSaved("next tuesday", time.Now()); err == nil {
		t.Error("expected error for unparsable date")
	}
}

func TestRescheduleHistory(t *testing.T) {
	h := NewRescheduleHistory(
		RescheduleRecord{PatientID: "PT-001", DaysSaved: 5},
		RescheduleRecord{PatientID: "PT-002", DaysSaved: 0},
	)
	if len(h.Records()) != 1 {
		t.Fatalf("zero record must be dropped, got %d records", len(h.Records()))
	}
	if h.Append(RescheduleRecord{PatientID: "PT-003", DaysSaved: 0}) {
		t.Error("Append should refuse a zero-day record")
	}
	if h.Total() != 5 {
		t.Errorf("total = %d, want 5", h.Total())
	}
	if !h.Append(RescheduleRecord{PatientID: "PT-003", DaysSaved: -3}) {
		t.Error("negative records are kept")
	}
	if h.Total() != 2 {
		t.Errorf("total = %d, want 2", h.Total())
	}
}

func TestComputeStats_Empty(t *testing.T) {
	got := ComputeStats(Snapshot{}, nil)
	if got != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", got)
	}
}

func TestComputeStats(t *testing.T) {
	assessed := func(confirmed bool) Scan {
		return Scan{DoctorAssessment: &Assessment{Notes: "n", Confirmed: confirmed}}
	}
	snap := Snapshot{Patients: []Patient{
		{ID: "a", Scans: []Scan{assessed(true), assessed(false), {}}},
		{ID: "b", Scans: []Scan{assessed(true)}},
		{ID: "c"},
	}}
	history := []RescheduleRecord{{DaysSaved: 5}, {DaysSaved: -2}}

	got := ComputeStats(snap, history)
	want := Stats{TotalPatients: 3, TotalDaysSaved: 3, AssessmentAccuracy: 66.7, TotalAssessments: 3, CorrectAssessments: 2}
	if got != want {
		t.Errorf("ComputeStats = %+v, want %+v", got, want)
	}
}

func TestComputeStats_AccuracyBounds(t *testing.T) {
	for total := 1; total <= 12; total++ {
		for correct := 0; correct <= total; correct++ {
			var scans []Scan
			for i := 0; i < total; i++ {
				scans = append(scans, Scan{DoctorAssessment: &Assessment{Confirmed: i < correct}})
			}
			st := ComputeStats(Snapshot{Patients: []Patient{{ID: "p", Scans: scans}}}, nil)
			if st.AssessmentAccuracy < 0 || st.AssessmentAccuracy > 100 {
				t.Fatalf("accuracy %v out of range", st.AssessmentAccuracy)
			}
			want := math.Round(float64(correct)/float64(total)*100*10) / 10
			if st.AssessmentAccuracy != want {
				t.Errorf("%d/%d: accuracy = %v, want %v", correct, total, st.AssessmentAccuracy, want)
			}
		}
	}
}

func TestSnapshotSearch(t *testing.T) {
	snap := Snapshot{Patients: []Patient{
		{ID: "PT-001", Name: "Ada Lovelace"},
		{ID: "PT-002", Name: "Alan Turing"},
	}}
	if got := snap.Search("ada"); len(got) != 1 || got[0].ID != "PT-001" {
		t.Errorf("name search: %+v", got)
	}
	if got := snap.Search("pt-002"); len(got) != 1 || got[0].ID != "PT-002" {
		t.Errorf("id search: %+v", got)
	}
	if got := snap.Search(""); len(got) != 2 {
		t.Errorf("empty search should match all, got %d", len(got))
	}
}
