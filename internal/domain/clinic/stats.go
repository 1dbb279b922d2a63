package clinic

import "math"

type Stats struct {
	TotalPatients      int     `json:"totalPatients"`
	TotalDaysSaved     int     `json:"totalDaysSaved"`
	AssessmentAccuracy float64 `json:"assessmentAccuracy"`
	TotalAssessments   int     `json:"totalAssessments"`
	CorrectAssessments int     `json:"correctAssessments"`
}

// roundFloat rounds a float64 to a specified number of decimal places.
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// ComputeStats derives the dashboard figures from a snapshot and the
// reschedule history. It is recomputed in full on every call.
func ComputeStats(snap Snapshot, history []RescheduleRecord) Stats {
	st := Stats{TotalPatients: len(snap.Patients)}

	for _, r := range history {
		st.TotalDaysSaved += r.DaysSaved
	}

	for _, p := range snap.Patients {
		for _, sc := range p.Scans {
			if sc.DoctorAssessment == nil {
				continue
			}
			st.TotalAssessments++
			if sc.DoctorAssessment.Confirmed {
				st.CorrectAssessments++
			}
		}
	}

	if st.TotalAssessments > 0 {
		st.AssessmentAccuracy = roundFloat(float64(st.CorrectAssessments)/float64(st.TotalAssessments)*100, 1)
	}
	return st
}
