package clinic

import (
	"regexp"
	"strings"
	"time"

	"github.com/octscan/octscan/internal/platform/gateway"
)

// UnknownDoctor is the assessor recorded when the backend has none.
const UnknownDoctor = "Unknown Doctor"

var nonWord = regexp.MustCompile(`\W`)

// dateOnly keeps the date part of an ISO timestamp.
func dateOnly(s string) string {
	d, _, _ := strings.Cut(strings.TrimSpace(s), "T")
	return d
}

func today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}

func PatientFromRecord(rec gateway.PatientRecord) Patient {
	p := Patient{
		ID:     rec.ID,
		Name:   rec.Name,
		Age:    rec.Age,
		Gender: rec.Gender,
		Scans:  []Scan{},
	}
	if rec.CurrentAppointment != nil {
		p.CurrentAppointment = dateOnly(*rec.CurrentAppointment)
	}
	return p
}

func PatientToRecord(in PatientInput) gateway.PatientRecord {
	rec := gateway.PatientRecord{
		ID:     in.ID,
		Name:   in.Name,
		Age:    in.Age,
		Gender: in.Gender,
	}
	if in.CurrentAppointment != "" {
		appt := in.CurrentAppointment
		rec.CurrentAppointment = &appt
	}
	return rec
}

// ScanFromRecord folds the flat backend scan into a Scan. The assessment is
// rebuilt only when doctor_notes is non-empty; now supplies the date
// defaults.
func ScanFromRecord(rec gateway.ScanRecord, now time.Time) Scan {
	s := Scan{
		ID:         rec.ID,
		PatientID:  rec.PatientID,
		ImageURL:   rec.ImageURL,
		UploadDate: dateOnly(rec.UploadDate),
		Prediction: Prediction{
			Condition:  rec.PredictionCondition,
			Confidence: rec.PredictionConfidence,
		},
	}
	if s.ID == "" {
		s.ID = nonWord.ReplaceAllString(rec.PatientID+"_"+rec.ImageURL+"_"+rec.UploadDate, "")
	}
	if s.UploadDate == "" {
		s.UploadDate = today(now)
	}

	if rec.DoctorNotes != nil && *rec.DoctorNotes != "" {
		a := &Assessment{
			Notes:        *rec.DoctorNotes,
			AssessedBy:   UnknownDoctor,
			AssessedDate: today(now),
		}
		if rec.DoctorConfirmed != nil {
			a.Confirmed = *rec.DoctorConfirmed
		}
		if rec.DoctorCorrectedDiagnosis != nil {
			a.CorrectedDiagnosis = *rec.DoctorCorrectedDiagnosis
		}
		if rec.AssessedBy != nil && *rec.AssessedBy != "" {
			a.AssessedBy = *rec.AssessedBy
		}
		if rec.AssessedDate != nil && *rec.AssessedDate != "" {
			a.AssessedDate = dateOnly(*rec.AssessedDate)
		}
		s.DoctorAssessment = a
	}
	return s
}

// ScanToRecord flattens a Scan for PUT /scans/{id}. Assessment fields are
// omitted when there is no assessment.
func ScanToRecord(s Scan) gateway.ScanRecord {
	rec := gateway.ScanRecord{
		ID:                   s.ID,
		PatientID:            s.PatientID,
		ImageURL:             s.ImageURL,
		UploadDate:           s.UploadDate,
		PredictionCondition:  s.Prediction.Condition,
		PredictionConfidence: s.Prediction.Confidence,
	}
	if a := s.DoctorAssessment; a != nil {
		notes, confirmed, by, date := a.Notes, a.Confirmed, a.AssessedBy, a.AssessedDate
		rec.DoctorNotes = &notes
		rec.DoctorConfirmed = &confirmed
		rec.AssessedBy = &by
		rec.AssessedDate = &date
		if a.CorrectedDiagnosis != "" {
			corrected := a.CorrectedDiagnosis
			rec.DoctorCorrectedDiagnosis = &corrected
		}
	}
	return rec
}

// newScanRecord builds the record persisted after an inference: the
// prediction plus default, empty assessment fields.
func newScanRecord(patientID string, pred gateway.PredictionResult, now time.Time) gateway.ScanRecord {
	stamp := now.UTC().Format(time.RFC3339)
	uploaded := pred.UploadDate
	if uploaded == "" {
		uploaded = stamp
	}
	empty, confirmed, by := "", false, UnknownDoctor
	corrected := ""
	return gateway.ScanRecord{
		PatientID:                patientID,
		ImageURL:                 pred.ImageURL,
		UploadDate:               uploaded,
		PredictionCondition:      pred.PredictedClass,
		PredictionConfidence:     pred.PredictedProbability,
		DoctorNotes:              &empty,
		DoctorConfirmed:          &confirmed,
		DoctorCorrectedDiagnosis: &corrected,
		AssessedBy:               &by,
		AssessedDate:             &stamp,
	}
}
