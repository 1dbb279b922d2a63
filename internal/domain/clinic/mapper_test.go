package clinic

import (
	"testing"
	"time"

	"github.com/octscan/octscan/internal/platform/gateway"
)

func TestPatientFromRecord(t *testing.T) {
	p := PatientFromRecord(gateway.PatientRecord{ID: "PT-001", Name: "Ada", Age: 36, Gender: "female", CurrentAppointment: strPtr("2024-02-10T14:30:00")})
	if p.CurrentAppointment != "2024-02-10" {
		t.Errorf("expected date part only, got %q", p.CurrentAppointment)
	}
	if p.Scans == nil || len(p.Scans) != 0 {
		t.Error("expected empty, non-nil scan list")
	}

	p = PatientFromRecord(gateway.PatientRecord{ID: "PT-002"})
	if p.CurrentAppointment != "" {
		t.Errorf("null appointment should map to empty, got %q", p.CurrentAppointment)
	}
}

func TestPatientToRecord(t *testing.T) {
	rec := PatientToRecord(PatientInput{ID: "PT-001", Name: "Ada", Age: 36, Gender: "female"})
	if rec.CurrentAppointment != nil {
		t.Error("empty appointment should be sent as null")
	}
	rec = PatientToRecord(PatientInput{ID: "PT-001", CurrentAppointment: "2024-02-10"})
	if rec.CurrentAppointment == nil || *rec.CurrentAppointment != "2024-02-10" {
		t.Error("appointment not carried")
	}
}

func TestScanFromRecord_Defaults(t *testing.T) {
	now := time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC)
	tests := []struct {
		name  string
		rec   gateway.ScanRecord
		check func(t *testing.T, s Scan)
	}{
		{
			name: "synthesised id strips non-word characters",
			rec:  gateway.ScanRecord{PatientID: "PT-001", ImageURL: "uploads/a b.png", UploadDate: "2024-01-02T08:00:00"},
			check: func(t *testing.T, s Scan) {
				if s.ID != "PT001_uploadsabpng_20240102T080000" {
					t.Errorf("id = %q", s.ID)
				}
			},
		},
		{
			name: "upload date defaults to today",
			rec:  gateway.ScanRecord{ID: "s1"},
			check: func(t *testing.T, s Scan) {
				if s.UploadDate != "2024-03-05" {
					t.Errorf("uploadDate = %q", s.UploadDate)
				}
			},
		},
		{
			name: "no notes means no assessment",
			rec:  gateway.ScanRecord{ID: "s1", DoctorNotes: strPtr(""), DoctorConfirmed: boolPtr(true), AssessedBy: strPtr("dr")},
			check: func(t *testing.T, s Scan) {
				if s.DoctorAssessment != nil {
					t.Error("expected nil assessment")
				}
			},
		},
		{
			name: "assessment defaults",
			rec:  gateway.ScanRecord{ID: "s1", DoctorNotes: strPtr("hm")},
			check: func(t *testing.T, s Scan) {
				a := s.DoctorAssessment
				if a == nil {
					t.Fatal("expected assessment")
				}
				if a.Confirmed || a.CorrectedDiagnosis != "" || a.AssessedBy != UnknownDoctor || a.AssessedDate != "2024-03-05" {
					t.Errorf("unexpected defaults: %+v", a)
				}
			},
		},
		{
			name: "assessment fields carried",
			rec: gateway.ScanRecord{
				ID: "s1", DoctorNotes: strPtr("hm"), DoctorConfirmed: boolPtr(false),
				DoctorCorrectedDiagnosis: strPtr("Drusen"), AssessedBy: strPtr("drwho"), AssessedDate: strPtr("2024-02-01T10:00:00Z"),
			},
			check: func(t *testing.T, s Scan) {
				a := s.DoctorAssessment
				if a.CorrectedDiagnosis != "Drusen" || a.AssessedBy != "drwho" || a.AssessedDate != "2024-02-01" {
					t.Errorf("unexpected assessment: %+v", a)
				}
			},
		},
		{
			name: "prediction folded",
			rec:  gateway.ScanRecord{ID: "s1", PredictionCondition: "Normal", PredictionConfidence: 0.42},
			check: func(t *testing.T, s Scan) {
				if s.Prediction.Condition != "Normal" || s.Prediction.Confidence != 0.42 {
					t.Errorf("prediction = %+v", s.Prediction)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ScanFromRecord(tt.rec, now))
		})
	}
}

func TestScanToRecord(t *testing.T) {
	rec := ScanToRecord(Scan{ID: "s1", PatientID: "PT-001", Prediction: Prediction{Condition: "Normal", Confidence: 0.9}})
	if rec.DoctorNotes != nil || rec.DoctorConfirmed != nil || rec.AssessedBy != nil {
		t.Error("assessment fields must be omitted without an assessment")
	}

	rec = ScanToRecord(Scan{ID: "s1", DoctorAssessment: &Assessment{Notes: "ok", Confirmed: true, AssessedBy: "dr", AssessedDate: "2024-03-05"}})
	if rec.DoctorNotes == nil || *rec.DoctorNotes != "ok" || rec.DoctorConfirmed == nil || !*rec.DoctorConfirmed {
		t.Error("assessment not flattened")
	}
	if rec.DoctorCorrectedDiagnosis != nil {
		t.Error("empty corrected diagnosis should be omitted")
	}
}

func TestScanRoundTripKeepsAssessment(t *testing.T) {
	in := Scan{
		ID: "s1", PatientID: "PT-001", ImageURL: "uploads/x.png", UploadDate: "2024-01-01",
		Prediction:       Prediction{Condition: "Drusen", Confidence: 0.5},
		DoctorAssessment: &Assessment{Notes: "n", CorrectedDiagnosis: "Normal", AssessedBy: "dr", AssessedDate: "2024-01-02"},
	}
	out := ScanFromRecord(ScanToRecord(in), fixedNow)
	if out.DoctorAssessment == nil || *out.DoctorAssessment != *in.DoctorAssessment {
		t.Errorf("assessment changed: %+v", out.DoctorAssessment)
	}
}

func TestNewScanRecord(t *testing.T) {
	rec := newScanRecord("PT-001", gateway.PredictionResult{PredictedClass: "Normal", PredictedProbability: 0.8, ImageURL: "uploads/x.png"}, fixedNow)
	if rec.UploadDate != "2024-03-05T09:30:00Z" {
		t.Errorf("upload date should default to now, got %q", rec.UploadDate)
	}
	if rec.PatientID != "PT-001" || rec.PredictionCondition != "Normal" || rec.PredictionConfidence != 0.8 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if *rec.AssessedDate != "2024-03-05T09:30:00Z" || *rec.DoctorCorrectedDiagnosis != "" {
		t.Errorf("unexpected defaults: %+v", rec)
	}
}
