package clinic

import (
	"strings"
	"time"

	"github.com/octscan/octscan/internal/platform/gateway"
)

// Patient is the cached patient with its scans. CurrentAppointment is a
// YYYY-MM-DD date or empty.
type Patient struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Age                int    `json:"age"`
	Gender             string `json:"gender"`
	CurrentAppointment string `json:"currentAppointment,omitempty"`
	Scans              []Scan `json:"scans"`
}

type Prediction struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
}

// Assessment is a doctor's review of a prediction. Confirmed=false means the
// doctor disagreed and CorrectedDiagnosis holds (or will hold) the diagnosis.
type Assessment struct {
	Notes              string `json:"notes"`
	Confirmed          bool   `json:"confirmed"`
	CorrectedDiagnosis string `json:"correctedDiagnosis,omitempty"`
	AssessedBy         string `json:"assessedBy"`
	AssessedDate       string `json:"assessedDate"`
}

type Scan struct {
	ID               string      `json:"id"`
	PatientID        string      `json:"patientId"`
	ImageURL         string      `json:"imageUrl"`
	UploadDate       string      `json:"uploadDate"`
	Prediction       Prediction  `json:"prediction"`
	DoctorAssessment *Assessment `json:"doctorAssessment,omitempty"`
}

// PatientInput carries the caller-editable patient fields. A blank ID on
// create asks the store to generate one.
type PatientInput struct {
	ID                 string
	Name               string
	Age                int
	Gender             string
	CurrentAppointment string
}

// AssessmentInput is what a doctor submits. An empty CorrectedDiagnosis
// confirms the prediction.
type AssessmentInput struct {
	Notes              string
	CorrectedDiagnosis string
	AssessedBy         string
}

// UploadResult is the outcome of a successful UploadAndCreateScan.
type UploadResult struct {
	Prediction gateway.PredictionResult `json:"prediction"`
	Scan       Scan                     `json:"scan"`
}

// Orphan records an inference whose scan was never persisted.
type Orphan struct {
	PatientID  string                   `json:"patientId"`
	Prediction gateway.PredictionResult `json:"prediction"`
	Error      string                   `json:"error"`
	At         time.Time                `json:"at"`
}

func (s Scan) clone() Scan {
	if s.DoctorAssessment != nil {
		a := *s.DoctorAssessment
		s.DoctorAssessment = &a
	}
	return s
}

func (p Patient) clone() Patient {
	if p.Scans != nil {
		scans := make([]Scan, len(p.Scans))
		for i, sc := range p.Scans {
			scans[i] = sc.clone()
		}
		p.Scans = scans
	}
	return p
}

// Snapshot is a deep copy of the cache; callers may keep or modify it freely.
type Snapshot struct {
	Patients []Patient `json:"patients"`
}

func (s Snapshot) Patient(id string) (Patient, bool) {
	for _, p := range s.Patients {
		if p.ID == id {
			return p, true
		}
	}
	return Patient{}, false
}

// Search returns the patients whose name or id contains term, ignoring case.
// An empty term matches everyone.
func (s Snapshot) Search(term string) []Patient {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []Patient
	for _, p := range s.Patients {
		if term == "" ||
			strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.ID), term) {
			out = append(out, p)
		}
	}
	return out
}

// Scans flattens every patient's scans in patient order.
func (s Snapshot) Scans() []Scan {
	var out []Scan
	for _, p := range s.Patients {
		out = append(out, p.Scans...)
	}
	return out
}

func (s Snapshot) Scan(id string) (Scan, bool) {
	for _, p := range s.Patients {
		for _, sc := range p.Scans {
			if sc.ID == id {
				return sc, true
			}
		}
	}
	return Scan{}, false
}
