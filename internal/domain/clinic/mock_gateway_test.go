package clinic

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/octscan/octscan/internal/platform/apierr"
	"github.com/octscan/octscan/internal/platform/gateway"
)

// -- Mock Gateway --

type mockGateway struct {
	mu       sync.Mutex
	patients []gateway.PatientRecord
	scans    []gateway.ScanRecord
	fail     map[string]error
	calls    map[string]int
	nextScan int

	// rewriteID, when set, replaces the id echoed by CreatePatient.
	rewriteID string
	predicted gateway.PredictionResult
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		fail:  make(map[string]error),
		calls: make(map[string]int),
		predicted: gateway.PredictionResult{
			PredictedClass:       "Drusen",
			PredictedProbability: 0.87,
			ImageURL:             "uploads/abc_eye.png",
			UploadDate:           "2024-03-01T10:00:00",
		},
	}
}

func (m *mockGateway) enter(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	return m.fail[op]
}

func (m *mockGateway) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockGateway) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockGateway) addPatient(p gateway.PatientRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients = append(m.patients, p)
}

func (m *mockGateway) addScan(s gateway.ScanRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = append(m.scans, s)
}

func (m *mockGateway) ListPatients(_ context.Context) ([]gateway.PatientRecord, error) {
	if err := m.enter("ListPatients"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.PatientRecord, len(m.patients))
	copy(out, m.patients)
	return out, nil
}

func (m *mockGateway) GetPatient(_ context.Context, id string) (*gateway.PatientRecord, error) {
	if err := m.enter("GetPatient"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, apierr.Server("get patient", 404, "Patient not found")
}

func (m *mockGateway) CreatePatient(_ context.Context, p gateway.PatientRecord) (*gateway.PatientRecord, error) {
	if err := m.enter("CreatePatient"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rewriteID != "" {
		p.ID = m.rewriteID
	}
	m.patients = append(m.patients, p)
	return &p, nil
}

func (m *mockGateway) UpdatePatient(_ context.Context, id string, p gateway.PatientRecord) (*gateway.PatientRecord, error) {
	if err := m.enter("UpdatePatient"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients[i] = p
			return &p, nil
		}
	}
	return nil, apierr.Server("update patient", 404, "Patient not found")
}

func (m *mockGateway) DeletePatient(_ context.Context, id string) error {
	if err := m.enter("DeletePatient"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients = append(m.patients[:i], m.patients[i+1:]...)
			return nil
		}
	}
	return apierr.Server("delete patient", 404, "Patient not found")
}

func (m *mockGateway) ListPatientScans(_ context.Context, patientID string) ([]gateway.ScanRecord, error) {
	if err := m.enter("ListPatientScans"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []gateway.ScanRecord
	for _, s := range m.scans {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockGateway) ListScans(_ context.Context) ([]gateway.ScanRecord, error) {
	if err := m.enter("ListScans"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.ScanRecord, len(m.scans))
	copy(out, m.scans)
	return out, nil
}

func (m *mockGateway) CreateScan(_ context.Context, patientID string, s gateway.ScanRecord) (*gateway.ScanRecord, error) {
	if err := m.enter("CreateScan"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextScan++
	s.ID = fmt.Sprintf("scan-%d", m.nextScan)
	s.PatientID = patientID
	m.scans = append(m.scans, s)
	return &s, nil
}

func (m *mockGateway) UpdateScan(_ context.Context, id string, s gateway.ScanRecord) (*gateway.ScanRecord, error) {
	if err := m.enter("UpdateScan"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.scans {
		if m.scans[i].ID == id {
			s.ID = id
			m.scans[i] = s
			return &s, nil
		}
	}
	return nil, apierr.Server("update scan", 404, "Scan not found")
}

func (m *mockGateway) DeleteScan(_ context.Context, id string) error {
	if err := m.enter("DeleteScan"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.scans {
		if m.scans[i].ID == id {
			m.scans = append(m.scans[:i], m.scans[i+1:]...)
			return nil
		}
	}
	return apierr.Server("delete scan", 404, "Scan not found")
}

func (m *mockGateway) Predict(_ context.Context, _ string, image io.Reader) (*gateway.PredictionResult, error) {
	if err := m.enter("Predict"); err != nil {
		return nil, err
	}
	if _, err := io.ReadAll(image); err != nil {
		return nil, apierr.Network("predict", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.predicted
	return &out, nil
}
