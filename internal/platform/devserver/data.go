package devserver

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octscan/octscan/internal/platform/gateway"
)

var (
	errUserExists     = errors.New("Username or email already registered")
	errPatientExists  = errors.New("Patient ID already exists")
	errPatientMissing = errors.New("Patient not found")
	errScanMissing    = errors.New("Scan not found")
)

type userRecord struct {
	gateway.User
	hash []byte
}

// backend holds users, patients and scans. Patients and scans keep
// insertion order so listings are stable.
type backend struct {
	mu       sync.RWMutex
	users    map[string]userRecord
	patients []gateway.PatientRecord
	scans    []gateway.ScanRecord
}

func newBackend() *backend {
	return &backend{users: make(map[string]userRecord)}
}

// -- users --

func (b *backend) addUser(username, email, role string, hash []byte, now time.Time) (gateway.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.Username == username || u.Email == email {
			return gateway.User{}, errUserExists
		}
	}
	u := gateway.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Role:      role,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
	b.users[username] = userRecord{User: u, hash: hash}
	return u, nil
}

func (b *backend) user(username string) (userRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.users[username]
	return u, ok
}

// -- patients --

func (b *backend) patientIndex(id string) int {
	for i := range b.patients {
		if b.patients[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *backend) listPatients() []gateway.PatientRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]gateway.PatientRecord, len(b.patients))
	copy(out, b.patients)
	return out
}

func (b *backend) patient(id string) (gateway.PatientRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := b.patientIndex(id)
	if i < 0 {
		return gateway.PatientRecord{}, errPatientMissing
	}
	return b.patients[i], nil
}

func (b *backend) createPatient(p gateway.PatientRecord) (gateway.PatientRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.patientIndex(p.ID) >= 0 {
		return gateway.PatientRecord{}, errPatientExists
	}
	b.patients = append(b.patients, p)
	return p, nil
}

// updatePatient replaces the patient stored under id. A different, unused
// id in the body renames the patient and moves its scans along.
func (b *backend) updatePatient(id string, p gateway.PatientRecord) (gateway.PatientRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.patientIndex(id)
	if i < 0 {
		return gateway.PatientRecord{}, errPatientMissing
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		if b.patientIndex(p.ID) >= 0 {
			return gateway.PatientRecord{}, errPatientExists
		}
		for k := range b.scans {
			if b.scans[k].PatientID == id {
				b.scans[k].PatientID = p.ID
			}
		}
	}
	b.patients[i] = p
	return p, nil
}

// deletePatient removes the patient and its scans.
func (b *backend) deletePatient(id string) (gateway.PatientRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.patientIndex(id)
	if i < 0 {
		return gateway.PatientRecord{}, errPatientMissing
	}
	p := b.patients[i]
	b.patients = append(b.patients[:i], b.patients[i+1:]...)

	kept := b.scans[:0]
	for _, sc := range b.scans {
		if sc.PatientID != id {
			kept = append(kept, sc)
		}
	}
	b.scans = kept
	return p, nil
}

// -- scans --

func (b *backend) scanIndex(id string) int {
	for i := range b.scans {
		if b.scans[i].ID == id {
			return i
		}
	}
	return -1
}

// listScans returns every scan, or only the patient's when patientID is set.
func (b *backend) listScans(patientID string) []gateway.ScanRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []gateway.ScanRecord{}
	for _, sc := range b.scans {
		if patientID == "" || sc.PatientID == patientID {
			out = append(out, sc)
		}
	}
	return out
}

func (b *backend) createScan(patientID string, sc gateway.ScanRecord) (gateway.ScanRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.patientIndex(patientID) < 0 {
		return gateway.ScanRecord{}, errPatientMissing
	}
	sc.ID = uuid.NewString()
	sc.PatientID = patientID
	b.scans = append(b.scans, sc)
	return sc, nil
}

func (b *backend) updateScan(id string, sc gateway.ScanRecord) (gateway.ScanRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.scanIndex(id)
	if i < 0 {
		return gateway.ScanRecord{}, errScanMissing
	}
	sc.ID = id
	if sc.PatientID == "" {
		sc.PatientID = b.scans[i].PatientID
	}
	b.scans[i] = sc
	return sc, nil
}

func (b *backend) deleteScan(id string) (gateway.ScanRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.scanIndex(id)
	if i < 0 {
		return gateway.ScanRecord{}, errScanMissing
	}
	sc := b.scans[i]
	b.scans = append(b.scans[:i], b.scans[i+1:]...)
	return sc, nil
}
