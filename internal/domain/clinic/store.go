package clinic

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/platform/apierr"
	"github.com/octscan/octscan/internal/platform/gateway"
)

// Gateway is the subset of the remote API the store drives.
type Gateway interface {
	ListPatients(ctx context.Context) ([]gateway.PatientRecord, error)
	GetPatient(ctx context.Context, id string) (*gateway.PatientRecord, error)
	CreatePatient(ctx context.Context, p gateway.PatientRecord) (*gateway.PatientRecord, error)
	UpdatePatient(ctx context.Context, id string, p gateway.PatientRecord) (*gateway.PatientRecord, error)
	DeletePatient(ctx context.Context, id string) error
	ListPatientScans(ctx context.Context, patientID string) ([]gateway.ScanRecord, error)
	ListScans(ctx context.Context) ([]gateway.ScanRecord, error)
	CreateScan(ctx context.Context, patientID string, s gateway.ScanRecord) (*gateway.ScanRecord, error)
	UpdateScan(ctx context.Context, id string, s gateway.ScanRecord) (*gateway.ScanRecord, error)
	DeleteScan(ctx context.Context, id string) error
	Predict(ctx context.Context, filename string, image io.Reader) (*gateway.PredictionResult, error)
}

// OrphanedInferenceError reports that the inference endpoint analysed an
// image but the resulting scan could not be persisted. Nothing was cached and
// nothing is rolled back remotely.
type OrphanedInferenceError struct {
	PatientID  string
	Prediction gateway.PredictionResult
	Err        error
}

func (e *OrphanedInferenceError) Error() string {
	return fmt.Sprintf("inference for patient %s (%s) was not saved: %v",
		e.PatientID, e.Prediction.PredictedClass, e.Err)
}

func (e *OrphanedInferenceError) Unwrap() error { return e.Err }

const defaultLoadConcurrency = 4

// Store is the in-memory cache of patients and their scans. The cache only
// ever changes from data the gateway has confirmed. The lock is never held
// across a gateway call, so racing mutations resolve as last applied wins.
type Store struct {
	gw        Gateway
	logger    zerolog.Logger
	now       func() time.Time
	history   *RescheduleHistory
	loadLimit int

	mu       sync.RWMutex
	patients []Patient
	selected string
	orphans  []Orphan
}

type Option func(*Store)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithHistory seeds the reschedule history, typically from the session.
func WithHistory(h *RescheduleHistory) Option {
	return func(s *Store) {
		if h != nil {
			s.history = h
		}
	}
}

// WithOrphans seeds the orphaned inference list recorded by earlier runs.
func WithOrphans(orphans []Orphan) Option {
	return func(s *Store) {
		s.orphans = append([]Orphan(nil), orphans...)
	}
}

func WithLoadConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.loadLimit = n
		}
	}
}

func NewStore(gw Gateway, opts ...Option) *Store {
	s := &Store{
		gw:        gw,
		logger:    zerolog.Nop(),
		now:       time.Now,
		history:   NewRescheduleHistory(),
		loadLimit: defaultLoadConcurrency,
		patients:  []Patient{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Reads --

// Load fetches every patient and its scans and replaces the cache. A failure
// anywhere leaves the previous cache in place.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	recs, err := s.gw.ListPatients(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load patients: %w", err)
	}

	now := s.now()
	patients := make([]Patient, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		if seen[r.ID] {
			s.logger.Warn().Str("patient_id", r.ID).Msg("duplicate patient id from backend, keeping first")
			continue
		}
		seen[r.ID] = true
		patients = append(patients, PatientFromRecord(r))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.loadLimit)
	for i := range patients {
		p := &patients[i]
		g.Go(func() error {
			scans, err := s.gw.ListPatientScans(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("load scans for patient %s: %w", p.ID, err)
			}
			p.Scans = s.ownedScans(p.ID, scans, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	s.patients = patients
	if s.indexLocked(s.selected) < 0 {
		s.selected = ""
	}
	s.mu.Unlock()

	s.logger.Debug().Int("patients", len(patients)).Msg("cache loaded")
	return s.Snapshot(), nil
}

func (s *Store) ownedScans(patientID string, recs []gateway.ScanRecord, now time.Time) []Scan {
	out := make([]Scan, 0, len(recs))
	for _, rec := range recs {
		if rec.PatientID == "" {
			rec.PatientID = patientID
		}
		if rec.PatientID != patientID {
			s.logger.Warn().
				Str("patient_id", patientID).
				Str("scan_patient_id", rec.PatientID).
				Str("scan_id", rec.ID).
				Msg("skipping scan listed under another patient")
			continue
		}
		out = append(out, ScanFromRecord(rec, now))
	}
	return out
}

// GetPatient refreshes one patient from the backend. Cached scans are kept.
func (s *Store) GetPatient(ctx context.Context, id string) (Patient, error) {
	rec, err := s.gw.GetPatient(ctx, id)
	if err != nil {
		return Patient{}, fmt.Errorf("get patient %s: %w", id, err)
	}
	confirmed := PatientFromRecord(*rec)
	if confirmed.ID == "" {
		confirmed.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(confirmed.ID); i >= 0 {
		confirmed.Scans = s.patients[i].Scans
		s.patients[i] = confirmed
	} else {
		s.patients = append(s.patients, confirmed)
	}
	return confirmed.clone(), nil
}

// ListAllScans reads every scan from the backend without touching the cache.
func (s *Store) ListAllScans(ctx context.Context) ([]Scan, error) {
	recs, err := s.gw.ListScans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	now := s.now()
	out := make([]Scan, 0, len(recs))
	for _, r := range recs {
		out = append(out, ScanFromRecord(r, now))
	}
	return out, nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Patient, len(s.patients))
	for i, p := range s.patients {
		out[i] = p.clone()
	}
	return Snapshot{Patients: out}
}

// Select marks a cached patient as the one being viewed.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return apierr.Validation("select patient", fmt.Sprintf("patient %s not found", id))
	}
	s.selected = id
	return nil
}

func (s *Store) Selected() (Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(s.selected)
	if i < 0 {
		return Patient{}, false
	}
	return s.patients[i].clone(), true
}

// Orphans lists inferences whose scans were never persisted.
func (s *Store) Orphans() []Orphan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Orphan, len(s.orphans))
	copy(out, s.orphans)
	return out
}

func (s *Store) History() *RescheduleHistory { return s.history }

func (s *Store) Stats() Stats {
	return ComputeStats(s.Snapshot(), s.history.Records())
}

// -- Patients --

// CreatePatient rejects a locally known id before any network call. A blank
// id is generated. The cached entry is the gateway's confirmed record; if the
// backend rewrote the id, the confirmed id wins.
func (s *Store) CreatePatient(ctx context.Context, in PatientInput) (Patient, error) {
	const op = "create patient"
	in.ID = strings.TrimSpace(in.ID)
	if err := validatePatient(op, in); err != nil {
		return Patient{}, err
	}

	s.mu.RLock()
	if in.ID == "" {
		in.ID = s.nextPatientIDLocked()
	} else if s.indexLocked(in.ID) >= 0 {
		s.mu.RUnlock()
		return Patient{}, apierr.Validation(op, fmt.Sprintf("patient ID %s already exists", in.ID))
	}
	s.mu.RUnlock()

	rec, err := s.gw.CreatePatient(ctx, PatientToRecord(in))
	if err != nil {
		return Patient{}, fmt.Errorf("create patient %s: %w", in.ID, err)
	}
	confirmed := PatientFromRecord(*rec)
	if confirmed.ID == "" {
		confirmed = PatientFromRecord(PatientToRecord(in))
	}
	if confirmed.ID != in.ID {
		s.logger.Warn().
			Str("requested_id", in.ID).
			Str("confirmed_id", confirmed.ID).
			Msg("backend rewrote patient id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(confirmed.ID); i >= 0 {
		confirmed.Scans = s.patients[i].Scans
		s.patients[i] = confirmed
	} else {
		s.patients = append(s.patients, confirmed)
	}
	return confirmed.clone(), nil
}

// UpdatePatient replaces the cached entry with the confirmed record, keeping
// its scans. The id in the path is authoritative for the request.
func (s *Store) UpdatePatient(ctx context.Context, id string, in PatientInput) (Patient, error) {
	const op = "update patient"
	in.ID = id
	if err := validatePatient(op, in); err != nil {
		return Patient{}, err
	}

	rec, err := s.gw.UpdatePatient(ctx, id, PatientToRecord(in))
	if err != nil {
		return Patient{}, fmt.Errorf("update patient %s: %w", id, err)
	}
	confirmed := PatientFromRecord(*rec)
	if confirmed.ID == "" {
		confirmed.ID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		if j := s.indexLocked(confirmed.ID); j >= 0 {
			confirmed.Scans = s.patients[j].Scans
			s.patients[j] = confirmed
		} else {
			s.patients = append(s.patients, confirmed)
		}
		return confirmed.clone(), nil
	}

	confirmed.Scans = s.patients[i].Scans
	if confirmed.ID != id {
		s.logger.Warn().Str("requested_id", id).Str("confirmed_id", confirmed.ID).Msg("backend rewrote patient id")
		for k := range confirmed.Scans {
			confirmed.Scans[k].PatientID = confirmed.ID
		}
		if j := s.indexLocked(confirmed.ID); j >= 0 {
			s.patients = append(s.patients[:j], s.patients[j+1:]...)
			if j < i {
				i--
			}
		}
		if s.selected == id {
			s.selected = confirmed.ID
		}
	}
	s.patients[i] = confirmed
	return confirmed.clone(), nil
}

// DeletePatient removes the patient and its scans once the backend confirms.
func (s *Store) DeletePatient(ctx context.Context, id string) error {
	if err := s.gw.DeletePatient(ctx, id); err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.patients = append(s.patients[:i], s.patients[i+1:]...)
	}
	if s.selected == id {
		s.selected = ""
	}
	return nil
}

// ReschedulePatient moves the patient's appointment to newDate and records
// the days saved once the backend confirms. A patient without a current
// appointment saves nothing.
func (s *Store) ReschedulePatient(ctx context.Context, id, newDate string) (int, error) {
	const op = "reschedule patient"
	candidate, err := ParseDate(strings.TrimSpace(newDate))
	if err != nil {
		return 0, apierr.Validation(op, err.Error())
	}

	s.mu.RLock()
	i := s.indexLocked(id)
	var p Patient
	if i >= 0 {
		p = s.patients[i]
	}
	s.mu.RUnlock()
	if i < 0 {
		return 0, apierr.Validation(op, fmt.Sprintf("patient %s not found", id))
	}

	days := 0
	if p.CurrentAppointment != "" {
		if days, err = ComputeDaysSaved(p.CurrentAppointment, candidate); err != nil {
			return 0, apierr.Validation(op, err.Error())
		}
	}

	in := PatientInput{
		ID:                 p.ID,
		Name:               p.Name,
		Age:                p.Age,
		Gender:             p.Gender,
		CurrentAppointment: candidate.UTC().Format(DateLayout),
	}
	if _, err := s.UpdatePatient(ctx, id, in); err != nil {
		return 0, err
	}

	s.history.Append(RescheduleRecord{PatientID: id, DaysSaved: days, Date: today(s.now())})
	return days, nil
}

// -- Scans --

// UploadAndCreateScan runs inference on the image, then persists a scan built
// from the prediction. The scan is cached only after the backend stores it.
// If inference succeeded but persisting failed, the returned error is an
// *OrphanedInferenceError and the orphan is kept in Orphans.
func (s *Store) UploadAndCreateScan(ctx context.Context, patientID, filename string, image io.Reader) (UploadResult, error) {
	const op = "upload scan"
	if !s.hasPatient(patientID) {
		return UploadResult{}, apierr.Validation(op, fmt.Sprintf("patient %s not found", patientID))
	}

	pred, err := s.gw.Predict(ctx, filename, image)
	if err != nil {
		return UploadResult{}, fmt.Errorf("predict: %w", err)
	}

	now := s.now()
	rec := newScanRecord(patientID, *pred, now)
	created, err := s.gw.CreateScan(ctx, patientID, rec)
	if err != nil {
		s.mu.Lock()
		s.orphans = append(s.orphans, Orphan{
			PatientID:  patientID,
			Prediction: *pred,
			Error:      err.Error(),
			At:         now,
		})
		s.mu.Unlock()
		s.logger.Warn().
			Err(err).
			Str("patient_id", patientID).
			Str("image_url", pred.ImageURL).
			Str("condition", pred.PredictedClass).
			Msg("inference result orphaned, scan not saved")
		return UploadResult{Prediction: *pred}, &OrphanedInferenceError{PatientID: patientID, Prediction: *pred, Err: err}
	}

	if created.PatientID == "" && created.ImageURL == "" {
		id := created.ID
		created = &rec
		created.ID = id
	}
	if created.PatientID == "" {
		created.PatientID = patientID
	}
	scan := ScanFromRecord(*created, now)

	s.mu.Lock()
	if i := s.indexLocked(scan.PatientID); i >= 0 {
		s.patients[i].Scans = append(s.patients[i].Scans, scan)
	} else {
		s.logger.Warn().Str("patient_id", scan.PatientID).Str("scan_id", scan.ID).Msg("scan saved for patient no longer cached")
	}
	s.mu.Unlock()

	return UploadResult{Prediction: *pred, Scan: scan.clone()}, nil
}

// AssessScan is the only path that writes a doctor assessment. The role is
// checked before anything is sent; an empty corrected diagnosis confirms the
// prediction.
func (s *Store) AssessScan(ctx context.Context, role roles.Role, scanID string, in AssessmentInput) (Scan, error) {
	const op = "assess scan"
	if !roles.CanPerform(roles.AddOrEditAssessment, role) {
		return Scan{}, apierr.Auth(op, "only doctors can provide assessments")
	}
	in.Notes = strings.TrimSpace(in.Notes)
	in.CorrectedDiagnosis = strings.TrimSpace(in.CorrectedDiagnosis)
	if in.Notes == "" {
		return Scan{}, apierr.Validation(op, "notes are required")
	}

	cur, ok := s.Snapshot().Scan(scanID)
	if !ok {
		return Scan{}, apierr.Validation(op, fmt.Sprintf("scan %s not found", scanID))
	}

	now := s.now()
	by := strings.TrimSpace(in.AssessedBy)
	if by == "" {
		by = UnknownDoctor
	}
	cur.DoctorAssessment = &Assessment{
		Notes:              in.Notes,
		Confirmed:          in.CorrectedDiagnosis == "",
		CorrectedDiagnosis: in.CorrectedDiagnosis,
		AssessedBy:         by,
		AssessedDate:       today(now),
	}

	rec, err := s.gw.UpdateScan(ctx, scanID, ScanToRecord(cur))
	if err != nil {
		return Scan{}, fmt.Errorf("assess scan %s: %w", scanID, err)
	}
	if rec.ID == "" {
		rec.ID = scanID
	}
	if rec.PatientID == "" {
		rec.PatientID = cur.PatientID
	}
	confirmed := ScanFromRecord(*rec, now)

	s.mu.Lock()
	defer s.mu.Unlock()
	if pi, si := s.scanIndexLocked(scanID); pi >= 0 {
		confirmed.PatientID = s.patients[pi].ID
		s.patients[pi].Scans[si] = confirmed
	}
	return confirmed.clone(), nil
}

// DeleteScan removes the scan from its owner once the backend confirms.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	if err := s.gw.DeleteScan(ctx, id); err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pi, si := s.scanIndexLocked(id); pi >= 0 {
		scans := s.patients[pi].Scans
		s.patients[pi].Scans = append(scans[:si:si], scans[si+1:]...)
	}
	return nil
}

// -- helpers --

func validatePatient(op string, in PatientInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apierr.Validation(op, "name is required")
	}
	if strings.TrimSpace(in.Gender) == "" {
		return apierr.Validation(op, "gender is required")
	}
	if in.Age < 0 {
		return apierr.Validation(op, "age must not be negative")
	}
	if in.CurrentAppointment != "" {
		if _, err := time.Parse(DateLayout, in.CurrentAppointment); err != nil {
			return apierr.Validation(op, fmt.Sprintf("appointment %q is not a YYYY-MM-DD date", in.CurrentAppointment))
		}
	}
	return nil
}

func (s *Store) hasPatient(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id) >= 0
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.patients {
		if s.patients[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) scanIndexLocked(id string) (int, int) {
	for pi := range s.patients {
		for si := range s.patients[pi].Scans {
			if s.patients[pi].Scans[si].ID == id {
				return pi, si
			}
		}
	}
	return -1, -1
}

func (s *Store) nextPatientIDLocked() string {
	for n := len(s.patients) + 1; ; n++ {
		id := fmt.Sprintf("PT-%03d", n)
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}
