package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/platform/gateway"
)

const timestampLayout = "2006-01-02T15:04:05"

var appointmentLayouts = []string{"2006-01-02", time.RFC3339Nano, timestampLayout}

// normalizeAppointment stores appointments as zone-less timestamps, the way
// the production backend returns them.
func normalizeAppointment(p *gateway.PatientRecord) error {
	if p.CurrentAppointment == nil {
		return nil
	}
	v := strings.TrimSpace(*p.CurrentAppointment)
	if v == "" {
		p.CurrentAppointment = nil
		return nil
	}
	for _, layout := range appointmentLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			out := t.UTC().Format(timestampLayout)
			p.CurrentAppointment = &out
			return nil
		}
	}
	return echo.NewHTTPError(http.StatusUnprocessableEntity, "current_appointment is not a valid date")
}

func bindPatient(c echo.Context) (gateway.PatientRecord, error) {
	var p gateway.PatientRecord
	if err := c.Bind(&p); err != nil {
		return p, echo.NewHTTPError(http.StatusUnprocessableEntity, "Invalid request body")
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.Age < 0 {
		return p, echo.NewHTTPError(http.StatusUnprocessableEntity, "age must not be negative")
	}
	return p, normalizeAppointment(&p)
}

func notFound(err error) error {
	return echo.NewHTTPError(http.StatusNotFound, err.Error())
}

// -- Patients --

func (s *Server) ListPatients(c echo.Context) error {
	return c.JSON(http.StatusOK, s.data.listPatients())
}

func (s *Server) GetPatient(c echo.Context) error {
	p, err := s.data.patient(c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) CreatePatient(c echo.Context) error {
	p, err := bindPatient(c)
	if err != nil {
		return err
	}
	if p.ID == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "id is required")
	}
	created, err := s.data.createPatient(p)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, created)
}

func (s *Server) UpdatePatient(c echo.Context) error {
	p, err := bindPatient(c)
	if err != nil {
		return err
	}
	updated, err := s.data.updatePatient(c.Param("id"), p)
	switch {
	case errors.Is(err, errPatientMissing):
		return notFound(err)
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) DeletePatient(c echo.Context) error {
	p, err := s.data.deletePatient(c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) ListPatientScans(c echo.Context) error {
	return c.JSON(http.StatusOK, s.data.listScans(c.Param("id")))
}

// -- Scans --

func (s *Server) ListScans(c echo.Context) error {
	return c.JSON(http.StatusOK, s.data.listScans(""))
}

func (s *Server) CreateScan(c echo.Context) error {
	var sc gateway.ScanRecord
	if err := c.Bind(&sc); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Invalid request body")
	}
	if sc.ImageURL == "" || sc.PredictionCondition == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "image_url and prediction_condition are required")
	}
	if sc.UploadDate == "" {
		sc.UploadDate = s.now().UTC().Format(timestampLayout)
	}
	created, err := s.data.createScan(c.Param("id"), sc)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, created)
}

// UpdateScan replaces a scan. Any assessment content requires a doctor; when
// notes are present the assessor and date come from the caller and the clock.
func (s *Server) UpdateScan(c echo.Context) error {
	var sc gateway.ScanRecord
	if err := c.Bind(&sc); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Invalid request body")
	}

	hasNotes := sc.DoctorNotes != nil && *sc.DoctorNotes != ""
	hasCorrection := sc.DoctorCorrectedDiagnosis != nil && *sc.DoctorCorrectedDiagnosis != ""
	if hasNotes || hasCorrection || sc.DoctorConfirmed != nil {
		u := currentUser(c)
		if roles.Parse(u.Role) != roles.Doctor {
			return echo.NewHTTPError(http.StatusForbidden, "Only doctors can provide assessments")
		}
		if hasNotes {
			by := u.Username
			at := s.now().UTC().Format(timestampLayout)
			sc.AssessedBy = &by
			sc.AssessedDate = &at
		}
	}

	updated, err := s.data.updateScan(c.Param("id"), sc)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) DeleteScan(c echo.Context) error {
	sc, err := s.data.deleteScan(c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, sc)
}

// -- Inference --

// Predict stores the uploaded image and returns a deterministic prediction
// for it. The endpoint takes no credentials.
func (s *Server) Predict(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
	}
	defer src.Close()

	now := s.now()
	meta, err := s.images.save(fh.Filename, src, now)
	switch {
	case errors.Is(err, errImageTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, errNotAnImage), errors.Is(err, errMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}

	label, confidence := classify(meta.Hash)
	s.logger.Debug().Str("image", meta.Name).Str("class", label).Float64("confidence", confidence).Msg("prediction")

	return c.JSON(http.StatusOK, gateway.PredictionResult{
		PredictedClass:       label,
		PredictedProbability: confidence,
		ImageURL:             "uploads/" + meta.Name,
		UploadDate:           now.UTC().Format(timestampLayout),
	})
}

func (s *Server) GetUpload(c echo.Context) error {
	meta, content, err := s.images.get(c.Param("name"))
	if err != nil {
		return notFound(err)
	}
	return c.Blob(http.StatusOK, meta.ContentType, content)
}
