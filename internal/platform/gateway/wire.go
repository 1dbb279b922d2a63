package gateway

// Wire shapes exchanged with the backend. Field names follow the backend's
// snake_case JSON; nothing here is reshaped; the domain store owns mapping.

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type PatientRecord struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Age                int     `json:"age"`
	Gender             string  `json:"gender"`
	CurrentAppointment *string `json:"current_appointment"`
}

type ScanRecord struct {
	ID                       string  `json:"id,omitempty"`
	PatientID                string  `json:"patient_id"`
	ImageURL                 string  `json:"image_url"`
	UploadDate               string  `json:"upload_date"`
	PredictionCondition      string  `json:"prediction_condition"`
	PredictionConfidence     float64 `json:"prediction_confidence"`
	DoctorNotes              *string `json:"doctor_notes,omitempty"`
	DoctorConfirmed          *bool   `json:"doctor_confirmed,omitempty"`
	DoctorCorrectedDiagnosis *string `json:"doctor_corrected_diagnosis,omitempty"`
	AssessedBy               *string `json:"assessed_by,omitempty"`
	AssessedDate             *string `json:"assessed_date,omitempty"`
}

// PredictionResult is the inference endpoint's answer. Class is the legacy
// portal field; Predict folds it into PredictedClass.
type PredictionResult struct {
	ScanID               string  `json:"scan_id,omitempty"`
	PredictedClass       string  `json:"predicted_class"`
	PredictedProbability float64 `json:"predicted_probability"`
	ImageURL             string  `json:"image_url"`
	UploadDate           string  `json:"upload_date,omitempty"`
	Class                string  `json:"class,omitempty"`
}
