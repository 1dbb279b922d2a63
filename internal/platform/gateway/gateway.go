// Package gateway is the HTTP boundary to the clinic backend and the image
// inference endpoint. Every call returns either the decoded payload or an
// *apierr.Error; transport failures become NetworkError, non-2xx responses
// become AuthError (401/403) or ServerError with the server-supplied detail.
// Nothing is retried.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/octscan/octscan/internal/platform/apierr"
)

// TokenSource returns the bearer token for authenticated calls, or "".
type TokenSource func(ctx context.Context) string

type Client struct {
	http       *resty.Client
	baseURL    string
	predictURL string
	token      TokenSource
	logger     zerolog.Logger
	timeout    time.Duration
}

type Option func(*Client)

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithPredictURL points Predict at a separate inference service. The URL is
// the service root; "/predict" is appended.
func WithPredictURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.predictURL = strings.TrimRight(u, "/") + "/predict"
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient swaps the underlying transport, mainly for tests. The
// client timeout still comes from WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc).SetBaseURL(c.baseURL).SetHeader("Accept", "application/json")
	}
}

func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
		baseURL:    baseURL,
		predictURL: baseURL + "/predict",
		token:      func(context.Context) string { return "" },
		logger:     zerolog.Nop(),
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetTimeout(c.timeout)
	return c
}

// -- Auth --

func (c *Client) Register(ctx context.Context, reg Registration) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, "register", c.request(ctx, false).SetBody(reg), http.MethodPost, "/register", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, "login", c.request(ctx, false).SetBody(creds), http.MethodPost, "/login", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, "current user", c.request(ctx, true), http.MethodGet, "/users/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// -- Patients --

func (c *Client) ListPatients(ctx context.Context) ([]PatientRecord, error) {
	var out []PatientRecord
	if err := c.do(ctx, "list patients", c.request(ctx, true), http.MethodGet, "/patients", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPatient(ctx context.Context, id string) (*PatientRecord, error) {
	var out PatientRecord
	req := c.request(ctx, true).SetPathParam("id", id)
	if err := c.do(ctx, "get patient", req, http.MethodGet, "/patients/{id}", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePatient(ctx context.Context, p PatientRecord) (*PatientRecord, error) {
	var out PatientRecord
	if err := c.do(ctx, "create patient", c.request(ctx, true).SetBody(p), http.MethodPost, "/patients", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePatient(ctx context.Context, id string, p PatientRecord) (*PatientRecord, error) {
	var out PatientRecord
	req := c.request(ctx, true).SetPathParam("id", id).SetBody(p)
	if err := c.do(ctx, "update patient", req, http.MethodPut, "/patients/{id}", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePatient(ctx context.Context, id string) error {
	req := c.request(ctx, true).SetPathParam("id", id)
	return c.do(ctx, "delete patient", req, http.MethodDelete, "/patients/{id}", nil)
}

// -- Scans --

func (c *Client) ListPatientScans(ctx context.Context, patientID string) ([]ScanRecord, error) {
	var out []ScanRecord
	req := c.request(ctx, true).SetPathParam("id", patientID)
	if err := c.do(ctx, "list patient scans", req, http.MethodGet, "/patients/{id}/scans", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListScans(ctx context.Context) ([]ScanRecord, error) {
	var out []ScanRecord
	if err := c.do(ctx, "list scans", c.request(ctx, true), http.MethodGet, "/scans", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateScan(ctx context.Context, patientID string, s ScanRecord) (*ScanRecord, error) {
	var out ScanRecord
	req := c.request(ctx, true).SetPathParam("patientId", patientID).SetBody(s)
	if err := c.do(ctx, "create scan", req, http.MethodPost, "/scans/{patientId}", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateScan(ctx context.Context, id string, s ScanRecord) (*ScanRecord, error) {
	var out ScanRecord
	req := c.request(ctx, true).SetPathParam("id", id).SetBody(s)
	if err := c.do(ctx, "update scan", req, http.MethodPut, "/scans/{id}", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteScan(ctx context.Context, id string) error {
	req := c.request(ctx, true).SetPathParam("id", id)
	return c.do(ctx, "delete scan", req, http.MethodDelete, "/scans/{id}", nil)
}

// -- Inference --

// Predict uploads an image as multipart field "file". The endpoint takes no
// credentials.
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader) (*PredictionResult, error) {
	var out PredictionResult
	req := c.request(ctx, false).SetFileReader("file", filename, image)
	if err := c.do(ctx, "predict", req, http.MethodPost, c.predictURL, &out); err != nil {
		return nil, err
	}
	if out.PredictedClass == "" {
		out.PredictedClass = out.Class
	}
	out.Class = ""
	if out.PredictedClass == "" {
		return nil, apierr.Server("predict", http.StatusOK, "prediction response has no class")
	}
	return &out, nil
}

// -- plumbing --

func (c *Client) request(ctx context.Context, authed bool) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if authed {
		if tok := c.token(ctx); tok != "" {
			req.SetAuthToken(tok)
		}
	}
	return req
}

func (c *Client) do(ctx context.Context, op string, req *resty.Request, method, path string, out interface{}) error {
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Str("method", method).Str("path", path).Msg("request failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apierr.Network(op, ctxErr)
		}
		return apierr.Network(op, err)
	}

	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("request")

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return apierr.FromStatus(op, resp.StatusCode(), errorDetail(resp.Body()))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &apierr.Error{
			Kind:   apierr.KindServer,
			Op:     op,
			Status: resp.StatusCode(),
			Detail: fmt.Sprintf("malformed response: %v", err),
			Err:    err,
		}
	}
	return nil
}

// errorDetail extracts a message from {"detail": ...} or {"error": ...}.
// A non-string detail (validation error lists) is returned as raw JSON.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if len(payload.Detail) > 0 && string(payload.Detail) != "null" {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	return payload.Error
}
