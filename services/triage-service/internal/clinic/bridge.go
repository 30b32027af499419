package clinic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/notifytriage/services/triage-service/internal/model"
)

// StartTimeLayout is how the appointment list renders start times.
const StartTimeLayout = "02-01-2006 15:04"

// Bridge drives the clinic application through the desktop automation
// bridge's JSON API.
type Bridge struct {
	baseURL string
	token   string
	loc     *time.Location
	http    *http.Client
}

type BridgeConfig struct {
	BaseURL  string
	Token    string
	Location *time.Location
}

func NewBridge(cfg BridgeConfig, client *http.Client) *Bridge {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Bridge{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		loc:     loc,
		http:    client,
	}
}

var _ Application = (*Bridge)(nil)

type openRequest struct {
	NationalID string `json:"national_id"`
}

type openResponse struct {
	SessionID  string `json:"session_id"`
	NationalID string `json:"national_id"`
}

func (b *Bridge) OpenPatient(ctx context.Context, nationalID string) (*Session, error) {
	var out openResponse
	if err := b.do(ctx, http.MethodPost, "/patients/open", openRequest{NationalID: nationalID}, &out); err != nil {
		return nil, err
	}
	s := &Session{ID: out.SessionID, NationalID: out.NationalID}
	if model.NormalizeID(out.NationalID) != model.NormalizeID(nationalID) {
		return s, ErrIDMismatch
	}
	return s, nil
}

type appointmentRow struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Clinic    string `json:"clinic"`
	StartTime string `json:"start_time"`
}

type appointmentsResponse struct {
	Appointments []appointmentRow `json:"appointments"`
}

func (b *Bridge) ListAppointments(ctx context.Context, s *Session) ([]model.Appointment, error) {
	var out appointmentsResponse
	if err := b.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(s.ID)+"/appointments", nil, &out); err != nil {
		return nil, err
	}
	appts := make([]model.Appointment, 0, len(out.Appointments))
	for _, row := range out.Appointments {
		start, err := time.ParseInLocation(StartTimeLayout, strings.TrimSpace(row.StartTime), b.loc)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: invalid start time %q: %w", row.ID, row.StartTime, err)
		}
		appts = append(appts, model.Appointment{
			ID:         row.ID,
			Status:     strings.TrimSpace(row.Status),
			ClinicCode: strings.TrimSpace(row.Clinic),
			StartTime:  start,
		})
	}
	return appts, nil
}

type statusRequest struct {
	Status      string `json:"status"`
	SendMessage bool   `json:"send_message"`
}

func (b *Bridge) SetStatus(ctx context.Context, s *Session, appt model.Appointment, status string, notify bool) error {
	path := "/sessions/" + url.PathEscape(s.ID) + "/appointments/" + url.PathEscape(appt.ID) + "/status"
	return b.do(ctx, http.MethodPost, path, statusRequest{Status: status, SendMessage: notify}, nil)
}

func (b *Bridge) ClosePatientWindow(ctx context.Context, s *Session) error {
	return b.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(s.ID)+"/close", nil, nil)
}

type elementResponse struct {
	Found bool `json:"found"`
}

func (b *Bridge) FindElement(ctx context.Context, label string) (bool, error) {
	var out elementResponse
	if err := b.do(ctx, http.MethodGet, "/elements?name="+url.QueryEscape(label), nil, &out); err != nil {
		return false, err
	}
	return out.Found, nil
}

// ReadyCheck calls the bridge's health endpoint.
func (b *Bridge) ReadyCheck(ctx context.Context) error {
	if b.baseURL == "" {
		return errors.New("clinic bridge url not configured")
	}
	return b.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is a bridge failure that maps to no sentinel.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("clinic bridge returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("clinic bridge returned %d (%s): %s", e.Status, e.Code, e.Message)
}

func (b *Bridge) do(ctx context.Context, method, path string, in any, out any) error {
	if b.baseURL == "" {
		return errors.New("clinic bridge url not configured")
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er errorResponse
	_ = json.Unmarshal(raw, &er)

	switch {
	case er.Code == "id_mismatch":
		return ErrIDMismatch
	case er.Code == "manual_processing_required":
		return ErrManualProcessingRequired
	case er.Code == "timeout" || resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return ErrTimeout
	case er.Code == "patient_not_found" || resp.StatusCode == http.StatusNotFound:
		return ErrPatientNotFound
	}
	msg := er.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Code: er.Code, Message: msg}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
