// Package client is a Go client for the SmartFix HTTP API. Session state is
// passed explicitly to every call that needs authentication.
package client

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

	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/services"
)

// DefaultTimeout bounds every API call
const DefaultTimeout = 10 * time.Second

// ErrNotSignedIn is returned when a call needs a session and none is valid
var ErrNotSignedIn = errors.New("not signed in")

// APIError is an error envelope returned by the server
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

// Client talks to one SmartFix server
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080
func New(baseURL string) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: DefaultTimeout})
}

// NewWithHTTPClient creates a client that sends requests through httpClient
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (c *Client) do(ctx context.Context, s *Session, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s != nil {
		if !s.Valid(c.now()) {
			return ErrNotSignedIn
		}
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s returned status %d with an unreadable body: %w", method, path, resp.StatusCode, err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Register creates a client account. The account must be verified before it can sign in.
func (c *Client) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	var user models.User
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, nil, http.MethodPost, "/auth/register", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login signs in and returns the new session
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var result services.LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, nil, http.MethodPost, "/auth/login", body, &result); err != nil {
		return nil, err
	}
	if result.User == nil {
		return nil, fmt.Errorf("login response has no user")
	}
	return &Session{
		UserID:     result.User.ID,
		Name:       result.User.Name,
		Email:      result.User.Email,
		Role:       result.User.Role,
		IsVerified: result.User.IsVerified,
		Token:      result.Token,
		ExpiresAt:  result.ExpiresAt,
	}, nil
}

// Logout revokes the session's token on the server
func (c *Client) Logout(ctx context.Context, s *Session) error {
	return c.do(ctx, s, http.MethodPost, "/auth/logout", nil, nil)
}

// Me returns the profile of the signed-in user
func (c *Client) Me(ctx context.Context, s *Session) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, s, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListRequests returns the requests visible to the session, optionally by status
func (c *Client) ListRequests(ctx context.Context, s *Session, status *models.Status) ([]models.RepairRequestView, error) {
	path := "/repair-requests"
	if status != nil {
		path += "?status=" + url.QueryEscape(string(*status))
	}
	var list []models.RepairRequestView
	if err := c.do(ctx, s, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// TechnicianFilter narrows a technician's work list. Zero values mean no filter.
type TechnicianFilter struct {
	Status *models.Status
	From   time.Time
	To     time.Time
}

// ListTechnicianRequests returns the requests assigned to technicianID
func (c *Client) ListTechnicianRequests(ctx context.Context, s *Session, technicianID uint, f TechnicianFilter) ([]models.RepairRequestView, error) {
	query := url.Values{}
	if f.Status != nil {
		query.Set("status", string(*f.Status))
	}
	if !f.From.IsZero() {
		query.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		query.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	path := fmt.Sprintf("/repair-requests/technician/%d", technicianID)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var list []models.RepairRequestView
	if err := c.do(ctx, s, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetRequest returns one visible request
func (c *Client) GetRequest(ctx context.Context, s *Session, id uint) (*models.RepairRequestView, error) {
	var view models.RepairRequestView
	if err := c.do(ctx, s, http.MethodGet, fmt.Sprintf("/repair-requests/%d", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// NewRepairRequest is the body of CreateRequest. ClientID and TechnicianID are for administrators.
type NewRepairRequest struct {
	ClientID         *uint  `json:"clientId,omitempty"`
	TechnicianID     *uint  `json:"technicianId,omitempty"`
	Device           string `json:"device"`
	IssueDescription string `json:"issueDescription"`
}

// CreateRequest opens a repair request
func (c *Client) CreateRequest(ctx context.Context, s *Session, in NewRepairRequest) (*models.RepairRequest, error) {
	var created models.RepairRequest
	if err := c.do(ctx, s, http.MethodPost, "/repair-requests", in, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// RequestUpdate is a partial update; nil fields are left unchanged
type RequestUpdate struct {
	Device           *string        `json:"device,omitempty"`
	IssueDescription *string        `json:"issueDescription,omitempty"`
	Status           *models.Status `json:"status,omitempty"`
	TechnicianID     *uint          `json:"technicianId,omitempty"`
	ClearTechnician  bool           `json:"clearTechnician,omitempty"`
	Version          *int           `json:"version,omitempty"`
}

// UpdateRequest applies a partial update
func (c *Client) UpdateRequest(ctx context.Context, s *Session, id uint, in RequestUpdate) (*models.RepairRequest, error) {
	var updated models.RepairRequest
	if err := c.do(ctx, s, http.MethodPut, fmt.Sprintf("/repair-requests/%d", id), in, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Accept claims an unassigned request for the session's technician and starts work
func (c *Client) Accept(ctx context.Context, s *Session, id uint) (*models.RepairRequest, error) {
	if s == nil {
		return nil, ErrNotSignedIn
	}
	self := s.UserID
	status := models.StatusInProgress
	return c.UpdateRequest(ctx, s, id, RequestUpdate{TechnicianID: &self, Status: &status})
}

// Reject marks a request rejected
func (c *Client) Reject(ctx context.Context, s *Session, id uint) (*models.RepairRequest, error) {
	status := models.StatusRejected
	return c.UpdateRequest(ctx, s, id, RequestUpdate{Status: &status})
}

// DeleteRequest removes a request and its comments
func (c *Client) DeleteRequest(ctx context.Context, s *Session, id uint) error {
	return c.do(ctx, s, http.MethodDelete, fmt.Sprintf("/repair-requests/%d", id), nil, nil)
}

// ListComments returns the comments of a request, oldest first
func (c *Client) ListComments(ctx context.Context, s *Session, requestID uint) ([]models.CommentView, error) {
	var list []models.CommentView
	if err := c.do(ctx, s, http.MethodGet, fmt.Sprintf("/comments/%d", requestID), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddComment appends a comment to a request
func (c *Client) AddComment(ctx context.Context, s *Session, requestID uint, text string) (*models.CommentView, error) {
	var comment models.CommentView
	body := map[string]interface{}{"repairRequestId": requestID, "text": text}
	if err := c.do(ctx, s, http.MethodPost, "/comments", body, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListServices returns the price list
func (c *Client) ListServices(ctx context.Context, s *Session) ([]models.Service, error) {
	var list []models.Service
	if err := c.do(ctx, s, http.MethodGet, "/services", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListTechnicians returns the technician directory
func (c *Client) ListTechnicians(ctx context.Context, s *Session) ([]models.User, error) {
	var list []models.User
	if err := c.do(ctx, s, http.MethodGet, "/users/technicians", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Summary is the per-status request count of the reports endpoint
type Summary struct {
	Total    int64                  `json:"total"`
	ByStatus []services.StatusCount `json:"byStatus"`
}

// Summary returns request counts per status; administrators only
func (c *Client) Summary(ctx context.Context, s *Session) (*Summary, error) {
	var summary Summary
	if err := c.do(ctx, s, http.MethodGet, "/reports/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
