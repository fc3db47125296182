package services

import (
	"context"
	"time"

	"github.com/smartfix-dev/smartfix-api/models"
)

// RequestService is the role-aware entry point to the request ledger. Every
// read goes through the visibility scope and every write through a guard.
type RequestService struct {
	ledger *RequestLedger
}

// NewRequestService wraps a ledger with access control
func NewRequestService(ledger *RequestLedger) *RequestService {
	return &RequestService{ledger: ledger}
}

// Ledger exposes the wrapped ledger
func (s *RequestService) Ledger() *RequestLedger {
	return s.ledger
}

// CreateInput is what a caller submits to open a request
type CreateInput struct {
	ClientID         *uint
	TechnicianID     *uint
	Device           string
	IssueDescription string
}

// TechnicianQuery narrows a technician work list
type TechnicianQuery struct {
	Status *models.Status
	From   *time.Time
	To     *time.Time
}

// List returns the requests the caller may see, optionally by status.
// Unauthenticated callers get an empty list.
func (s *RequestService) List(ctx context.Context, caller Caller, status *models.Status) ([]models.RepairRequestView, error) {
	return s.ledger.List(ctx, ListFilter{Caller: &caller, Status: status})
}

// ListForTechnician returns the requests assigned to technicianID
func (s *RequestService) ListForTechnician(ctx context.Context, caller Caller, technicianID uint, q TechnicianQuery) ([]models.RepairRequestView, error) {
	if err := AuthorizeTechnicianView(caller, technicianID); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, ListFilter{
		Caller:       &caller,
		TechnicianID: &technicianID,
		Status:       q.Status,
		From:         q.From,
		To:           q.To,
	})
}

// Get returns one visible request
func (s *RequestService) Get(ctx context.Context, caller Caller, id uint) (*models.RepairRequestView, error) {
	if !caller.IsAuthenticated() {
		return nil, NotFoundError("repair request %d not found", id)
	}
	return s.ledger.Get(ctx, caller, id)
}

// Create opens a request owned by the caller, or by the named client when an admin creates it
func (s *RequestService) Create(ctx context.Context, caller Caller, in CreateInput) (*models.RepairRequest, error) {
	clientID, err := AuthorizeCreate(caller, in.ClientID, in.TechnicianID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Create(ctx, NewRequest{
		ClientID:         clientID,
		TechnicianID:     in.TechnicianID,
		Device:           in.Device,
		IssueDescription: in.IssueDescription,
	})
}

// Update applies patch if the caller's role allows it against the current state
func (s *RequestService) Update(ctx context.Context, caller Caller, id uint, patch RequestPatch) (*models.RepairRequest, error) {
	if !caller.IsAuthenticated() {
		return nil, UnauthorizedError("authentication required")
	}
	if patch.IsEmpty() {
		return nil, ValidationError("nothing to update")
	}
	return s.ledger.UpdateGuarded(ctx, id, patch, func(current *models.RepairRequest) error {
		return AuthorizeUpdate(caller, current, patch)
	})
}

// Accept claims an unassigned request for the calling technician and starts work
func (s *RequestService) Accept(ctx context.Context, caller Caller, id uint) (*models.RepairRequest, error) {
	self := caller.UserID
	status := models.StatusInProgress
	return s.Update(ctx, caller, id, RequestPatch{TechnicianID: &self, Status: &status})
}

// Reject marks a request rejected without assigning it
func (s *RequestService) Reject(ctx context.Context, caller Caller, id uint) (*models.RepairRequest, error) {
	status := models.StatusRejected
	return s.Update(ctx, caller, id, RequestPatch{Status: &status})
}

// Delete removes a request and its comments; admins only
func (s *RequestService) Delete(ctx context.Context, caller Caller, id uint) (uint, error) {
	if err := AuthorizeDelete(caller); err != nil {
		return 0, err
	}
	return s.ledger.Delete(ctx, id)
}

// Import bulk-loads requests; admins only
func (s *RequestService) Import(ctx context.Context, caller Caller, records []ImportRecord) (*ImportResult, error) {
	if err := requireAdmin(caller, "only administrators can import requests"); err != nil {
		return nil, err
	}
	return s.ledger.Import(ctx, records)
}

// Summary counts visible requests per status
func (s *RequestService) Summary(ctx context.Context, caller Caller) ([]StatusCount, error) {
	return s.ledger.Summary(ctx, ListFilter{Caller: &caller})
}

func requireAdmin(caller Caller, message string) error {
	if !caller.IsAuthenticated() {
		return UnauthorizedError("authentication required")
	}
	if caller.Role != models.RoleAdmin {
		return ForbiddenError("%s", message)
	}
	return nil
}
