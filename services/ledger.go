package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/models"
	"gorm.io/gorm"
)

// StatusPolicy controls whether status updates follow the lifecycle table
type StatusPolicy string

const (
	PolicyStrict     StatusPolicy = "strict"
	PolicyPermissive StatusPolicy = "permissive"
)

// DefaultStoreTimeout bounds every store round trip when no timeout is configured
const DefaultStoreTimeout = 5 * time.Second

// ParseStatusPolicy parses STATUS_POLICY, defaulting to strict
func ParseStatusPolicy(value string) (StatusPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(PolicyStrict):
		return PolicyStrict, nil
	case string(PolicyPermissive):
		return PolicyPermissive, nil
	}
	return "", fmt.Errorf("unknown status policy %q", value)
}

// LedgerOptions configures a RequestLedger
type LedgerOptions struct {
	Policy   StatusPolicy
	Timeout  time.Duration
	Notifier Notifier
	Now      func() time.Time
}

// RequestLedger stores repair requests and enforces their lifecycle. It does
// not know about callers; see RequestService for the role-scoped entry points.
type RequestLedger struct {
	db   *gorm.DB
	opts LedgerOptions
}

// NewRequestLedger creates a ledger over db
func NewRequestLedger(db *gorm.DB, opts LedgerOptions) *RequestLedger {
	if opts.Policy == "" {
		opts.Policy = PolicyStrict
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &RequestLedger{db: db, opts: opts}
}

// Policy returns the status policy the ledger enforces
func (l *RequestLedger) Policy() StatusPolicy {
	return l.opts.Policy
}

func (l *RequestLedger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.opts.Timeout)
}

// NewRequest is the input of Create
type NewRequest struct {
	ClientID         uint
	TechnicianID     *uint
	Device           string
	IssueDescription string
}

// RequestPatch is a partial update. Nil fields are left unchanged.
type RequestPatch struct {
	Device           *string        `json:"device"`
	IssueDescription *string        `json:"issueDescription"`
	Status           *models.Status `json:"status"`
	TechnicianID     *uint          `json:"technicianId"`
	// ClearTechnician returns the request to the unassigned pool
	ClearTechnician bool `json:"clearTechnician"`
	// Version, when set, must match the stored version or the update fails with a conflict
	Version *int `json:"version"`
}

// IsEmpty reports whether the patch changes nothing
func (p RequestPatch) IsEmpty() bool {
	return p.Device == nil && p.IssueDescription == nil && p.Status == nil && p.TechnicianID == nil && !p.ClearTechnician
}

// ListFilter narrows List. A nil Caller means no visibility scoping.
type ListFilter struct {
	Caller       *Caller
	Status       *models.Status
	TechnicianID *uint
	ClientID     *uint
	From         *time.Time // inclusive
	To           *time.Time // exclusive
}

// Create validates references and stores a new request with status New
func (l *RequestLedger) Create(ctx context.Context, in NewRequest) (*models.RepairRequest, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	device := strings.TrimSpace(in.Device)
	issue := strings.TrimSpace(in.IssueDescription)

	var req models.RepairRequest
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findUser(tx, in.ClientID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("client %d not found", in.ClientID)
			}
			return err
		}
		if in.TechnicianID != nil {
			if err := requireTechnician(tx, *in.TechnicianID); err != nil {
				return err
			}
		}
		if device == "" {
			return ValidationError("device is required")
		}
		if issue == "" {
			return ValidationError("issueDescription is required")
		}

		req = models.RepairRequest{
			ClientID:         in.ClientID,
			TechnicianID:     in.TechnicianID,
			Device:           device,
			IssueDescription: issue,
			Status:           models.StatusNew,
			Version:          1,
			CreatedAt:        l.opts.Now(),
		}
		req.UpdatedAt = req.CreatedAt
		return tx.Create(&req).Error
	})
	if err != nil {
		return nil, classifyStoreError("create repair request", err)
	}

	log.Info().Uint("request_id", req.ID).Uint("client_id", req.ClientID).Msg("repair request created")
	notifyAfterCommit(ctx, l.opts.Notifier, l.opts.Timeout, Event{
		Type:      EventRequestCreated,
		RequestID: req.ID,
		UserID:    req.ClientID,
		Device:    req.Device,
		Status:    req.Status,
	})
	return &req, nil
}

func (l *RequestLedger) viewQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.RepairRequest{}).
		Select("repair_requests.*, COALESCE(c.name, '') AS client_name, t.name AS technician_name").
		Joins("LEFT JOIN users c ON c.id = repair_requests.client_id").
		Joins("LEFT JOIN users t ON t.id = repair_requests.technician_id")
}

func applyFilter(q *gorm.DB, f ListFilter) *gorm.DB {
	if f.Caller != nil {
		q = q.Scopes(VisibleTo(*f.Caller))
	}
	if f.Status != nil {
		q = q.Where("repair_requests.status = ?", *f.Status)
	}
	if f.TechnicianID != nil {
		q = q.Where("repair_requests.technician_id = ?", *f.TechnicianID)
	}
	if f.ClientID != nil {
		q = q.Where("repair_requests.client_id = ?", *f.ClientID)
	}
	if f.From != nil {
		q = q.Where("repair_requests.created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("repair_requests.created_at < ?", f.To.UTC())
	}
	return q
}

// List returns the matching requests in creation order with display names and comments
func (l *RequestLedger) List(ctx context.Context, f ListFilter) ([]models.RepairRequestView, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	views := []models.RepairRequestView{}
	db := l.db.WithContext(ctx)
	if err := applyFilter(l.viewQuery(db), f).Order("repair_requests.id ASC").Scan(&views).Error; err != nil {
		return nil, classifyStoreError("list repair requests", err)
	}
	if err := attachComments(db, views); err != nil {
		return nil, classifyStoreError("list comments", err)
	}
	return views, nil
}

// Get returns one request if the caller may see it. Invisible requests are
// reported as not found.
func (l *RequestLedger) Get(ctx context.Context, caller Caller, id uint) (*models.RepairRequestView, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var views []models.RepairRequestView
	db := l.db.WithContext(ctx)
	err := applyFilter(l.viewQuery(db), ListFilter{Caller: &caller}).
		Where("repair_requests.id = ?", id).
		Limit(1).
		Scan(&views).Error
	if err != nil {
		return nil, classifyStoreError("get repair request", err)
	}
	if len(views) == 0 {
		return nil, NotFoundError("repair request %d not found", id)
	}
	if err := attachComments(db, views); err != nil {
		return nil, classifyStoreError("list comments", err)
	}
	return &views[0], nil
}

// Find loads the stored record without visibility checks
func (l *RequestLedger) Find(ctx context.Context, id uint) (*models.RepairRequest, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var req models.RepairRequest
	if err := l.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("repair request %d not found", id)
		}
		return nil, classifyStoreError("get repair request", err)
	}
	return &req, nil
}

// Update applies patch without an authorization guard
func (l *RequestLedger) Update(ctx context.Context, id uint, patch RequestPatch) (*models.RepairRequest, error) {
	return l.UpdateGuarded(ctx, id, patch, nil)
}

// UpdateGuarded applies patch in one transaction. guard runs against the
// current row inside the transaction, before any validation of the patch.
func (l *RequestLedger) UpdateGuarded(ctx context.Context, id uint, patch RequestPatch, guard func(current *models.RepairRequest) error) (*models.RepairRequest, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var (
		current models.RepairRequest
		updated models.RepairRequest
		client  models.User
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("repair request %d not found", id)
			}
			return err
		}
		if guard != nil {
			if err := guard(&current); err != nil {
				return err
			}
		}
		if patch.Version != nil && *patch.Version != current.Version {
			return ConflictError("repair request %d has been modified (version %d, current %d)", id, *patch.Version, current.Version)
		}

		updates := map[string]interface{}{}
		if patch.Device != nil {
			device := strings.TrimSpace(*patch.Device)
			if device == "" {
				return ValidationError("device cannot be empty")
			}
			updates["device"] = device
		}
		if patch.IssueDescription != nil {
			issue := strings.TrimSpace(*patch.IssueDescription)
			if issue == "" {
				return ValidationError("issueDescription cannot be empty")
			}
			updates["issue_description"] = issue
		}
		if patch.ClearTechnician {
			if patch.TechnicianID != nil {
				return ValidationError("technicianId and clearTechnician cannot be combined")
			}
			updates["technician_id"] = nil
		}
		if patch.TechnicianID != nil && (current.TechnicianID == nil || *current.TechnicianID != *patch.TechnicianID) {
			if err := requireTechnician(tx, *patch.TechnicianID); err != nil {
				return err
			}
			updates["technician_id"] = *patch.TechnicianID
		}
		if patch.Status != nil {
			next := *patch.Status
			if !next.Valid() {
				return ValidationError("unknown status %q", next)
			}
			if l.opts.Policy == PolicyStrict && !current.Status.CanTransitionTo(next) {
				return ValidationError("cannot change status from %s to %s", current.Status, next)
			}
			updates["status"] = next
		}

		updates["version"] = current.Version + 1
		updates["updated_at"] = l.opts.Now()

		res := tx.Model(&models.RepairRequest{}).
			Where("id = ? AND version = ?", id, current.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ConflictError("repair request %d has been modified concurrently", id)
		}

		if err := tx.First(&updated, id).Error; err != nil {
			return err
		}
		if updated.Status != current.Status {
			if err := tx.Select("id", "name", "email").First(&client, updated.ClientID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classifyStoreError("update repair request", err)
	}

	log.Info().Uint("request_id", id).Int("version", updated.Version).Msg("repair request updated")
	if updated.Status != current.Status {
		notifyAfterCommit(ctx, l.opts.Notifier, l.opts.Timeout, Event{
			Type:           EventRequestStatusChanged,
			RequestID:      updated.ID,
			UserID:         client.ID,
			Email:          client.Email,
			Name:           client.Name,
			Device:         updated.Device,
			Status:         updated.Status,
			PreviousStatus: current.Status,
		})
	}
	return &updated, nil
}

// Delete removes the request and its comments in one transaction
func (l *RequestLedger) Delete(ctx context.Context, id uint) (uint, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.RepairRequest
		if err := tx.Select("id").First(&req, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("repair request %d not found", id)
			}
			return err
		}
		if err := tx.Where("repair_request_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.RepairRequest{}, id).Error
	})
	if err != nil {
		return 0, classifyStoreError("delete repair request", err)
	}

	log.Info().Uint("request_id", id).Msg("repair request deleted")
	return id, nil
}

// StatusCount is one row of a status summary
type StatusCount struct {
	Status models.Status `json:"status"`
	Count  int64         `json:"count"`
}

// Summary counts the matching requests per status, listing every status
func (l *RequestLedger) Summary(ctx context.Context, f ListFilter) ([]StatusCount, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	var rows []StatusCount
	err := applyFilter(l.db.WithContext(ctx).Model(&models.RepairRequest{}), f).
		Select("repair_requests.status AS status, COUNT(*) AS count").
		Group("repair_requests.status").
		Scan(&rows).Error
	if err != nil {
		return nil, classifyStoreError("summarize repair requests", err)
	}

	counts := make(map[models.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	summary := make([]StatusCount, 0, len(models.Statuses))
	for _, s := range models.Statuses {
		summary = append(summary, StatusCount{Status: s, Count: counts[s]})
	}
	return summary, nil
}

func attachComments(db *gorm.DB, views []models.RepairRequestView) error {
	if len(views) == 0 {
		return nil
	}
	ids := make([]uint, len(views))
	index := make(map[uint]int, len(views))
	for i := range views {
		ids[i] = views[i].ID
		index[views[i].ID] = i
		views[i].Comments = []models.CommentView{}
	}

	var comments []models.CommentView
	err := commentViewQuery(db).
		Where("comments.repair_request_id IN ?", ids).
		Order("comments.date ASC, comments.id ASC").
		Scan(&comments).Error
	if err != nil {
		return err
	}
	for _, c := range comments {
		if i, ok := index[c.RepairRequestID]; ok {
			views[i].Comments = append(views[i].Comments, c)
		}
	}
	return nil
}

func commentViewQuery(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Comment{}).
		Select("comments.*, COALESCE(u.name, '') AS author_name").
		Joins("LEFT JOIN users u ON u.id = comments.author_id")
}

func findUser(tx *gorm.DB, id uint) (*models.User, error) {
	if id == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	if err := tx.Select("id", "name", "email", "role").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func requireTechnician(tx *gorm.DB, id uint) error {
	user, err := findUser(tx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ValidationError("technician %d not found", id)
		}
		return err
	}
	if user.Role != models.RoleTechnician {
		return ValidationError("user %d is not a technician", id)
	}
	return nil
}
