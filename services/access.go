package services

import (
	"github.com/smartfix-dev/smartfix-api/models"
	"gorm.io/gorm"
)

// Caller identifies who is performing an operation. The zero value is an
// unauthenticated caller.
type Caller struct {
	UserID uint
	Role   models.Role
	Name   string
}

// IsAuthenticated reports whether the caller carries a user id
func (c Caller) IsAuthenticated() bool {
	return c.UserID != 0 && c.Role.Valid()
}

// IsAdmin reports whether the caller is an authenticated administrator
func (c Caller) IsAdmin() bool {
	return c.IsAuthenticated() && c.Role == models.RoleAdmin
}

// IsTechnician reports whether the caller is an authenticated technician
func (c Caller) IsTechnician() bool {
	return c.IsAuthenticated() && c.Role == models.RoleTechnician
}

// IsClient reports whether the caller is an authenticated client
func (c Caller) IsClient() bool {
	return c.IsAuthenticated() && c.Role == models.RoleClient
}

// CanView is the visibility predicate for a single request. VisibleTo must
// select exactly the rows for which CanView holds.
func CanView(caller Caller, req *models.RepairRequest) bool {
	if req == nil || !caller.IsAuthenticated() {
		return false
	}
	switch caller.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTechnician:
		if req.TechnicianID != nil && *req.TechnicianID == caller.UserID {
			return true
		}
		return req.Status == models.StatusNew
	case models.RoleClient:
		return req.ClientID == caller.UserID
	}
	return false
}

// VisibleTo returns a gorm scope restricting repair_requests to the rows the
// caller may see. Unknown callers get an always-false condition.
func VisibleTo(caller Caller) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !caller.IsAuthenticated() {
			return db.Where("1 = 0")
		}
		switch caller.Role {
		case models.RoleAdmin:
			return db
		case models.RoleTechnician:
			return db.Where("(repair_requests.technician_id = ? OR repair_requests.status = ?)",
				caller.UserID, models.StatusNew)
		case models.RoleClient:
			return db.Where("repair_requests.client_id = ?", caller.UserID)
		}
		return db.Where("1 = 0")
	}
}

// AuthorizeCreate decides who owns a new request. Clients always create for
// themselves; an admin creates on behalf of the client named in requested.
func AuthorizeCreate(caller Caller, requested *uint, technicianID *uint) (uint, error) {
	if !caller.IsAuthenticated() {
		return 0, UnauthorizedError("authentication required")
	}
	switch caller.Role {
	case models.RoleClient:
		if requested != nil && *requested != caller.UserID {
			return 0, ForbiddenError("clients can only create requests for themselves")
		}
		if technicianID != nil {
			return 0, ForbiddenError("clients cannot assign a technician")
		}
		return caller.UserID, nil
	case models.RoleAdmin:
		if requested == nil || *requested == 0 {
			return 0, ValidationError("clientId is required")
		}
		return *requested, nil
	}
	return 0, ForbiddenError("only clients and administrators can create requests")
}

// AuthorizeUpdate gates a patch against the current state of the request.
//
// Admins may change anything. The assigned technician may change anything but
// cannot hand the request to someone else or unassign it. On an unassigned request a
// technician may only claim it for themselves or reject it, and only while it
// is New. Clients cannot mutate requests.
func AuthorizeUpdate(caller Caller, current *models.RepairRequest, patch RequestPatch) error {
	if !caller.IsAuthenticated() {
		return UnauthorizedError("authentication required")
	}
	switch caller.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTechnician:
	default:
		return ForbiddenError("clients cannot modify a repair request")
	}

	if current.TechnicianID != nil {
		if *current.TechnicianID != caller.UserID {
			return ForbiddenError("request is assigned to another technician")
		}
		if patch.TechnicianID != nil && *patch.TechnicianID != caller.UserID {
			return ForbiddenError("only an administrator can reassign a request")
		}
		if patch.ClearTechnician {
			return ForbiddenError("only an administrator can unassign a request")
		}
		return nil
	}

	// outside the open queue an unassigned request does not exist for a technician
	if !CanView(caller, current) {
		return NotFoundError("repair request %d not found", current.ID)
	}
	if patch.Device != nil || patch.IssueDescription != nil || patch.ClearTechnician {
		return ForbiddenError("accept the request before editing it")
	}
	if patch.TechnicianID != nil {
		if *patch.TechnicianID != caller.UserID {
			return ForbiddenError("technicians can only claim requests for themselves")
		}
		return nil
	}
	if patch.Status != nil && *patch.Status == models.StatusRejected {
		return nil
	}
	return ForbiddenError("unassigned requests can only be accepted or rejected")
}

// AuthorizeDelete allows only administrators to delete requests and comments
func AuthorizeDelete(caller Caller) error {
	if !caller.IsAuthenticated() {
		return UnauthorizedError("authentication required")
	}
	if caller.Role != models.RoleAdmin {
		return ForbiddenError("only administrators can delete")
	}
	return nil
}

// AuthorizeUserUpdate allows self-service profile edits and any admin edit.
// privileged marks a change to role or verification, which only admins may make.
func AuthorizeUserUpdate(caller Caller, targetID uint, privileged bool) error {
	if !caller.IsAuthenticated() {
		return UnauthorizedError("authentication required")
	}
	if caller.Role == models.RoleAdmin {
		return nil
	}
	if caller.UserID != targetID {
		return ForbiddenError("you can only update your own account")
	}
	if privileged {
		return ForbiddenError("only administrators can change role or verification")
	}
	return nil
}

// AuthorizeUserRead allows a user to read their own record and admins to read any
func AuthorizeUserRead(caller Caller, targetID uint) error {
	if !caller.IsAuthenticated() {
		return UnauthorizedError("authentication required")
	}
	if caller.Role != models.RoleAdmin && caller.UserID != targetID {
		return ForbiddenError("you can only view your own account")
	}
	return nil
}

// AuthorizeTechnicianView allows technicians to list their own work and admins to list anyone's
func AuthorizeTechnicianView(caller Caller, technicianID uint) error {
	if !caller.IsAuthenticated() {
		return UnauthorizedError("authentication required")
	}
	switch caller.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTechnician:
		if caller.UserID == technicianID {
			return nil
		}
		return ForbiddenError("technicians can only list their own requests")
	}
	return ForbiddenError("only technicians and administrators can list technician work")
}

// AuthorizeCommentEdit allows the author or an admin to edit a comment
func AuthorizeCommentEdit(caller Caller, comment *models.Comment) error {
	if !caller.IsAuthenticated() {
		return UnauthorizedError("authentication required")
	}
	if caller.Role == models.RoleAdmin {
		return nil
	}
	if comment.AuthorID == nil || *comment.AuthorID != caller.UserID {
		return ForbiddenError("you can only edit your own comments")
	}
	return nil
}
