package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartfix-dev/smartfix-api/models"
	"github.com/smartfix-dev/smartfix-api/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

// IdentityOptions configures an IdentityStore
type IdentityOptions struct {
	Tokens          *TokenService
	Timeout         time.Duration
	RequireVerified bool
	Notifier        Notifier
	BcryptCost      int
}

// IdentityStore holds user accounts and credentials
type IdentityStore struct {
	db   *gorm.DB
	opts IdentityOptions
}

// NewIdentityStore creates an identity store over db
func NewIdentityStore(db *gorm.DB, opts IdentityOptions) *IdentityStore {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStoreTimeout
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &IdentityStore{db: db, opts: opts}
}

// RegisterInput is a self-registration
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
}

// CreateUserInput is an admin-created account
type CreateUserInput struct {
	Name       string
	Email      string
	Password   string
	Role       models.Role
	IsVerified bool
	Phone      *string
}

// UserPatch is a partial profile update. Role and IsVerified are admin-only.
type UserPatch struct {
	Name       *string      `json:"name"`
	Email      *string      `json:"email" binding:"omitempty,email"`
	Phone      *string      `json:"phone"`
	Password   *string      `json:"password"`
	Role       *models.Role `json:"role"`
	IsVerified *bool        `json:"isVerified"`
}

// LoginResult is returned by a successful login
type LoginResult struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *IdentityStore) hashPassword(password string) (*string, error) {
	if len(password) < MinPasswordLength {
		return nil, ValidationError("password must be at least %d characters", MinPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ValidationError("password is too long")
		}
		return nil, err
	}
	h := string(hashed)
	return &h, nil
}

func (s *IdentityStore) insertUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ConflictError("email %s is already registered", user.Email)
		}
		return tx.Create(user).Error
	})
}

// Register creates an unverified client account
func (s *IdentityStore) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return nil, ValidationError("name is required")
	}
	if email == "" {
		return nil, ValidationError("email is required")
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, classifyStoreError("register", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleClient,
		IsVerified:   false,
		Phone:        in.Phone,
	}
	if err := s.insertUser(ctx, user); err != nil {
		return nil, classifyStoreError("register", err)
	}

	log.Info().Uint("user_id", user.ID).Msg("user registered")
	notifyAfterCommit(ctx, s.opts.Notifier, s.opts.Timeout, Event{
		Type:   EventUserRegistered,
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	return user, nil
}

// Login verifies the credentials and issues a bearer token
func (s *IdentityStore) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	invalid := UnauthorizedError("invalid email or password")

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, classifyStoreError("login", err)
	}
	if user.PasswordHash == nil || *user.PasswordHash == "" {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}
	if s.opts.RequireVerified && !user.IsVerified {
		return nil, UnauthorizedError("account is not verified yet")
	}

	issued, err := s.opts.Tokens.Issue(&user)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "login failed", Err: err}
	}

	log.Info().Uint("user_id", user.ID).Str("role", user.Role.String()).Msg("user logged in")
	return &LoginResult{User: &user, Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

// CreateUser creates an account with any role; admins only
func (s *IdentityStore) CreateUser(ctx context.Context, caller Caller, in CreateUserInput) (*models.User, error) {
	if err := requireAdmin(caller, "only administrators can create users"); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" {
		return nil, ValidationError("name and email are required")
	}
	if !in.Role.Valid() {
		return nil, ValidationError("unknown role %d", int(in.Role))
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, classifyStoreError("create user", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		IsVerified:   in.IsVerified,
		Phone:        in.Phone,
	}
	if err := s.insertUser(ctx, user); err != nil {
		return nil, classifyStoreError("create user", err)
	}
	log.Info().Uint("user_id", user.ID).Uint("by", caller.UserID).Msg("user created")
	return user, nil
}

// GetUser returns a user to themselves or to an admin
func (s *IdentityStore) GetUser(ctx context.Context, caller Caller, id uint) (*models.User, error) {
	if err := AuthorizeUserRead(caller, id); err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

func (s *IdentityStore) find(ctx context.Context, id uint) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError("user %d not found", id)
		}
		return nil, classifyStoreError("get user", err)
	}
	return &user, nil
}

// ListUsers returns every account; admins only
func (s *IdentityStore) ListUsers(ctx context.Context, caller Caller) ([]models.User, error) {
	if err := requireAdmin(caller, "only administrators can list users"); err != nil {
		return nil, err
	}
	return s.list(ctx, nil)
}

// ListTechnicians returns the technician directory to any authenticated caller
func (s *IdentityStore) ListTechnicians(ctx context.Context, caller Caller) ([]models.User, error) {
	if !caller.IsAuthenticated() {
		return nil, UnauthorizedError("authentication required")
	}
	role := models.RoleTechnician
	return s.list(ctx, &role)
}

func (s *IdentityStore) list(ctx context.Context, role *models.Role) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	users := []models.User{}
	q := s.db.WithContext(ctx).Order("id ASC")
	if role != nil {
		q = q.Where("role = ?", *role)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, classifyStoreError("list users", err)
	}
	return users, nil
}

// UpdateUser applies a profile patch. Users may edit themselves; admins may edit anyone.
func (s *IdentityStore) UpdateUser(ctx context.Context, caller Caller, id uint, patch UserPatch) (*models.User, error) {
	privileged := patch.Role != nil || patch.IsVerified != nil
	if err := AuthorizeUserUpdate(caller, id, privileged); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ValidationError("name cannot be empty")
		}
		updates["name"] = name
	}
	if patch.Phone != nil {
		if phone := strings.TrimSpace(*patch.Phone); phone != "" {
			updates["phone"] = phone
		} else {
			updates["phone"] = nil
		}
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, ValidationError("unknown role %d", int(*patch.Role))
		}
		updates["role"] = *patch.Role
	}
	if patch.IsVerified != nil {
		updates["is_verified"] = *patch.IsVerified
	}
	if patch.Password != nil {
		hash, err := s.hashPassword(*patch.Password)
		if err != nil {
			return nil, classifyStoreError("update user", err)
		}
		updates["password_hash"] = *hash
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("user %d not found", id)
			}
			return err
		}
		if patch.Email != nil {
			email := normalizeEmail(*patch.Email)
			if email == "" {
				return ValidationError("email cannot be empty")
			}
			if !utils.IsValidEmail(email) {
				return ValidationError("invalid email format")
			}
			if email != user.Email {
				var count int64
				if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, id).Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return ConflictError("email %s is already registered", email)
				}
				updates["email"] = email
			}
		}
		if len(updates) == 0 {
			return nil
		}
		if user.Role == models.RoleTechnician && patch.Role != nil && *patch.Role != models.RoleTechnician {
			if err := releaseAssignments(tx, id); err != nil {
				return err
			}
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&user, id).Error
	})
	if err != nil {
		return nil, classifyStoreError("update user", err)
	}

	log.Info().Uint("user_id", id).Uint("by", caller.UserID).Msg("user updated")
	return &user, nil
}

// DeleteUser removes an account. Requests the user works on lose their
// technician, requests the user owns are deleted with their comments, and
// comments the user wrote lose their author. All of it is one transaction.
func (s *IdentityStore) DeleteUser(ctx context.Context, caller Caller, id uint) error {
	if err := requireAdmin(caller, "only administrators can delete users"); err != nil {
		return err
	}
	if caller.UserID == id {
		return ForbiddenError("administrators cannot delete their own account")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id").First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("user %d not found", id)
			}
			return err
		}

		if err := releaseAssignments(tx, id); err != nil {
			return err
		}

		owned := tx.Model(&models.RepairRequest{}).Select("id").Where("client_id = ?", id)
		if err := tx.Where("repair_request_id IN (?)", owned).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.RepairRequest{}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Comment{}).Where("author_id = ?", id).Update("author_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		return classifyStoreError("delete user", err)
	}

	log.Info().Uint("user_id", id).Uint("by", caller.UserID).Msg("user deleted")
	return nil
}

// releaseAssignments returns every request held by technician id to the
// unassigned pool and bumps their versions
func releaseAssignments(tx *gorm.DB, id uint) error {
	return tx.Model(&models.RepairRequest{}).
		Where("technician_id = ?", id).
		UpdateColumns(map[string]interface{}{
			"technician_id": nil,
			"version":       gorm.Expr("version + 1"),
		}).Error
}

// SetAvatar stores a new avatar reference and returns the updated user and the previous reference
func (s *IdentityStore) SetAvatar(ctx context.Context, caller Caller, id uint, ref string) (*models.User, *string, error) {
	if err := AuthorizeUserUpdate(caller, id, false); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var (
		user     models.User
		previous *string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFoundError("user %d not found", id)
			}
			return err
		}
		previous = user.AvatarRef
		user.AvatarRef = &ref
		return tx.Model(&user).Update("avatar_ref", ref).Error
	})
	if err != nil {
		return nil, nil, classifyStoreError("set avatar", err)
	}
	return &user, previous, nil
}

// SeedAdmin creates an administrator when none exists. It reports whether one was created.
func (s *IdentityStore) SeedAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return false, classifyStoreError("seed admin", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return false, classifyStoreError("seed admin", err)
	}
	admin := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsVerified:   true,
	}
	if err := s.insertUser(ctx, admin); err != nil {
		return false, classifyStoreError("seed admin", err)
	}
	log.Info().Str("email", email).Msg("seeded admin user")
	return true, nil
}
