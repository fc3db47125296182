package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the user's position in the shop. The numeric values are part of the API.
type Role int

const (
	RoleClient     Role = 0
	RoleTechnician Role = 1
	RoleAdmin      Role = 2
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleTechnician || r == RoleAdmin
}

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "Client"
	case RoleTechnician:
		return "Technician"
	case RoleAdmin:
		return "Admin"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole accepts either the role name or its numeric value
func ParseRole(value string) (Role, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		if role := Role(n); role.Valid() {
			return role, nil
		}
		return 0, fmt.Errorf("unknown role %q", value)
	}
	for _, role := range []Role{RoleClient, RoleTechnician, RoleAdmin} {
		if strings.EqualFold(value, role.String()) {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", value)
}

// User represents a client, technician or administrator
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash *string   `gorm:"column:password_hash" json:"-"` // unset until the account can log in
	Role         Role      `gorm:"not null;default:0;index" json:"role"`
	IsVerified   bool      `gorm:"not null;default:false" json:"isVerified"`
	Phone        *string   `json:"phone,omitempty"`
	AvatarRef    *string   `json:"avatarRef,omitempty"`         // storage key of the uploaded avatar
	AvatarURL    *string   `gorm:"-" json:"avatarUrl,omitempty"` // computed from AvatarRef when served
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
