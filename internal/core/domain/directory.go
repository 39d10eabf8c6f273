package domain

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrFamilyNotFound = errors.New("family not found")
	ErrUserNotFound   = errors.New("user not found")
)

// Role is the marketplace role carried in the caller's bearer token.
type Role string

const (
	RoleFamily    Role = "FAMILY"
	RoleOperator  Role = "OPERATOR"
	RoleCaregiver Role = "CAREGIVER"
	RoleAdmin     Role = "ADMIN"
)

// Family owns exactly one wallet.
type Family struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// User is a directory entry. FamilyID or OperatorID is set depending on Role.
type User struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	FamilyID   *uuid.UUID `json:"family_id,omitempty"`
	OperatorID *uuid.UUID `json:"operator_id,omitempty"`
}

// Principal is the authenticated caller of an API request.
type Principal struct {
	UserID     uuid.UUID
	Role       Role
	FamilyID   *uuid.UUID
	OperatorID *uuid.UUID
}

func (p Principal) HasRole(r Role) bool {
	return p.Role == r
}
