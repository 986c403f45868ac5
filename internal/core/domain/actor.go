package domain

import "github.com/google/uuid"

// Role is the kind of party performing an operation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleBusiness Role = "business"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleBusiness, RoleDriver, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor identifies who is calling. Authentication happens at the edge;
// services only check ownership.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// SystemActor is used by background jobs and payment events.
var SystemActor = Actor{Role: RoleSystem}

// IsPrivileged returns true for admin and system callers.
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// IDPtr returns nil for the system actor.
func (a Actor) IDPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}
