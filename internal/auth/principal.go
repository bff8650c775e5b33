package auth

import (
	"context"
	"errors"
	"fmt"

	"horizon.shop/internal/store"
)

// Role is the coarse role stored on a user record.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Principal is the stored user behind an authenticated subject.
type Principal struct {
	Email string
	Role  Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role Role) bool { return p.Role == role }

// Resolver maps a subject email to the stored user record.
type Resolver struct {
	users store.Collection
}

// NewResolver returns a Resolver reading from the users collection.
func NewResolver(users store.Collection) *Resolver {
	return &Resolver{users: users}
}

// Resolve looks the subject up. A missing user is reported as found=false
// with a nil error; only store failures return an error.
func (r *Resolver) Resolve(ctx context.Context, email string) (Principal, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Principal{}, false, nil
	}
	doc, err := r.users.FindOne(ctx, store.ByField("email", email))
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, false, nil
	}
	if err != nil {
		return Principal{}, false, fmt.Errorf("resolve principal: %w", err)
	}
	role, _ := doc["role"].(string)
	if role == "" {
		role = string(RoleCustomer)
	}
	return Principal{Email: email, Role: Role(role)}, true, nil
}
