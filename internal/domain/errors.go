// internal/domain/errors.go
package domain

import "errors"

// Workflow errors shared by the member, cart and order services. Services wrap
// them with context, callers match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateMember    = errors.New("duplicate member")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrIdentityMismatch   = errors.New("email and name do not match")
	ErrInvalidOrderState  = errors.New("invalid order state")
	ErrInvalidCount       = errors.New("count must be at least 1")
)
