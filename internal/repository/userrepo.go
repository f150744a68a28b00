// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

// UserRepository provides access to user profiles and the flat users directory.
type UserRepository interface {
	// GetProfile loads the profile stored under userKey or errs.ErrNotFound.
	GetProfile(ctx context.Context, userKey string) (model.Profile, error)
	// CreateUser writes the profile and appends entry to the users directory
	// in one atomic write. errs.ErrAlreadyExists when the profile exists.
	CreateUser(ctx context.Context, userKey string, p model.Profile, entry model.UserEntry) error
	// ListUsers returns the users directory or errs.ErrNotFound when it was never written.
	ListUsers(ctx context.Context) ([]model.UserEntry, error)
}
