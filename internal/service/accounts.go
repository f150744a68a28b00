// Package service contains the application services of the messenger sync layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/blob"
	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/identity"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/repository"
)

// AccountService defines onboarding and directory operations.
type AccountService interface {
	// UserExists reports whether a profile exists for email.
	UserExists(ctx context.Context, email string) (bool, error)
	// Register writes the profile and adds the user to the users directory.
	Register(ctx context.Context, u model.ChatUser) error
	// AllUsers returns the users directory.
	AllUsers(ctx context.Context) ([]model.UserEntry, error)
	// SearchUsers returns users whose name starts with term, without the session user.
	SearchUsers(ctx context.Context, s model.Session, term string) ([]model.UserEntry, error)
	// UploadProfilePicture stores the user's avatar and returns its download URL.
	UploadProfilePicture(ctx context.Context, email string, png []byte) (string, error)
	// ProfilePictureURL returns the download URL of the user's avatar.
	ProfilePictureURL(ctx context.Context, email string) (string, error)
}

// AccountServiceImpl implements AccountService on a UserRepository and a blob store.
type AccountServiceImpl struct {
	users repository.UserRepository
	blobs blob.Store
	log   *zap.Logger
}

// NewAccountService constructs AccountService. blobs may be nil when
// profile pictures are not served.
func NewAccountService(users repository.UserRepository, blobs blob.Store, log *zap.Logger) *AccountServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountServiceImpl{users: users, blobs: blobs, log: log}
}

// UserExists maps a missing profile to false.
func (s *AccountServiceImpl) UserExists(ctx context.Context, email string) (bool, error) {
	addr, err := identity.ParseEmail(email)
	if err != nil {
		return false, err
	}
	_, err = s.users.GetProfile(ctx, identity.SafeKey(addr))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errs.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Register validates u and creates the user record.
func (s *AccountServiceImpl) Register(ctx context.Context, u model.ChatUser) error {
	addr, err := identity.ParseEmail(u.Email)
	if err != nil {
		return err
	}
	u.Email = addr
	u.FirstName, u.LastName = strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName)
	if u.FirstName == "" || u.LastName == "" {
		return fmt.Errorf("first and last name: %w", errs.ErrInvalidArgument)
	}
	key := u.SafeKey()
	err = s.users.CreateUser(ctx, key,
		model.Profile{FirstName: u.FirstName, LastName: u.LastName},
		model.UserEntry{Name: u.FullName(), Email: key})
	if err != nil {
		return err
	}
	s.log.Info("user registered", zap.String("user", key))
	return nil
}

// AllUsers returns the users directory or errs.ErrNotFound before the first registration.
func (s *AccountServiceImpl) AllUsers(ctx context.Context) ([]model.UserEntry, error) {
	return s.users.ListUsers(ctx)
}

// SearchUsers matches name prefixes case-insensitively.
func (s *AccountServiceImpl) SearchUsers(ctx context.Context, sess model.Session, term string) ([]model.UserEntry, error) {
	own := sess.Key()
	if own == "" {
		return nil, errs.ErrMissingIdentity
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, fmt.Errorf("search term: %w", errs.ErrInvalidArgument)
	}
	all, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := []model.UserEntry{}
	for _, u := range all {
		if u.Email == own {
			continue
		}
		if strings.HasPrefix(strings.ToLower(u.Name), term) {
			out = append(out, u)
		}
	}
	return out, nil
}

// UploadProfilePicture writes images/<key>_profile_picture.png.
func (s *AccountServiceImpl) UploadProfilePicture(ctx context.Context, email string, png []byte) (string, error) {
	p, err := s.picturePath(email)
	if err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", fmt.Errorf("profile picture: empty: %w", errs.ErrInvalidArgument)
	}
	if s.blobs == nil {
		return "", fmt.Errorf("profile picture: no blob store configured: %w", errs.ErrWriteFailed)
	}
	if err := s.blobs.Put(ctx, p, png, "image/png"); err != nil {
		s.log.Error("upload profile picture", zap.String("path", p), zap.Error(err))
		return "", err
	}
	return s.blobs.DownloadURL(ctx, p)
}

// ProfilePictureURL returns errs.ErrNotFound when no picture was uploaded.
func (s *AccountServiceImpl) ProfilePictureURL(ctx context.Context, email string) (string, error) {
	p, err := s.picturePath(email)
	if err != nil {
		return "", err
	}
	if s.blobs == nil {
		return "", fmt.Errorf("profile picture: %w", errs.ErrNotFound)
	}
	return s.blobs.DownloadURL(ctx, p)
}

func (s *AccountServiceImpl) picturePath(email string) (string, error) {
	addr, err := identity.ParseEmail(email)
	if err != nil {
		return "", err
	}
	return blob.ProfileImagePath(model.ChatUser{Email: addr}.ProfilePictureFileName()), nil
}
