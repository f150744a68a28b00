package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

// GetProfile implements repository.UserRepository.
func (r *Repository) GetProfile(ctx context.Context, userKey string) (model.Profile, error) {
	if userKey == "" {
		return model.Profile{}, errs.ErrMissingIdentity
	}
	n, err := r.store.Get(ctx, ProfilePath(userKey))
	if err != nil {
		return model.Profile{}, err
	}
	var p model.Profile
	if err := json.Unmarshal(n.Value, &p); err != nil {
		return model.Profile{}, fmt.Errorf("decode profile %s: %w", userKey, err)
	}
	return p, nil
}

// CreateUser implements repository.UserRepository.
func (r *Repository) CreateUser(ctx context.Context, userKey string, p model.Profile, entry model.UserEntry) error {
	if userKey == "" {
		return errs.ErrMissingIdentity
	}
	profile, err := encode(p)
	if err != nil {
		return err
	}
	return r.withRetry(ctx, "create_user", func(ctx context.Context) error {
		ok, err := r.exists(ctx, ProfilePath(userKey))
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("user %s: %w", userKey, errs.ErrAlreadyExists)
		}
		users, err := r.get(ctx, UsersPath)
		if err != nil {
			return err
		}
		list, err := decodeList[model.UserEntry](UsersPath, users.Value)
		if err != nil {
			return err
		}
		raw, err := encode(append(list, entry))
		if err != nil {
			return err
		}
		_, err = r.store.Apply(ctx, []store.Write{
			{Path: ProfilePath(userKey), BaseVer: 0, Value: profile},
			{Path: UsersPath, BaseVer: users.Ver, Value: raw},
		})
		return err
	})
}

// ListUsers implements repository.UserRepository.
func (r *Repository) ListUsers(ctx context.Context) ([]model.UserEntry, error) {
	n, err := r.store.Get(ctx, UsersPath)
	if err != nil {
		return nil, err
	}
	return decodeList[model.UserEntry](UsersPath, n.Value)
}
