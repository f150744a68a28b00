package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

// ListConversations implements repository.DirectoryRepository.
func (r *Repository) ListConversations(ctx context.Context, userKey string) ([]model.ConversationSummary, error) {
	if err := r.requireUser(ctx, userKey); err != nil {
		return nil, err
	}
	path := ConversationsPath(userKey)
	n, err := r.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeList[model.ConversationSummary](path, n.Value)
}

// AppendConversation implements repository.DirectoryRepository.
func (r *Repository) AppendConversation(ctx context.Context, userKey string, summary model.ConversationSummary) error {
	if err := r.requireUser(ctx, userKey); err != nil {
		return err
	}
	path := ConversationsPath(userKey)
	return r.mutate(ctx, "append_conversation", path, func(raw []byte, _ int64) ([]byte, error) {
		list, err := decodeList[model.ConversationSummary](path, raw)
		if err != nil {
			return nil, err
		}
		if indexOf(list, summary.ID) >= 0 {
			return nil, fmt.Errorf("conversation %s for %s: %w", summary.ID, userKey, errs.ErrAlreadyExists)
		}
		return encode(append(list, summary))
	})
}

// UpdateLatestMessage implements repository.DirectoryRepository.
func (r *Repository) UpdateLatestMessage(ctx context.Context, userKey, conversationID string, latest model.LatestMessage) error {
	path := ConversationsPath(userKey)
	return r.mutate(ctx, "update_latest_message", path, func(raw []byte, ver int64) ([]byte, error) {
		if ver == 0 {
			return nil, fmt.Errorf("conversations of %s: %w", userKey, errs.ErrNotFound)
		}
		list, err := decodeList[model.ConversationSummary](path, raw)
		if err != nil {
			return nil, err
		}
		i := indexOf(list, conversationID)
		if i < 0 {
			return nil, fmt.Errorf("conversation %s for %s: %w", conversationID, userKey, errs.ErrNotFound)
		}
		list[i].LatestMessage = latest
		return encode(list)
	})
}

// WatchConversations implements repository.DirectoryRepository.
func (r *Repository) WatchConversations(ctx context.Context, userKey string) (<-chan []model.ConversationSummary, error) {
	if err := r.requireUser(ctx, userKey); err != nil {
		return nil, err
	}
	return watchList[model.ConversationSummary](ctx, r, ConversationsPath(userKey))
}

// requireUser accepts only keys whose node holds a profile object; the users
// list and message logs are arrays and fail to decode.
func (r *Repository) requireUser(ctx context.Context, userKey string) error {
	if userKey == "" {
		return errs.ErrMissingIdentity
	}
	n, err := r.get(ctx, ProfilePath(userKey))
	if err != nil {
		return err
	}
	var p model.Profile
	if n.Ver == 0 || json.Unmarshal(n.Value, &p) != nil {
		return fmt.Errorf("user %s: %w", userKey, errs.ErrNotFound)
	}
	return nil
}

// indexOf returns the first summary with id, or -1.
func indexOf(list []model.ConversationSummary, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
