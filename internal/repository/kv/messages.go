package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

// CreateLog implements repository.MessageLogRepository.
func (r *Repository) CreateLog(ctx context.Context, conversationID string, first model.StoredMessage) error {
	raw, err := encode([]model.StoredMessage{first})
	if err != nil {
		return err
	}
	_, err = r.store.CompareAndSet(ctx, MessagesPath(conversationID), 0, raw)
	if errors.Is(err, errs.ErrVersionConflict) {
		err = fmt.Errorf("conversation %s: %w", conversationID, errs.ErrAlreadyExists)
	}
	r.metrics.Write("create_log", err)
	return err
}

// AppendMessage implements repository.MessageLogRepository.
func (r *Repository) AppendMessage(ctx context.Context, conversationID string, msg model.StoredMessage) error {
	path := MessagesPath(conversationID)
	return r.mutate(ctx, "append_message", path, func(raw []byte, ver int64) ([]byte, error) {
		if ver == 0 {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, errs.ErrNotFound)
		}
		list, err := decodeList[model.StoredMessage](path, raw)
		if err != nil {
			return nil, err
		}
		return encode(append(list, msg))
	})
}

// ListMessages implements repository.MessageLogRepository.
func (r *Repository) ListMessages(ctx context.Context, conversationID string) ([]model.StoredMessage, error) {
	path := MessagesPath(conversationID)
	n, err := r.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeList[model.StoredMessage](path, n.Value)
}

// WatchMessages implements repository.MessageLogRepository.
func (r *Repository) WatchMessages(ctx context.Context, conversationID string) (<-chan []model.StoredMessage, error) {
	path := MessagesPath(conversationID)
	ok, err := r.exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, errs.ErrNotFound)
	}
	return watchList[model.StoredMessage](ctx, r, path)
}

// MarkRead implements repository.MessageLogRepository.
func (r *Repository) MarkRead(ctx context.Context, conversationID, readerKey string) (int, error) {
	path := MessagesPath(conversationID)
	var changed int
	err := r.mutate(ctx, "mark_read", path, func(raw []byte, ver int64) ([]byte, error) {
		changed = 0
		if ver == 0 {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, errs.ErrNotFound)
		}
		list, err := decodeList[model.StoredMessage](path, raw)
		if err != nil {
			return nil, err
		}
		for i := range list {
			if list[i].SenderKey != readerKey && !list[i].IsRead {
				list[i].IsRead = true
				changed++
			}
		}
		if changed == 0 {
			return nil, errSkip
		}
		return encode(list)
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
