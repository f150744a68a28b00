package kv

import (
	"context"
	"fmt"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/repository"
	"github.com/TomaszGol/iOS-Messenger/internal/store"
)

// CreateConversation implements repository.ConversationRepository. Both
// directory lists and the message log are read, extended and committed in a
// single Apply; a concurrent write to any of them restarts the cycle.
func (r *Repository) CreateConversation(ctx context.Context, c repository.NewConversation) error {
	if c.OwnKey == "" || c.PeerKey == "" {
		return errs.ErrMissingIdentity
	}
	if c.OwnKey == c.PeerKey {
		return fmt.Errorf("conversation with self: %w", errs.ErrInvalidArgument)
	}
	id := c.OwnSummary.ID
	if id == "" || c.PeerSummary.ID != id {
		return fmt.Errorf("summary ids %q/%q: %w", id, c.PeerSummary.ID, errs.ErrInvalidArgument)
	}
	for _, key := range []string{c.OwnKey, c.PeerKey} {
		if err := r.requireUser(ctx, key); err != nil {
			return err
		}
	}
	logValue, err := encode([]model.StoredMessage{c.First})
	if err != nil {
		return err
	}

	return r.withRetry(ctx, "create_conversation", func(ctx context.Context) error {
		logNode, err := r.get(ctx, MessagesPath(id))
		if err != nil {
			return err
		}
		if logNode.Ver > 0 {
			return fmt.Errorf("conversation %s: %w", id, errs.ErrAlreadyExists)
		}
		// peer first, matching the order the mobile client wrote them in
		writes := make([]store.Write, 0, 3)
		for _, side := range []struct {
			key     string
			summary model.ConversationSummary
		}{{c.PeerKey, c.PeerSummary}, {c.OwnKey, c.OwnSummary}} {
			w, err := r.appendWrite(ctx, side.key, side.summary)
			if err != nil {
				return err
			}
			writes = append(writes, w)
		}
		writes = append(writes, store.Write{Path: MessagesPath(id), BaseVer: 0, Value: logValue})
		_, err = r.store.Apply(ctx, writes)
		return err
	})
}

// appendWrite builds the write that adds summary to userKey's directory.
func (r *Repository) appendWrite(ctx context.Context, userKey string, summary model.ConversationSummary) (store.Write, error) {
	path := ConversationsPath(userKey)
	n, err := r.get(ctx, path)
	if err != nil {
		return store.Write{}, err
	}
	list, err := decodeList[model.ConversationSummary](path, n.Value)
	if err != nil {
		return store.Write{}, err
	}
	if indexOf(list, summary.ID) >= 0 {
		return store.Write{}, fmt.Errorf("conversation %s for %s: %w", summary.ID, userKey, errs.ErrAlreadyExists)
	}
	raw, err := encode(append(list, summary))
	if err != nil {
		return store.Write{}, err
	}
	return store.Write{Path: path, BaseVer: n.Ver, Value: raw}, nil
}
