package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/events"
	"github.com/TomaszGol/iOS-Messenger/internal/identity"
	"github.com/TomaszGol/iOS-Messenger/internal/metrics"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/repository"
)

// ConversationService defines the conversation sync operations of a signed-in user.
type ConversationService interface {
	// CreateConversation starts a conversation with peer, first being its first message.
	CreateConversation(ctx context.Context, s model.Session, peer model.Peer, first model.Message) (model.ConversationSummary, error)
	// SendMessage appends msg to an existing conversation and refreshes both summaries.
	SendMessage(ctx context.Context, s model.Session, conversationID string, peer model.Peer, msg model.Message) (model.SendResult, error)
	// ListConversations returns the session user's directory.
	ListConversations(ctx context.Context, s model.Session) ([]model.ConversationSummary, error)
	// ListMessages returns a conversation's log.
	ListMessages(ctx context.Context, s model.Session, conversationID string) ([]model.StoredMessage, error)
	// WatchConversations streams the session user's directory.
	WatchConversations(ctx context.Context, s model.Session) (<-chan []model.ConversationSummary, error)
	// WatchMessages streams a conversation's log.
	WatchMessages(ctx context.Context, s model.Session, conversationID string) (<-chan []model.StoredMessage, error)
	// FindConversation returns the session user's conversation with peerEmail.
	FindConversation(ctx context.Context, s model.Session, peerEmail string) (model.ConversationSummary, error)
	// MarkRead marks the peer's messages as read and refreshes the own summary.
	MarkRead(ctx context.Context, s model.Session, conversationID string) (int, error)
	// Repair reconciles the session user's summaries with the message logs.
	Repair(ctx context.Context, s model.Session) (model.RepairReport, error)
}

// Encoder turns an outgoing message into its stored form.
type Encoder interface {
	Encode(ctx context.Context, sender model.Session, m model.Message) (model.StoredMessage, error)
}

// ConversationServiceImpl implements ConversationService on a ConversationRepository.
type ConversationServiceImpl struct {
	repo    repository.ConversationRepository
	codec   Encoder
	events  events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewConversationService constructs ConversationService. pub, log and m may be nil.
func NewConversationService(repo repository.ConversationRepository, codec Encoder, pub events.Publisher, log *zap.Logger, m *metrics.Metrics) *ConversationServiceImpl {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationServiceImpl{repo: repo, codec: codec, events: pub, metrics: m, log: log, now: time.Now}
}

// CreateConversation writes both summaries and the message log atomically.
// The two summaries carry the same latest message. Both users and the
// absence of the log are checked before any media is uploaded.
func (s *ConversationServiceImpl) CreateConversation(ctx context.Context, sess model.Session, peer model.Peer, first model.Message) (model.ConversationSummary, error) {
	ownKey := sess.Key()
	if ownKey == "" || strings.TrimSpace(peer.Email) == "" {
		return model.ConversationSummary{}, errs.ErrMissingIdentity
	}
	peerKey, err := peerKeyOf(peer)
	if err != nil {
		return model.ConversationSummary{}, err
	}
	id := model.ConversationID(first.ID)
	for _, key := range []string{ownKey, peerKey} {
		if _, err := s.repo.ListConversations(ctx, key); err != nil {
			return model.ConversationSummary{}, err
		}
	}
	_, err = s.repo.ListMessages(ctx, id)
	switch {
	case err == nil:
		return model.ConversationSummary{}, fmt.Errorf("conversation %s: %w", id, errs.ErrAlreadyExists)
	case !errors.Is(err, errs.ErrNotFound):
		return model.ConversationSummary{}, err
	}

	stored, err := s.codec.Encode(ctx, sess, first)
	if err != nil {
		return model.ConversationSummary{}, err
	}
	latest := stored.Latest()
	own := model.ConversationSummary{ID: id, PeerKey: peerKey, Name: peer.Name, LatestMessage: latest}
	theirs := model.ConversationSummary{ID: id, PeerKey: ownKey, Name: sess.Name, LatestMessage: latest}

	err = s.repo.CreateConversation(ctx, repository.NewConversation{
		OwnKey:      ownKey,
		OwnSummary:  own,
		PeerKey:     peerKey,
		PeerSummary: theirs,
		First:       stored,
	})
	if err != nil {
		s.logOrphan(id, stored, err)
		return model.ConversationSummary{}, err
	}
	s.log.Info("conversation created", zap.String("conversation", id), zap.String("user", ownKey), zap.String("peer", peerKey))
	s.publish(ctx, events.ConversationCreated, id, ownKey, peerKey, stored)
	return own, nil
}

// SendMessage appends to the log, which is authoritative: its failure fails
// the call. The summary refreshes that follow are best-effort and reported
// in SendResult.SummaryErr.
func (s *ConversationServiceImpl) SendMessage(ctx context.Context, sess model.Session, conversationID string, peer model.Peer, msg model.Message) (model.SendResult, error) {
	ownKey := sess.Key()
	if ownKey == "" {
		return model.SendResult{}, errs.ErrMissingIdentity
	}
	if conversationID == "" {
		return model.SendResult{}, fmt.Errorf("conversation id: %w", errs.ErrInvalidArgument)
	}
	var peerKey string
	if strings.TrimSpace(peer.Email) != "" {
		k, err := peerKeyOf(peer)
		if err != nil {
			return model.SendResult{}, err
		}
		peerKey = k
	}
	if err := s.requireParticipant(ctx, ownKey, conversationID); err != nil {
		return model.SendResult{}, err
	}
	stored, err := s.codec.Encode(ctx, sess, msg)
	if err != nil {
		return model.SendResult{}, err
	}
	if err := s.repo.AppendMessage(ctx, conversationID, stored); err != nil {
		s.logOrphan(conversationID, stored, err)
		return model.SendResult{}, err
	}

	latest := stored.Latest()
	var summaryErrs []error
	if err := s.repo.UpdateLatestMessage(ctx, ownKey, conversationID, latest); err != nil {
		summaryErrs = append(summaryErrs, fmt.Errorf("own summary: %w", err))
	}
	if peerKey == "" {
		summaryErrs = append(summaryErrs, fmt.Errorf("peer summary: %w", errs.ErrMissingIdentity))
	} else if err := s.repo.UpdateLatestMessage(ctx, peerKey, conversationID, latest); err != nil {
		summaryErrs = append(summaryErrs, fmt.Errorf("peer summary: %w", err))
	}
	for _, e := range summaryErrs {
		s.metrics.SummaryFailed()
		s.log.Warn("summary not refreshed", zap.String("conversation", conversationID), zap.Error(e))
	}

	s.publish(ctx, events.MessageSent, conversationID, ownKey, peerKey, stored)
	return model.SendResult{
		ConversationID: conversationID,
		Message:        stored,
		SummaryErr:     errors.Join(summaryErrs...),
	}, nil
}

// ListConversations returns the session user's summaries.
func (s *ConversationServiceImpl) ListConversations(ctx context.Context, sess model.Session) ([]model.ConversationSummary, error) {
	key := sess.Key()
	if key == "" {
		return nil, errs.ErrMissingIdentity
	}
	return s.repo.ListConversations(ctx, key)
}

// ListMessages returns the log of conversationID.
func (s *ConversationServiceImpl) ListMessages(ctx context.Context, sess model.Session, conversationID string) ([]model.StoredMessage, error) {
	key := sess.Key()
	if key == "" {
		return nil, errs.ErrMissingIdentity
	}
	if err := s.requireParticipant(ctx, key, conversationID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, conversationID)
}

// WatchConversations streams the session user's summaries until ctx is done.
func (s *ConversationServiceImpl) WatchConversations(ctx context.Context, sess model.Session) (<-chan []model.ConversationSummary, error) {
	key := sess.Key()
	if key == "" {
		return nil, errs.ErrMissingIdentity
	}
	return s.repo.WatchConversations(ctx, key)
}

// WatchMessages streams the log of conversationID until ctx is done.
func (s *ConversationServiceImpl) WatchMessages(ctx context.Context, sess model.Session, conversationID string) (<-chan []model.StoredMessage, error) {
	key := sess.Key()
	if key == "" {
		return nil, errs.ErrMissingIdentity
	}
	if err := s.requireParticipant(ctx, key, conversationID); err != nil {
		return nil, err
	}
	return s.repo.WatchMessages(ctx, conversationID)
}

// FindConversation looks up an existing conversation with peerEmail.
func (s *ConversationServiceImpl) FindConversation(ctx context.Context, sess model.Session, peerEmail string) (model.ConversationSummary, error) {
	key := sess.Key()
	if key == "" {
		return model.ConversationSummary{}, errs.ErrMissingIdentity
	}
	email, err := identity.ParseEmail(peerEmail)
	if err != nil {
		return model.ConversationSummary{}, err
	}
	list, err := s.repo.ListConversations(ctx, key)
	if err != nil {
		return model.ConversationSummary{}, err
	}
	peerKey := identity.SafeKey(email)
	for _, c := range list {
		if c.PeerKey == peerKey {
			return c, nil
		}
	}
	return model.ConversationSummary{}, fmt.Errorf("conversation with %s: %w", peerKey, errs.ErrNotFound)
}

// MarkRead flags the peer's messages as read, then copies the newest log
// entry into the session user's summary.
func (s *ConversationServiceImpl) MarkRead(ctx context.Context, sess model.Session, conversationID string) (int, error) {
	key := sess.Key()
	if key == "" {
		return 0, errs.ErrMissingIdentity
	}
	if err := s.requireParticipant(ctx, key, conversationID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, conversationID, key)
	if err != nil || n == 0 {
		return n, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return n, err
	}
	if len(msgs) > 0 {
		if err := s.repo.UpdateLatestMessage(ctx, key, conversationID, msgs[len(msgs)-1].Latest()); err != nil {
			s.metrics.SummaryFailed()
			s.log.Warn("summary not refreshed", zap.String("conversation", conversationID), zap.Error(err))
		}
	}
	return n, nil
}

// Repair rewrites every summary whose latest message disagrees with the
// last entry of its log. Summaries without a log are reported as dangling.
func (s *ConversationServiceImpl) Repair(ctx context.Context, sess model.Session) (model.RepairReport, error) {
	key := sess.Key()
	if key == "" {
		return model.RepairReport{}, errs.ErrMissingIdentity
	}
	list, err := s.repo.ListConversations(ctx, key)
	if err != nil {
		return model.RepairReport{}, err
	}
	var rep model.RepairReport
	for _, c := range list {
		rep.Checked++
		msgs, err := s.repo.ListMessages(ctx, c.ID)
		if errors.Is(err, errs.ErrNotFound) {
			rep.Dangling = append(rep.Dangling, c.ID)
			continue
		}
		if err != nil {
			return rep, err
		}
		if len(msgs) == 0 {
			continue
		}
		want := msgs[len(msgs)-1].Latest()
		if want == c.LatestMessage {
			continue
		}
		if err := s.repo.UpdateLatestMessage(ctx, key, c.ID, want); err != nil {
			return rep, err
		}
		rep.Refreshed = append(rep.Refreshed, c.ID)
	}
	if len(rep.Refreshed) > 0 || len(rep.Dangling) > 0 {
		s.log.Info("directory repaired",
			zap.String("user", key),
			zap.Strings("refreshed", rep.Refreshed),
			zap.Strings("dangling", rep.Dangling))
	}
	return rep, nil
}

// requireParticipant fails with errs.ErrNotFound unless conversationID is in
// the user's directory; outsiders cannot tell a foreign conversation from a
// missing one.
func (s *ConversationServiceImpl) requireParticipant(ctx context.Context, userKey, conversationID string) error {
	list, err := s.repo.ListConversations(ctx, userKey)
	if err != nil {
		return err
	}
	for _, c := range list {
		if c.ID == conversationID {
			return nil
		}
	}
	return fmt.Errorf("conversation %s for %s: %w", conversationID, userKey, errs.ErrNotFound)
}

// peerKeyOf validates the peer's email; record keys are only derived from
// well-formed addresses.
func peerKeyOf(p model.Peer) (string, error) {
	addr, err := identity.ParseEmail(p.Email)
	if err != nil {
		return "", fmt.Errorf("peer: %w", err)
	}
	return identity.SafeKey(addr), nil
}

// logOrphan records media uploaded for a message that was never stored.
func (s *ConversationServiceImpl) logOrphan(conversationID string, m model.StoredMessage, cause error) {
	if m.Type != model.TypePhoto && m.Type != model.TypeVideo {
		return
	}
	s.log.Warn("uploaded media not referenced",
		zap.String("conversation", conversationID),
		zap.String("message", m.ID),
		zap.String("url", m.Content),
		zap.Error(cause))
}

// publish is best-effort; the write it reports has already committed.
func (s *ConversationServiceImpl) publish(ctx context.Context, typ events.Type, conversationID, senderKey, peerKey string, m model.StoredMessage) {
	err := s.events.Publish(ctx, events.Event{
		Type:           typ,
		ConversationID: conversationID,
		SenderKey:      senderKey,
		PeerKey:        peerKey,
		MessageID:      m.ID,
		MessageType:    string(m.Type),
		At:             s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("event dropped", zap.String("type", string(typ)), zap.Error(err))
	}
}
