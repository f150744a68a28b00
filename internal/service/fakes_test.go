package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/events"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/repository"
)

type fakeConvRepo struct {
	mu    sync.Mutex
	users map[string]bool
	dirs  map[string][]model.ConversationSummary
	logs  map[string][]model.StoredMessage

	createIn  repository.NewConversation
	createErr error
	appendErr error
	// updateErr fails UpdateLatestMessage for the listed user keys.
	updateErr map[string]error
	markIn    string
}

var _ repository.ConversationRepository = (*fakeConvRepo)(nil)

func newFakeConvRepo(users ...string) *fakeConvRepo {
	f := &fakeConvRepo{
		users:     map[string]bool{},
		dirs:      map[string][]model.ConversationSummary{},
		logs:      map[string][]model.StoredMessage{},
		updateErr: map[string]error{},
	}
	for _, u := range users {
		f.users[u] = true
	}
	return f
}

func (f *fakeConvRepo) ListConversations(_ context.Context, userKey string) ([]model.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.users[userKey] {
		return nil, errs.ErrNotFound
	}
	return append([]model.ConversationSummary{}, f.dirs[userKey]...), nil
}

func (f *fakeConvRepo) AppendConversation(_ context.Context, userKey string, s model.ConversationSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirs[userKey] = append(f.dirs[userKey], s)
	return nil
}

func (f *fakeConvRepo) UpdateLatestMessage(_ context.Context, userKey, id string, latest model.LatestMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[userKey]; err != nil {
		return err
	}
	for i := range f.dirs[userKey] {
		if f.dirs[userKey][i].ID == id {
			f.dirs[userKey][i].LatestMessage = latest
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeConvRepo) WatchConversations(_ context.Context, userKey string) (<-chan []model.ConversationSummary, error) {
	ch := make(chan []model.ConversationSummary, 1)
	ch <- f.dirs[userKey]
	close(ch)
	return ch, nil
}

func (f *fakeConvRepo) CreateLog(_ context.Context, id string, first model.StoredMessage) error {
	f.logs[id] = []model.StoredMessage{first}
	return nil
}

func (f *fakeConvRepo) AppendMessage(_ context.Context, id string, m model.StoredMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	if _, ok := f.logs[id]; !ok {
		return fmt.Errorf("conversation %s: %w", id, errs.ErrNotFound)
	}
	f.logs[id] = append(f.logs[id], m)
	return nil
}

func (f *fakeConvRepo) ListMessages(_ context.Context, id string) ([]model.StoredMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return append([]model.StoredMessage{}, l...), nil
}

func (f *fakeConvRepo) WatchMessages(_ context.Context, id string) (<-chan []model.StoredMessage, error) {
	l, ok := f.logs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	ch := make(chan []model.StoredMessage, 1)
	ch <- l
	close(ch)
	return ch, nil
}

func (f *fakeConvRepo) MarkRead(_ context.Context, id, reader string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markIn = reader
	l, ok := f.logs[id]
	if !ok {
		return 0, errs.ErrNotFound
	}
	n := 0
	for i := range l {
		if l[i].SenderKey != reader && !l[i].IsRead {
			l[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeConvRepo) CreateConversation(_ context.Context, c repository.NewConversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createIn = c
	if f.createErr != nil {
		return f.createErr
	}
	f.dirs[c.PeerKey] = append(f.dirs[c.PeerKey], c.PeerSummary)
	f.dirs[c.OwnKey] = append(f.dirs[c.OwnKey], c.OwnSummary)
	f.logs[c.OwnSummary.ID] = []model.StoredMessage{c.First}
	return nil
}

// textEncoder stores every message as text dated "D".
type textEncoder struct{ err error }

func (e textEncoder) Encode(_ context.Context, s model.Session, m model.Message) (model.StoredMessage, error) {
	if e.err != nil {
		return model.StoredMessage{}, e.err
	}
	return model.StoredMessage{ID: m.ID, Type: model.TypeText, Content: m.Text, Date: "D", SenderKey: s.Key(), SenderName: s.Name}, nil
}

// countingEncoder wraps textEncoder and counts calls.
type countingEncoder struct {
	textEncoder
	calls int
}

func (e *countingEncoder) Encode(ctx context.Context, s model.Session, m model.Message) (model.StoredMessage, error) {
	e.calls++
	return e.textEncoder.Encode(ctx, s, m)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fakeUserRepo struct {
	profiles map[string]model.Profile
	users    []model.UserEntry
	usersErr error
	getErr   error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func (f *fakeUserRepo) GetProfile(_ context.Context, key string) (model.Profile, error) {
	if f.getErr != nil {
		return model.Profile{}, f.getErr
	}
	p, ok := f.profiles[key]
	if !ok {
		return model.Profile{}, errs.ErrNotFound
	}
	return p, nil
}

func (f *fakeUserRepo) CreateUser(_ context.Context, key string, p model.Profile, e model.UserEntry) error {
	if _, ok := f.profiles[key]; ok {
		return errs.ErrAlreadyExists
	}
	f.profiles[key] = p
	f.users = append(f.users, e)
	return nil
}

func (f *fakeUserRepo) ListUsers(context.Context) ([]model.UserEntry, error) {
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	if f.users == nil {
		return nil, errs.ErrNotFound
	}
	return f.users, nil
}
