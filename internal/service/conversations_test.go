package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/events"
	"github.com/TomaszGol/iOS-Messenger/internal/metrics"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

const (
	aliceKey = "alice-40example-2ecom"
	bobKey   = "bob-40example-2ecom"
)

var (
	alice = model.Session{Email: "alice@example.com", Name: "Alice A"}
	bob   = model.Peer{Email: "bob@example.com", Name: "Bob B"}
)

func newConvService(t *testing.T, repo *fakeConvRepo, pub *recordingPublisher) (*ConversationServiceImpl, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	var p events.Publisher
	if pub != nil {
		p = pub
	}
	return NewConversationService(repo, textEncoder{}, p, zaptest.NewLogger(t), m), m
}

func TestCreateConversation_Postconditions(t *testing.T) {
	repo := newFakeConvRepo(aliceKey, bobKey)
	pub := &recordingPublisher{}
	s, _ := newConvService(t, repo, pub)

	got, err := s.CreateConversation(context.Background(), alice, bob, model.Message{ID: "m1", Kind: model.KindText, Text: "hi"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if got.ID != "conversation_m1" || got.PeerKey != bobKey || got.Name != "Bob B" {
		t.Fatalf("own summary: %+v", got)
	}

	in := repo.createIn
	if in.OwnKey != aliceKey || in.PeerKey != bobKey {
		t.Fatalf("keys: %+v", in)
	}
	if in.PeerSummary.PeerKey != aliceKey || in.PeerSummary.Name != "Alice A" || in.PeerSummary.ID != got.ID {
		t.Fatalf("peer summary: %+v", in.PeerSummary)
	}
	if in.OwnSummary.LatestMessage != in.PeerSummary.LatestMessage {
		t.Fatalf("latest messages differ: %+v vs %+v", in.OwnSummary.LatestMessage, in.PeerSummary.LatestMessage)
	}
	want := model.LatestMessage{Date: "D", Text: "hi"}
	if in.OwnSummary.LatestMessage != want {
		t.Fatalf("latest: %+v", in.OwnSummary.LatestMessage)
	}
	if in.First.ID != "m1" || in.First.SenderKey != aliceKey {
		t.Fatalf("first message: %+v", in.First)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.ConversationCreated || pub.events[0].ConversationID != "conversation_m1" {
		t.Fatalf("events: %+v", pub.events)
	}
}

func TestCreateConversation_MissingIdentity(t *testing.T) {
	repo := newFakeConvRepo()
	s, _ := newConvService(t, repo, nil)
	ctx := context.Background()
	msg := model.Message{ID: "m1", Text: "hi"}

	if _, err := s.CreateConversation(ctx, model.Session{}, bob, msg); !errors.Is(err, errs.ErrMissingIdentity) {
		t.Fatalf("no session: %v", err)
	}
	if _, err := s.CreateConversation(ctx, alice, model.Peer{Name: "x"}, msg); !errors.Is(err, errs.ErrMissingIdentity) {
		t.Fatalf("no peer: %v", err)
	}
	if repo.createIn.OwnKey != "" {
		t.Fatalf("repository must not be called")
	}
}

func TestCreateConversation_Errors(t *testing.T) {
	ctx := context.Background()

	repo := newFakeConvRepo(aliceKey, bobKey)
	s := NewConversationService(repo, textEncoder{err: errs.ErrUnsupportedContent}, nil, nil, nil)
	if _, err := s.CreateConversation(ctx, alice, bob, model.Message{ID: "m1"}); !errors.Is(err, errs.ErrUnsupportedContent) {
		t.Fatalf("encode error: %v", err)
	}

	repo.createErr = errs.ErrWriteFailed
	pub := &recordingPublisher{}
	s, _ = newConvService(t, repo, pub)
	if _, err := s.CreateConversation(ctx, alice, bob, model.Message{ID: "m1"}); !errors.Is(err, errs.ErrWriteFailed) {
		t.Fatalf("repo error: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event on failure, got %+v", pub.events)
	}
}

func TestCreateConversation_EventFailureIgnored(t *testing.T) {
	repo := newFakeConvRepo(aliceKey, bobKey)
	s, _ := newConvService(t, repo, &recordingPublisher{err: errors.New("kafka down")})
	if _, err := s.CreateConversation(context.Background(), alice, bob, model.Message{ID: "m1"}); err != nil {
		t.Fatalf("event failure must not fail the call: %v", err)
	}
}

func seeded(t *testing.T) *fakeConvRepo {
	t.Helper()
	repo := newFakeConvRepo(aliceKey, bobKey)
	s, _ := newConvService(t, repo, nil)
	if _, err := s.CreateConversation(context.Background(), alice, bob, model.Message{ID: "m1", Text: "hi"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return repo
}

func TestSendMessage_Postconditions(t *testing.T) {
	repo := seeded(t)
	pub := &recordingPublisher{}
	s, m := newConvService(t, repo, pub)

	res, err := s.SendMessage(context.Background(), alice, "conversation_m1", bob, model.Message{ID: "m2", Text: "second"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.SummaryErr != nil {
		t.Fatalf("SummaryErr: %v", res.SummaryErr)
	}
	if res.ConversationID != "conversation_m1" || res.Message.ID != "m2" {
		t.Fatalf("result: %+v", res)
	}
	log := repo.logs["conversation_m1"]
	if len(log) != 2 || log[1].ID != "m2" {
		t.Fatalf("log: %+v", log)
	}
	want := model.LatestMessage{Date: "D", Text: "second"}
	if repo.dirs[aliceKey][0].LatestMessage != want || repo.dirs[bobKey][0].LatestMessage != want {
		t.Fatalf("summaries not refreshed: %+v / %+v", repo.dirs[aliceKey], repo.dirs[bobKey])
	}
	if got := testutil.ToFloat64(m.SummaryFailures); got != 0 {
		t.Fatalf("summary failures = %v", got)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.MessageSent || pub.events[0].MessageID != "m2" {
		t.Fatalf("events: %+v", pub.events)
	}
}

func TestSendMessage_LogMissing(t *testing.T) {
	repo := newFakeConvRepo(aliceKey, bobKey)
	s, _ := newConvService(t, repo, nil)
	_, err := s.SendMessage(context.Background(), alice, "conversation_404", bob, model.Message{ID: "m2"})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	s, _ := newConvService(t, newFakeConvRepo(), nil)
	ctx := context.Background()
	if _, err := s.SendMessage(ctx, model.Session{}, "c", bob, model.Message{ID: "m"}); !errors.Is(err, errs.ErrMissingIdentity) {
		t.Fatalf("no session: %v", err)
	}
	if _, err := s.SendMessage(ctx, alice, "", bob, model.Message{ID: "m"}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("no conversation: %v", err)
	}
}

func TestSendMessage_AppendFailsNoSummaryWrites(t *testing.T) {
	repo := seeded(t)
	repo.appendErr = errs.ErrWriteFailed
	s, _ := newConvService(t, repo, nil)

	_, err := s.SendMessage(context.Background(), alice, "conversation_m1", bob, model.Message{ID: "m2", Text: "x"})
	if !errors.Is(err, errs.ErrWriteFailed) {
		t.Fatalf("want WriteFailed, got %v", err)
	}
	if repo.dirs[aliceKey][0].LatestMessage.Text != "hi" {
		t.Fatalf("summary must stay untouched")
	}
}

func TestSendMessage_SummaryFailureIsReported(t *testing.T) {
	repo := seeded(t)
	repo.updateErr[bobKey] = errs.ErrWriteFailed
	s, m := newConvService(t, repo, nil)

	res, err := s.SendMessage(context.Background(), alice, "conversation_m1", bob, model.Message{ID: "m2", Text: "x"})
	if err != nil {
		t.Fatalf("send must succeed: %v", err)
	}
	if !errors.Is(res.SummaryErr, errs.ErrWriteFailed) {
		t.Fatalf("SummaryErr = %v", res.SummaryErr)
	}
	if repo.dirs[aliceKey][0].LatestMessage.Text != "x" {
		t.Fatalf("own summary should still be refreshed")
	}
	if got := testutil.ToFloat64(m.SummaryFailures); got != 1 {
		t.Fatalf("summary failures = %v", got)
	}
}

func TestSendMessage_PeerWithoutEmail(t *testing.T) {
	repo := seeded(t)
	s, _ := newConvService(t, repo, nil)
	res, err := s.SendMessage(context.Background(), alice, "conversation_m1", model.Peer{}, model.Message{ID: "m2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !errors.Is(res.SummaryErr, errs.ErrMissingIdentity) {
		t.Fatalf("SummaryErr = %v", res.SummaryErr)
	}
}

func TestListAndWatch(t *testing.T) {
	repo := seeded(t)
	s, _ := newConvService(t, repo, nil)
	ctx := context.Background()

	list, err := s.ListConversations(ctx, alice)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListConversations: %v %+v", err, list)
	}
	msgs, err := s.ListMessages(ctx, alice, "conversation_m1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("ListMessages: %v %+v", err, msgs)
	}
	ch, err := s.WatchConversations(ctx, alice)
	if err != nil || len(<-ch) != 1 {
		t.Fatalf("WatchConversations: %v", err)
	}
	mch, err := s.WatchMessages(ctx, alice, "conversation_m1")
	if err != nil || len(<-mch) != 1 {
		t.Fatalf("WatchMessages: %v", err)
	}

	for name, call := range map[string]func() error{
		"list":  func() error { _, err := s.ListConversations(ctx, model.Session{}); return err },
		"msgs":  func() error { _, err := s.ListMessages(ctx, model.Session{}, "c"); return err },
		"watch": func() error { _, err := s.WatchConversations(ctx, model.Session{}); return err },
		"wmsgs": func() error { _, err := s.WatchMessages(ctx, model.Session{}, "c"); return err },
		"find":  func() error { _, err := s.FindConversation(ctx, model.Session{}, "bob@example.com"); return err },
		"read":  func() error { _, err := s.MarkRead(ctx, model.Session{}, "c"); return err },
		"fix":   func() error { _, err := s.Repair(ctx, model.Session{}); return err },
	} {
		if err := call(); !errors.Is(err, errs.ErrMissingIdentity) {
			t.Fatalf("%s without session: %v", name, err)
		}
	}
}

func TestFindConversation(t *testing.T) {
	repo := seeded(t)
	s, _ := newConvService(t, repo, nil)
	ctx := context.Background()

	got, err := s.FindConversation(ctx, alice, " bob@example.com ")
	if err != nil || got.ID != "conversation_m1" {
		t.Fatalf("FindConversation: %v %+v", err, got)
	}
	if _, err := s.FindConversation(ctx, alice, "carol@example.com"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown peer: %v", err)
	}
	if _, err := s.FindConversation(ctx, alice, "not an email"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("bad email: %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	repo := seeded(t) // m1 sent by alice
	s, _ := newConvService(t, repo, nil)
	ctx := context.Background()

	bobSession := model.Session{Email: bob.Email, Name: bob.Name}
	n, err := s.MarkRead(ctx, bobSession, "conversation_m1")
	if err != nil || n != 1 {
		t.Fatalf("MarkRead: %d %v", n, err)
	}
	if repo.markIn != bobKey {
		t.Fatalf("reader = %q", repo.markIn)
	}
	if !repo.dirs[bobKey][0].LatestMessage.IsRead {
		t.Fatalf("bob's summary should be read")
	}
	if repo.dirs[aliceKey][0].LatestMessage.IsRead {
		t.Fatalf("alice's summary must not change")
	}

	n, err = s.MarkRead(ctx, bobSession, "conversation_m1")
	if err != nil || n != 0 {
		t.Fatalf("second MarkRead: %d %v", n, err)
	}
	if _, err := s.MarkRead(ctx, bobSession, "conversation_404"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing log: %v", err)
	}
}

func TestRepair(t *testing.T) {
	repo := newFakeConvRepo(aliceKey)
	repo.dirs[aliceKey] = []model.ConversationSummary{
		{ID: "c_ok", LatestMessage: model.LatestMessage{Date: "D", Text: "same"}},
		{ID: "c_stale", LatestMessage: model.LatestMessage{Date: "D", Text: "old"}},
		{ID: "c_gone"},
		{ID: "c_empty"},
	}
	repo.logs["c_ok"] = []model.StoredMessage{{ID: "1", Date: "D", Content: "same"}}
	repo.logs["c_stale"] = []model.StoredMessage{{ID: "1", Date: "D", Content: "old"}, {ID: "2", Date: "E", Content: "new"}}
	repo.logs["c_empty"] = []model.StoredMessage{}
	s, _ := newConvService(t, repo, nil)

	rep, err := s.Repair(context.Background(), alice)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if rep.Checked != 4 {
		t.Fatalf("checked = %d", rep.Checked)
	}
	if len(rep.Refreshed) != 1 || rep.Refreshed[0] != "c_stale" {
		t.Fatalf("refreshed = %v", rep.Refreshed)
	}
	if len(rep.Dangling) != 1 || rep.Dangling[0] != "c_gone" {
		t.Fatalf("dangling = %v", rep.Dangling)
	}
	if repo.dirs[aliceKey][1].LatestMessage != (model.LatestMessage{Date: "E", Text: "new"}) {
		t.Fatalf("stale summary not rewritten: %+v", repo.dirs[aliceKey][1])
	}

	rep, err = s.Repair(context.Background(), alice)
	if err != nil || len(rep.Refreshed) != 0 {
		t.Fatalf("second pass should be clean: %+v %v", rep, err)
	}
}

func TestRepair_UnknownUser(t *testing.T) {
	s, _ := newConvService(t, newFakeConvRepo(), nil)
	if _, err := s.Repair(context.Background(), alice); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want NotFound, got %v", err)
	}
}

func TestCreateConversation_PeerMustBeEmail(t *testing.T) {
	repo := newFakeConvRepo(aliceKey, bobKey, "users")
	s, _ := newConvService(t, repo, nil)
	ctx := context.Background()

	for _, email := range []string{"users", "conversation_m1", aliceKey} {
		_, err := s.CreateConversation(ctx, alice, model.Peer{Email: email}, model.Message{ID: "m1", Text: "hi"})
		if !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("peer %q: want InvalidArgument, got %v", email, err)
		}
	}
	if repo.createIn.OwnKey != "" || len(repo.logs) != 0 {
		t.Fatalf("repository must not be written")
	}
}

func TestCreateConversation_ChecksBeforeEncoding(t *testing.T) {
	ctx := context.Background()
	enc := &countingEncoder{}

	repo := newFakeConvRepo(aliceKey)
	s := NewConversationService(repo, enc, nil, zaptest.NewLogger(t), nil)
	if _, err := s.CreateConversation(ctx, alice, bob, model.Message{ID: "m1", Kind: model.KindPhoto}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown peer: %v", err)
	}

	repo = seeded(t)
	s = NewConversationService(repo, enc, nil, zaptest.NewLogger(t), nil)
	if _, err := s.CreateConversation(ctx, alice, bob, model.Message{ID: "m1", Kind: model.KindPhoto}); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("existing log: %v", err)
	}
	if enc.calls != 0 {
		t.Fatalf("encoder called %d times", enc.calls)
	}
}

func TestSendMessage_PeerMustBeEmail(t *testing.T) {
	repo := seeded(t)
	s, _ := newConvService(t, repo, nil)
	_, err := s.SendMessage(context.Background(), alice, "conversation_m1", model.Peer{Email: "conversation_m1"}, model.Message{ID: "m2"})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want InvalidArgument, got %v", err)
	}
	if len(repo.logs["conversation_m1"]) != 1 {
		t.Fatalf("log must not grow: %+v", repo.logs["conversation_m1"])
	}
}

func TestConversation_OutsiderGetsNotFound(t *testing.T) {
	repo := seeded(t)
	const carolKey = "carol-40example-2ecom"
	repo.users[carolKey] = true
	carol := model.Session{Email: "carol@example.com", Name: "Carol C"}
	s, _ := newConvService(t, repo, nil)
	ctx := context.Background()

	for name, call := range map[string]func() error{
		"send": func() error {
			_, err := s.SendMessage(ctx, carol, "conversation_m1", bob, model.Message{ID: "m9", Text: "x"})
			return err
		},
		"list":  func() error { _, err := s.ListMessages(ctx, carol, "conversation_m1"); return err },
		"watch": func() error { _, err := s.WatchMessages(ctx, carol, "conversation_m1"); return err },
		"read":  func() error { _, err := s.MarkRead(ctx, carol, "conversation_m1"); return err },
	} {
		if err := call(); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("%s by outsider: %v", name, err)
		}
	}
	log := repo.logs["conversation_m1"]
	if len(log) != 1 || log[0].IsRead {
		t.Fatalf("log changed: %+v", log)
	}
	if repo.markIn != "" {
		t.Fatalf("MarkRead reached the repository as %q", repo.markIn)
	}
}
