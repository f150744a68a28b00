package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/TomaszGol/iOS-Messenger/internal/api/messengerv1"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
	"github.com/TomaszGol/iOS-Messenger/internal/session"
)

var errUnknownCommand = errors.New("unknown command")

var videoExts = map[string]bool{".mov": true, ".mp4": true, ".m4v": true}

// app runs the commands that talk to the server.
type app struct {
	cli v1.MessengerClient
	out io.Writer
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "exists":
		return a.exists(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "users":
		resp, err := a.cli.AllUsers(ctx, &v1.AllUsersRequest{})
		if err != nil {
			return err
		}
		printJSON(a.out, resp.Users)
		return nil
	case "search":
		return a.search(ctx, args)
	case "avatar":
		return a.avatar(ctx, args)
	case "avatar-url":
		return a.avatarURL(ctx, args)
	case "conversations":
		resp, err := a.cli.ListConversations(ctx, &v1.ListConversationsRequest{})
		if err != nil {
			return err
		}
		printJSON(a.out, resp.Conversations)
		return nil
	case "find":
		return a.find(ctx, args)
	case "messages":
		return a.messages(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	case "new":
		return a.newConversation(ctx, args)
	case "send":
		return a.send(ctx, args)
	case "photo":
		return a.media(ctx, args)
	case "read":
		return a.read(ctx, args)
	case "repair":
		resp, err := a.cli.Repair(ctx, &v1.RepairRequest{})
		if err != nil {
			return err
		}
		printJSON(a.out, resp)
		return nil
	default:
		return fmt.Errorf("%s: %w", cmd, errUnknownCommand)
	}
}

// ------- offline commands -------

// cmdToken signs a session token with the server's shared key. Dev setups
// use it in place of an identity provider.
func cmdToken(args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	email := fs.String("email", "", "user email")
	name := fs.String("name", "", "display name")
	key := fs.String("key", "", "HS256 signing key (server jwt.key)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *key == "" {
		return errors.New("need -email and -key")
	}
	tok, err := session.Sign([]byte(*key), model.Session{Email: *email, Name: *name}, *ttl, now)
	if err != nil {
		return err
	}
	if err := saveToken(tokenFile{AccessToken: tok, Email: *email, ExpiresAt: now.Add(*ttl)}); err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	return nil
}

func cmdLogin(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	tok := fs.String("token", "", "issued JWT")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tok == "" {
		return errors.New("need -token")
	}
	tf, err := inspectToken(*tok)
	if err != nil {
		return err
	}
	if err := saveToken(tf); err != nil {
		return err
	}
	fmt.Fprintf(out, "ok (%s until %s)\n", tf.Email, tf.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

// ------- accounts -------

func (a *app) exists(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("exists", flag.ContinueOnError)
	email := fs.String("email", "", "user email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("need -email")
	}
	resp, err := a.cli.UserExists(ctx, &v1.UserExistsRequest{Email: *email})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.Exists)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *first == "" || *last == "" {
		return errors.New("need -first and -last")
	}
	resp, err := a.cli.Register(ctx, &v1.RegisterRequest{FirstName: *first, LastName: *last})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.UserKey)
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	q := fs.String("q", "", "name prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := a.cli.SearchUsers(ctx, &v1.SearchUsersRequest{Term: *q})
	if err != nil {
		return err
	}
	printJSON(a.out, resp.Users)
	return nil
}

func (a *app) avatar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("avatar", flag.ContinueOnError)
	file := fs.String("file", "", "PNG file ('-'=stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("need -file")
	}
	data, err := readAll(*file)
	if err != nil {
		return err
	}
	resp, err := a.cli.UploadProfilePicture(ctx, &v1.UploadProfilePictureRequest{PNG: data})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.URL)
	return nil
}

func (a *app) avatarURL(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("avatar-url", flag.ContinueOnError)
	email := fs.String("email", "", "user email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := a.cli.ProfilePictureURL(ctx, &v1.ProfilePictureURLRequest{Email: *email})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.URL)
	return nil
}

// ------- conversations -------

func (a *app) find(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	email := fs.String("email", "", "peer email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := a.cli.FindConversation(ctx, &v1.FindConversationRequest{PeerEmail: *email})
	if err != nil {
		return err
	}
	printJSON(a.out, resp.Conversation)
	return nil
}

func (a *app) messages(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	id := fs.String("c", "", "conversation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("need -c")
	}
	resp, err := a.cli.ListMessages(ctx, &v1.ListMessagesRequest{ConversationID: *id})
	if err != nil {
		return err
	}
	printJSON(a.out, resp.Messages)
	return nil
}

// watch prints every snapshot of the directory, or of one conversation's log
// when -c is given, until ctx ends.
func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	id := fs.String("c", "", "conversation id (default: conversation list)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		stream, err := a.cli.WatchConversations(ctx, &v1.WatchConversationsRequest{})
		if err != nil {
			return err
		}
		return drain(ctx, a.out, stream.Recv, func(r *v1.ConversationsResponse) any { return r.Conversations })
	}
	stream, err := a.cli.WatchMessages(ctx, &v1.WatchMessagesRequest{ConversationID: *id})
	if err != nil {
		return err
	}
	return drain(ctx, a.out, stream.Recv, func(r *v1.MessagesResponse) any { return r.Messages })
}

func drain[T any](ctx context.Context, out io.Writer, recv func() (*T, error), view func(*T) any) error {
	for {
		msg, err := recv()
		if errors.Is(err, io.EOF) || (err != nil && ctx.Err() != nil) {
			return nil
		}
		if err != nil {
			return err
		}
		printJSON(out, view(msg))
	}
}

func (a *app) newConversation(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	to := fs.String("to", "", "peer email")
	name := fs.String("name", "", "peer display name")
	text := fs.String("text", "", "first message")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" || *text == "" {
		return errors.New("need -to and -text")
	}
	resp, err := a.cli.CreateConversation(ctx, &v1.CreateConversationRequest{
		PeerEmail: *to,
		PeerName:  *name,
		Message:   v1.OutgoingMessage{Kind: model.KindText.String(), Text: *text},
	})
	if err != nil {
		return err
	}
	printJSON(a.out, resp.Conversation)
	return nil
}

func (a *app) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	id := fs.String("c", "", "conversation id")
	to := fs.String("to", "", "peer email")
	name := fs.String("name", "", "peer display name")
	text := fs.String("text", "", "message text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *to == "" || *text == "" {
		return errors.New("need -c -to -text")
	}
	return a.deliver(ctx, &v1.SendMessageRequest{
		ConversationID: *id,
		PeerEmail:      *to,
		PeerName:       *name,
		Message:        v1.OutgoingMessage{Kind: model.KindText.String(), Text: *text},
	})
}

// media sends a photo, or a video when -video is set or the extension says so.
func (a *app) media(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("photo", flag.ContinueOnError)
	id := fs.String("c", "", "conversation id")
	to := fs.String("to", "", "peer email")
	name := fs.String("name", "", "peer display name")
	file := fs.String("file", "", "media file")
	video := fs.Bool("video", false, "send as video")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *to == "" || *file == "" {
		return errors.New("need -c -to -file")
	}
	data, err := readAll(*file)
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(*file))
	kind := model.KindPhoto
	if *video || videoExts[ext] {
		kind = model.KindVideo
	}
	return a.deliver(ctx, &v1.SendMessageRequest{
		ConversationID: *id,
		PeerEmail:      *to,
		PeerName:       *name,
		Message: v1.OutgoingMessage{
			Kind:        kind.String(),
			ContentType: mime.TypeByExtension(ext),
			Data:        data,
		},
	})
}

func (a *app) deliver(ctx context.Context, req *v1.SendMessageRequest) error {
	resp, err := a.cli.SendMessage(ctx, req)
	if err != nil {
		return err
	}
	printJSON(a.out, resp.Message)
	if resp.SummaryError != "" {
		fmt.Fprintf(a.out, "warning: conversation list not refreshed: %s\n", resp.SummaryError)
	}
	return nil
}

func (a *app) read(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	id := fs.String("c", "", "conversation id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("need -c")
	}
	resp, err := a.cli.MarkRead(ctx, &v1.MarkReadRequest{ConversationID: *id})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d marked read\n", resp.Marked)
	return nil
}
