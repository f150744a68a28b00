// Package message encodes outgoing messages into their persisted form.
package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomaszGol/iOS-Messenger/internal/blob"
	"github.com/TomaszGol/iOS-Messenger/internal/errs"
	"github.com/TomaszGol/iOS-Messenger/internal/model"
)

// Codec turns a model.Message into a model.StoredMessage, uploading media
// to the blob store on the way.
type Codec struct {
	blobs blob.Store
	now   func() time.Time
	log   *zap.Logger
}

// NewCodec constructs a Codec. blobs may be nil when only text and
// pre-uploaded media URLs are sent.
func NewCodec(blobs blob.Store, log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	return &Codec{blobs: blobs, now: time.Now, log: log}
}

// Encode validates m and returns its stored form sent by sender.
// Kinds without a persistable representation fail with errs.ErrUnsupportedContent.
func (c *Codec) Encode(ctx context.Context, sender model.Session, m model.Message) (model.StoredMessage, error) {
	if strings.TrimSpace(m.ID) == "" {
		return model.StoredMessage{}, fmt.Errorf("message id: %w", errs.ErrInvalidArgument)
	}
	sentAt := m.SentAt
	if sentAt.IsZero() {
		sentAt = c.now()
	}
	out := model.StoredMessage{
		ID:         m.ID,
		Date:       model.FormatDate(sentAt),
		SenderKey:  sender.Key(),
		SenderName: sender.Name,
		IsRead:     false,
	}

	switch m.Kind {
	case model.KindText:
		out.Type = model.TypeText
		out.Content = m.Text
	case model.KindPhoto:
		url, err := c.media(ctx, m, blob.MessageImagePath, "photo_message_", ".png")
		if err != nil {
			return model.StoredMessage{}, err
		}
		out.Type, out.Content = model.TypePhoto, url
	case model.KindVideo:
		url, err := c.media(ctx, m, blob.MessageVideoPath, "video_message_", ".mov")
		if err != nil {
			return model.StoredMessage{}, err
		}
		out.Type, out.Content = model.TypeVideo, url
	default:
		return model.StoredMessage{}, fmt.Errorf("message kind %s: %w", m.Kind, errs.ErrUnsupportedContent)
	}
	return out, nil
}

// media returns the download URL of the message's attachment, uploading it
// first when only the bytes were supplied.
func (c *Codec) media(ctx context.Context, m model.Message, pathOf func(string) string, prefix, ext string) (string, error) {
	if m.Media == nil {
		return "", fmt.Errorf("%s message without media: %w", m.Kind, errs.ErrInvalidArgument)
	}
	if m.Media.URL != "" {
		return m.Media.URL, nil
	}
	if len(m.Media.Data) == 0 {
		return "", fmt.Errorf("%s message without data or url: %w", m.Kind, errs.ErrInvalidArgument)
	}
	if c.blobs == nil {
		return "", fmt.Errorf("%s upload: no blob store configured: %w", m.Kind, errs.ErrWriteFailed)
	}
	file := m.Media.FileName
	if file == "" {
		file = prefix + strings.ReplaceAll(m.ID, " ", "-") + ext
	}
	if err := blob.ValidateFileName(file); err != nil {
		return "", err
	}
	p := pathOf(file)
	if err := c.blobs.Put(ctx, p, m.Media.Data, m.Media.ContentType); err != nil {
		c.log.Error("upload media", zap.String("path", p), zap.Error(err))
		return "", err
	}
	url, err := c.blobs.DownloadURL(ctx, p)
	if err != nil {
		return "", fmt.Errorf("download url %s: %w", p, err)
	}
	return url, nil
}
