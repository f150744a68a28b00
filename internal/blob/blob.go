// Package blob defines the binary object store used for profile pictures and
// message media, plus the path layout shared with the mobile clients.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
)

// Top-level folders of the object store.
const (
	ProfileImagesDir = "images"
	MessageImagesDir = "message_images"
	MessageVideosDir = "message_videos"
)

// Store uploads objects and hands out download URLs for them.
type Store interface {
	// Put uploads data under objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte, contentType string) error
	// DownloadURL returns a URL clients can fetch objectPath from, or
	// errs.ErrNotFound.
	DownloadURL(ctx context.Context, objectPath string) (string, error)
}

// ProfileImagePath returns images/<file>.
func ProfileImagePath(file string) string { return path.Join(ProfileImagesDir, file) }

// MessageImagePath returns message_images/<file>.
func MessageImagePath(file string) string { return path.Join(MessageImagesDir, file) }

// MessageVideoPath returns message_videos/<file>.
func MessageVideoPath(file string) string { return path.Join(MessageVideosDir, file) }

// ValidateFileName rejects names that would escape their folder.
func ValidateFileName(file string) error {
	if file == "" || file == "." || file == ".." || strings.ContainsAny(file, `/\`) {
		return fmt.Errorf("blob file %q: %w", file, errs.ErrInvalidArgument)
	}
	return nil
}
