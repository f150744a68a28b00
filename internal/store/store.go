// Package store defines the hierarchical key-value contract the sync layer
// runs against, plus helpers shared by all backends.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
)

// Node is a stored value with its version. Versions start at 1 and grow by
// one on every write; a zero version means the path is absent.
type Node struct {
	Path  string
	Value []byte
	Ver   int64
}

// Write is a single path mutation of an atomic Apply.
// BaseVer 0 requires the path to be absent.
type Write struct {
	Path    string
	BaseVer int64
	Value   []byte
}

// Store is a versioned hierarchical key-value store.
type Store interface {
	// Get returns the node at path or errs.ErrNotFound.
	Get(ctx context.Context, path string) (Node, error)
	// Set overwrites the value at path unconditionally and returns the new version.
	Set(ctx context.Context, path string, value []byte) (int64, error)
	// CompareAndSet writes value only if the current version equals baseVer.
	CompareAndSet(ctx context.Context, path string, baseVer int64, value []byte) (int64, error)
	// Apply commits all writes atomically or none of them; a base version
	// mismatch on any path fails the batch with errs.ErrVersionConflict.
	Apply(ctx context.Context, writes []Write) ([]int64, error)
	// Close releases backend resources.
	Close() error
}

// Join builds a path from segments.
func Join(segments ...string) string { return strings.Join(segments, "/") }

// ValidatePath rejects empty paths, empty segments and characters the mobile
// backend does not allow in keys.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path: empty: %w", errs.ErrInvalidArgument)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("path %q: empty segment: %w", path, errs.ErrInvalidArgument)
		}
		if strings.ContainsAny(seg, ".#$[]") {
			return fmt.Errorf("path %q: illegal character: %w", path, errs.ErrInvalidArgument)
		}
	}
	return nil
}

// ValidateWrites checks paths and rejects duplicate paths in one batch.
func ValidateWrites(writes []Write) error {
	seen := make(map[string]struct{}, len(writes))
	for i, w := range writes {
		if err := ValidatePath(w.Path); err != nil {
			return fmt.Errorf("write[%d]: %w", i, err)
		}
		if w.BaseVer < 0 {
			return fmt.Errorf("write[%d]: negative base_ver: %w", i, errs.ErrInvalidArgument)
		}
		if _, dup := seen[w.Path]; dup {
			return fmt.Errorf("write[%d]: duplicate path %q: %w", i, w.Path, errs.ErrInvalidArgument)
		}
		seen[w.Path] = struct{}{}
	}
	return nil
}

// WriteFailed wraps a backend error as errs.ErrWriteFailed.
func WriteFailed(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, errs.ErrWriteFailed, err)
}
