package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotFound = errors.New("artifact not found")

// Storage keeps rendered posters.
type Storage interface {
	// Save stores size bytes read from r under name, replacing any previous artifact.
	// size may be -1 when unknown.
	Save(ctx context.Context, name string, r io.Reader, size int64) error
	// Open returns the artifact or ErrNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	// Prune deletes artifacts last modified before olderThan and returns how many were deleted.
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Type() string
}

// cleanName rejects names which could escape the storage root.
func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`+"\x00") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return name, nil
}
