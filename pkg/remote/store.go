// Package remote defines the contract between the transfer core and the
// remote object store.
//
// The core never talks to a concrete backend directly: everything goes
// through the Store interface so that the transfer manager, executor and
// cache can be exercised against any implementation (S3, in-memory, ...).
package remote

import (
	"context"
	"io"
	"time"
)

// EntryKind distinguishes files from folders in a listing.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindFolder
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// Entry describes one remote object as returned by listings and searches.
type Entry struct {
	// ID is the backend identity of the object (opaque to the core).
	ID string

	// Name is the display name within its parent folder.
	Name string

	// Kind tells whether the entry is a file or a folder.
	Kind EntryKind

	// Size is the object size in bytes (0 for folders).
	Size int64

	// ModifiedTime is the backend's last-modification timestamp.
	ModifiedTime time.Time
}

// ProgressFunc receives the cumulative number of bytes moved so far for a
// single transfer call. Implementations invoke it at chunk granularity; it
// must be cheap and must not block.
type ProgressFunc func(bytesTransferred int64)

// Store is the primitive operation set the core consumes.
//
// All methods are synchronous and may block on network I/O; callers that
// must not stall (UI paths) go through the loader package instead. Every
// method respects context cancellation.
//
// Error contract: implementations return the sentinel errors of this
// package (wrapped with context via fmt.Errorf %w) so callers can classify
// failures with errors.Is. See errors.go.
type Store interface {
	// RootID returns the identity of the store's root folder, the starting
	// point for browsing and the default upload destination.
	RootID() string

	// ListChildren returns the direct children of a folder.
	ListChildren(ctx context.Context, folderID string) ([]Entry, error)

	// GetMetadata returns the entry for a single object.
	GetMetadata(ctx context.Context, id string) (Entry, error)

	// Download streams the object's bytes into w, reporting progress at
	// chunk granularity. Returns the number of bytes written.
	Download(ctx context.Context, fileID string, w io.Writer, progress ProgressFunc) (int64, error)

	// Upload creates a new object under parentID from r (size bytes),
	// reporting progress at chunk granularity. Returns the new object's ID.
	Upload(ctx context.Context, parentID, name string, r io.Reader, size int64, progress ProgressFunc) (string, error)

	// CreateFolder creates a subfolder and returns its ID. Creating a
	// folder that already exists returns the existing folder's ID.
	CreateFolder(ctx context.Context, parentID, name string) (string, error)

	// Delete removes an object. When permanent is false and the backend
	// supports a trash, the object is moved there instead.
	Delete(ctx context.Context, id string, permanent bool) error

	// Rename changes an object's display name.
	Rename(ctx context.Context, id, newName string) error

	// Search returns entries whose name matches the query.
	Search(ctx context.Context, query string) ([]Entry, error)
}
