// Package transfer implements the transfer core: the item model, the
// manager registry with status aggregation, the event broadcaster and the
// execution worker pool.
package transfer

import (
	"time"
)

// Status is the lifecycle state of a transfer or of a single file within
// a folder transfer.
type Status int

const (
	// StatusPending means the item is created but no bytes have moved.
	StatusPending Status = iota

	// StatusInProgress means a worker is actively moving bytes, or (for a
	// folder item) at least one child is unfinished.
	StatusInProgress

	// StatusCompleted means all bytes moved successfully.
	StatusCompleted

	// StatusSkipped means the duplicate check found the file already at
	// the destination and no bytes were moved. Terminal, counts as done.
	StatusSkipped

	// StatusError means the last attempt failed. Eligible for retry.
	StatusError

	// StatusCompletedWithErrors applies to folder items only: every child
	// is terminal and at least one (but not all) failed.
	StatusCompletedWithErrors

	// StatusCancelled applies to whole transfers only, set by an explicit
	// cancel command.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in-progress"
	case StatusCompleted:
		return "completed"
	case StatusSkipped:
		return "skipped"
	case StatusError:
		return "error"
	case StatusCompletedWithErrors:
		return "completed-with-errors"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether a status is final for the current attempt.
// Error is terminal for the attempt but eligible for retry.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusError, StatusCompletedWithErrors, StatusCancelled:
		return true
	default:
		return false
	}
}

// Direction tells which way bytes move.
type Direction int

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

func (d Direction) String() string {
	if d == DirectionDownload {
		return "download"
	}
	return "upload"
}

// Kind distinguishes a one-file transfer from a folder tree transfer.
type Kind int

const (
	KindSingleFile Kind = iota
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "single-file"
}

// FileTransferItem is the per-file record inside a folder transfer. It is
// owned exclusively by its parent TransferItem and has no independent
// lifecycle.
type FileTransferItem struct {
	// ID identifies the file: the local path for uploads, the remote
	// object ID for downloads.
	ID string

	// Name is the file's display name.
	Name string

	// RelativePath is the file's path relative to the transfer root.
	RelativePath string

	// DestID is where the file goes: the remote parent folder ID for
	// uploads, the local target directory for downloads. Recorded at
	// enumeration time so retries can re-dispatch without re-walking.
	DestID string

	// Size is the file size in bytes.
	Size int64

	// BytesTransferred is the cumulative byte count of the current
	// attempt, monotonically non-decreasing within an attempt.
	BytesTransferred int64

	// Status is the file's current state.
	Status Status

	// ErrorMessage is set iff Status == StatusError.
	ErrorMessage string

	// RetryCount increments on every retry and never resets.
	RetryCount int
}

// TransferItem is one user-initiated transfer: a single file or a whole
// folder tree.
//
// For folder transfers, Files holds one FileTransferItem per leaf file in
// enumeration order, and Status is always derived from the children via
// the aggregation rule; it is never set independently once children exist
// (cancellation excepted). Single-file transfers have no children and
// carry their status directly.
type TransferItem struct {
	// ID is unique within the session.
	ID string

	// Kind tags the variant: single file or folder tree.
	Kind Kind

	// SourcePath is the local path (upload) or remote ID (download) of
	// the transfer root.
	SourcePath string

	// DestinationPath is the remote folder ID (upload) or local directory
	// (download) the transfer targets.
	DestinationPath string

	// Name is the display name of the transferred file or folder.
	Name string

	Direction Direction
	Status    Status

	// Files are the per-file children of a folder transfer, in
	// enumeration order. Empty for single-file transfers.
	Files []*FileTransferItem

	// Size is the total byte size: the file's size for single-file
	// transfers, the sum of child sizes for folder transfers.
	Size int64

	// BytesTransferred is the file's own counter for single-file
	// transfers and the sum of child counters for folder transfers.
	BytesTransferred int64

	// ErrorMessage and RetryCount apply to single-file transfers, which
	// carry their own attempt state.
	ErrorMessage string
	RetryCount   int

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// enumerating is true for a folder transfer whose walk is still adding
	// children. While set, the derived aggregate is held open (never
	// terminal) so late children are not rejected; FinishEnumeration
	// clears it and lets the aggregate settle.
	enumerating bool
}

// aggregateStatus computes a folder transfer's overall status as a pure
// function of its children:
//
//   - any child in-progress, or a mix of done and pending: in-progress
//   - all children completed or skipped: completed
//   - all children terminal with some (not all) errors: completed-with-errors
//   - all children error: error
//   - all children pending: pending
func aggregateStatus(files []*FileTransferItem) Status {
	if len(files) == 0 {
		return StatusPending
	}

	var pending, inProgress, done, failed int
	for _, f := range files {
		switch f.Status {
		case StatusPending:
			pending++
		case StatusInProgress:
			inProgress++
		case StatusCompleted, StatusSkipped:
			done++
		case StatusError:
			failed++
		}
	}

	total := len(files)
	switch {
	case inProgress > 0:
		return StatusInProgress
	case pending == total:
		return StatusPending
	case pending > 0:
		return StatusInProgress
	case failed == total:
		return StatusError
	case failed > 0:
		return StatusCompletedWithErrors
	default:
		return StatusCompleted
	}
}

// progressFraction is the completed share of a child set: the summed
// sizes of completed and skipped children over the total size. A skipped
// file contributes its full size despite moving no bytes. Zero total size
// reports 0.
func progressFraction(files []*FileTransferItem) float64 {
	var total, done int64
	for _, f := range files {
		total += f.Size
		if f.Status == StatusCompleted || f.Status == StatusSkipped {
			done += f.Size
		}
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// Progress returns the transfer's completed fraction in [0, 1].
func (t *TransferItem) Progress() float64 {
	if t.Kind == KindFolder && len(t.Files) > 0 {
		return progressFraction(t.Files)
	}
	switch t.Status {
	case StatusCompleted, StatusSkipped:
		return 1
	default:
		if t.Size == 0 {
			return 0
		}
		f := float64(t.BytesTransferred) / float64(t.Size)
		if f > 1 {
			f = 1
		}
		return f
	}
}

// Speed returns the observed transfer rate in bytes per second, 0 before
// the transfer starts.
func (t *TransferItem) Speed() float64 {
	if t.StartedAt.IsZero() {
		return 0
	}
	end := t.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	elapsed := end.Sub(t.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.BytesTransferred) / elapsed
}

// CompletedFiles counts children that finished successfully (completed or
// skipped).
func (t *TransferItem) CompletedFiles() int {
	n := 0
	for _, f := range t.Files {
		if f.Status == StatusCompleted || f.Status == StatusSkipped {
			n++
		}
	}
	return n
}

// FailedFiles counts children currently in error.
func (t *TransferItem) FailedFiles() int {
	n := 0
	for _, f := range t.Files {
		if f.Status == StatusError {
			n++
		}
	}
	return n
}

// clone returns a deep copy so callers can inspect transfer state without
// holding the manager's lock.
func (t *TransferItem) clone() TransferItem {
	out := *t
	if len(t.Files) > 0 {
		out.Files = make([]*FileTransferItem, len(t.Files))
		for i, f := range t.Files {
			fc := *f
			out.Files[i] = &fc
		}
	}
	return out
}
