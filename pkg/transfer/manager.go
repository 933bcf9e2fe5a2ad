package transfer

import (
	"fmt"
	"sync"
	"time"
)

// FileDescriptor carries the enumeration-time facts about a file being
// added to a folder transfer.
type FileDescriptor struct {
	// ID is the file identity: local path for uploads, remote object ID
	// for downloads.
	ID string

	// Name is the display name.
	Name string

	// RelativePath locates the file under the transfer root.
	RelativePath string

	// DestID is the destination: remote parent folder ID for uploads,
	// local target directory for downloads.
	DestID string

	// Size in bytes.
	Size int64
}

// ErrorFile pairs a failed file with its owning transfer for the
// "list all failed files" query.
type ErrorFile struct {
	TransferID string
	File       FileTransferItem
}

// Manager is the session-wide transfer registry.
//
// It owns every TransferItem, keeps them in creation order for stable
// display, and maintains a file index for O(1) status updates. All
// mutations are serialized by a single mutex; this is the critical
// section that keeps folder aggregates consistent when concurrent workers
// update different children of the same parent.
//
// The manager is constructed once at session start and passed by handle
// to workers and the interface layer; there is no package-level instance.
type Manager struct {
	mu     sync.Mutex
	items  []*TransferItem
	byID   map[string]*TransferItem
	index  map[string]*FileTransferItem
	nextID int
	events *Broadcaster
}

// NewManager creates an empty manager publishing to events. A nil
// broadcaster is replaced with a private one so callers that don't care
// about events can pass nil.
func NewManager(events *Broadcaster) *Manager {
	if events == nil {
		events = NewBroadcaster()
	}
	return &Manager{
		byID:   make(map[string]*TransferItem),
		index:  make(map[string]*FileTransferItem),
		events: events,
	}
}

// Events returns the broadcaster the manager publishes to.
func (m *Manager) Events() *Broadcaster {
	return m.events
}

func indexKey(transferID, fileID string) string {
	return transferID + "\x00" + fileID
}

// CreateTransfer allocates a new transfer in pending status, appends it
// to the ordered collection and indexes it. For single-file transfers,
// size is the file's size; for folder transfers it grows as children are
// added.
func (m *Manager) CreateTransfer(kind Kind, direction Direction, source, destination, name string, size int64) TransferItem {
	m.mu.Lock()
	m.nextID++
	item := &TransferItem{
		ID:              fmt.Sprintf("transfer-%d", m.nextID),
		Kind:            kind,
		Direction:       direction,
		SourcePath:      source,
		DestinationPath: destination,
		Name:            name,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
		enumerating:     kind == KindFolder,
	}
	if kind == KindSingleFile {
		item.Size = size
	}
	m.items = append(m.items, item)
	m.byID[item.ID] = item
	snapshot := item.clone()
	m.mu.Unlock()

	m.events.Publish(Event{
		Type:       EventTransferCreated,
		TransferID: snapshot.ID,
		Status:     snapshot.Status,
	})
	return snapshot
}

// AddFile appends a pending FileTransferItem to a folder transfer. Legal
// only while the parent is pending or in-progress.
func (m *Manager) AddFile(transferID string, fd FileDescriptor) error {
	m.mu.Lock()
	item, ok := m.byID[transferID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	if item.Kind != KindFolder {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s is not a folder transfer: %w", transferID, ErrInvalidState)
	}
	if item.Status != StatusPending && item.Status != StatusInProgress {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s is %s: %w", transferID, item.Status, ErrInvalidState)
	}

	file := &FileTransferItem{
		ID:           fd.ID,
		Name:         fd.Name,
		RelativePath: fd.RelativePath,
		DestID:       fd.DestID,
		Size:         fd.Size,
		Status:       StatusPending,
	}
	item.Files = append(item.Files, file)
	item.Size += fd.Size
	m.index[indexKey(transferID, fd.ID)] = file
	m.mu.Unlock()

	m.events.Publish(Event{
		Type:       EventFileAdded,
		TransferID: transferID,
		FileID:     fd.ID,
		Status:     StatusPending,
	})
	return nil
}

// UpdateFileStatus mutates one file's state and re-derives the parent's
// aggregate status and progress.
//
// For single-file transfers fileID may be empty or equal to the transfer
// ID; the item itself carries the status.
//
// Updates are rejected with ErrInvalidState when the parent has reached a
// terminal aggregate (completed, completed-with-errors, error); those
// states only change through retry. A cancelled parent still accepts
// child updates so an in-flight file can finish or fail naturally, but
// the parent's status stays cancelled.
func (m *Manager) UpdateFileStatus(transferID, fileID string, status Status, bytesTransferred int64, errorMessage string) error {
	m.mu.Lock()
	item, ok := m.byID[transferID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}

	switch item.Status {
	case StatusCompleted, StatusCompletedWithErrors, StatusError:
		m.mu.Unlock()
		return fmt.Errorf("transfer %s is %s: %w", transferID, item.Status, ErrInvalidState)
	}

	var evs []Event

	if item.Kind == KindSingleFile {
		if fileID != "" && fileID != item.ID {
			m.mu.Unlock()
			return fmt.Errorf("file %s in transfer %s: %w", fileID, transferID, ErrNotFound)
		}
		evs = m.applySingleUpdate(item, status, bytesTransferred, errorMessage)
	} else {
		file, ok := m.index[indexKey(transferID, fileID)]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("file %s in transfer %s: %w", fileID, transferID, ErrNotFound)
		}
		file.Status = status
		file.BytesTransferred = bytesTransferred
		if status == StatusError {
			file.ErrorMessage = errorMessage
		} else {
			file.ErrorMessage = ""
		}
		evs = m.reaggregate(item, fileID)
	}
	m.mu.Unlock()

	for _, ev := range evs {
		m.events.Publish(ev)
	}
	return nil
}

// applySingleUpdate mutates a single-file transfer's own state. Caller
// holds the lock.
func (m *Manager) applySingleUpdate(item *TransferItem, status Status, bytes int64, errorMessage string) []Event {
	// A cancelled transfer stays cancelled; an in-flight worker finishing
	// after the fact must not resurrect it.
	if item.Status == StatusCancelled {
		return nil
	}
	prev := item.Status
	item.Status = status
	item.BytesTransferred = bytes
	if status == StatusError {
		item.ErrorMessage = errorMessage
	} else {
		item.ErrorMessage = ""
	}
	if status == StatusInProgress && item.StartedAt.IsZero() {
		item.StartedAt = time.Now()
	}
	if status.Terminal() {
		item.CompletedAt = time.Now()
	}

	evs := []Event{{
		Type:        EventProgress,
		TransferID:  item.ID,
		Progress:    item.Progress(),
		BytesPerSec: item.Speed(),
		Status:      item.Status,
	}}
	if prev != item.Status {
		evs = append(evs, Event{
			Type:       EventStatusChanged,
			TransferID: item.ID,
			Status:     item.Status,
		})
	}
	if item.Status.Terminal() && !prev.Terminal() {
		evs = append(evs, Event{
			Type:       EventTransferTerminal,
			TransferID: item.ID,
			Status:     item.Status,
		})
	}
	return evs
}

// reaggregate recomputes a folder transfer's derived fields after a child
// mutation and returns the events to publish. Caller holds the lock.
//
// A cancelled parent keeps its status; only the byte counters refresh.
func (m *Manager) reaggregate(item *TransferItem, fileID string) []Event {
	var total int64
	for _, f := range item.Files {
		total += f.BytesTransferred
	}
	item.BytesTransferred = total

	prev := item.Status
	if item.Status != StatusCancelled {
		next := aggregateStatus(item.Files)
		if item.enumerating && next.Terminal() {
			// The walk is still adding children; a terminal-looking
			// aggregate over the children seen so far must not close the
			// transfer. FinishEnumeration settles it.
			next = StatusInProgress
		}
		item.Status = next
	}
	if item.Status == StatusInProgress && item.StartedAt.IsZero() {
		item.StartedAt = time.Now()
	}
	if item.Status.Terminal() && item.CompletedAt.IsZero() {
		item.CompletedAt = time.Now()
	}
	if !item.Status.Terminal() {
		item.CompletedAt = time.Time{}
	}

	evs := []Event{{
		Type:        EventProgress,
		TransferID:  item.ID,
		FileID:      fileID,
		Progress:    item.Progress(),
		BytesPerSec: item.Speed(),
		Status:      item.Status,
	}}
	if prev != item.Status {
		evs = append(evs, Event{
			Type:       EventStatusChanged,
			TransferID: item.ID,
			Status:     item.Status,
		})
		if item.Status.Terminal() {
			evs = append(evs, Event{
				Type:       EventTransferTerminal,
				TransferID: item.ID,
				Status:     item.Status,
			})
		}
	}
	return evs
}

// MarkDuplicateSkip sets a file directly from pending to skipped without
// transferring bytes, used when the pre-transfer existence check finds a
// same-name same-kind entry already at the destination. Name-only policy:
// no content comparison is performed, so a same-name different-content
// file is still skipped.
func (m *Manager) MarkDuplicateSkip(transferID, fileID string) error {
	m.mu.Lock()
	item, ok := m.byID[transferID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	file, ok := m.index[indexKey(transferID, fileID)]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("file %s in transfer %s: %w", fileID, transferID, ErrNotFound)
	}
	if file.Status != StatusPending {
		m.mu.Unlock()
		return fmt.Errorf("file %s is %s, only pending files can be skipped: %w", fileID, file.Status, ErrInvalidState)
	}

	file.Status = StatusSkipped
	evs := m.reaggregate(item, fileID)
	m.mu.Unlock()

	for _, ev := range evs {
		m.events.Publish(ev)
	}
	return nil
}

// RetryFailedFiles resets error-status files back to pending for another
// attempt: retry count increments, the error message clears, and the
// parent aggregate drops out of its terminal state. Files not in error
// are left untouched.
//
// With no explicit fileIDs every error-status child is targeted. The
// reset files are returned so the executor can re-dispatch them.
func (m *Manager) RetryFailedFiles(transferID string, fileIDs ...string) ([]FileTransferItem, error) {
	m.mu.Lock()
	item, ok := m.byID[transferID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}

	if item.Kind == KindSingleFile {
		if item.Status != StatusError {
			m.mu.Unlock()
			return nil, fmt.Errorf("transfer %s is %s, not error: %w", transferID, item.Status, ErrInvalidState)
		}
		item.Status = StatusPending
		item.RetryCount++
		item.ErrorMessage = ""
		item.BytesTransferred = 0
		item.CompletedAt = time.Time{}
		snapshot := item.clone()
		m.mu.Unlock()

		m.events.Publish(Event{
			Type:       EventStatusChanged,
			TransferID: transferID,
			Status:     StatusPending,
		})
		return []FileTransferItem{{
			ID:         snapshot.ID,
			Name:       snapshot.Name,
			Size:       snapshot.Size,
			Status:     StatusPending,
			RetryCount: snapshot.RetryCount,
		}}, nil
	}

	if item.Status == StatusCancelled {
		m.mu.Unlock()
		return nil, fmt.Errorf("transfer %s is cancelled: %w", transferID, ErrInvalidState)
	}

	var targets []*FileTransferItem
	if len(fileIDs) == 0 {
		for _, f := range item.Files {
			if f.Status == StatusError {
				targets = append(targets, f)
			}
		}
	} else {
		for _, id := range fileIDs {
			f, ok := m.index[indexKey(transferID, id)]
			if !ok {
				m.mu.Unlock()
				return nil, fmt.Errorf("file %s in transfer %s: %w", id, transferID, ErrNotFound)
			}
			if f.Status != StatusError {
				// Retry never re-touches successful or in-progress work.
				continue
			}
			targets = append(targets, f)
		}
	}

	reset := make([]FileTransferItem, 0, len(targets))
	for _, f := range targets {
		f.Status = StatusPending
		f.RetryCount++
		f.ErrorMessage = ""
		f.BytesTransferred = 0
		reset = append(reset, *f)
	}

	var evs []Event
	if len(reset) > 0 {
		evs = m.reaggregate(item, "")
	}
	m.mu.Unlock()

	for _, ev := range evs {
		m.events.Publish(ev)
	}
	return reset, nil
}

// CancelTransfer marks a transfer cancelled. Children still pending or
// in-progress are left as-is for the executing worker to observe and
// stop; completed children are not rolled back.
func (m *Manager) CancelTransfer(transferID string) error {
	m.mu.Lock()
	item, ok := m.byID[transferID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	if item.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s is already %s: %w", transferID, item.Status, ErrInvalidState)
	}

	item.Status = StatusCancelled
	item.CompletedAt = time.Now()
	m.mu.Unlock()

	m.events.Publish(Event{
		Type:       EventStatusChanged,
		TransferID: transferID,
		Status:     StatusCancelled,
	})
	m.events.Publish(Event{
		Type:       EventTransferTerminal,
		TransferID: transferID,
		Status:     StatusCancelled,
	})
	return nil
}

// IsCancelled reports whether a transfer has been cancelled. Workers poll
// this at file-granularity boundaries.
func (m *Manager) IsCancelled(transferID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.byID[transferID]
	return ok && item.Status == StatusCancelled
}

// FailTransfer marks a transfer failed at the worker level, used when
// enumeration itself fails before any child exists (unreadable source
// directory, unreachable remote listing).
func (m *Manager) FailTransfer(transferID, errorMessage string) error {
	m.mu.Lock()
	item, ok := m.byID[transferID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	if item.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s is already %s: %w", transferID, item.Status, ErrInvalidState)
	}
	if len(item.Files) > 0 {
		// Once children exist the aggregate rules own the status.
		m.mu.Unlock()
		return fmt.Errorf("transfer %s has children: %w", transferID, ErrInvalidState)
	}

	item.Status = StatusError
	item.ErrorMessage = errorMessage
	item.CompletedAt = time.Now()
	item.enumerating = false
	m.mu.Unlock()

	m.events.Publish(Event{
		Type:       EventStatusChanged,
		TransferID: transferID,
		Status:     StatusError,
	})
	m.events.Publish(Event{
		Type:       EventTransferTerminal,
		TransferID: transferID,
		Status:     StatusError,
	})
	return nil
}

// FinishEnumeration marks a folder transfer's walk as done. The held-open
// aggregate settles to its derived value; a walk that found no files
// completes the transfer directly.
func (m *Manager) FinishEnumeration(transferID string) error {
	m.mu.Lock()
	item, ok := m.byID[transferID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	if item.Kind != KindFolder || item.Status.Terminal() {
		item.enumerating = false
		m.mu.Unlock()
		return nil
	}
	item.enumerating = false

	if len(item.Files) == 0 {
		item.Status = StatusCompleted
		item.CompletedAt = time.Now()
		m.mu.Unlock()

		m.events.Publish(Event{
			Type:       EventStatusChanged,
			TransferID: transferID,
			Status:     StatusCompleted,
		})
		m.events.Publish(Event{
			Type:       EventTransferTerminal,
			TransferID: transferID,
			Status:     StatusCompleted,
		})
		return nil
	}

	evs := m.reaggregate(item, "")
	m.mu.Unlock()

	for _, ev := range evs {
		m.events.Publish(ev)
	}
	return nil
}

// Get returns a deep copy of one transfer, children included.
func (m *Manager) Get(transferID string) (TransferItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.byID[transferID]
	if !ok {
		return TransferItem{}, fmt.Errorf("transfer %s: %w", transferID, ErrNotFound)
	}
	return item.clone(), nil
}

// Transfers returns copies of all transfers in creation order.
func (m *Manager) Transfers() []TransferItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransferItem, len(m.items))
	for i, item := range m.items {
		out[i] = item.clone()
	}
	return out
}

// ErrorFiles returns every error-status file across all transfers, with
// message and retry count, for the error-retry view.
func (m *Manager) ErrorFiles() []ErrorFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ErrorFile
	for _, item := range m.items {
		if item.Kind == KindSingleFile {
			if item.Status == StatusError {
				out = append(out, ErrorFile{
					TransferID: item.ID,
					File: FileTransferItem{
						ID:           item.ID,
						Name:         item.Name,
						Size:         item.Size,
						Status:       StatusError,
						ErrorMessage: item.ErrorMessage,
						RetryCount:   item.RetryCount,
					},
				})
			}
			continue
		}
		for _, f := range item.Files {
			if f.Status == StatusError {
				out = append(out, ErrorFile{TransferID: item.ID, File: *f})
			}
		}
	}
	return out
}

// ClearCompleted removes all terminal transfers from the registry and
// returns how many were removed.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.items[:0]
	removed := 0
	for _, item := range m.items {
		if item.Status.Terminal() {
			delete(m.byID, item.ID)
			for _, f := range item.Files {
				delete(m.index, indexKey(item.ID, f.ID))
			}
			removed++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	return removed
}
