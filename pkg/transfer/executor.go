package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/falachabt/zymupload/internal/logger"
	"github.com/falachabt/zymupload/pkg/loader"
	"github.com/falachabt/zymupload/pkg/remote"
)

// ExecutorConfig bounds the worker pool.
type ExecutorConfig struct {
	// Workers is the maximum number of transfers executing concurrently.
	Workers int

	// QueueSize is the dispatch queue capacity.
	QueueSize int
}

// Executor drives transfers with a bounded pool of workers.
//
// Each top-level transfer is owned by exactly one worker at a time: the
// manager hands ownership over at Enqueue and the worker is the only
// goroutine mutating that transfer's children until it returns. Distinct
// transfers run concurrently up to the pool bound.
//
// Folder trees are walked breadth-first with an explicit work queue, so
// arbitrarily deep trees never grow the stack. Cancellation is
// cooperative: the worker polls the transfer's cancelled flag between
// files and stops enumerating once observed; an in-flight file finishes
// or fails naturally.
type Executor struct {
	manager *Manager
	store   remote.Store
	loader  *loader.Loader
	workers int
	queue   chan string
	wg      sync.WaitGroup
	stopped sync.Once
}

// NewExecutor creates a worker pool over the given manager, remote store
// and listing loader. Zero config fields fall back to 3 workers and a
// 128-entry queue.
func NewExecutor(m *Manager, store remote.Store, l *loader.Loader, cfg ExecutorConfig) *Executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 3
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Executor{
		manager: m,
		store:   store,
		loader:  l,
		workers: workers,
		queue:   make(chan string, queueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Stop closes the queue.
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case transferID, ok := <-e.queue:
					if !ok {
						return
					}
					e.run(ctx, transferID)
				}
			}
		}()
	}
}

// Enqueue hands a transfer to the pool. Non-blocking; returns an error if
// the dispatch queue is full.
func (e *Executor) Enqueue(transferID string) error {
	select {
	case e.queue <- transferID:
		return nil
	default:
		return fmt.Errorf("transfer %s: dispatch queue full: %w", transferID, ErrInvalidState)
	}
}

// Stop closes the dispatch queue and waits for in-flight transfers to
// finish. Safe to call more than once.
func (e *Executor) Stop() {
	e.stopped.Do(func() {
		close(e.queue)
	})
	e.wg.Wait()
}

// run executes one dispatched transfer on the calling worker.
func (e *Executor) run(ctx context.Context, transferID string) {
	item, err := e.manager.Get(transferID)
	if err != nil {
		logger.Warn("dispatched unknown transfer %s: %v", transferID, err)
		return
	}
	if item.Status == StatusCancelled {
		return
	}

	logger.Debug("worker picked up %s %s transfer %s (%s)",
		item.Kind, item.Direction, item.ID, item.Name)

	switch {
	case item.Kind == KindSingleFile && item.Direction == DirectionUpload:
		e.runSingleUpload(ctx, item)
	case item.Kind == KindSingleFile && item.Direction == DirectionDownload:
		e.runSingleDownload(ctx, item)
	case item.Direction == DirectionUpload:
		e.runFolderUpload(ctx, item)
	default:
		e.runFolderDownload(ctx, item)
	}
}

// errText renders a transfer failure for the user. Permission and quota
// failures say explicitly that retrying alone will not help.
func errText(err error) string {
	switch {
	case errors.Is(err, remote.ErrPermissionDenied):
		return fmt.Sprintf("%v (retry will not help until access is restored)", err)
	case errors.Is(err, remote.ErrQuotaExceeded):
		return fmt.Sprintf("%v (retry will not help until space is freed)", err)
	default:
		return err.Error()
	}
}

// ------------------------------------------------------------------
// Single-file transfers
// ------------------------------------------------------------------

func (e *Executor) runSingleUpload(ctx context.Context, item TransferItem) {
	f, err := os.Open(item.SourcePath)
	if err != nil {
		msg := fmt.Sprintf("opening %s: %v: %v", item.SourcePath, err, remote.ErrLocalIO)
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusError, 0, msg)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		msg := fmt.Sprintf("stat %s: %v: %v", item.SourcePath, err, remote.ErrLocalIO)
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusError, 0, msg)
		return
	}
	size := info.Size()

	_ = e.manager.UpdateFileStatus(item.ID, "", StatusInProgress, 0, "")

	_, err = e.store.Upload(ctx, item.DestinationPath, item.Name, f, size, func(n int64) {
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusInProgress, n, "")
	})
	if err != nil {
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusError, 0, errText(err))
		return
	}

	_ = e.manager.UpdateFileStatus(item.ID, "", StatusCompleted, size, "")
	e.loader.Invalidate(item.DestinationPath)
}

func (e *Executor) runSingleDownload(ctx context.Context, item TransferItem) {
	if err := os.MkdirAll(item.DestinationPath, 0755); err != nil {
		msg := fmt.Sprintf("creating %s: %v: %v", item.DestinationPath, err, remote.ErrLocalIO)
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusError, 0, msg)
		return
	}

	target := filepath.Join(item.DestinationPath, item.Name)
	f, err := os.Create(target)
	if err != nil {
		msg := fmt.Sprintf("creating %s: %v: %v", target, err, remote.ErrLocalIO)
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusError, 0, msg)
		return
	}

	_ = e.manager.UpdateFileStatus(item.ID, "", StatusInProgress, 0, "")

	written, err := e.store.Download(ctx, item.SourcePath, f, func(n int64) {
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusInProgress, n, "")
	})
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %v: %w", target, closeErr, remote.ErrLocalIO)
	}
	if err != nil {
		_ = e.manager.UpdateFileStatus(item.ID, "", StatusError, 0, errText(err))
		return
	}

	_ = e.manager.UpdateFileStatus(item.ID, "", StatusCompleted, written, "")
}

// ------------------------------------------------------------------
// Folder transfers
// ------------------------------------------------------------------

// uploadUnit is one directory pending enumeration during a folder upload
// walk.
type uploadUnit struct {
	localDir     string
	relDir       string
	remoteParent string
	// destErr records a failed destination folder creation; files under
	// this unit are still enumerated so the failure surfaces per file.
	destErr error
}

func (e *Executor) runFolderUpload(ctx context.Context, item TransferItem) {
	// A re-dispatch after retry already has children; process only the
	// pending ones instead of re-walking the tree.
	if len(item.Files) > 0 {
		e.retryPass(ctx, item)
		return
	}

	queue := []uploadUnit{{
		localDir:     item.SourcePath,
		remoteParent: item.DestinationPath,
	}}
	first := true

	for len(queue) > 0 {
		if e.manager.IsCancelled(item.ID) {
			logger.Info("transfer %s cancelled, stopping enumeration", item.ID)
			return
		}

		unit := queue[0]
		queue = queue[1:]

		dirents, err := os.ReadDir(unit.localDir)
		if err != nil {
			if first {
				_ = e.manager.FailTransfer(item.ID, fmt.Sprintf("reading %s: %v: %v", unit.localDir, err, remote.ErrLocalIO))
				return
			}
			logger.Warn("skipping unreadable directory %s: %v", unit.localDir, err)
			continue
		}
		first = false

		destNames := e.destinationNames(ctx, unit)
		uploaded := 0

		for _, d := range dirents {
			if e.manager.IsCancelled(item.ID) {
				logger.Info("transfer %s cancelled, stopping enumeration", item.ID)
				return
			}

			name := d.Name()
			path := filepath.Join(unit.localDir, name)
			rel := filepath.Join(unit.relDir, name)

			if d.IsDir() {
				queue = append(queue, e.enterRemoteFolder(ctx, unit, path, rel, name, destNames))
				continue
			}

			info, err := d.Info()
			var size int64
			if err == nil {
				size = info.Size()
			}

			fd := FileDescriptor{
				ID:           path,
				Name:         name,
				RelativePath: rel,
				DestID:       unit.remoteParent,
				Size:         size,
			}
			if err := e.manager.AddFile(item.ID, fd); err != nil {
				logger.Warn("adding %s to transfer %s: %v", path, item.ID, err)
				continue
			}

			switch {
			case unit.destErr != nil:
				msg := fmt.Sprintf("destination folder unavailable: %v", unit.destErr)
				_ = e.manager.UpdateFileStatus(item.ID, fd.ID, StatusError, 0, msg)
			case isDuplicate(destNames, name, remote.KindFile):
				_ = e.manager.MarkDuplicateSkip(item.ID, fd.ID)
			default:
				if e.uploadFile(ctx, item.ID, fd) {
					uploaded++
				}
			}
		}

		if uploaded > 0 {
			e.loader.Invalidate(unit.remoteParent)
		}
	}

	_ = e.manager.FinishEnumeration(item.ID)
}

// destinationNames best-effort lists the destination folder for the
// duplicate check. A listing failure degrades to an empty set: the
// transfer proceeds and same-name races are accepted (the check is
// advisory, not transactional).
func (e *Executor) destinationNames(ctx context.Context, unit uploadUnit) map[string]remote.Entry {
	if unit.destErr != nil {
		return nil
	}
	entries, err := e.loader.ListCached(ctx, unit.remoteParent)
	if err != nil {
		logger.Debug("duplicate check listing for %s failed: %v", unit.remoteParent, err)
		return nil
	}
	byName := make(map[string]remote.Entry, len(entries))
	for _, entry := range entries {
		byName[entry.Name] = entry
	}
	return byName
}

func isDuplicate(byName map[string]remote.Entry, name string, kind remote.EntryKind) bool {
	entry, ok := byName[name]
	return ok && entry.Kind == kind
}

// enterRemoteFolder resolves or creates the remote folder for a local
// subdirectory and returns the walk unit for it. Creation failures are
// carried on the unit so each file below surfaces the error itself.
func (e *Executor) enterRemoteFolder(ctx context.Context, parent uploadUnit, path, rel, name string, destNames map[string]remote.Entry) uploadUnit {
	next := uploadUnit{
		localDir: path,
		relDir:   rel,
		destErr:  parent.destErr,
	}
	if next.destErr != nil {
		return next
	}

	if entry, ok := destNames[name]; ok && entry.Kind == remote.KindFolder {
		next.remoteParent = entry.ID
		return next
	}

	folderID, err := e.store.CreateFolder(ctx, parent.remoteParent, name)
	if err != nil {
		next.destErr = err
		return next
	}
	e.loader.Invalidate(parent.remoteParent)
	next.remoteParent = folderID
	return next
}

// uploadFile moves one file and reports status transitions. Returns true
// when the upload succeeded.
func (e *Executor) uploadFile(ctx context.Context, transferID string, fd FileDescriptor) bool {
	f, err := os.Open(fd.ID)
	if err != nil {
		msg := fmt.Sprintf("opening %s: %v: %v", fd.ID, err, remote.ErrLocalIO)
		_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusError, 0, msg)
		return false
	}
	defer f.Close()

	_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusInProgress, 0, "")

	_, err = e.store.Upload(ctx, fd.DestID, fd.Name, f, fd.Size, func(n int64) {
		_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusInProgress, n, "")
	})
	if err != nil {
		_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusError, 0, errText(err))
		return false
	}

	_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusCompleted, fd.Size, "")
	return true
}

// downloadUnit is one remote folder pending enumeration during a folder
// download walk.
type downloadUnit struct {
	remoteFolder string
	localDir     string
	relDir       string
}

func (e *Executor) runFolderDownload(ctx context.Context, item TransferItem) {
	if len(item.Files) > 0 {
		e.retryPass(ctx, item)
		return
	}

	queue := []downloadUnit{{
		remoteFolder: item.SourcePath,
		localDir:     item.DestinationPath,
	}}
	first := true

	for len(queue) > 0 {
		if e.manager.IsCancelled(item.ID) {
			logger.Info("transfer %s cancelled, stopping enumeration", item.ID)
			return
		}

		unit := queue[0]
		queue = queue[1:]

		entries, err := e.loader.ListCached(ctx, unit.remoteFolder)
		if err != nil {
			if first {
				_ = e.manager.FailTransfer(item.ID, errText(err))
				return
			}
			logger.Warn("skipping unlistable remote folder %s: %v", unit.remoteFolder, err)
			continue
		}

		// Local directories exist before anything descends into them.
		if err := os.MkdirAll(unit.localDir, 0755); err != nil {
			if first {
				_ = e.manager.FailTransfer(item.ID, fmt.Sprintf("creating %s: %v: %v", unit.localDir, err, remote.ErrLocalIO))
				return
			}
			logger.Warn("skipping uncreatable directory %s: %v", unit.localDir, err)
			continue
		}
		first = false

		localNames := localFileNames(unit.localDir)

		for _, entry := range entries {
			if e.manager.IsCancelled(item.ID) {
				logger.Info("transfer %s cancelled, stopping enumeration", item.ID)
				return
			}

			rel := filepath.Join(unit.relDir, entry.Name)

			if entry.Kind == remote.KindFolder {
				queue = append(queue, downloadUnit{
					remoteFolder: entry.ID,
					localDir:     filepath.Join(unit.localDir, entry.Name),
					relDir:       rel,
				})
				continue
			}

			fd := FileDescriptor{
				ID:           entry.ID,
				Name:         entry.Name,
				RelativePath: rel,
				DestID:       unit.localDir,
				Size:         entry.Size,
			}
			if err := e.manager.AddFile(item.ID, fd); err != nil {
				logger.Warn("adding %s to transfer %s: %v", entry.ID, item.ID, err)
				continue
			}

			if localNames[entry.Name] {
				_ = e.manager.MarkDuplicateSkip(item.ID, fd.ID)
				continue
			}
			e.downloadFile(ctx, item.ID, fd)
		}
	}

	_ = e.manager.FinishEnumeration(item.ID)
}

// localFileNames lists the plain files already present in a directory for
// the download-side duplicate check.
func localFileNames(dir string) map[string]bool {
	names := make(map[string]bool)
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return names
	}
	for _, d := range dirents {
		if !d.IsDir() {
			names[d.Name()] = true
		}
	}
	return names
}

// downloadFile moves one file and reports status transitions.
func (e *Executor) downloadFile(ctx context.Context, transferID string, fd FileDescriptor) {
	target := filepath.Join(fd.DestID, fd.Name)
	f, err := os.Create(target)
	if err != nil {
		msg := fmt.Sprintf("creating %s: %v: %v", target, err, remote.ErrLocalIO)
		_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusError, 0, msg)
		return
	}

	_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusInProgress, 0, "")

	written, err := e.store.Download(ctx, fd.ID, f, func(n int64) {
		_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusInProgress, n, "")
	})
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("closing %s: %v: %w", target, closeErr, remote.ErrLocalIO)
	}
	if err != nil {
		_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusError, 0, errText(err))
		return
	}

	_ = e.manager.UpdateFileStatus(transferID, fd.ID, StatusCompleted, written, "")
}

// retryPass re-runs the pending children of a previously-enumerated
// folder transfer. Only files reset by RetryFailedFiles are touched;
// completed, skipped and error children are left alone. Files that
// failed before their destination folder existed get the folder
// re-resolved here, so a transient creation failure is retryable too.
func (e *Executor) retryPass(ctx context.Context, item TransferItem) {
	for _, f := range item.Files {
		if e.manager.IsCancelled(item.ID) {
			logger.Info("transfer %s cancelled, stopping retry pass", item.ID)
			return
		}
		if f.Status != StatusPending {
			continue
		}

		fd := FileDescriptor{
			ID:           f.ID,
			Name:         f.Name,
			RelativePath: f.RelativePath,
			DestID:       f.DestID,
			Size:         f.Size,
		}
		if fd.DestID == "" && item.Direction == DirectionUpload {
			destID, err := e.resolveRemoteDir(ctx, item.DestinationPath, filepath.Dir(fd.RelativePath))
			if err != nil {
				msg := fmt.Sprintf("destination folder unavailable: %v", err)
				_ = e.manager.UpdateFileStatus(item.ID, fd.ID, StatusError, 0, msg)
				continue
			}
			fd.DestID = destID
		}
		if item.Direction == DirectionUpload {
			if e.uploadFile(ctx, item.ID, fd) {
				e.loader.Invalidate(fd.DestID)
			}
		} else {
			e.downloadFile(ctx, item.ID, fd)
		}
	}
}

// resolveRemoteDir walks a relative directory path below the transfer
// root, creating each missing segment, and returns the ID of the final
// folder. CreateFolder returning the existing folder's ID makes the
// walk idempotent across retries.
func (e *Executor) resolveRemoteDir(ctx context.Context, rootID, relDir string) (string, error) {
	parent := rootID
	relDir = filepath.ToSlash(relDir)
	if relDir == "" || relDir == "." {
		return parent, nil
	}
	for _, name := range strings.Split(relDir, "/") {
		folderID, err := e.store.CreateFolder(ctx, parent, name)
		if err != nil {
			return "", err
		}
		e.loader.Invalidate(parent)
		parent = folderID
	}
	return parent, nil
}
