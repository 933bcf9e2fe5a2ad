package transfer

import (
	"errors"
	"math"
	"testing"
)

func newFolderTransfer(t *testing.T, m *Manager, sizes ...int64) TransferItem {
	t.Helper()
	item := m.CreateTransfer(KindFolder, DirectionUpload, "/src/photos", "root", "photos", 0)
	for i, size := range sizes {
		fd := FileDescriptor{
			ID:     fileID(i),
			Name:   fileID(i) + ".bin",
			DestID: "root",
			Size:   size,
		}
		if err := m.AddFile(item.ID, fd); err != nil {
			t.Fatalf("AddFile(%s): %v", fd.ID, err)
		}
	}
	// The walk is done adding children; let the aggregate settle.
	if err := m.FinishEnumeration(item.ID); err != nil {
		t.Fatalf("FinishEnumeration: %v", err)
	}
	return item
}

func fileID(i int) string {
	return "file-" + string(rune('a'+i))
}

func TestCreateTransfer_AssignsSequentialIDs(t *testing.T) {
	m := NewManager(nil)

	first := m.CreateTransfer(KindSingleFile, DirectionUpload, "/src/a.txt", "root", "a.txt", 10)
	second := m.CreateTransfer(KindFolder, DirectionDownload, "folder-1", "/dst", "docs", 0)

	if first.ID == second.ID {
		t.Fatalf("expected distinct IDs, both are %s", first.ID)
	}
	if first.Status != StatusPending || second.Status != StatusPending {
		t.Error("new transfers must start pending")
	}
}

func TestAddFile_GrowsSizeAndStaysPending(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10, 20, 30)

	got, err := m.Get(item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Size != 60 {
		t.Errorf("Size = %d, want 60", got.Size)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %v, want pending", got.Status)
	}
	if len(got.Files) != 3 {
		t.Errorf("len(Files) = %d, want 3", len(got.Files))
	}
}

func TestAddFile_RejectsNonFolder(t *testing.T) {
	m := NewManager(nil)
	item := m.CreateTransfer(KindSingleFile, DirectionUpload, "/src/a.txt", "root", "a.txt", 10)

	err := m.AddFile(item.ID, FileDescriptor{ID: "x"})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("AddFile on single-file transfer: %v, want ErrInvalidState", err)
	}
}

func TestUpdateFileStatus_MixedOutcome(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10, 20, 30)

	steps := []struct {
		fileID string
		status Status
		bytes  int64
		want   Status
	}{
		{fileID(0), StatusInProgress, 0, StatusInProgress},
		{fileID(0), StatusCompleted, 10, StatusInProgress},
		{fileID(1), StatusError, 0, StatusInProgress},
		{fileID(2), StatusCompleted, 30, StatusCompletedWithErrors},
	}

	for _, step := range steps {
		if err := m.UpdateFileStatus(item.ID, step.fileID, step.status, step.bytes, "boom"); err != nil {
			t.Fatalf("UpdateFileStatus(%s, %v): %v", step.fileID, step.status, err)
		}
		got, _ := m.Get(item.ID)
		if got.Status != step.want {
			t.Errorf("after %s -> %v: aggregate = %v, want %v", step.fileID, step.status, got.Status, step.want)
		}
	}

	got, _ := m.Get(item.ID)
	if got.BytesTransferred != 40 {
		t.Errorf("BytesTransferred = %d, want 40", got.BytesTransferred)
	}
	want := 40.0 / 60.0
	if math.Abs(got.Progress()-want) > 1e-9 {
		t.Errorf("Progress() = %v, want %v", got.Progress(), want)
	}
}

func TestUpdateFileStatus_RejectedOnceTerminal(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10)

	if err := m.UpdateFileStatus(item.ID, fileID(0), StatusCompleted, 10, ""); err != nil {
		t.Fatalf("UpdateFileStatus: %v", err)
	}

	err := m.UpdateFileStatus(item.ID, fileID(0), StatusInProgress, 5, "")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("update on completed transfer: %v, want ErrInvalidState", err)
	}
}

func TestUpdateFileStatus_HeldOpenWhileWalkAddsFiles(t *testing.T) {
	m := NewManager(nil)
	item := m.CreateTransfer(KindFolder, DirectionUpload, "/src", "root", "src", 0)

	// First child finishes before the walk has seen the rest of the tree.
	if err := m.AddFile(item.ID, FileDescriptor{ID: "f1", Name: "a.txt", DestID: "root", Size: 10}); err != nil {
		t.Fatalf("AddFile f1: %v", err)
	}
	if err := m.UpdateFileStatus(item.ID, "f1", StatusCompleted, 10, ""); err != nil {
		t.Fatalf("UpdateFileStatus f1: %v", err)
	}

	got, _ := m.Get(item.ID)
	if got.Status != StatusInProgress {
		t.Fatalf("aggregate mid-walk = %v, want in-progress", got.Status)
	}

	// Later children must still be accepted and transferable.
	if err := m.AddFile(item.ID, FileDescriptor{ID: "f2", Name: "b.txt", DestID: "root", Size: 20}); err != nil {
		t.Fatalf("AddFile f2 after first child completed: %v", err)
	}
	if err := m.UpdateFileStatus(item.ID, "f2", StatusCompleted, 20, ""); err != nil {
		t.Fatalf("UpdateFileStatus f2: %v", err)
	}

	got, _ = m.Get(item.ID)
	if got.Status != StatusInProgress {
		t.Fatalf("aggregate before FinishEnumeration = %v, want in-progress", got.Status)
	}

	if err := m.FinishEnumeration(item.ID); err != nil {
		t.Fatalf("FinishEnumeration: %v", err)
	}
	got, _ = m.Get(item.ID)
	if got.Status != StatusCompleted {
		t.Errorf("settled aggregate = %v, want completed", got.Status)
	}
	if len(got.Files) != 2 || got.BytesTransferred != 30 {
		t.Errorf("got %d files / %d bytes, want 2 files / 30 bytes", len(got.Files), got.BytesTransferred)
	}
}

func TestUpdateFileStatus_SingleFileCarriesOwnState(t *testing.T) {
	m := NewManager(nil)
	item := m.CreateTransfer(KindSingleFile, DirectionUpload, "/src/a.txt", "root", "a.txt", 100)

	if err := m.UpdateFileStatus(item.ID, "", StatusInProgress, 40, ""); err != nil {
		t.Fatalf("UpdateFileStatus: %v", err)
	}
	got, _ := m.Get(item.ID)
	if got.Status != StatusInProgress || got.BytesTransferred != 40 {
		t.Errorf("got %v/%d bytes, want in-progress/40", got.Status, got.BytesTransferred)
	}

	if err := m.UpdateFileStatus(item.ID, "", StatusError, 0, "disk full"); err != nil {
		t.Fatalf("UpdateFileStatus: %v", err)
	}
	got, _ = m.Get(item.ID)
	if got.Status != StatusError || got.ErrorMessage != "disk full" {
		t.Errorf("got %v %q, want error with message", got.Status, got.ErrorMessage)
	}
}

func TestUpdateFileStatus_UnknownIDs(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10)

	if err := m.UpdateFileStatus("transfer-999", fileID(0), StatusCompleted, 10, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown transfer: %v, want ErrNotFound", err)
	}
	if err := m.UpdateFileStatus(item.ID, "nope", StatusCompleted, 10, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown file: %v, want ErrNotFound", err)
	}
}

func TestMarkDuplicateSkip(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10, 20)

	if err := m.MarkDuplicateSkip(item.ID, fileID(0)); err != nil {
		t.Fatalf("MarkDuplicateSkip: %v", err)
	}

	got, _ := m.Get(item.ID)
	if got.Files[0].Status != StatusSkipped {
		t.Errorf("file status = %v, want skipped", got.Files[0].Status)
	}
	if got.Files[0].BytesTransferred != 0 {
		t.Error("skipped file must not report transferred bytes")
	}
	// Skipped counts toward progress at full size
	if got.Progress() != 10.0/30.0 {
		t.Errorf("Progress() = %v, want %v", got.Progress(), 10.0/30.0)
	}

	// Only pending files can be skipped
	if err := m.MarkDuplicateSkip(item.ID, fileID(0)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second skip: %v, want ErrInvalidState", err)
	}
}

func TestRetryFailedFiles_ResetsOnlyErrors(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10, 20, 30)

	_ = m.UpdateFileStatus(item.ID, fileID(0), StatusCompleted, 10, "")
	_ = m.UpdateFileStatus(item.ID, fileID(1), StatusError, 0, "network timeout")
	_ = m.UpdateFileStatus(item.ID, fileID(2), StatusCompleted, 30, "")

	reset, err := m.RetryFailedFiles(item.ID)
	if err != nil {
		t.Fatalf("RetryFailedFiles: %v", err)
	}
	if len(reset) != 1 || reset[0].ID != fileID(1) {
		t.Fatalf("reset = %v, want exactly %s", reset, fileID(1))
	}
	if reset[0].Status != StatusPending || reset[0].RetryCount != 1 || reset[0].ErrorMessage != "" {
		t.Errorf("reset file = %+v, want pending/retry=1/no message", reset[0])
	}

	got, _ := m.Get(item.ID)
	if got.Status != StatusInProgress {
		t.Errorf("aggregate after retry = %v, want in-progress", got.Status)
	}
	if got.Files[0].Status != StatusCompleted || got.Files[2].Status != StatusCompleted {
		t.Error("retry must not touch completed siblings")
	}

	// Completing the retried file finishes the transfer cleanly
	if err := m.UpdateFileStatus(item.ID, fileID(1), StatusCompleted, 20, ""); err != nil {
		t.Fatalf("UpdateFileStatus after retry: %v", err)
	}
	got, _ = m.Get(item.ID)
	if got.Status != StatusCompleted {
		t.Errorf("final aggregate = %v, want completed", got.Status)
	}
}

func TestRetryFailedFiles_TargetedSubset(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10, 20)

	_ = m.UpdateFileStatus(item.ID, fileID(0), StatusError, 0, "boom")
	_ = m.UpdateFileStatus(item.ID, fileID(1), StatusError, 0, "boom")

	reset, err := m.RetryFailedFiles(item.ID, fileID(1))
	if err != nil {
		t.Fatalf("RetryFailedFiles: %v", err)
	}
	if len(reset) != 1 || reset[0].ID != fileID(1) {
		t.Fatalf("reset = %v, want only %s", reset, fileID(1))
	}

	got, _ := m.Get(item.ID)
	if got.Files[0].Status != StatusError {
		t.Error("untargeted error file must stay in error")
	}
}

func TestRetryFailedFiles_UnknownFileID(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10)
	_ = m.UpdateFileStatus(item.ID, fileID(0), StatusError, 0, "boom")

	if _, err := m.RetryFailedFiles(item.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("retry with unknown file: %v, want ErrNotFound", err)
	}
}

func TestRetryFailedFiles_SingleFile(t *testing.T) {
	m := NewManager(nil)
	item := m.CreateTransfer(KindSingleFile, DirectionUpload, "/src/a.txt", "root", "a.txt", 10)

	if _, err := m.RetryFailedFiles(item.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("retry of non-error single file: %v, want ErrInvalidState", err)
	}

	_ = m.UpdateFileStatus(item.ID, "", StatusError, 0, "boom")
	reset, err := m.RetryFailedFiles(item.ID)
	if err != nil {
		t.Fatalf("RetryFailedFiles: %v", err)
	}
	if len(reset) != 1 || reset[0].RetryCount != 1 {
		t.Fatalf("reset = %+v, want one entry with retry=1", reset)
	}

	got, _ := m.Get(item.ID)
	if got.Status != StatusPending || got.ErrorMessage != "" {
		t.Errorf("got %v %q, want pending with cleared message", got.Status, got.ErrorMessage)
	}
}

func TestCancelTransfer(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10, 20)
	_ = m.UpdateFileStatus(item.ID, fileID(0), StatusInProgress, 5, "")

	if err := m.CancelTransfer(item.ID); err != nil {
		t.Fatalf("CancelTransfer: %v", err)
	}
	if !m.IsCancelled(item.ID) {
		t.Fatal("IsCancelled = false after cancel")
	}

	// An in-flight file may still finish, but the parent stays cancelled
	if err := m.UpdateFileStatus(item.ID, fileID(0), StatusCompleted, 10, ""); err != nil {
		t.Fatalf("child update after cancel: %v", err)
	}
	got, _ := m.Get(item.ID)
	if got.Status != StatusCancelled {
		t.Errorf("status after in-flight completion = %v, want cancelled", got.Status)
	}
	if got.Files[0].Status != StatusCompleted {
		t.Error("in-flight child result must be recorded")
	}

	// Cancelling again is rejected
	if err := m.CancelTransfer(item.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second cancel: %v, want ErrInvalidState", err)
	}
}

func TestCancelTransfer_RejectsTerminal(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10)
	_ = m.UpdateFileStatus(item.ID, fileID(0), StatusCompleted, 10, "")

	if err := m.CancelTransfer(item.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cancel of completed transfer: %v, want ErrInvalidState", err)
	}
}

func TestFinishEnumeration_EmptyFolderCompletes(t *testing.T) {
	m := NewManager(nil)
	item := m.CreateTransfer(KindFolder, DirectionUpload, "/src/empty", "root", "empty", 0)

	if err := m.FinishEnumeration(item.ID); err != nil {
		t.Fatalf("FinishEnumeration: %v", err)
	}
	got, _ := m.Get(item.ID)
	if got.Status != StatusCompleted {
		t.Errorf("empty folder status = %v, want completed", got.Status)
	}
}

func TestFinishEnumeration_NoOpWithChildren(t *testing.T) {
	m := NewManager(nil)
	item := newFolderTransfer(t, m, 10)
	_ = m.UpdateFileStatus(item.ID, fileID(0), StatusError, 0, "boom")

	if err := m.FinishEnumeration(item.ID); err != nil {
		t.Fatalf("FinishEnumeration: %v", err)
	}
	got, _ := m.Get(item.ID)
	if got.Status != StatusError {
		t.Errorf("status = %v, want error (aggregate owns it)", got.Status)
	}
}

func TestFailTransfer_OnlyBeforeChildren(t *testing.T) {
	m := NewManager(nil)

	bad := m.CreateTransfer(KindFolder, DirectionUpload, "/src/gone", "root", "gone", 0)
	if err := m.FailTransfer(bad.ID, "source directory unreadable"); err != nil {
		t.Fatalf("FailTransfer: %v", err)
	}
	got, _ := m.Get(bad.ID)
	if got.Status != StatusError || got.ErrorMessage == "" {
		t.Errorf("got %v %q, want error with message", got.Status, got.ErrorMessage)
	}

	withKids := newFolderTransfer(t, m, 10)
	if err := m.FailTransfer(withKids.ID, "nope"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("FailTransfer with children: %v, want ErrInvalidState", err)
	}
}

func TestErrorFiles_AcrossTransfers(t *testing.T) {
	m := NewManager(nil)

	folder := newFolderTransfer(t, m, 10, 20)
	_ = m.UpdateFileStatus(folder.ID, fileID(0), StatusError, 0, "timeout")
	_ = m.UpdateFileStatus(folder.ID, fileID(1), StatusCompleted, 20, "")

	single := m.CreateTransfer(KindSingleFile, DirectionUpload, "/src/b.txt", "root", "b.txt", 5)
	_ = m.UpdateFileStatus(single.ID, "", StatusError, 0, "quota exceeded")

	errs := m.ErrorFiles()
	if len(errs) != 2 {
		t.Fatalf("len(ErrorFiles) = %d, want 2", len(errs))
	}
	if errs[0].TransferID != folder.ID || errs[0].File.ErrorMessage != "timeout" {
		t.Errorf("first error = %+v", errs[0])
	}
	if errs[1].TransferID != single.ID || errs[1].File.ErrorMessage != "quota exceeded" {
		t.Errorf("second error = %+v", errs[1])
	}
}

func TestClearCompleted(t *testing.T) {
	m := NewManager(nil)

	done := newFolderTransfer(t, m, 10)
	_ = m.UpdateFileStatus(done.ID, fileID(0), StatusCompleted, 10, "")

	active := newFolderTransfer(t, m, 10)
	_ = m.UpdateFileStatus(active.ID, fileID(0), StatusInProgress, 3, "")

	if removed := m.ClearCompleted(); removed != 1 {
		t.Errorf("ClearCompleted = %d, want 1", removed)
	}
	if _, err := m.Get(done.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cleared transfer still retrievable: %v", err)
	}
	if _, err := m.Get(active.ID); err != nil {
		t.Errorf("active transfer was removed: %v", err)
	}
}
