package transfer

import (
	"math"
	"testing"
)

func files(statuses ...Status) []*FileTransferItem {
	out := make([]*FileTransferItem, len(statuses))
	for i, s := range statuses {
		out[i] = &FileTransferItem{ID: string(rune('a' + i)), Size: 1, Status: s}
	}
	return out
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"no children", nil, StatusPending},
		{"all pending", []Status{StatusPending, StatusPending}, StatusPending},
		{"one in progress", []Status{StatusCompleted, StatusInProgress, StatusPending}, StatusInProgress},
		{"done and pending mix", []Status{StatusCompleted, StatusPending}, StatusInProgress},
		{"error and pending mix after retry", []Status{StatusCompleted, StatusError, StatusPending}, StatusInProgress},
		{"all completed", []Status{StatusCompleted, StatusCompleted}, StatusCompleted},
		{"completed and skipped", []Status{StatusCompleted, StatusSkipped}, StatusCompleted},
		{"all skipped", []Status{StatusSkipped, StatusSkipped}, StatusCompleted},
		{"some errors", []Status{StatusCompleted, StatusError, StatusCompleted}, StatusCompletedWithErrors},
		{"skipped and error", []Status{StatusSkipped, StatusError}, StatusCompletedWithErrors},
		{"all errors", []Status{StatusError, StatusError}, StatusError},
		{"single error", []Status{StatusError}, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := aggregateStatus(files(tt.statuses...))
			if got != tt.want {
				t.Errorf("aggregateStatus(%v) = %v, want %v", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestProgressFraction(t *testing.T) {
	children := []*FileTransferItem{
		{ID: "f1", Size: 10, Status: StatusCompleted},
		{ID: "f2", Size: 20, Status: StatusError},
		{ID: "f3", Size: 30, Status: StatusCompleted},
	}

	got := progressFraction(children)
	want := 40.0 / 60.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("progressFraction = %v, want %v", got, want)
	}
}

func TestProgressFraction_SkippedCountsAsDone(t *testing.T) {
	children := []*FileTransferItem{
		{ID: "f1", Size: 50, Status: StatusSkipped},
		{ID: "f2", Size: 50, Status: StatusPending},
	}

	if got := progressFraction(children); got != 0.5 {
		t.Errorf("progressFraction = %v, want 0.5", got)
	}
}

func TestProgressFraction_ZeroTotalSize(t *testing.T) {
	children := []*FileTransferItem{
		{ID: "f1", Size: 0, Status: StatusCompleted},
	}

	if got := progressFraction(children); got != 0 {
		t.Errorf("progressFraction with zero total = %v, want 0", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusSkipped, StatusError, StatusCompletedWithErrors, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", s)
		}
	}

	active := []Status{StatusPending, StatusInProgress}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
}

func TestTransferItemProgress_SingleFile(t *testing.T) {
	item := &TransferItem{
		Kind:             KindSingleFile,
		Size:             100,
		BytesTransferred: 25,
		Status:           StatusInProgress,
	}
	if got := item.Progress(); got != 0.25 {
		t.Errorf("Progress() = %v, want 0.25", got)
	}

	item.Status = StatusCompleted
	if got := item.Progress(); got != 1 {
		t.Errorf("Progress() after completion = %v, want 1", got)
	}
}

func TestTransferItemCounts(t *testing.T) {
	item := &TransferItem{
		Kind: KindFolder,
		Files: []*FileTransferItem{
			{ID: "f1", Status: StatusCompleted},
			{ID: "f2", Status: StatusSkipped},
			{ID: "f3", Status: StatusError},
			{ID: "f4", Status: StatusPending},
		},
	}

	if got := item.CompletedFiles(); got != 2 {
		t.Errorf("CompletedFiles() = %d, want 2", got)
	}
	if got := item.FailedFiles(); got != 1 {
		t.Errorf("FailedFiles() = %d, want 1", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	item := &TransferItem{
		ID:   "transfer-1",
		Kind: KindFolder,
		Files: []*FileTransferItem{
			{ID: "f1", Status: StatusPending},
		},
	}

	copied := item.clone()
	copied.Files[0].Status = StatusCompleted

	if item.Files[0].Status != StatusPending {
		t.Error("mutating a clone's child leaked into the original")
	}
}
