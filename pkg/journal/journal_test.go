package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falachabt/zymupload/pkg/transfer"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func finishedItem(id string, status transfer.Status, completedAt time.Time) transfer.TransferItem {
	return transfer.TransferItem{
		ID:               id,
		Kind:             transfer.KindFolder,
		Direction:        transfer.DirectionUpload,
		Name:             "photos",
		SourcePath:       "/src/photos",
		DestinationPath:  "root",
		Status:           status,
		BytesTransferred: 42,
		Files: []*transfer.FileTransferItem{
			{ID: "f1", Status: transfer.StatusCompleted},
			{ID: "f2", Status: transfer.StatusSkipped},
			{ID: "f3", Status: transfer.StatusError, ErrorMessage: "boom"},
		},
		CreatedAt:   completedAt.Add(-time.Minute),
		CompletedAt: completedAt,
	}
}

func TestAppendAndHistory(t *testing.T) {
	j := openTestJournal(t)
	now := time.Now()

	require.NoError(t, j.Append(finishedItem("transfer-1", transfer.StatusCompletedWithErrors, now.Add(-2*time.Hour))))
	require.NoError(t, j.Append(finishedItem("transfer-2", transfer.StatusCompleted, now.Add(-time.Hour))))
	require.NoError(t, j.Append(finishedItem("transfer-3", transfer.StatusCancelled, now)))

	records, err := j.History(0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first
	assert.Equal(t, "transfer-3", records[0].TransferID)
	assert.Equal(t, "transfer-2", records[1].TransferID)
	assert.Equal(t, "transfer-1", records[2].TransferID)
}

func TestHistoryLimit(t *testing.T) {
	j := openTestJournal(t)
	now := time.Now()

	for i, id := range []string{"transfer-1", "transfer-2", "transfer-3"} {
		require.NoError(t, j.Append(finishedItem(id, transfer.StatusCompleted, now.Add(time.Duration(i)*time.Minute))))
	}

	records, err := j.History(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "transfer-3", records[0].TransferID)
	assert.Equal(t, "transfer-2", records[1].TransferID)
}

func TestRecordCounters(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.Append(finishedItem("transfer-1", transfer.StatusCompletedWithErrors, time.Now())))

	records, err := j.History(1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 3, rec.FileCount)
	assert.Equal(t, 1, rec.FailedCount)
	assert.Equal(t, 1, rec.SkippedCount)
	assert.Equal(t, int64(42), rec.TotalBytes)
	assert.Equal(t, "folder", rec.Kind)
	assert.Equal(t, "upload", rec.Direction)
	assert.Equal(t, "completed-with-errors", rec.Status)
}

func TestAppendRejectsActiveTransfer(t *testing.T) {
	j := openTestJournal(t)

	item := finishedItem("transfer-1", transfer.StatusInProgress, time.Now())
	assert.Error(t, j.Append(item))
}

func TestClear(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.Append(finishedItem("transfer-1", transfer.StatusCompleted, time.Now())))

	require.NoError(t, j.Clear())

	records, err := j.History(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSingleFileCounters(t *testing.T) {
	j := openTestJournal(t)
	item := transfer.TransferItem{
		ID:          "transfer-1",
		Kind:        transfer.KindSingleFile,
		Direction:   transfer.DirectionDownload,
		Name:        "a.txt",
		Status:      transfer.StatusError,
		CompletedAt: time.Now(),
	}
	require.NoError(t, j.Append(item))

	records, err := j.History(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].FileCount)
	assert.Equal(t, 1, records[0].FailedCount)
}
