// Package journal persists a history of finished transfers in an embedded
// BadgerDB database so past activity survives restarts.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/falachabt/zymupload/pkg/transfer"
)

// keyPrefix namespaces journal records inside the database.
const keyPrefix = "transfer/"

// Record is one finished transfer as stored in the journal.
type Record struct {
	TransferID      string    `json:"transfer_id"`
	Name            string    `json:"name"`
	Kind            string    `json:"kind"`
	Direction       string    `json:"direction"`
	Status          string    `json:"status"`
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path"`
	TotalBytes      int64     `json:"total_bytes"`
	FileCount       int       `json:"file_count"`
	FailedCount     int       `json:"failed_count"`
	SkippedCount    int       `json:"skipped_count"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Config contains configuration for opening a journal.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	// Ignored when InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps the journal entirely in memory. Useful for tests;
	// history is lost on close.
	InMemory bool `mapstructure:"in_memory"`
}

// Journal is a persistent, append-only log of finished transfers.
//
// Records are keyed by completion time so range scans return history in
// chronological order. BadgerDB handles concurrent access internally;
// the journal adds no locking of its own.
type Journal struct {
	db *badger.DB
}

// Open opens (or creates) a journal at the configured path.
func Open(cfg Config) (*Journal, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Journal records are tiny JSON blobs; compression and large caches
	// buy nothing here.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", cfg.Path, err)
	}

	return &Journal{db: db}, nil
}

// Append stores the terminal state of a transfer.
//
// The key embeds the completion timestamp (nanoseconds, zero-padded so
// lexicographic order matches time order) plus the transfer ID to break
// ties between transfers finishing in the same nanosecond.
func (j *Journal) Append(item transfer.TransferItem) error {
	if !item.Status.Terminal() {
		return fmt.Errorf("transfer %s is %s, not terminal", item.ID, item.Status)
	}

	rec := recordFromItem(item)
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode journal record for %s: %w", item.ID, err)
	}

	key := fmt.Sprintf("%s%020d/%s", keyPrefix, rec.CompletedAt.UnixNano(), rec.TransferID)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to append journal record for %s: %w", item.ID, err)
	}
	return nil
}

// History returns the most recent records, newest first. A limit of 0 or
// less returns everything.
func (j *Journal) History(limit int) ([]Record, error) {
	var records []Record

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the end of the prefix
		// range.
		seek := []byte(keyPrefix + "\xff")
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to decode journal record %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Clear removes all history records.
func (j *Journal) Clear() error {
	return j.db.DropPrefix([]byte(keyPrefix))
}

// Close closes the underlying database. The journal must not be used
// afterwards.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

func recordFromItem(item transfer.TransferItem) Record {
	rec := Record{
		TransferID:      item.ID,
		Name:            item.Name,
		Kind:            item.Kind.String(),
		Direction:       item.Direction.String(),
		Status:          item.Status.String(),
		SourcePath:      item.SourcePath,
		DestinationPath: item.DestinationPath,
		TotalBytes:      item.BytesTransferred,
		ErrorMessage:    item.ErrorMessage,
		CreatedAt:       item.CreatedAt,
		CompletedAt:     item.CompletedAt,
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	if item.Kind == transfer.KindSingleFile {
		rec.FileCount = 1
		if item.Status == transfer.StatusError {
			rec.FailedCount = 1
		}
		if item.Status == transfer.StatusSkipped {
			rec.SkippedCount = 1
		}
		return rec
	}

	rec.FileCount = len(item.Files)
	for _, f := range item.Files {
		switch f.Status {
		case transfer.StatusError:
			rec.FailedCount++
		case transfer.StatusSkipped:
			rec.SkippedCount++
		}
	}
	return rec
}
