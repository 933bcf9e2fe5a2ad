package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/falachabt/zymupload/pkg/remote"
)

func upload(t *testing.T, s *Store, parentID, name, content string) string {
	t.Helper()
	id, err := s.Upload(context.Background(), parentID, name,
		bytes.NewReader([]byte(content)), int64(len(content)), nil)
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return id
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id := upload(t, s, RootID, "hello.txt", "hello world")

	entry, err := s.GetMetadata(ctx, id)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if entry.Name != "hello.txt" || entry.Kind != remote.KindFile || entry.Size != 11 {
		t.Errorf("entry = %+v", entry)
	}

	var buf bytes.Buffer
	var lastProgress int64
	n, err := s.Download(ctx, id, &buf, func(b int64) { lastProgress = b })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 11 || buf.String() != "hello world" {
		t.Errorf("downloaded %d bytes %q", n, buf.String())
	}
	if lastProgress != 11 {
		t.Errorf("final progress = %d, want 11", lastProgress)
	}
}

func TestUploadOverwritesSameName(t *testing.T) {
	s := NewStore()

	first := upload(t, s, RootID, "doc.txt", "short")
	second := upload(t, s, RootID, "doc.txt", "much longer content")

	if first != second {
		t.Errorf("overwrite allocated a new ID: %s vs %s", first, second)
	}
	entry, _ := s.GetMetadata(context.Background(), second)
	if entry.Size != int64(len("much longer content")) {
		t.Errorf("size after overwrite = %d", entry.Size)
	}
}

func TestCreateFolderIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first, err := s.CreateFolder(ctx, RootID, "docs")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	second, err := s.CreateFolder(ctx, RootID, "docs")
	if err != nil {
		t.Fatalf("second CreateFolder: %v", err)
	}
	if first != second {
		t.Errorf("idempotent create returned %s then %s", first, second)
	}
}

func TestListChildren(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	docs, _ := s.CreateFolder(ctx, RootID, "docs")
	upload(t, s, docs, "a.txt", "a")
	upload(t, s, docs, "b.txt", "b")

	entries, err := s.ListChildren(ctx, docs)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}

	if _, err := s.ListChildren(ctx, "nope"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("unknown folder: %v, want ErrNotFound", err)
	}
}

func TestDeleteTrashAndPermanent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id := upload(t, s, RootID, "temp.txt", "x")

	// Trash hides the object from reads
	if err := s.Delete(ctx, id, false); err != nil {
		t.Fatalf("Delete(trash): %v", err)
	}
	if _, err := s.GetMetadata(ctx, id); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("trashed object still visible: %v", err)
	}

	// Permanent delete of an unknown object reports not found
	if err := s.Delete(ctx, "missing", true); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("delete missing: %v, want ErrNotFound", err)
	}
}

func TestRename(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	id := upload(t, s, RootID, "old.txt", "data")
	if err := s.Rename(ctx, id, "new.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	entry, _ := s.GetMetadata(ctx, id)
	if entry.Name != "new.txt" {
		t.Errorf("name after rename = %q", entry.Name)
	}

	entries, _ := s.ListChildren(ctx, RootID)
	if len(entries) != 1 || entries[0].Name != "new.txt" {
		t.Errorf("listing after rename = %v", entries)
	}
}

func TestSearchCaseInsensitiveSubstring(t *testing.T) {
	s := NewStore()

	upload(t, s, RootID, "Report-2026.pdf", "x")
	upload(t, s, RootID, "notes.txt", "y")

	matches, err := s.Search(context.Background(), "report")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "Report-2026.pdf" {
		t.Errorf("matches = %v", matches)
	}
}

func TestFailNextInjectsOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	injected := errors.New("injected")

	s.FailNext("list:"+RootID, injected)

	if _, err := s.ListChildren(ctx, RootID); !errors.Is(err, injected) {
		t.Fatalf("first call: %v, want injected error", err)
	}
	if _, err := s.ListChildren(ctx, RootID); err != nil {
		t.Errorf("second call: %v, want success", err)
	}
}

func TestRootID(t *testing.T) {
	s := NewStore()
	if s.RootID() != RootID {
		t.Errorf("RootID() = %q", s.RootID())
	}
}
