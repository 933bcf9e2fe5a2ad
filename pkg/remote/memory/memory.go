// Package memory provides an in-memory remote store.
//
// It implements the full remote.Store contract against process memory and
// exists for two reasons: unit tests for the transfer core, and local
// experimentation without cloud credentials. Behavior mirrors the real
// backends: folder hierarchy, name-based child lookup, trash semantics for
// non-permanent deletes, and chunked progress reporting.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/falachabt/zymupload/pkg/remote"
)

// RootID is the identity of the root folder of every Store.
const RootID = "root"

// progressChunkSize is the granularity of progress callbacks. Matching the
// real backends' chunking keeps test expectations realistic.
const progressChunkSize = 32 * 1024

type node struct {
	entry    remote.Entry
	parentID string
	data     []byte
	children map[string]string // name -> child ID
	trashed  bool
}

// Store is an in-memory implementation of remote.Store.
//
// All operations are protected by a single mutex; the store is safe for
// concurrent use from multiple workers.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]*node
	nextID int

	// failures maps an operation key ("upload:<name>", "list:<folderID>",
	// "download:<fileID>") to an error injected on the next matching call.
	// Tests use this to exercise the error paths of the transfer core.
	failures map[string]error
}

// NewStore creates an empty store containing only the root folder.
func NewStore() *Store {
	root := &node{
		entry: remote.Entry{
			ID:           RootID,
			Name:         "",
			Kind:         remote.KindFolder,
			ModifiedTime: time.Now(),
		},
		children: make(map[string]string),
	}
	return &Store{
		nodes:    map[string]*node{RootID: root},
		failures: make(map[string]error),
	}
}

// RootID returns the identity of the root folder.
func (s *Store) RootID() string {
	return RootID
}

// FailNext injects err for the next call matching key. Keys have the form
// "upload:<name>", "download:<fileID>", "list:<folderID>".
func (s *Store) FailNext(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = err
}

func (s *Store) takeFailure(key string) error {
	if err, ok := s.failures[key]; ok {
		delete(s.failures, key)
		return err
	}
	return nil
}

func (s *Store) allocID() string {
	s.nextID++
	return fmt.Sprintf("obj-%d", s.nextID)
}

func (s *Store) folder(id string) (*node, error) {
	n, ok := s.nodes[id]
	if !ok || n.trashed {
		return nil, fmt.Errorf("folder %s: %w", id, remote.ErrNotFound)
	}
	if n.entry.Kind != remote.KindFolder {
		return nil, fmt.Errorf("object %s is not a folder: %w", id, remote.ErrNotFound)
	}
	return n, nil
}

func (s *Store) ListChildren(ctx context.Context, folderID string) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("list:" + folderID); err != nil {
		return nil, err
	}

	parent, err := s.folder(folderID)
	if err != nil {
		return nil, err
	}

	entries := make([]remote.Entry, 0, len(parent.children))
	for _, childID := range parent.children {
		child := s.nodes[childID]
		if child.trashed {
			continue
		}
		entries = append(entries, child.entry)
	}
	return entries, nil
}

func (s *Store) GetMetadata(ctx context.Context, id string) (remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return remote.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok || n.trashed {
		return remote.Entry{}, fmt.Errorf("object %s: %w", id, remote.ErrNotFound)
	}
	return n.entry, nil
}

func (s *Store) Download(ctx context.Context, fileID string, w io.Writer, progress remote.ProgressFunc) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if err := s.takeFailure("download:" + fileID); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	n, ok := s.nodes[fileID]
	if !ok || n.trashed || n.entry.Kind != remote.KindFile {
		s.mu.Unlock()
		return 0, fmt.Errorf("file %s: %w", fileID, remote.ErrNotFound)
	}
	data := n.data
	s.mu.Unlock()

	var written int64
	for off := 0; off < len(data); off += progressChunkSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := off + progressChunkSize
		if end > len(data) {
			end = len(data)
		}
		nw, err := w.Write(data[off:end])
		written += int64(nw)
		if err != nil {
			return written, fmt.Errorf("writing download chunk: %w", remote.ErrLocalIO)
		}
		if progress != nil {
			progress(written)
		}
	}
	if len(data) == 0 && progress != nil {
		progress(0)
	}
	return written, nil
}

func (s *Store) Upload(ctx context.Context, parentID, name string, r io.Reader, size int64, progress remote.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if err := s.takeFailure("upload:" + name); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if _, err := s.folder(parentID); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.mu.Unlock()

	var buf bytes.Buffer
	chunk := make([]byte, progressChunkSize)
	var read int64
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			read += int64(n)
			if progress != nil {
				progress(read)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading upload source: %w", remote.ErrLocalIO)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.folder(parentID)
	if err != nil {
		return "", err
	}

	// Same-name upload overwrites, matching cloud drive behavior where the
	// duplicate check is the caller's responsibility.
	id, exists := parent.children[name]
	if !exists {
		id = s.allocID()
		parent.children[name] = id
	}
	s.nodes[id] = &node{
		entry: remote.Entry{
			ID:           id,
			Name:         name,
			Kind:         remote.KindFile,
			Size:         read,
			ModifiedTime: time.Now(),
		},
		parentID: parentID,
		data:     buf.Bytes(),
	}
	return id, nil
}

func (s *Store) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("mkdir:" + name); err != nil {
		return "", err
	}

	parent, err := s.folder(parentID)
	if err != nil {
		return "", err
	}

	if existingID, ok := parent.children[name]; ok {
		existing := s.nodes[existingID]
		if !existing.trashed && existing.entry.Kind == remote.KindFolder {
			return existingID, nil
		}
	}

	id := s.allocID()
	s.nodes[id] = &node{
		entry: remote.Entry{
			ID:           id,
			Name:         name,
			Kind:         remote.KindFolder,
			ModifiedTime: time.Now(),
		},
		parentID: parentID,
		children: make(map[string]string),
	}
	parent.children[name] = id
	return id, nil
}

func (s *Store) Delete(ctx context.Context, id string, permanent bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok || n.trashed {
		return fmt.Errorf("object %s: %w", id, remote.ErrNotFound)
	}

	if !permanent {
		n.trashed = true
		return nil
	}

	if parent, ok := s.nodes[n.parentID]; ok {
		delete(parent.children, n.entry.Name)
	}
	delete(s.nodes, id)
	return nil
}

func (s *Store) Rename(ctx context.Context, id, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok || n.trashed {
		return fmt.Errorf("object %s: %w", id, remote.ErrNotFound)
	}

	if parent, ok := s.nodes[n.parentID]; ok {
		delete(parent.children, n.entry.Name)
		parent.children[newName] = id
	}
	n.entry.Name = newName
	n.entry.ModifiedTime = time.Now()
	return nil
}

func (s *Store) Search(ctx context.Context, query string) ([]remote.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query = strings.ToLower(query)
	var matches []remote.Entry
	for _, n := range s.nodes {
		if n.trashed || n.entry.ID == RootID {
			continue
		}
		if strings.Contains(strings.ToLower(n.entry.Name), query) {
			matches = append(matches, n.entry)
		}
	}
	return matches, nil
}
