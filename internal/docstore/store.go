// Package docstore maps logical paths to JSON documents persisted in the
// versioned blob repository. Every mutation is a read-modify-write guarded by
// the repository's revision token; the primitives here compress that pattern
// so callers never hand-roll the race themselves.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"openlearn/api/internal/blobrepo"
)

var (
	// ErrNotFound reports a missing document or list element.
	ErrNotFound = blobrepo.ErrNotFound
	// ErrConflict reports a stale revision token. Append/upsert primitives
	// retry it a bounded number of times; Save surfaces it immediately.
	ErrConflict = blobrepo.ErrConflict
	// ErrCorruptPayload reports stored bytes that cannot be decoded. It
	// matches ErrNotFound under errors.Is so callers can safely regenerate
	// the document instead of failing on historical garbage.
	ErrCorruptPayload = fmt.Errorf("corrupt payload (treated as missing): %w", ErrNotFound)
)

// writeAttempts bounds the re-read-and-retry loop on revision conflicts.
const writeAttempts = 3

// batchWidth caps simultaneous in-flight reads for GetMany.
const batchWidth = 50

// ContentSource is the slice of the blob repository the store depends on.
type ContentSource interface {
	GetContent(ctx context.Context, path string) ([]byte, string, error)
	PutContent(ctx context.Context, path string, data []byte, message, revision string) (string, error)
}

// Store persists JSON documents at hierarchical paths. It holds no document
// state of its own: every operation is self-contained, reading a fresh
// revision token and writing with it before returning.
type Store struct {
	source ContentSource
}

func New(source ContentSource) *Store {
	return &Store{source: source}
}

// Get decodes the document at path into out and returns its revision token.
// Empty files and undecodable payloads report ErrCorruptPayload, which also
// matches ErrNotFound; the revision is still returned so a corrupt document
// can be overwritten in place rather than raced with a create-write.
func (s *Store) Get(ctx context.Context, path string, out any) (string, error) {
	raw, revision, err := s.Raw(ctx, path)
	if err != nil {
		return revision, err
	}
	if out == nil {
		return revision, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return revision, fmt.Errorf("%w: decode %s: %v", ErrCorruptPayload, path, err)
	}
	return revision, nil
}

// Raw returns the stored bytes without binding them to a target shape.
func (s *Store) Raw(ctx context.Context, path string) (json.RawMessage, string, error) {
	data, revision, err := s.source.GetContent(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("fetch %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, revision, fmt.Errorf("%w: %s is empty", ErrCorruptPayload, path)
	}
	if !json.Valid(data) {
		return nil, revision, fmt.Errorf("%w: %s is not valid JSON", ErrCorruptPayload, path)
	}
	return json.RawMessage(data), revision, nil
}

// Save writes doc at path. An empty revision creates the document; otherwise
// revision must be the token from the most recent read. Conflicts are
// surfaced, never retried: retry policy for plain saves belongs to the caller.
func (s *Store) Save(ctx context.Context, path string, doc any, message, revision string) (string, error) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", path, err)
	}
	next, err := s.source.PutContent(ctx, path, append(payload, '\n'), message, revision)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return "", err
		}
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return next, nil
}

// GetMany fetches several documents in parallel, at most batchWidth in
// flight. Results are positional; a failed or missing path degrades to a nil
// entry rather than failing the batch.
func (s *Store) GetMany(ctx context.Context, paths []string) []json.RawMessage {
	results := make([]json.RawMessage, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(batchWidth)
	for i, path := range paths {
		group.Go(func() error {
			raw, _, err := s.Raw(ctx, path)
			if err != nil {
				return nil
			}
			results[i] = raw
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// GetOrCreateDefault returns the document at path, synthesizing and
// persisting defaultFn's value when the path is missing or corrupt. When two
// callers race the create, the loser re-reads the winner's document.
func GetOrCreateDefault[T any](ctx context.Context, s *Store, path, message string, defaultFn func() T) (T, error) {
	var current T
	revision, err := s.Get(ctx, path, &current)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return current, err
	}

	// For a corrupt document Get still reports its revision; writing with it
	// replaces the garbage instead of losing to the create-only check.
	created := defaultFn()
	if _, err := s.Save(ctx, path, created, message, revision); err != nil {
		if errors.Is(err, ErrConflict) {
			var winner T
			if _, err := s.Get(ctx, path, &winner); err != nil {
				return winner, err
			}
			return winner, nil
		}
		return created, err
	}
	return created, nil
}

// AppendToList prepends item to the list stored at path (missing and corrupt
// documents count as empty lists) and returns the new list. A revision
// conflict triggers a bounded re-read-and-retry; no append is silently lost,
// but append order across concurrent callers is not deterministic.
func AppendToList[T any](ctx context.Context, s *Store, path string, item T, message string) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		var list []T
		revision, err := s.Get(ctx, path, &list)
		if errors.Is(err, ErrNotFound) {
			// Missing reads as empty with no revision; corrupt reads as
			// empty but keeps its revision so the rewrite lands.
			list = nil
		} else if err != nil {
			return nil, err
		}

		next := append([]T{item}, list...)
		if _, err := s.Save(ctx, path, next, message, revision); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("append to %s: retries exhausted: %w", path, lastErr)
}

// UpsertInList applies mutate to the first element matching match and writes
// the list back, with the same bounded conflict retry as AppendToList. A
// missing document or a list with no matching element reports ErrNotFound.
func UpsertInList[T any](ctx context.Context, s *Store, path string, match func(T) bool, mutate func(*T) error, message string) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		var list []T
		revision, err := s.Get(ctx, path, &list)
		if err != nil {
			return nil, err
		}

		index := -1
		for i, elem := range list {
			if match(elem) {
				index = i
				break
			}
		}
		if index == -1 {
			return nil, fmt.Errorf("%w: no matching element in %s", ErrNotFound, path)
		}
		if err := mutate(&list[index]); err != nil {
			return nil, err
		}

		if _, err := s.Save(ctx, path, list, message, revision); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("upsert in %s: retries exhausted: %w", path, lastErr)
}

// RemoveFromList deletes the first element matching match and returns the
// remaining list. ErrNotFound when the document or a matching element is
// absent; conflicts retried like the other list primitives.
func RemoveFromList[T any](ctx context.Context, s *Store, path string, match func(T) bool, message string) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		var list []T
		revision, err := s.Get(ctx, path, &list)
		if err != nil {
			return nil, err
		}

		index := -1
		for i, elem := range list {
			if match(elem) {
				index = i
				break
			}
		}
		if index == -1 {
			return nil, fmt.Errorf("%w: no matching element in %s", ErrNotFound, path)
		}
		next := append(append([]T{}, list[:index]...), list[index+1:]...)

		if _, err := s.Save(ctx, path, next, message, revision); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return next, nil
	}
	return nil, fmt.Errorf("remove from %s: retries exhausted: %w", path, lastErr)
}
