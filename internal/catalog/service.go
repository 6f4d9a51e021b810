package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"openlearn/api/internal/docstore"
)

// Document paths inside the content repository.
const (
	ContentsPath = "data/global/contents.json"
	SnapshotPath = "data/global/catalog.json"
)

const regenerateAttempts = 3

// Service compiles and persists catalog snapshots. cache may be nil; the
// snapshot document in the content repository is always authoritative.
type Service struct {
	store *docstore.Store
	cache *Cache
	now   func() time.Time
}

func NewService(store *docstore.Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache, now: time.Now}
}

// Contents returns the global content list, newest first. A missing or
// corrupt list reads as empty.
func (s *Service) Contents(ctx context.Context) ([]Content, error) {
	var contents []Content
	if _, err := s.store.Get(ctx, ContentsPath, &contents); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return []Content{}, nil
		}
		return nil, err
	}
	return contents, nil
}

// Add prepends a content entity to the global list and invalidates the
// cached snapshot. Snapshot regeneration is the caller's call: the app layer
// kicks it off in the background after a successful add.
func (s *Service) Add(ctx context.Context, content Content) ([]Content, error) {
	message := fmt.Sprintf("Add new global content: %s", content.Title)
	list, err := docstore.AppendToList(ctx, s.store, ContentsPath, content, message)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return list, nil
}

// Regenerate compiles the snapshot from the current content list and
// persists it, retrying the whole-document replace on revision conflicts.
func (s *Service) Regenerate(ctx context.Context) (*Snapshot, error) {
	contents, err := s.Contents(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := Compile(contents, s.now())

	var lastErr error
	for attempt := 0; attempt < regenerateAttempts; attempt++ {
		// A corrupt snapshot still carries a revision; keep it so the
		// replace overwrites the garbage instead of failing the create.
		revision, err := s.store.Get(ctx, SnapshotPath, nil)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		message := fmt.Sprintf("Regenerate catalog: %d items", snapshot.TotalAvailable)
		if _, err := s.store.Save(ctx, SnapshotPath, snapshot, message, revision); err != nil {
			if errors.Is(err, docstore.ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		s.cacheSet(ctx, snapshot)
		return snapshot, nil
	}
	return nil, fmt.Errorf("regenerate catalog: retries exhausted: %w", lastErr)
}

// Current returns the latest snapshot: cache first, then the persisted
// snapshot document, regenerating when it is missing or corrupt.
func (s *Service) Current(ctx context.Context) (*Snapshot, error) {
	if s.cache != nil {
		if snapshot, ok := s.cache.Get(ctx); ok {
			return snapshot, nil
		}
	}

	var snapshot Snapshot
	if _, err := s.store.Get(ctx, SnapshotPath, &snapshot); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return s.Regenerate(ctx)
		}
		return nil, err
	}
	s.cacheSet(ctx, &snapshot)
	return &snapshot, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("catalog: cache invalidate: %v", err)
	}
}

func (s *Service) cacheSet(ctx context.Context, snapshot *Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, snapshot); err != nil {
		log.Printf("catalog: cache set: %v", err)
	}
}
