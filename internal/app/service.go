package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"openlearn/api/internal/catalog"
	"openlearn/api/internal/docstore"
	"openlearn/api/internal/export"
	"openlearn/api/internal/matcher"
	"openlearn/api/internal/media"
	"openlearn/api/internal/search"
	"openlearn/api/internal/util"
)

// batchProfileCap bounds one batch lookup request.
const batchProfileCap = 50

// backgroundTimeout bounds the catalog regeneration kicked off after a
// content add, which outlives the originating request.
const backgroundTimeout = 30 * time.Second

func userProfilePath(userID string) string {
	return fmt.Sprintf("data/users/%s/profile.json", userID)
}

func userCurriculaPath(userID string) string {
	return fmt.Sprintf("data/users/%s/curricula.json", userID)
}

// Service wires the document store, catalog, matcher, search, media and
// export layers behind the HTTP surface.
type Service struct {
	store    *docstore.Store
	catalog  *catalog.Service
	matcher  *matcher.Engine
	search   *search.Service
	exporter *export.Service
	media    *media.Service

	now func() time.Time
}

func NewService(store *docstore.Store, cat *catalog.Service, eng *matcher.Engine, srch *search.Service, exp *export.Service, med *media.Service) *Service {
	return &Service{
		store:    store,
		catalog:  cat,
		matcher:  eng,
		search:   srch,
		exporter: exp,
		media:    med,
		now:      time.Now,
	}
}

// Ping verifies the content repository is reachable. A missing contents
// document is fine; a fresh repository has none.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.store.Get(ctx, catalog.ContentsPath, nil); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	return nil
}

// Bootstrap warms the catalog snapshot and the search index on startup.
func (s *Service) Bootstrap(ctx context.Context) {
	snapshot, err := s.catalog.Current(ctx)
	if err != nil {
		log.Printf("app: bootstrap catalog: %v", err)
		return
	}
	if s.search != nil {
		s.search.ReindexAll(snapshot)
	}
}

// GlobalContents returns the global content list, newest first.
func (s *Service) GlobalContents(ctx context.Context) ([]catalog.Content, error) {
	return s.catalog.Contents(ctx)
}

// AddContent appends a content entity to the global list, then regenerates
// the catalog snapshot and search index in the background so the add
// response does not wait on them.
func (s *Service) AddContent(ctx context.Context, content catalog.Content) error {
	if strings.TrimSpace(content.ID) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content id is required", nil)
	}
	if strings.TrimSpace(content.Title) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content title is required", nil)
	}
	if _, err := s.catalog.Add(ctx, content); err != nil {
		return fmt.Errorf("add content: %w", err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		snapshot, err := s.catalog.Regenerate(ctx)
		if err != nil {
			log.Printf("app: background catalog regeneration: %v", err)
			return
		}
		if s.search != nil {
			for _, item := range snapshot.AllContents {
				if item.ID == content.ID {
					s.search.IndexContent(search.RecordFromItem(item))
					break
				}
			}
		}
	}()
	return nil
}

// UserProfile returns the stored profile, creating a default one on first
// access. Profiles are opaque to the service beyond the seeded fields.
func (s *Service) UserProfile(ctx context.Context, userID string) (map[string]any, error) {
	path := userProfilePath(userID)
	message := fmt.Sprintf("Create profile for user %s", userID)
	return docstore.GetOrCreateDefault(ctx, s.store, path, message, func() map[string]any {
		return map[string]any{
			"userId":    userID,
			"uploads":   []any{},
			"downloads": []any{},
			"createdAt": s.now().UTC().Format(time.RFC3339),
		}
	})
}

// UpdateUserProfile replaces the stored profile wholesale with the caller's
// document. The fresh revision is fetched just before the write, so a racing
// update surfaces as a conflict rather than a silent overwrite.
func (s *Service) UpdateUserProfile(ctx context.Context, userID string, profile map[string]any) (map[string]any, error) {
	path := userProfilePath(userID)
	revision, err := s.store.Get(ctx, path, nil)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}
	message := fmt.Sprintf("Update profile for user %s", userID)
	if _, err := s.store.Save(ctx, path, profile, message, revision); err != nil {
		return nil, err
	}
	return profile, nil
}

// BatchProfiles looks up profiles for up to batchProfileCap users in one
// round; absent or unreadable profiles map to nil.
func (s *Service) BatchProfiles(ctx context.Context, userIDs []string) map[string]any {
	if len(userIDs) > batchProfileCap {
		userIDs = userIDs[:batchProfileCap]
	}
	paths := make([]string, len(userIDs))
	for i, id := range userIDs {
		paths[i] = userProfilePath(id)
	}
	raws := s.store.GetMany(ctx, paths)

	results := make(map[string]any, len(userIDs))
	for i, id := range userIDs {
		results[id] = nil
		if raws[i] == nil {
			continue
		}
		var profile map[string]any
		if err := json.Unmarshal(raws[i], &profile); err == nil {
			results[id] = profile
		}
	}
	return results
}

// ValidateCurriculum resolves a candidate set against the current catalog
// snapshot without persisting anything.
func (s *Service) ValidateCurriculum(ctx context.Context, candidate map[string]any) (map[string]any, error) {
	snapshot, err := s.catalog.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	validated, err := s.matcher.Validate(candidate, snapshot)
	if err != nil {
		if errors.Is(err, matcher.ErrInvalidInput) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		return nil, err
	}
	return validated, nil
}

// SaveCurriculum validates a candidate set and prepends the resulting record
// to the user's curricula list.
func (s *Service) SaveCurriculum(ctx context.Context, userID string, formData, candidate map[string]any) (map[string]any, error) {
	validated, err := s.ValidateCurriculum(ctx, candidate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Format(time.RFC3339)
	record := map[string]any{
		"id":         util.NewTimestampedID("curriculum", s.now()),
		"userId":     userID,
		"formData":   formData,
		"curriculum": validated,
		"createdAt":  now,
		"updatedAt":  now,
	}

	goal := "New learning path"
	if g, ok := formData["learning_goal"].(string); ok && g != "" {
		if len(g) > 50 {
			g = g[:50]
		}
		goal = g
	}
	message := fmt.Sprintf("Add curriculum: %s", goal)
	if _, err := docstore.AppendToList(ctx, s.store, userCurriculaPath(userID), record, message); err != nil {
		return nil, fmt.Errorf("save curriculum: %w", err)
	}
	return record, nil
}

// CurriculaForUser returns all curricula for a user, newest first.
func (s *Service) CurriculaForUser(ctx context.Context, userID string) ([]map[string]any, error) {
	var curricula []map[string]any
	if _, err := s.store.Get(ctx, userCurriculaPath(userID), &curricula); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return []map[string]any{}, nil
		}
		return nil, err
	}
	if curricula == nil {
		curricula = []map[string]any{}
	}
	return curricula, nil
}

// CurriculumForUser returns one curriculum record by id.
func (s *Service) CurriculumForUser(ctx context.Context, userID, curriculumID string) (map[string]any, error) {
	curricula, err := s.CurriculaForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, record := range curricula {
		if record["id"] == curriculumID {
			return record, nil
		}
	}
	return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Curriculum not found", nil)
}

// DeleteCurriculum removes one curriculum record from the user's list.
func (s *Service) DeleteCurriculum(ctx context.Context, userID, curriculumID string) error {
	message := fmt.Sprintf("Delete curriculum: %s", curriculumID)
	_, err := docstore.RemoveFromList(ctx, s.store, userCurriculaPath(userID), func(record map[string]any) bool {
		return record["id"] == curriculumID
	}, message)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Curriculum not found", nil)
		}
		return fmt.Errorf("delete curriculum: %w", err)
	}
	return nil
}

// UpdateCurriculumProgress replaces the progress field on one curriculum
// record and bumps its updatedAt stamp.
func (s *Service) UpdateCurriculumProgress(ctx context.Context, userID, curriculumID string, progress map[string]any) (map[string]any, error) {
	message := fmt.Sprintf("Update progress: %s", curriculumID)
	var updated map[string]any
	_, err := docstore.UpsertInList(ctx, s.store, userCurriculaPath(userID), func(record map[string]any) bool {
		return record["id"] == curriculumID
	}, func(record *map[string]any) error {
		(*record)["progress"] = progress
		(*record)["updatedAt"] = s.now().UTC().Format(time.RFC3339)
		updated = *record
		return nil
	}, message)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Curriculum not found", nil)
		}
		return nil, fmt.Errorf("update progress: %w", err)
	}
	return updated, nil
}

// ExportCurriculum renders one curriculum record as a PDF download.
func (s *Service) ExportCurriculum(ctx context.Context, userID, curriculumID string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not configured", nil)
	}
	record, err := s.CurriculumForUser(ctx, userID, curriculumID)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, record)
	if err != nil {
		if errors.Is(err, export.ErrContentUnavailable) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Curriculum has no renderable content", nil)
		}
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer is not installed", nil)
		}
		return nil, fmt.Errorf("export curriculum: %w", err)
	}
	return result, nil
}

// CatalogSnapshot returns the current compiled snapshot, regenerating when
// none has been persisted yet.
func (s *Service) CatalogSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	return s.catalog.Current(ctx)
}

// RegenerateCatalog recompiles the snapshot from the content list and
// refreshes the search index.
func (s *Service) RegenerateCatalog(ctx context.Context) (*catalog.Snapshot, error) {
	snapshot, err := s.catalog.Regenerate(ctx)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.ReindexAll(snapshot)
	}
	return snapshot, nil
}

// RenderCatalog returns the snapshot in its prompt-ready text form.
func (s *Service) RenderCatalog(ctx context.Context) (string, error) {
	snapshot, err := s.catalog.Current(ctx)
	if err != nil {
		return "", err
	}
	return catalog.Render(snapshot), nil
}

// SearchContents queries the content index.
func (s *Service) SearchContents(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}}
	}
	return s.search.Search(q)
}

// MediaUploadURL issues a presigned upload URL for a content's media file.
func (s *Service) MediaUploadURL(ctx context.Context, contentID, filename string) (string, string, error) {
	if s.media == nil {
		return "", "", domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)
	}
	return s.media.UploadURL(ctx, contentID, filename)
}

// MediaDownloadURL issues a presigned download URL for a stored object key.
func (s *Service) MediaDownloadURL(ctx context.Context, key string) (string, error) {
	if s.media == nil {
		return "", domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)
	}
	return s.media.DownloadURL(ctx, key)
}
