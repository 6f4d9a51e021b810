package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"openlearn/api/internal/blobrepo"
	"openlearn/api/internal/catalog"
	"openlearn/api/internal/docstore"
	"openlearn/api/internal/matcher"
)

type memSource struct {
	mu    sync.Mutex
	files map[string][]byte
	revs  map[string]string
	seq   int
}

func newMemSource() *memSource {
	return &memSource{files: map[string][]byte{}, revs: map[string]string{}}
}

func (m *memSource) GetContent(_ context.Context, path string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, "", blobrepo.ErrNotFound
	}
	return data, m.revs[path], nil
}

func (m *memSource) PutContent(_ context.Context, path string, data []byte, _, revision string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revision != m.revs[path] {
		return "", blobrepo.ErrConflict
	}
	m.seq++
	next := fmt.Sprintf("rev-%d", m.seq)
	m.files[path] = data
	m.revs[path] = next
	return next, nil
}

func newTestService(t *testing.T) (*Service, *docstore.Store) {
	t.Helper()
	store := docstore.New(newMemSource())
	svc := NewService(store, catalog.NewService(store, nil), matcher.New(), nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return svc, store
}

func seedContent(t *testing.T, svc *Service, contents ...catalog.Content) {
	t.Helper()
	ctx := context.Background()
	for _, c := range contents {
		if _, err := svc.catalog.Add(ctx, c); err != nil {
			t.Fatalf("seed content %s: %v", c.ID, err)
		}
	}
	if _, err := svc.catalog.Regenerate(ctx); err != nil {
		t.Fatalf("seed regenerate: %v", err)
	}
}

func validCandidate() map[string]any {
	return map[string]any{
		"curriculum": map[string]any{
			"beginner": map[string]any{
				"courses": []any{
					map[string]any{"title": "Graph Algorithms Masterclass"},
				},
			},
		},
	}
}

func TestUserProfileCreatesDefault(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	profile, err := svc.UserProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("UserProfile() error = %v", err)
	}
	if profile["userId"] != "alice" {
		t.Fatalf("userId = %v", profile["userId"])
	}
	if profile["createdAt"] != "2026-03-01T10:00:00Z" {
		t.Fatalf("createdAt = %v", profile["createdAt"])
	}

	// The default is persisted, not just synthesized.
	var stored map[string]any
	if _, err := store.Get(ctx, userProfilePath("alice"), &stored); err != nil {
		t.Fatalf("stored profile read: %v", err)
	}
	if stored["userId"] != "alice" {
		t.Fatalf("stored userId = %v", stored["userId"])
	}
}

func TestUpdateUserProfileReplacesDocument(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UserProfile(ctx, "bob"); err != nil {
		t.Fatalf("UserProfile() error = %v", err)
	}
	updated, err := svc.UpdateUserProfile(ctx, "bob", map[string]any{"userId": "bob", "theme": "dark"})
	if err != nil {
		t.Fatalf("UpdateUserProfile() error = %v", err)
	}
	if updated["theme"] != "dark" {
		t.Fatalf("theme = %v", updated["theme"])
	}

	profile, err := svc.UserProfile(ctx, "bob")
	if err != nil {
		t.Fatalf("UserProfile() after update: %v", err)
	}
	if profile["theme"] != "dark" {
		t.Fatalf("profile not replaced: %v", profile)
	}
	if _, ok := profile["uploads"]; ok {
		t.Fatalf("old fields survived wholesale replace: %v", profile)
	}
}

func TestBatchProfilesMissesAreNil(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.UserProfile(ctx, "alice"); err != nil {
		t.Fatalf("UserProfile() error = %v", err)
	}

	results := svc.BatchProfiles(ctx, []string{"alice", "ghost"})
	if len(results) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(results))
	}
	profile, ok := results["alice"].(map[string]any)
	if !ok || profile["userId"] != "alice" {
		t.Fatalf("alice profile = %v", results["alice"])
	}
	if results["ghost"] != nil {
		t.Fatalf("ghost should be nil, got %v", results["ghost"])
	}
}

func TestAddContentRejectsBlankFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, c := range []catalog.Content{
		{Title: "No ID"},
		{ID: "c1"},
	} {
		err := svc.AddContent(ctx, c)
		var domainErr *DomainError
		if !errors.As(err, &domainErr) || domainErr.Status != http.StatusUnprocessableEntity {
			t.Fatalf("AddContent(%+v) error = %v", c, err)
		}
	}
}

func TestSaveCurriculumPersistsNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedContent(t, svc, catalog.Content{ID: "dsa_1", Title: "Graph Algorithms Masterclass", Level: "beginner"})

	first, err := svc.SaveCurriculum(ctx, "alice", map[string]any{"learning_goal": "algorithms"}, validCandidate())
	if err != nil {
		t.Fatalf("SaveCurriculum() error = %v", err)
	}
	second, err := svc.SaveCurriculum(ctx, "alice", map[string]any{"learning_goal": "more algorithms"}, validCandidate())
	if err != nil {
		t.Fatalf("SaveCurriculum() second error = %v", err)
	}

	curricula, err := svc.CurriculaForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CurriculaForUser() error = %v", err)
	}
	if len(curricula) != 2 {
		t.Fatalf("expected 2 curricula, got %d", len(curricula))
	}
	if curricula[0]["id"] != second["id"] || curricula[1]["id"] != first["id"] {
		t.Fatalf("curricula not newest-first: %v then %v", curricula[0]["id"], curricula[1]["id"])
	}

	// Validation ran before the save.
	payload := curricula[0]["curriculum"].(map[string]any)
	tiers := payload["curriculum"].(map[string]any)
	courses := tiers["beginner"].(map[string]any)["courses"].([]any)
	course := courses[0].(map[string]any)
	criteria := course["matching_criteria"].(map[string]any)
	if criteria["validation_status"] != "available" {
		t.Fatalf("validation_status = %v", criteria["validation_status"])
	}
}

func TestSaveCurriculumRejectsMalformedCandidate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveCurriculum(ctx, "alice", nil, map[string]any{"note": "no curriculum field"})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("error = %v, want 422 domain error", err)
	}

	curricula, err := svc.CurriculaForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CurriculaForUser() error = %v", err)
	}
	if len(curricula) != 0 {
		t.Fatalf("rejected curriculum was persisted: %v", curricula)
	}
}

func TestCurriculumForUserNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CurriculumForUser(ctx, "alice", "curriculum_missing")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("error = %v, want 404 domain error", err)
	}
}

func TestDeleteCurriculum(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedContent(t, svc, catalog.Content{ID: "dsa_1", Title: "Graph Algorithms Masterclass"})

	record, err := svc.SaveCurriculum(ctx, "alice", nil, validCandidate())
	if err != nil {
		t.Fatalf("SaveCurriculum() error = %v", err)
	}

	if err := svc.DeleteCurriculum(ctx, "alice", record["id"].(string)); err != nil {
		t.Fatalf("DeleteCurriculum() error = %v", err)
	}
	curricula, err := svc.CurriculaForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("CurriculaForUser() error = %v", err)
	}
	if len(curricula) != 0 {
		t.Fatalf("curriculum not deleted: %v", curricula)
	}

	err = svc.DeleteCurriculum(ctx, "alice", record["id"].(string))
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("second delete error = %v, want 404", err)
	}
}

func TestUpdateCurriculumProgress(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedContent(t, svc, catalog.Content{ID: "dsa_1", Title: "Graph Algorithms Masterclass"})

	record, err := svc.SaveCurriculum(ctx, "alice", nil, validCandidate())
	if err != nil {
		t.Fatalf("SaveCurriculum() error = %v", err)
	}

	later := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return later }

	updated, err := svc.UpdateCurriculumProgress(ctx, "alice", record["id"].(string), map[string]any{"completed": []any{"dsa_1"}})
	if err != nil {
		t.Fatalf("UpdateCurriculumProgress() error = %v", err)
	}
	progress := updated["progress"].(map[string]any)
	if len(progress["completed"].([]any)) != 1 {
		t.Fatalf("progress = %v", progress)
	}
	if updated["updatedAt"] != "2026-03-02T09:00:00Z" {
		t.Fatalf("updatedAt = %v", updated["updatedAt"])
	}
	if updated["createdAt"] != "2026-03-01T10:00:00Z" {
		t.Fatalf("createdAt changed: %v", updated["createdAt"])
	}

	_, err = svc.UpdateCurriculumProgress(ctx, "alice", "curriculum_missing", map[string]any{})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != http.StatusNotFound {
		t.Fatalf("missing id error = %v, want 404", err)
	}
}

func TestPingToleratesEmptyRepository(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() on empty repository: %v", err)
	}
}
