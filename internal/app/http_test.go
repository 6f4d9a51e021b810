package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"openlearn/api/internal/catalog"
	"openlearn/api/internal/docstore"
	"openlearn/api/internal/matcher"
	"openlearn/api/internal/search"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	store := docstore.New(newMemSource())
	catalogService := catalog.NewService(store, nil)
	searchService := search.NewService(nil, search.NewMemory(catalogService))
	svc := NewService(store, catalogService, matcher.New(), searchService, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["ok"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/ready", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["status"] != "ready" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestGlobalContentRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/storage/global", map[string]any{
		"id":    "dsa_1",
		"title": "Graph Algorithms Masterclass",
		"level": "beginner",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/storage/global", nil)
	getResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get global: %v", err)
	}
	defer getResp.Body.Close()
	var contents []map[string]any
	if err := json.NewDecoder(getResp.Body).Decode(&contents); err != nil {
		t.Fatalf("decode contents: %v", err)
	}
	if len(contents) != 1 || contents[0]["id"] != "dsa_1" {
		t.Fatalf("contents = %v", contents)
	}
}

func TestAddGlobalContentValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/storage/global", map[string]any{"title": "No ID"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestProfileRoutes(t *testing.T) {
	server, _ := newTestServer(t)

	resp, profile := doJSON(t, http.MethodGet, server.URL+"/api/storage/user/alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if profile["userId"] != "alice" {
		t.Fatalf("profile = %v", profile)
	}

	resp, payload := doJSON(t, http.MethodPut, server.URL+"/api/storage/user/alice", map[string]any{
		"userId": "alice",
		"theme":  "dark",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	data := payload["data"].(map[string]any)
	if data["theme"] != "dark" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestBatchProfileRoute(t *testing.T) {
	server, _ := newTestServer(t)

	if resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/storage/user/alice", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("profile create failed")
	}

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/storage/user/batch", map[string]any{
		"userIds": []string{"alice", "ghost"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["ghost"] != nil {
		t.Fatalf("ghost = %v", payload["ghost"])
	}
	alice, ok := payload["alice"].(map[string]any)
	if !ok || alice["userId"] != "alice" {
		t.Fatalf("alice = %v", payload["alice"])
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/storage/user/batch", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing userIds status = %d", resp.StatusCode)
	}
}

func TestCurriculumLifecycleOverHTTP(t *testing.T) {
	server, svc := newTestServer(t)
	seedContent(t, svc, catalog.Content{ID: "dsa_1", Title: "Graph Algorithms Masterclass", Level: "beginner"})

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/curriculum", map[string]any{
		"userId":     "alice",
		"formData":   map[string]any{"learning_goal": "algorithms"},
		"curriculum": validCandidate(),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d: %v", resp.StatusCode, payload)
	}
	record := payload["curriculum"].(map[string]any)
	id := record["id"].(string)
	if !strings.HasPrefix(id, "curriculum_") {
		t.Fatalf("id = %q", id)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/curriculum/user/alice", nil)
	if resp.StatusCode != http.StatusOK || payload["count"] != float64(1) {
		t.Fatalf("list = %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/curriculum/alice/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}

	resp, payload = doJSON(t, http.MethodPatch, server.URL+"/api/curriculum/"+id+"/progress", map[string]any{
		"userId":   "alice",
		"progress": map[string]any{"completed": []string{"dsa_1"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status = %d: %v", resp.StatusCode, payload)
	}

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/curriculum/"+id, map[string]any{"userId": "alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/curriculum/alice/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
}

func TestCurriculumSaveRequiresUserID(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/curriculum", map[string]any{
		"curriculum": validCandidate(),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "MISSING_USER_ID" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestValidateEndpoint(t *testing.T) {
	server, svc := newTestServer(t)
	seedContent(t, svc, catalog.Content{ID: "dsa_1", Title: "Graph Algorithms Masterclass"})

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/curriculum/validate", validCandidate())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, payload)
	}
	validated := payload["curriculum"].(map[string]any)
	tiers := validated["curriculum"].(map[string]any)
	courses := tiers["beginner"].(map[string]any)["courses"].([]any)
	criteria := courses[0].(map[string]any)["matching_criteria"].(map[string]any)
	if criteria["validation_status"] != "available" {
		t.Fatalf("validation_status = %v", criteria["validation_status"])
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/curriculum/validate", map[string]any{"note": "malformed"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("malformed status = %d", resp.StatusCode)
	}
}

func TestCatalogRoutes(t *testing.T) {
	server, svc := newTestServer(t)
	seedContent(t, svc, catalog.Content{ID: "dsa_1", Title: "Graph Algorithms Masterclass", Level: "beginner"})

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/catalog/regenerate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("regenerate status = %d", resp.StatusCode)
	}
	stats := payload["stats"].(map[string]any)
	if stats["totalContent"] != float64(1) {
		t.Fatalf("stats = %v", stats)
	}

	resp, payload = doJSON(t, http.MethodGet, server.URL+"/api/catalog", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	snapshot := payload["catalog"].(map[string]any)
	if snapshot["totalAvailable"] != float64(1) {
		t.Fatalf("snapshot = %v", snapshot)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/catalog/render", nil)
	renderResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	defer renderResp.Body.Close()
	if ct := renderResp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("render content type = %q", ct)
	}
	body, err := io.ReadAll(renderResp.Body)
	if err != nil {
		t.Fatalf("read render body: %v", err)
	}
	rendered := string(body)
	if !strings.Contains(rendered, "Graph Algorithms Masterclass") {
		t.Fatalf("rendered catalog missing seeded content:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Total Available Resources: 1") {
		t.Fatalf("rendered catalog missing totals:\n%s", rendered)
	}
}

func TestSearchEmptyCatalogReturnsEmpty(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/search?q=graph", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	results, ok := payload["results"].([]any)
	if !ok || len(results) != 0 {
		t.Fatalf("results = %v", payload["results"])
	}
}

func TestSearchRejectsBadPagination(t *testing.T) {
	server, _ := newTestServer(t)

	for _, q := range []string{"limit=abc", "offset=xyz"} {
		resp, _ := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/search?q=x&%s", server.URL, q), nil)
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("%s status = %d", q, resp.StatusCode)
		}
	}
}

func TestSearchClampsNegativePagination(t *testing.T) {
	server, _ := newTestServer(t)

	for _, q := range []string{"offset=-1", "limit=-5"} {
		resp, payload := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/search?q=go&%s", server.URL, q), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", q, resp.StatusCode)
		}
		if _, ok := payload["results"].([]any); !ok {
			t.Fatalf("%s payload = %v", q, payload)
		}
	}
}

func TestMediaUnconfigured(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/media/upload-url", map[string]any{
		"contentId": "dsa_1",
		"filename":  "intro.mp4",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "MEDIA_UNAVAILABLE" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("payload = %v", payload)
	}
}
