package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"openlearn/api/internal/catalog"
	"openlearn/api/internal/docstore"
	"openlearn/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"storage": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["storage"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.URL.Path == "/api/storage/global" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetGlobalContents(w, r)
		case http.MethodPost:
			s.handleAddGlobalContent(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/storage/user/batch" {
		s.handleBatchProfiles(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/catalog" {
		snapshot, err := s.service.CatalogSnapshot(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "catalog": snapshot})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/catalog/regenerate" {
		snapshot, err := s.service.RegenerateCatalog(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Catalog regenerated successfully",
			"stats": map[string]any{
				"totalContent": snapshot.TotalAvailable,
				"categories":   len(snapshot.Categories),
			},
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/catalog/render" {
		rendered, err := s.service.RenderCatalog(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(rendered))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/curriculum/validate" {
		s.handleValidateCurriculum(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/curriculum" {
		s.handleSaveCurriculum(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/media/upload-url" {
		s.handleMediaUploadURL(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/media/download-url" {
		s.handleMediaDownloadURL(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/storage/user/{userId}
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "storage" && parts[2] == "user" {
		userID := parts[3]
		switch r.Method {
		case http.MethodGet:
			s.handleGetProfile(w, r, userID)
		case http.MethodPut, http.MethodPost:
			s.handleUpdateProfile(w, r, userID)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/curriculum/user/{userId}
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "curriculum" && parts[2] == "user" {
		if r.Method == http.MethodGet {
			s.handleListCurricula(w, r, parts[3])
			return
		}
	}

	// /api/curriculum/{id}/progress
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "curriculum" && parts[3] == "progress" {
		if r.Method == http.MethodPatch {
			s.handleUpdateProgress(w, r, parts[2])
			return
		}
	}

	// /api/curriculum/{userId}/{id}/export
	if len(parts) == 5 && parts[0] == "api" && parts[1] == "curriculum" && parts[4] == "export" {
		if r.Method == http.MethodGet {
			s.handleExportCurriculum(w, r, parts[2], parts[3])
			return
		}
	}

	// /api/curriculum/{userId}/{id}
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "curriculum" {
		if r.Method == http.MethodGet {
			s.handleGetCurriculum(w, r, parts[2], parts[3])
			return
		}
	}

	// /api/curriculum/{id}
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "curriculum" {
		if r.Method == http.MethodDelete {
			s.handleDeleteCurriculum(w, r, parts[2])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleGetGlobalContents(w http.ResponseWriter, r *http.Request) {
	contents, err := s.service.GlobalContents(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, contents)
}

func (s *HTTPServer) handleAddGlobalContent(w http.ResponseWriter, r *http.Request) {
	var content catalog.Content
	if err := decodeBody(r, &content); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.AddContent(r.Context(), content); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request, userID string) {
	profile, err := s.service.UserProfile(r.Context(), userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request, userID string) {
	var profile map[string]any
	if err := decodeBody(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if profile == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "No data provided", nil)
		return
	}
	updated, err := s.service.UpdateUserProfile(r.Context(), userID, profile)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": updated})
}

func (s *HTTPServer) handleBatchProfiles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserIDs []string `json:"userIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.UserIDs == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "userIds array is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.BatchProfiles(r.Context(), body.UserIDs))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:           strings.TrimSpace(r.URL.Query().Get("q")),
		FilterCategory: strings.TrimSpace(r.URL.Query().Get("category")),
		FilterLevel:    strings.TrimSpace(r.URL.Query().Get("level")),
		Limit:          20,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		if parsed > 0 {
			q.Limit = parsed
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		if parsed > 0 {
			q.Offset = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.service.SearchContents(q))
}

func (s *HTTPServer) handleValidateCurriculum(w http.ResponseWriter, r *http.Request) {
	var candidate map[string]any
	if err := decodeBody(r, &candidate); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	validated, err := s.service.ValidateCurriculum(r.Context(), candidate)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "curriculum": validated})
}

func (s *HTTPServer) handleSaveCurriculum(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string         `json:"userId"`
		FormData   map[string]any `json:"formData"`
		Curriculum map[string]any `json:"curriculum"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "User ID is required to save curriculum", nil)
		return
	}
	record, err := s.service.SaveCurriculum(r.Context(), body.UserID, body.FormData, body.Curriculum)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Curriculum saved successfully",
		"curriculum": record,
	})
}

func (s *HTTPServer) handleListCurricula(w http.ResponseWriter, r *http.Request, userID string) {
	curricula, err := s.service.CurriculaForUser(r.Context(), userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"count":     len(curricula),
		"curricula": curricula,
	})
}

func (s *HTTPServer) handleGetCurriculum(w http.ResponseWriter, r *http.Request, userID, curriculumID string) {
	record, err := s.service.CurriculumForUser(r.Context(), userID, curriculumID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "curriculum": record})
}

func (s *HTTPServer) handleDeleteCurriculum(w http.ResponseWriter, r *http.Request, curriculumID string) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "User ID is required for authorization", nil)
		return
	}
	if err := s.service.DeleteCurriculum(r.Context(), body.UserID, curriculumID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Curriculum deleted successfully"})
}

func (s *HTTPServer) handleUpdateProgress(w http.ResponseWriter, r *http.Request, curriculumID string) {
	var body struct {
		UserID   string         `json:"userId"`
		Progress map[string]any `json:"progress"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "User ID is required to update progress", nil)
		return
	}
	if body.Progress == nil {
		writeError(w, http.StatusBadRequest, "MISSING_PROGRESS", "Progress data is required", nil)
		return
	}
	record, err := s.service.UpdateCurriculumProgress(r.Context(), body.UserID, curriculumID, body.Progress)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Progress updated successfully",
		"curriculum": record,
	})
}

func (s *HTTPServer) handleExportCurriculum(w http.ResponseWriter, r *http.Request, userID, curriculumID string) {
	result, err := s.service.ExportCurriculum(r.Context(), userID, curriculumID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleMediaUploadURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ContentID string `json:"contentId"`
		Filename  string `json:"filename"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.ContentID) == "" || strings.TrimSpace(body.Filename) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "contentId and filename are required", nil)
		return
	}
	uploadURL, key, err := s.service.MediaUploadURL(r.Context(), body.ContentID, body.Filename)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploadUrl": uploadURL, "key": key})
}

func (s *HTTPServer) handleMediaDownloadURL(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "key is required", nil)
		return
	}
	downloadURL, err := s.service.MediaDownloadURL(r.Context(), key)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloadUrl": downloadURL})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, docstore.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "Document was modified concurrently", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
