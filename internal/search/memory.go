package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"openlearn/api/internal/catalog"
)

// SnapshotProvider supplies the current catalog snapshot for the fallback
// scan.
type SnapshotProvider interface {
	Current(ctx context.Context) (*catalog.Snapshot, error)
}

// Memory is the fallback Searcher: a case-insensitive substring scan over
// the flat catalog list. It needs no external service, so it is always
// healthy; ranking quality is Meilisearch's job when it is up.
type Memory struct {
	snapshots SnapshotProvider
}

func NewMemory(snapshots SnapshotProvider) *Memory {
	return &Memory{snapshots: snapshots}
}

// Healthy always reports true; the fallback has no external dependency.
func (m *Memory) Healthy() bool {
	return true
}

// Search scans title, description and tags of every catalog item.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	snapshot, err := m.snapshots.Current(context.Background())
	if err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(strings.TrimSpace(q.Text))
	matches := make([]Result, 0)
	for _, item := range snapshot.AllContents {
		if q.FilterCategory != "" && item.Category != q.FilterCategory {
			continue
		}
		if q.FilterLevel != "" && item.Level != q.FilterLevel {
			continue
		}
		if needle != "" && !itemMatches(item, needle) {
			continue
		}
		matches = append(matches, Result{
			ID:       item.ID,
			Title:    item.Title,
			Snippet:  snippet(item.Description),
			Category: item.Category,
			Level:    item.Level,
		})
	}

	total := len(matches)
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func itemMatches(item catalog.Item, needle string) bool {
	if strings.Contains(strings.ToLower(item.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(item.Description), needle) {
		return true
	}
	for _, tag := range item.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

const snippetLength = 160

// snippet truncates on a rune boundary so multi-byte characters never get
// split into invalid UTF-8.
func snippet(description string) string {
	if len(description) <= snippetLength {
		return description
	}
	cut := snippetLength
	for cut > 0 && !utf8.RuneStart(description[cut]) {
		cut--
	}
	return description[:cut] + "…"
}
