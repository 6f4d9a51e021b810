package search

import (
	"log"

	"openlearn/api/internal/catalog"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory catalog scan.
type Service struct {
	meili    *Meili
	fallback *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *Memory) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise scans the catalog.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to catalog scan: %v", err)
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		log.Printf("search: catalog scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexContent indexes one content entity (fire-and-forget to Meilisearch).
func (s *Service) IndexContent(record ContentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexContent(record); err != nil {
			log.Printf("search: index content %s: %v", record.ID, err)
		}
	}()
}

// ReindexAll pushes every catalog item into Meilisearch. Called during
// bootstrap when Meilisearch is healthy.
func (s *Service) ReindexAll(snapshot *catalog.Snapshot) {
	if s.meili == nil || !s.meili.Healthy() || snapshot == nil {
		return
	}
	records := make([]ContentRecord, 0, len(snapshot.AllContents))
	for _, item := range snapshot.AllContents {
		records = append(records, RecordFromItem(item))
	}
	if err := s.meili.IndexContents(records); err != nil {
		log.Printf("search: reindex contents: %v", err)
	}
}

// RecordFromItem converts a catalog item into its indexable record.
func RecordFromItem(item catalog.Item) ContentRecord {
	return ContentRecord{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Subcategory: item.Subcategory,
		Level:       item.Level,
		Tags:        item.Tags,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
