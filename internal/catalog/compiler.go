package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Item is one entry of the flat catalog. The flat list is the canonical
// source for matching; the nested category grouping is presentation-only.
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Topic       string   `json:"topic,omitempty"`
	Level       string   `json:"level"`
	Tags        []string `json:"tags"`
	UploadedBy  string   `json:"uploadedBy,omitempty"`
	HasVideo    bool     `json:"hasVideo"`
	Views       int      `json:"views"`
	Likes       int      `json:"likes"`
}

// Snapshot is the derived, read-only view over all content entities. It is
// regenerated on demand and invalidated by any mutation of the content list,
// never hand-edited.
type Snapshot struct {
	Version        string     `json:"version"`
	LastUpdated    string     `json:"lastUpdated"`
	TotalAvailable int        `json:"totalAvailable"`
	Categories     []Category `json:"categories"`
	AllContents    []Item     `json:"allContents"`
}

type Category struct {
	Name          string        `json:"name"`
	Subcategories []Subcategory `json:"subcategories"`
}

type Subcategory struct {
	Name         string `json:"name"`
	ContentCount int    `json:"contentCount"`
	Contents     []Item `json:"contents"`
}

const snapshotVersion = "1.0"

// Compile builds a snapshot from the content list. It is pure and
// deterministic for a given input order and timestamp: categories and
// subcategories appear in first-seen order so serialized snapshots diff
// cleanly.
func Compile(contents []Content, now time.Time) *Snapshot {
	items := make([]Item, 0, len(contents))
	for _, content := range contents {
		category, subcategory, topic := classify(content.Organization)
		tags := content.Tags
		if tags == nil {
			tags = []string{}
		}
		items = append(items, Item{
			ID:          content.ID,
			Title:       content.Title,
			Description: content.Description,
			Category:    category,
			Subcategory: subcategory,
			Topic:       topic,
			Level:       orDefault(content.Level, "Intermediate"),
			Tags:        tags,
			UploadedBy:  content.UploadedBy,
			HasVideo:    content.VideoURL != "",
			Views:       content.Views,
			Likes:       content.Likes,
		})
	}

	categories := make([]Category, 0)
	categoryIndex := map[string]int{}
	subcategoryIndex := map[string]int{}
	for _, item := range items {
		ci, ok := categoryIndex[item.Category]
		if !ok {
			ci = len(categories)
			categoryIndex[item.Category] = ci
			categories = append(categories, Category{Name: item.Category})
		}
		subKey := item.Category + "\x00" + item.Subcategory
		si, ok := subcategoryIndex[subKey]
		if !ok {
			si = len(categories[ci].Subcategories)
			subcategoryIndex[subKey] = si
			categories[ci].Subcategories = append(categories[ci].Subcategories, Subcategory{Name: item.Subcategory})
		}
		sub := &categories[ci].Subcategories[si]
		sub.Contents = append(sub.Contents, item)
		sub.ContentCount = len(sub.Contents)
	}

	return &Snapshot{
		Version:        snapshotVersion,
		LastUpdated:    now.UTC().Format(time.RFC3339),
		TotalAvailable: len(contents),
		Categories:     categories,
		AllContents:    items,
	}
}

const maxRenderedTags = 5

// Render serializes the snapshot into a stable text catalog description:
// per entity its id, title, level, media flag and up to five tags. The only
// time-dependent output is the snapshot's own LastUpdated field.
func Render(snapshot *Snapshot) string {
	if snapshot == nil || len(snapshot.AllContents) == 0 {
		return "No platform content available."
	}

	var b strings.Builder
	b.WriteString("=== OPENLEARN HUB CONTENT CATALOG ===\n")
	fmt.Fprintf(&b, "Total Available Resources: %d\n", snapshot.TotalAvailable)
	fmt.Fprintf(&b, "Last Updated: %s\n", snapshot.LastUpdated)
	b.WriteString("\n=== AVAILABLE CONTENT BY CATEGORY ===\n")

	for _, category := range snapshot.Categories {
		fmt.Fprintf(&b, "\n%s\n", strings.ToUpper(category.Name))
		b.WriteString(strings.Repeat("-", 40) + "\n")
		for _, sub := range category.Subcategories {
			fmt.Fprintf(&b, "  %s (%d items)\n", sub.Name, sub.ContentCount)
			for _, item := range sub.Contents {
				line := fmt.Sprintf("    - [%s] %q - %s", item.ID, item.Title, item.Level)
				if item.HasVideo {
					line += " (video)"
				}
				if len(item.Tags) > 0 {
					tags := item.Tags
					if len(tags) > maxRenderedTags {
						tags = tags[:maxRenderedTags]
					}
					line += " [" + strings.Join(tags, ", ") + "]"
				}
				b.WriteString(line + "\n")
			}
		}
	}

	b.WriteString("\n=== END OF CATALOG ===\n")
	return b.String()
}
