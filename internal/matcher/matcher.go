// Package matcher binds AI-generated curriculum courses to canonical catalog
// entities. A course that cannot be bound is annotated with deterministic
// external fallback suggestions; an unmatched course is a valid outcome,
// never an error.
package matcher

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"openlearn/api/internal/catalog"
)

// ErrInvalidInput reports a structurally malformed candidate record set,
// such as a missing curriculum field. Nothing is partially processed.
var ErrInvalidInput = errors.New("matcher: invalid candidate record set")

// Substring containment only applies when the candidate title is longer than
// this, so short titles like "Go" cannot latch onto unrelated entities.
const substringGuard = 10

// ExternalSource describes one external platform offered as a fallback for
// unresolved courses.
type ExternalSource struct {
	Platform    string
	SearchURL   string // prefix the URL-encoded query is appended to
	QuerySuffix string // appended to the course title before encoding
	Icon        string
}

// DefaultSources mirrors the platforms the product links out to.
func DefaultSources() []ExternalSource {
	return []ExternalSource{
		{Platform: "YouTube", SearchURL: "https://www.youtube.com/results?search_query=", QuerySuffix: " tutorial", Icon: "youtube"},
		{Platform: "Coursera", SearchURL: "https://www.coursera.org/search?query=", QuerySuffix: " tutorial", Icon: "graduation-cap"},
		{Platform: "freeCodeCamp", SearchURL: "https://www.freecodecamp.org/news/search/?query=", Icon: "code"},
	}
}

// DefaultTiers is the tier order processed when the caller does not override
// it. Tiers are independent; course order within a tier is preserved.
func DefaultTiers() []string {
	return []string{"beginner", "intermediate", "advanced"}
}

// Engine resolves candidate courses against a catalog snapshot. It only ever
// reads the snapshot.
type Engine struct {
	sources []ExternalSource
	tiers   []string
}

func New() *Engine {
	return &Engine{sources: DefaultSources(), tiers: DefaultTiers()}
}

// NewWithConfig builds an engine with caller-defined tiers and fallback
// sources; nil slices keep the defaults.
func NewWithConfig(tiers []string, sources []ExternalSource) *Engine {
	e := New()
	if tiers != nil {
		e.tiers = tiers
	}
	if sources != nil {
		e.sources = sources
	}
	return e
}

// Validate returns a copy of the candidate record set in which every course
// carries exactly one resolution outcome. All original course fields are
// retained; only matching_criteria is overwritten, and title only when a
// course resolves (synced to the canonical catalog title). The snapshot's
// flat list is the canonical matching source.
func (e *Engine) Validate(candidate map[string]any, snapshot *catalog.Snapshot) (map[string]any, error) {
	rawCurriculum, ok := candidate["curriculum"]
	if !ok || rawCurriculum == nil {
		return nil, fmt.Errorf("%w: missing curriculum field", ErrInvalidInput)
	}
	curriculum, ok := rawCurriculum.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: curriculum is not an object", ErrInvalidInput)
	}

	var items []catalog.Item
	if snapshot != nil {
		items = snapshot.AllContents
	}

	validated := make(map[string]any, len(candidate))
	for key, value := range candidate {
		validated[key] = value
	}
	outCurriculum := make(map[string]any, len(curriculum))
	for key, value := range curriculum {
		outCurriculum[key] = value
	}

	for _, tierName := range e.tiers {
		rawTier, ok := curriculum[tierName]
		if !ok {
			continue
		}
		tier, ok := rawTier.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: tier %q is not an object", ErrInvalidInput, tierName)
		}
		rawCourses, ok := tier["courses"]
		if !ok {
			continue
		}
		courses, ok := rawCourses.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: tier %q courses is not a list", ErrInvalidInput, tierName)
		}

		outCourses := make([]any, 0, len(courses))
		for i, rawCourse := range courses {
			course, ok := rawCourse.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: tier %q course %d is not an object", ErrInvalidInput, tierName, i)
			}
			outCourses = append(outCourses, e.resolveCourse(course, items))
		}

		outTier := make(map[string]any, len(tier))
		for key, value := range tier {
			outTier[key] = value
		}
		outTier["courses"] = outCourses
		outCurriculum[tierName] = outTier
	}

	validated["curriculum"] = outCurriculum
	return validated, nil
}

// resolveCourse attaches a resolution outcome to one course, leaving the
// input map untouched.
func (e *Engine) resolveCourse(course map[string]any, items []catalog.Item) map[string]any {
	title, _ := course["title"].(string)

	criteria := map[string]any{}
	if raw, ok := course["matching_criteria"].(map[string]any); ok {
		for key, value := range raw {
			criteria[key] = value
		}
	}
	suggestedID, _ := criteria["matched_content_id"].(string)

	out := make(map[string]any, len(course))
	for key, value := range course {
		out[key] = value
	}

	if matched, ok := findMatch(title, suggestedID, items); ok {
		out["title"] = matched.Title
		criteria["validation_status"] = "available"
		criteria["matched_content_id"] = matched.ID
		criteria["matched_content_title"] = matched.Title
		criteria["content_url"] = "/notes/" + matched.ID
		out["matching_criteria"] = criteria
		return out
	}

	criteria["validation_status"] = "alternative"
	criteria["matched_content_id"] = nil
	criteria["note"] = "Not available on OpenLearn Hub - External resources suggested"
	criteria["external_links"] = e.fallbackLinks(title)
	out["matching_criteria"] = criteria
	return out
}

// findMatch runs the resolution priority order: suggested id, exact
// case-insensitive title, then substring containment in either direction
// gated on the candidate title length. Containment deliberately takes the
// first entity in flat-list order; earliest-indexed wins, which is a known
// heuristic rather than a best-match guarantee.
func findMatch(title, suggestedID string, items []catalog.Item) (catalog.Item, bool) {
	if suggestedID != "" {
		for _, item := range items {
			if item.ID == suggestedID {
				return item, true
			}
		}
	}

	candidate := strings.ToLower(strings.TrimSpace(title))
	if candidate == "" {
		return catalog.Item{}, false
	}

	for _, item := range items {
		if strings.ToLower(item.Title) == candidate {
			return item, true
		}
	}

	if utf8.RuneCountInString(candidate) > substringGuard {
		for _, item := range items {
			entity := strings.ToLower(item.Title)
			if entity == "" {
				continue
			}
			if strings.Contains(entity, candidate) || strings.Contains(candidate, entity) {
				return item, true
			}
		}
	}

	return catalog.Item{}, false
}

// fallbackLinks builds one external search link per configured source from
// the URL-encoded course title.
func (e *Engine) fallbackLinks(title string) []any {
	links := make([]any, 0, len(e.sources))
	for _, source := range e.sources {
		query := url.QueryEscape(title + source.QuerySuffix)
		links = append(links, map[string]any{
			"platform": source.Platform,
			"url":      source.SearchURL + query,
			"icon":     source.Icon,
		})
	}
	return links
}
