package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"openlearn/api/internal/matcher"
)

// Service turns persisted curriculum records into PDF exports.
type Service struct {
	tiers []string
}

// NewService creates an export service using the standard tier ordering.
func NewService() *Service {
	return &Service{tiers: matcher.DefaultTiers()}
}

// Export renders the given curriculum record and converts it to PDF.
func (s *Service) Export(ctx context.Context, record map[string]any) (*Result, error) {
	data, err := s.buildTemplateData(record)
	if err != nil {
		return nil, err
	}

	html, err := renderCurriculumHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(ctx, html, data.Title)
}

// buildTemplateData flattens a stored record into renderable form. Records
// hold the generator's payload verbatim, so every field is read defensively.
func (s *Service) buildTemplateData(record map[string]any) (TemplateData, error) {
	if record == nil {
		return TemplateData{}, ErrContentUnavailable
	}

	data := TemplateData{
		Title: "Curriculum",
		Owner: asString(record["userId"]),
	}

	if form, ok := record["formData"].(map[string]any); ok {
		if topic := asString(form["topic"]); topic != "" {
			data.Title = topic + " Curriculum"
		}
	}
	if created := asString(record["createdAt"]); created != "" {
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			data.CreatedAt = t.Format("Jan 2, 2006")
		} else {
			data.CreatedAt = created
		}
	}

	payload, ok := record["curriculum"].(map[string]any)
	if !ok {
		return TemplateData{}, ErrContentUnavailable
	}
	tiers, ok := payload["curriculum"].(map[string]any)
	if !ok {
		return TemplateData{}, ErrContentUnavailable
	}

	for _, name := range s.tierOrder(tiers) {
		tier, ok := tiers[name].(map[string]any)
		if !ok {
			continue
		}
		courses, ok := tier["courses"].([]any)
		if !ok {
			continue
		}
		tt := TemplateTier{Name: name}
		for _, raw := range courses {
			course, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			tt.Courses = append(tt.Courses, buildCourse(course))
		}
		data.Tiers = append(data.Tiers, tt)
	}

	if len(data.Tiers) == 0 {
		return TemplateData{}, ErrContentUnavailable
	}
	return data, nil
}

// tierOrder lists known tiers first, then any extra tiers alphabetically.
func (s *Service) tierOrder(tiers map[string]any) []string {
	order := make([]string, 0, len(tiers))
	seen := make(map[string]bool, len(tiers))
	for _, name := range s.tiers {
		if _, ok := tiers[name]; ok {
			order = append(order, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range tiers {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

func buildCourse(course map[string]any) TemplateCourse {
	tc := TemplateCourse{
		Title:       asString(course["title"]),
		Description: asString(course["description"]),
		Duration:    asString(course["estimated_duration"]),
	}
	criteria, _ := course["matching_criteria"].(map[string]any)
	tc.Status = asString(criteria["validation_status"])
	tc.ContentURL = asString(criteria["content_url"])
	if links, ok := criteria["external_links"].([]any); ok {
		for _, raw := range links {
			link, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			tc.Links = append(tc.Links, TemplateLink{
				Platform: asString(link["platform"]),
				URL:      asString(link["url"]),
			})
		}
	}
	return tc
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
