// Package export renders saved curricula as downloadable PDF files.
package export

import (
	"errors"
)

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates the curriculum payload could not be rendered.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates the headless browser runtime is unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

// TemplateData holds a curriculum flattened for template rendering.
type TemplateData struct {
	Title     string
	Owner     string
	CreatedAt string
	Tiers     []TemplateTier
}

// TemplateTier is one difficulty level of the rendered curriculum.
type TemplateTier struct {
	Name    string
	Courses []TemplateCourse
}

// TemplateCourse is one course row within a tier.
type TemplateCourse struct {
	Title       string
	Description string
	Duration    string
	Status      string
	ContentURL  string
	Links       []TemplateLink
}

// TemplateLink is an external search link attached to an unresolved course.
type TemplateLink struct {
	Platform string
	URL      string
}
