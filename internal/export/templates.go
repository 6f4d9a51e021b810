package export

import (
	"bytes"
	"html/template"
	"strings"
)

var curriculumTemplate = template.Must(template.New("curriculum").Funcs(template.FuncMap{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}).Parse(curriculumTemplateBody))

// renderCurriculumHTML renders the curriculum template with provided data.
func renderCurriculumHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := curriculumTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const curriculumTemplateBody = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; color: #444; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .course { background: #f7f7f7; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; page-break-inside: avoid; }
    .course h3 { margin: 0 0 0.25rem 0; }
    .status { font-size: 0.8em; text-transform: uppercase; color: #666; }
    .status.available { color: #1a7f37; }
    .links { font-size: 0.9em; margin-top: 0.5rem; }
    .links a { margin-right: 1rem; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{if .Owner}}{{.Owner}}{{end}}{{if .CreatedAt}} | {{.CreatedAt}}{{end}}</div>
  {{range .Tiers}}
  <h2>{{title .Name}}</h2>
  {{range .Courses}}
  <div class="course">
    <h3>{{.Title}}</h3>
    <div class="status {{.Status}}">{{.Status}}{{if .Duration}} | {{.Duration}}{{end}}</div>
    {{if .Description}}<p>{{.Description}}</p>{{end}}
    {{if .ContentURL}}<div class="links"><a href="{{.ContentURL}}">Watch on the platform</a></div>{{end}}
    {{if .Links}}
    <div class="links">
      {{range .Links}}<a href="{{.URL}}">{{.Platform}}</a>{{end}}
    </div>
    {{end}}
  </div>
  {{end}}
  {{end}}
</body>
</html>`
