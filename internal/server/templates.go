package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"
)

//go:embed templates/**/*.html
var templatesFS embed.FS

// Templates holds parsed templates for each page.
type Templates struct {
	pages map[string]*template.Template
}

// NewTemplates loads and parses all templates from the embedded filesystem.
func NewTemplates() (*Templates, error) {
	pages := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"clock":   func(t time.Time) string { return t.Format("15:04:05") },
		"isoTime": func(t time.Time) string { return t.Format(time.RFC3339) },
	}

	pageFiles, err := templatesFS.ReadDir("templates/pages")
	if err != nil {
		return nil, err
	}

	for _, pageFile := range pageFiles {
		if pageFile.IsDir() {
			continue
		}

		pageName := pageFile.Name()
		pageName = pageName[:len(pageName)-len(filepath.Ext(pageName))]

		tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS,
			"templates/layout/*.html",
			"templates/pages/"+pageFile.Name(),
		)
		if err != nil {
			return nil, err
		}

		pages[pageName] = tmpl
	}

	return &Templates{pages: pages}, nil
}

// Render renders a page template with the given data.
func (t *Templates) Render(w http.ResponseWriter, pageName string, data any) error {
	tmpl, ok := t.pages[pageName]
	if !ok {
		return fmt.Errorf("unknown page %q", pageName)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}
