package render

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Engine renders templates embedded in the package.
type Engine struct {
	templates *template.Template
}

// New initialises an Engine by parsing all embedded templates.
func New() (*Engine, error) {
	t, err := template.New("render").Funcs(template.FuncMap{
		"join":     strings.Join,
		"duration": formatDuration,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// Render executes the named template with the provided data and writes the result to w.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	if e == nil || e.templates == nil {
		return fmt.Errorf("nil engine")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
