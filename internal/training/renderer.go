package training

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"text/template"

	"github.com/spf13/afero"

	"github.com/zaporter/jake/internal/logging"
)

// embeddedTemplates holds the built-in prompt templates.
//
//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// Renderer renders a named template with structured data.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// TemplateRenderer renders text/template templates. Built-in templates
// come from the binary; a template directory can add or replace them.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewTemplateRenderer parses the embedded templates and then every *.tmpl
// file in overrideDir on fsys, if overrideDir is not empty. Later
// definitions replace earlier ones with the same name.
func NewTemplateRenderer(fsys afero.Fs, overrideDir string) (*TemplateRenderer, error) {
	tmpl, err := template.New("jake").ParseFS(embeddedTemplates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}

	if overrideDir != "" {
		dir := afero.NewIOFS(afero.NewBasePathFs(fsys, overrideDir))
		matches, err := fs.Glob(dir, "*.tmpl")
		if err != nil {
			return nil, fmt.Errorf("list templates in %s: %w", overrideDir, err)
		}
		if len(matches) > 0 {
			if tmpl, err = tmpl.ParseFS(dir, "*.tmpl"); err != nil {
				return nil, fmt.Errorf("parse templates in %s: %w", overrideDir, err)
			}
			logging.TrainingDebug("Loaded %d template override(s) from %s", len(matches), overrideDir)
		}
	}

	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render executes the template called name.
func (r *TemplateRenderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
