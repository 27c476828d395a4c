package ui

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var embeddedFiles embed.FS

func parseTemplates() (*template.Template, error) {
	return template.New("").ParseFS(embeddedFiles, "templates/*.html")
}

// renderTemplate renders to a buffer first so a failed template never
// leaves a half-written page
func (a *App) renderTemplate(w http.ResponseWriter, templateName string, data interface{}) {
	var buf bytes.Buffer
	if err := a.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		a.logger.Error("[ui] template %s: %v", templateName, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		a.logger.Warn("[ui] write response: %v", err)
	}
}
