package report

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"colliderlab/domain/experiment"
	apperrors "colliderlab/internal/errors"
	"colliderlab/ports"
)

const stylesheet = `<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; color: #222; }
table { border-collapse: collapse; margin-bottom: 1rem; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.6rem; }
th { background: #f3f3f3; }
code { background: #f6f6f6; padding: 0 0.2rem; }
</style>`

// HTMLWriter writes report.html rendered from the Markdown report
type HTMLWriter struct{}

var _ ports.ReportWriter = HTMLWriter{}

// Format implements ports.ReportWriter
func (HTMLWriter) Format() string { return "html" }

// Write implements ports.ReportWriter
func (w HTMLWriter) Write(ctx context.Context, dir string, run *experiment.RunResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report.html")
	page := RenderHTML(RenderMarkdown(run), "Collider bias report "+run.RunID.String())
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return "", apperrors.ReportError("write html report", err)
	}
	return path, nil
}

// RenderHTML converts Markdown into a complete HTML page
func RenderHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
		Head:  []byte(stylesheet),
	})
	return markdown.ToHTML(md, p, renderer)
}
