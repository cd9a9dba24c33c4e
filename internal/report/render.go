package report

import (
	"bytes"
	"github.com/myrjola/vera/internal/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"html/template"
)

// Raw HTML in model output is escaped since the report may quote the investigated page.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderHTML converts report markdown to an HTML fragment.
func RenderHTML(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", errors.Wrap(err, "convert markdown")
	}
	return template.HTML(buf.String()), nil //nolint:gosec // goldmark escapes raw HTML without html.WithUnsafe
}
