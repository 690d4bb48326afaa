package models

import (
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// We render model output with GFM extensions and syntax-highlighted code
// blocks, matching what hosted chat UIs typically produce.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
	goldmark.WithRendererOptions(
		goldmarkhtml.WithHardWraps(),
	),
)

// RenderText converts a message's text into HTML for display. Model-authored
// text is treated as markdown; user-authored text is escaped and rendered
// literally with newlines preserved.
func RenderText(msg Message) (string, error) {
	if msg.Role != RoleModel {
		escaped := html.EscapeString(msg.Text)
		return strings.ReplaceAll(escaped, "\n", "<br>"), nil
	}

	var sb strings.Builder
	if err := markdown.Convert([]byte(msg.Text), &sb); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return sb.String(), nil
}
