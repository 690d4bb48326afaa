package models_test

import (
	"strings"
	"testing"

	"github.com/strayblues/gemchat/internal/models"
)

func TestRenderTextModelMarkdown(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "Emphasis",
			text: "**bold** move",
			want: "<strong>bold</strong>",
		},
		{
			name: "Code block",
			text: "```go\nfmt.Println(\"hi\")\n```",
			want: "<pre",
		},
		{
			name: "List",
			text: "- one\n- two",
			want: "<li>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.RenderText(models.Message{Role: models.RoleModel, Text: tt.text})
			if err != nil {
				t.Fatalf("RenderText() error = %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderText() = %q, want to contain %q", got, tt.want)
			}
		})
	}
}

func TestRenderTextUserLiteral(t *testing.T) {
	got, err := models.RenderText(models.Message{
		Role: models.RoleUser,
		Text: "**not bold** <script>alert(1)</script>\nsecond line",
	})
	if err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}

	if strings.Contains(got, "<strong>") {
		t.Errorf("user text rendered as markdown: %q", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("user text not escaped: %q", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Errorf("RenderText() = %q, want escaped script tag", got)
	}
	if !strings.Contains(got, "<br>") {
		t.Errorf("RenderText() = %q, want newline preserved as <br>", got)
	}
}
