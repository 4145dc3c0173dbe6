package utils

import (
	"testing"

	"blogsphere/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", PlainText("<p> </p>"))
	assert.Equal(t, "hi & bye", PlainText("<b>hi</b> &amp; bye"))
}

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown("# Title\n\n![img](https://example.com/a.png)\n\n<script>alert(1)</script>")
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, `loading="lazy"`)
	assert.Contains(t, out, `referrerpolicy="no-referrer"`)
	assert.NotContains(t, out, "<script")
}

func TestEnhanceHTMLContentEmbedsYouTube(t *testing.T) {
	out := EnhanceHTMLContent(`<p>https://www.youtube.com/watch?v=dQw4w9WgXcQ</p>`)
	assert.Contains(t, out, "https://www.youtube.com/embed/dQw4w9WgXcQ")

	out = EnhanceHTMLContent(`<p>https://youtu.be/abc"onload="x</p>`)
	assert.NotContains(t, out, "iframe")
}

func TestSanitizeBlocks(t *testing.T) {
	blocks := SanitizeBlocks([]models.ContentBlock{
		{Type: "paragraph", Data: map[string]any{"text": `<b>ok</b><img src=x onerror=alert(1)>`}},
		{Type: "list", Data: map[string]any{"items": []any{"<i>one</i>", "<script>x</script>two"}}},
		{Type: "image", Data: map[string]any{"file": map[string]any{"url": "javascript:alert(1)"}, "caption": "<u>cap</u>"}},
		{Type: "markdown", Data: map[string]any{"text": "**bold**"}},
		{Type: "header"},
	})

	assert.Equal(t, "<b>ok</b>", blocks[0].Data["text"])
	assert.Equal(t, []any{"<i>one</i>", "two"}, blocks[1].Data["items"])
	assert.Equal(t, "", blocks[2].Data["file"].(map[string]any)["url"])
	assert.Equal(t, "<u>cap</u>", blocks[2].Data["caption"])
	assert.Contains(t, blocks[3].Data["html"], "<strong>bold</strong>")
	assert.NotNil(t, blocks[4].Data)
}
