package utils

import (
	"bytes"
	"html"
	"net/url"
	"strings"

	"blogsphere/internal/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	mdParser = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			goldhtml.WithHardWraps(),
			goldhtml.WithXHTML(),
		),
	)
	policy = bluemonday.UGCPolicy()
	// 编辑器行内文本只允许少量格式标签
	inlinePolicy = bluemonday.NewPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

func init() {
	policy.AllowImages()
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)

	inlinePolicy.AllowElements("b", "i", "u", "em", "strong", "mark", "code", "br")
	inlinePolicy.AllowAttrs("class").OnElements("mark", "code")
	inlinePolicy.AllowStandardURLs()
	inlinePolicy.AllowAttrs("href").OnElements("a")
	inlinePolicy.AddTargetBlankToFullyQualifiedLinks(true)
	inlinePolicy.RequireNoReferrerOnLinks(true)
}

// RenderMarkdown 渲染并清洗 markdown，返回 HTML 字符串
func RenderMarkdown(source string) string {
	var buf bytes.Buffer
	if err := mdParser.Convert([]byte(source), &buf); err != nil {
		return html.EscapeString(source)
	}
	sanitized := policy.SanitizeBytes(buf.Bytes())
	return EnhanceHTMLContent(string(sanitized))
}

// PlainText 去掉所有标签后的纯文本，用于判断内容是否为空
func PlainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// SanitizeBlocks 清洗编辑器块中的用户 HTML。markdown 块额外渲染出 html 字段。
func SanitizeBlocks(blocks []models.ContentBlock) []models.ContentBlock {
	out := make([]models.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Data == nil {
			b.Data = map[string]any{}
		}
		switch b.Type {
		case "paragraph", "header":
			sanitizeField(b.Data, "text", inlinePolicy)
		case "quote":
			sanitizeField(b.Data, "text", inlinePolicy)
			sanitizeField(b.Data, "caption", inlinePolicy)
		case "list":
			if items, ok := b.Data["items"].([]any); ok {
				for i, item := range items {
					if s, ok := item.(string); ok {
						items[i] = inlinePolicy.Sanitize(s)
					}
				}
			}
		case "image":
			sanitizeField(b.Data, "caption", inlinePolicy)
			if file, ok := b.Data["file"].(map[string]any); ok {
				if u, ok := file["url"].(string); ok && !isHTTPURL(u) {
					file["url"] = ""
				}
			}
		case "markdown":
			if text, ok := b.Data["text"].(string); ok {
				b.Data["html"] = RenderMarkdown(text)
			}
		}
		out = append(out, b)
	}
	return out
}

func sanitizeField(data map[string]any, key string, p *bluemonday.Policy) {
	if s, ok := data[key].(string); ok {
		data[key] = p.Sanitize(s)
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
