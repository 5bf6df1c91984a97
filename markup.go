package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// isImage decides from the file name alone whether an attachment is an image
func isImage(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

var spoilerRegex = regexp.MustCompile(`\|\|(.+?)\|\|`)

// replaceSpoilers rewrites ||text|| into a spoiler span. It must run before
// the markdown conversion, which would otherwise see the pipes as text.
func replaceSpoilers(content string) string {
	return spoilerRegex.ReplaceAllString(content, `<span class="spoiler">$1</span>`)
}

// MarkupConverter turns Discord flavoured markdown into sanitized HTML
type MarkupConverter struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkupConverter creates a converter with fenced code highlighting using
// the given chroma style. Highlighting emits CSS classes, themes style them.
func NewMarkupConverter(style string) *MarkupConverter {
	if style == "" {
		style = "monokai"
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Strikethrough,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			// Raw HTML has to survive for the spoiler spans; the policy below
			// strips everything a message author could inject.
			gmhtml.WithUnsafe(),
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("span", "pre", "code", "div")
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9_\- ]+$`)).OnElements("span", "pre", "code", "div")

	return &MarkupConverter{md: md, policy: policy}
}

// Convert renders one message body to HTML
func (c *MarkupConverter) Convert(content string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(replaceSpoilers(content)), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return c.policy.Sanitize(buf.String()), nil
}
