package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlogSlug(t *testing.T) {
	tests := []struct {
		title  string
		prefix string
	}{
		{"Hello World", "Hello-World-"},
		{"  Go: the   good parts! ", "Go-the-good-parts-"},
		{"C++ & Rust", "C-Rust-"},
		{"Don't stop", "Dont-stop-"},
		{"e-mail v2.0", "email-v20-"},
	}
	for _, tt := range tests {
		slug := BlogSlug(tt.title)
		assert.Regexp(t, "^"+regexp.QuoteMeta(tt.prefix)+"[0-9a-f]{12}$", slug, tt.title)
	}

	assert.Regexp(t, "^[0-9a-f]{12}$", BlogSlug("！？"))
	assert.NotEqual(t, BlogSlug("same"), BlogSlug("same"))
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 0, PageOffset(1, 5, 0))
	assert.Equal(t, 10, PageOffset(3, 5, 0))
	assert.Equal(t, 8, PageOffset(3, 5, 2))
	assert.Equal(t, 0, PageOffset(0, 5, 0))
	assert.Equal(t, 0, PageOffset(1, 5, 3))

	assert.Equal(t, 1, ParsePage(""))
	assert.Equal(t, 1, ParsePage("-2"))
	assert.Equal(t, 4, ParsePage("4"))
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "jane.doe", UsernameFromEmail("jane.doe@example.com"))
	assert.Len(t, RandomSuffix(5), 5)
	assert.Len(t, RandomSuffix(64), 32)
	assert.Regexp(t, `^https://api\.dicebear\.com/6\.x/[a-z-]+/svg\?seed=\w+$`, RandomProfileImg())
}
