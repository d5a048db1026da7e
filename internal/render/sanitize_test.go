package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_AllowedTags(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"paragraph", "<p>hello</p>", []string{"<p>hello</p>"}},
		{"strong and em", "<strong>a</strong><em>b</em>", []string{"<strong>a</strong>", "<em>b</em>"}},
		{"bold and italic", "<b>a</b><i>b</i>", []string{"<b>a</b>", "<i>b</i>"}},
		{"code", "<code>x := 1</code>", []string{"<code>x := 1</code>"}},
		{"line break", "one<br>two", []string{"one", "<br", "two"}},
		{"link", `<a href="https://example.com" title="ex">go</a>`, []string{`href="https://example.com"`, `title="ex"`, "go</a>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			for _, want := range tt.wantContains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestSanitize_StripsEverythingElse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantMissing []string
	}{
		{"script", `<script>alert(1)</script>ok`, []string{"<script", "alert(1)"}},
		{"event handler", `<p onclick="evil()">x</p>`, []string{"onclick"}},
		{"javascript url", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"iframe", `<iframe src="https://evil"></iframe>`, []string{"<iframe"}},
		{"image", `<img src="https://example.com/a.png">`, []string{"<img"}},
		{"unlisted block", "<blockquote>q</blockquote>", []string{"<blockquote"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			for _, bad := range tt.wantMissing {
				assert.NotContains(t, got, bad)
			}
		})
	}
}

func TestSanitize_Empty(t *testing.T) {
	assert.Equal(t, "", Sanitize(""))
	assert.Equal(t, "", Sanitize("   "))
}

func TestSanitize_Idempotent(t *testing.T) {
	in := `<p>Hi <b>there</b><script>x</script></p>`
	once := Sanitize(in)
	assert.Equal(t, once, Sanitize(once))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Hi there", PlainText(`<p>Hi <strong>there</strong></p>`))
}
