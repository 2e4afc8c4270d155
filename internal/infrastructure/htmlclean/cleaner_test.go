package htmlclean

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_RemovesScriptStyle(t *testing.T) {
	html := `
<body>
    <div id="main">Hello</div>
    <script>alert("hi")</script>
    <style>.x {}</style>
</body>`

	out := Clean(html, &DefaultCleanConfig)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<style")
	assert.Contains(t, out, `id="main"`)
}

func TestClean_RemovesComments(t *testing.T) {
	out := Clean(`<body><!-- comment --><div>Text</div></body>`, &DefaultCleanConfig)

	assert.NotContains(t, out, "comment")
	assert.Contains(t, out, "Text")
}

func TestClean_FiltersAttributes(t *testing.T) {
	html := `
<body>
    <a href="https://example.com" class="link" id="x" data-x="1" aria-hidden="true" onclick="go()">Go</a>
    <li data-company="Acme Corp" style="color:red">Acme</li>
</body>`

	out := Clean(html, &DefaultCleanConfig)

	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, `class="link"`)
	assert.Contains(t, out, `id="x"`)
	assert.Contains(t, out, `data-company="Acme Corp"`)
	assert.NotContains(t, out, "data-x")
	assert.NotContains(t, out, "aria-hidden")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "style=")
}

func TestClean_RemovesHeadMetaLink(t *testing.T) {
	html := `<html><head><meta charset="utf-8"><link rel="stylesheet" href="x.css"></head><body><p>Hi</p></body></html>`

	out := Clean(html, &DefaultCleanConfig)

	assert.NotContains(t, out, "<head")
	assert.NotContains(t, out, "<meta")
	assert.NotContains(t, out, "<link")
	assert.Contains(t, out, "<p>Hi</p>")
}

func TestClean_TruncationIsDeterministic(t *testing.T) {
	var big strings.Builder
	big.WriteString("<body>")
	for i := 0; i < 5000; i++ {
		big.WriteString("<div>тест</div>")
	}
	big.WriteString("</body>")

	cfg := DefaultCleanConfig
	cfg.MaxOutputSize = 1001

	a := Clean(big.String(), &cfg)
	b := Clean(big.String(), &cfg)

	require.Equal(t, a, b)
	assert.True(t, strings.HasSuffix(a, TruncationMarker))
	assert.LessOrEqual(t, len(a), cfg.MaxOutputSize)
	assert.True(t, strings.ToValidUTF8(a, "?") == a, "truncation must not split runes")
}

func TestVisibleText(t *testing.T) {
	html := `<html><head><title>T</title></head><body>
		<h1>Companies</h1>
		<script>var x = 1</script>
		<ul><li>Acme   Corp</li><li>Globex</li></ul>
	</body></html>`

	assert.Equal(t, "Companies Acme Corp Globex", VisibleText(html, 0))
	assert.Equal(t, "Companies", VisibleText(html, 9))
}

func TestMarkdownRenderer_Render(t *testing.T) {
	r := NewMarkdownRenderer()

	md, err := r.Render(`<ul><li><a href="/c/acme">Acme Corp</a></li></ul>`, "https://example.com/list", 0)

	require.NoError(t, err)
	assert.Contains(t, md, "Acme Corp")
	assert.Contains(t, md, "https://example.com/c/acme")
}

func TestTruncate_StrictBound(t *testing.T) {
	body := strings.Repeat("<li>Компания</li>", 200)

	tests := []struct {
		name    string
		maxSize int
		marker  bool
	}{
		{"fits marker", 300, true},
		{"tiny limit", 10, false},
		{"limit equals marker", len(TruncationMarker), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Truncate(body, tt.maxSize)

			assert.LessOrEqual(t, len(out), tt.maxSize)
			assert.Equal(t, tt.marker, strings.HasSuffix(out, TruncationMarker))
			assert.True(t, strings.ToValidUTF8(out, "?") == out)
		})
	}

	assert.Equal(t, "short", Truncate("short", 300))
}
