package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRefinePrompt(t *testing.T) {
	out, err := Render("refine", RefinePrompt, ExtractionPromptData{
		Goal:       "YC companies",
		URL:        "https://example.com/companies",
		Candidates: []string{"Acme Corp — robots", "Globex"},
		MaxResults: 50,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Goal: YC companies")
	assert.Contains(t, out, "1. Acme Corp — robots")
	assert.Contains(t, out, "2. Globex")
	assert.Contains(t, out, "at most 50 records")
	assert.NotContains(t, out, "Page excerpt")
}

func TestRenderRefinePrompt_WithExcerpt(t *testing.T) {
	out, err := Render("refine", RefinePrompt, ExtractionPromptData{
		Goal:       "g",
		Candidates: []string{"Acme"},
		Excerpt:    "- Acme",
		MaxResults: 1,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "- Acme"))
}

func TestRenderAllTemplates(t *testing.T) {
	data := ExtractionPromptData{Goal: "g", URL: "u", Excerpt: "e", MaxResults: 3}

	for name, tmpl := range map[string]string{
		"dom":      DOMPrompt,
		"vision":   VisionPrompt,
		"reformat": ReformatPrompt,
	} {
		t.Run(name, func(t *testing.T) {
			out, err := Render(name, tmpl, data)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}

	out, err := Render("recon", ReconPrompt, ReconPromptData{Goal: "g", URL: "u", Pagination: "next_button", Excerpt: "e"})
	require.NoError(t, err)
	assert.Contains(t, out, "Detected pagination: next_button")
}

func TestRenderInvalidTemplate(t *testing.T) {
	_, err := Render("bad", `Test {{.InvalidField}}`, ExtractionPromptData{})
	assert.Error(t, err)

	_, err = Render("bad", `Test {{.Goal`, ExtractionPromptData{})
	assert.Error(t, err)
}

func TestExtractionSystemPromptMentionsSchema(t *testing.T) {
	assert.Contains(t, ExtractionSystemPrompt, `"name"`)
	assert.Contains(t, ExtractionSystemPrompt, `"context"`)
}
