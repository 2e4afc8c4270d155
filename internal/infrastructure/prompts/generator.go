package prompts

import (
	"bytes"
	"fmt"
	"text/template"
)

type ExtractionPromptData struct {
	Goal       string
	URL        string
	Candidates []string
	Excerpt    string
	MaxResults int
}

type ReconPromptData struct {
	Goal       string
	URL        string
	Pagination string
	Excerpt    string
}

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

// Render executes baseTemplate against data. Missing fields are errors.
func Render(name, baseTemplate string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(baseTemplate)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}

	return buf.String(), nil
}
