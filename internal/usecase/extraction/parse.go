package extraction

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"listing-agent/internal/domain/entity"

	"github.com/microcosm-cc/bluemonday"
)

const previewLen = 200

var (
	numberingPrefix = regexp.MustCompile(`^\d+[.)]\s*(\D)`)
	bulletPrefix    = regexp.MustCompile(`^[-•*·\s]+`)
	codeFence       = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

	strictPolicy = bluemonday.StrictPolicy()
)

// ParseRecords decodes a collaborator reply into records. The reply must
// be a JSON array of objects with a string "name"; it may be wrapped in a
// code fence or surrounded by prose. Anything else is a *entity.ParseError.
func ParseRecords(text string) ([]entity.ExtractionRecord, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil, &entity.ParseError{Reason: "empty response"}
	}
	if m := codeFence.FindStringSubmatch(cleaned); m != nil {
		cleaned = m[1]
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		start := strings.Index(cleaned, "[")
		end := strings.LastIndex(cleaned, "]")
		if start == -1 || end <= start {
			return nil, &entity.ParseError{Reason: "no JSON array found", Preview: preview(text), Err: err}
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
			return nil, &entity.ParseError{Reason: "invalid JSON array", Preview: preview(text), Err: err}
		}
	}

	records := make([]entity.ExtractionRecord, 0, len(items))
	for _, raw := range items {
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		name, ok := item["name"].(string)
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}

		var context *string
		switch v := item["context"].(type) {
		case nil:
		case string:
			context = nonEmpty(strings.TrimSpace(v))
		default:
			context = nonEmpty(fmt.Sprint(v))
		}
		records = append(records, entity.ExtractionRecord{Name: name, Context: context})
	}

	if len(items) > 0 && len(records) == 0 {
		return nil, &entity.ParseError{Reason: "no element has a string name", Preview: preview(text)}
	}

	return records, nil
}

// cleanRecords normalizes collaborator-provided records, strips markup and
// numbering, drops entries that do not look like records and dedupes.
func cleanRecords(records []entity.ExtractionRecord) []entity.ExtractionRecord {
	out := make([]entity.ExtractionRecord, 0, len(records))
	for _, r := range records {
		name := sanitize(r.Name)
		name = numberingPrefix.ReplaceAllString(name, "${1}")
		name = strings.TrimSpace(bulletPrefix.ReplaceAllString(name, ""))
		if !looksLikeRecord(name) {
			continue
		}

		var context *string
		if r.Context != nil {
			context = nonEmpty(sanitize(*r.Context))
		}
		out = append(out, entity.ExtractionRecord{Name: name, Context: context})
	}
	return dedupe(out)
}

func sanitize(s string) string {
	return normalize(html.UnescapeString(strictPolicy.Sanitize(s)))
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= previewLen {
		return s
	}
	return truncateRunes(s, previewLen) + "..."
}
