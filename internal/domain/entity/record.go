package entity

type ExtractionSource string

const (
	SourceNone           ExtractionSource = "none"
	SourceDomHeuristic   ExtractionSource = "dom_heuristic"
	SourceLlmRefine      ExtractionSource = "llm_refine"
	SourceLlmDom         ExtractionSource = "llm_dom"
	SourceVisionFallback ExtractionSource = "vision_fallback"
)

type ExtractionRecord struct {
	Name    string  `json:"name"`
	Context *string `json:"context"`
}

func (r ExtractionRecord) ContextText() string {
	if r.Context == nil {
		return ""
	}
	return *r.Context
}

type TraceEntry struct {
	Stage   string `json:"stage"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

type Extraction struct {
	Records            []ExtractionRecord
	Source             ExtractionSource
	Trace              []TraceEntry
	CollaboratorErrors int
}

type PageResult struct {
	PageIndex          int                `json:"page_index"`
	URL                string             `json:"url"`
	Records            []ExtractionRecord `json:"records"`
	Source             ExtractionSource   `json:"source"`
	ContentFingerprint string             `json:"content_fingerprint"`
}
