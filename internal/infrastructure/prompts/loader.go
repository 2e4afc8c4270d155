package prompts

import (
	_ "embed"
)

//go:embed extraction_system.txt
var ExtractionSystemPrompt string

//go:embed refine.txt
var RefinePrompt string

//go:embed dom.txt
var DOMPrompt string

//go:embed vision.txt
var VisionPrompt string

//go:embed reformat.txt
var ReformatPrompt string

//go:embed recon.txt
var ReconPrompt string
