package evidence

import (
	"fmt"
	"strings"

	"github.com/leadguard/scan-engine/internal/rdap"
)

// Bundle is the synthesized forensic context handed to the analyst model and
// returned to the caller for transparency.
type Bundle struct {
	ForensicText string `json:"forensic_text"`
	MetadataText string `json:"metadata_text,omitempty"`
}

// NoDomainsNote is used when extraction found nothing to probe. The model is
// told about the absence explicitly rather than being handed an empty field.
const NoDomainsNote = "No domains were detected in the submitted content; domain-age forensics are unavailable for this lead."

// metadataFields are the document metadata keys rendered into the bundle, in
// a fixed order so the prompt is stable across runs.
var metadataFields = []string{"producer", "creator", "creationDate", "modDate"}

// Synthesize merges probe results and optional document metadata into a
// bundle. Pure formatting: all evidence has already been collected.
func Synthesize(probes []rdap.ProbeResult, metadata map[string]string) Bundle {
	bundle := Bundle{ForensicText: NoDomainsNote}

	if len(probes) > 0 {
		notes := make([]string, 0, len(probes))
		for _, probe := range probes {
			notes = append(notes, probe.Note)
		}
		bundle.ForensicText = strings.Join(notes, "\n")
	}

	if len(metadata) > 0 {
		bundle.MetadataText = renderMetadata(metadata)
	}

	return bundle
}

func renderMetadata(metadata map[string]string) string {
	var b strings.Builder
	b.WriteString("Document metadata (check for forgery: generic PDF producers reused under a claimed corporate identity are suspicious):")
	for _, key := range metadataFields {
		if value, ok := metadata[key]; ok && value != "" {
			fmt.Fprintf(&b, "\n- %s: %s", key, value)
		}
	}
	return b.String()
}
