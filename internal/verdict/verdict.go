package verdict

// Canonical verdict values. Everything the model emits is coerced into
// exactly one of these.
const (
	Clear   = "CLEAR"
	Caution = "CAUTION"
	Scam    = "SCAM"
)

// Verdict is the validated, normalized outcome of a scan. TrustScore is
// always in 1-100; a zero score never leaves this package.
type Verdict struct {
	Verdict        string   `json:"verdict"`
	TrustScore     int      `json:"trust_score"`
	RedFlags       []string `json:"red_flags"`
	Analysis       string   `json:"analysis"`
	Recommendation string   `json:"recommendation"`
	Category       string   `json:"category"`

	// ForensicText echoes the evidence bundle shown to the model so callers
	// can see what the verdict was based on.
	ForensicText string `json:"forensic_text"`
}

// verdictSynonyms maps legacy and off-script labels onto canonical values
var verdictSynonyms = map[string]string{
	Clear:        Clear,
	Caution:      Caution,
	Scam:         Scam,
	"SAFE":       Clear,
	"LEGIT":      Clear,
	"LEGITIMATE": Clear,
	"SUSPICIOUS": Caution,
	"WARNING":    Caution,
	"FRAUD":      Scam,
	"FRAUDULENT": Scam,
	"PHISHING":   Scam,
}
