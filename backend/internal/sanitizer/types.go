package sanitizer

// Signal names emitted by the detectors
const (
	SignalMetaRefresh       = "meta_refresh"
	SignalAriaLiveRegion    = "aria_live_region"
	SignalJavascriptLink    = "javascript_link"
	SignalHiddenText        = "hidden_text"
	SignalHiddenStyle       = "hidden_style"
	SignalDataInstructions  = "data_instructions"
	SignalCSSSteganography  = "css_steganography"
	SignalHTMLComments      = "html_comments"
	SignalSocialEngineering = "social_engineering"
)

// TrustUntrusted is the only trust level page content ever carries
const TrustUntrusted = "untrusted"

// DefaultMaxSummaryRunes bounds the sanitized summary handed to the operator
const DefaultMaxSummaryRunes = 1500

// DefaultMaxMarkupBytes is the largest body parsed as a DOM; larger bodies
// are handled as plain text.
const DefaultMaxMarkupBytes = 10 * 1024 * 1024

// RawContent is an untrusted page body plus where it came from.
// It never leaves this package.
type RawContent struct {
	Source string
	Body   []byte
}

// Provenance records the origin of a summary
type Provenance struct {
	Source string `json:"source"`
	Trust  string `json:"trust"`
}

// ProcessedInput is the only view of a page that later stages receive
type ProcessedInput struct {
	Summary     string     `json:"summary"`
	Provenance  Provenance `json:"provenance"`
	RiskSignals []string   `json:"risk_signals"`
	// Degraded is set when the markup could not be parsed and the summary
	// was built from the raw text instead.
	Degraded bool `json:"degraded,omitempty"`
}

// signalSet is an append-only, first-occurrence ordered set
type signalSet struct {
	order []string
	seen  map[string]bool
}

func newSignalSet() *signalSet {
	return &signalSet{order: make([]string, 0), seen: make(map[string]bool)}
}

func (s *signalSet) add(name string) {
	if name == "" || s.seen[name] {
		return
	}
	s.seen[name] = true
	s.order = append(s.order, name)
}

func (s *signalSet) list() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
