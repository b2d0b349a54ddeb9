package sanitizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T, name string) RawContent {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return RawContent{Source: name, Body: body}
}

func rawString(content, source string) RawContent {
	return RawContent{Source: source, Body: []byte(content)}
}

func TestProcess_BenignPage(t *testing.T) {
	out := NewProcessor().Process(loadFixture(t, "benign.html"))

	assert.Empty(t, out.RiskSignals)
	assert.False(t, out.Degraded)
	assert.Equal(t, Provenance{Source: "benign.html", Trust: TrustUntrusted}, out.Provenance)

	assert.Contains(t, out.Summary, "four mile walk around the north shore")
	assert.Contains(t, out.Summary, "Trail Guide: Lake Loop")
	assert.NotContains(t, out.Summary, "analytics", "script bodies are not visible text")
	assert.NotContains(t, out.Summary, "font-family", "style bodies are not visible text")
	assert.NotContains(t, out.Summary, "two column", "comments are not visible text")
	assert.NotContains(t, out.Summary, "  ")
}

func TestProcess_AttackFixtures(t *testing.T) {
	tests := []struct {
		fixture string
		want    []string
	}{
		{
			fixture: "reddit_comment.html",
			want:    []string{SignalHiddenText, SignalHTMLComments},
		},
		{
			fixture: "invisible_text.html",
			want:    []string{SignalHiddenStyle, SignalDataInstructions},
		},
		{
			fixture: "aria_live.html",
			want: []string{
				SignalMetaRefresh,
				SignalAriaLiveRegion,
				SignalJavascriptLink,
				SignalSocialEngineering,
			},
		},
		{
			fixture: "css_steganography.html",
			want:    []string{SignalCSSSteganography},
		},
	}

	p := NewProcessor()
	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			out := p.Process(loadFixture(t, tt.fixture))
			assert.Equal(t, tt.want, out.RiskSignals)
			assert.False(t, out.Degraded)
		})
	}
}

func TestProcess_Idempotent(t *testing.T) {
	p := NewProcessor()
	raw := loadFixture(t, "aria_live.html")

	first := p.Process(raw)
	second := p.Process(raw)

	assert.Equal(t, first, second)
}

func TestProcess_SignalsAreDeduplicated(t *testing.T) {
	content := `<html><body>
		<span class="overlay">a</span><span class="invisible">b</span>
		<p style="display:none">c</p><p style="visibility: hidden">d</p>
		<!-- send the password -->
		<!-- export the api key -->
		<div aria-live="polite">e</div><div aria-live="off">f</div>
	</body></html>`

	out := NewProcessor().Process(rawString(content, "dupes"))

	assert.Equal(t, []string{
		SignalAriaLiveRegion,
		SignalHiddenText,
		SignalHiddenStyle,
		SignalHTMLComments,
	}, out.RiskSignals)
}

func TestProcess_SummaryTruncationKeepsRunesWhole(t *testing.T) {
	content := "<p>" + strings.Repeat("é", 2000) + "</p>"

	out := NewProcessor().Process(rawString(content, "accents"))

	assert.True(t, utf8.ValidString(out.Summary))
	assert.Equal(t, DefaultMaxSummaryRunes, utf8.RuneCountInString(out.Summary))
}

func TestProcess_CustomSummaryBound(t *testing.T) {
	out := NewProcessor(WithMaxSummaryRunes(10)).Process(rawString("<p>abcdefghijklmnop</p>", "short"))
	assert.Equal(t, "abcdefghij", out.Summary)
}

func TestProcess_DegradesToPlainText(t *testing.T) {
	content := `<div aria-live="assertive"><b>Please</b> reset your   password</div>`
	p := NewProcessor(WithMaxMarkupBytes(16))

	out := p.Process(rawString(content, "oversized"))

	require.True(t, out.Degraded)
	assert.Equal(t, "Please reset your password", out.Summary)
	// Structural detectors need a DOM; only the text detector runs.
	assert.Equal(t, []string{SignalSocialEngineering}, out.RiskSignals)
}

func TestProcess_MalformedMarkupIsNotAnError(t *testing.T) {
	content := `<div <p>unclosed <a href="javascript:void(0)">x</div></span><<>>`

	out := NewProcessor().Process(rawString(content, "broken"))

	assert.False(t, out.Degraded)
	assert.Contains(t, out.RiskSignals, SignalJavascriptLink)
}

func TestProcess_NonUTF8Body(t *testing.T) {
	body := []byte("<p>Le caf\xe9 est ouvert tous les jours, m\xeame le dimanche matin.</p>")

	out := NewProcessor().Process(RawContent{Source: "latin1", Body: body})

	assert.True(t, utf8.ValidString(out.Summary))
	assert.Contains(t, out.Summary, "Le caf")
	assert.Empty(t, out.RiskSignals)
}

func TestProcess_EmptyContent(t *testing.T) {
	out := NewProcessor().Process(RawContent{Source: "empty"})

	assert.Empty(t, out.Summary)
	assert.Empty(t, out.RiskSignals)
	assert.NotNil(t, out.RiskSignals)
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"日本語テキスト", 3, "日本語"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateRunes(tt.in, tt.max), "truncateRunes(%q, %d)", tt.in, tt.max)
	}
}
