package sanitizer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// page is the parsed view every detector runs over
type page struct {
	doc  *goquery.Document
	text string // visible text, whitespace-normalized
}

// detector inspects a page and names at most one signal
type detector func(p *page) (string, bool)

// detectors run in this order; the order fixes first-occurrence order of
// the resulting signal set.
var detectors = []detector{
	detectMetaRefresh,
	detectAriaLive,
	detectJavascriptLink,
	detectHiddenClass,
	detectHiddenStyle,
	detectDataInstructions,
	detectCSSSteganography,
	detectHTMLComments,
	func(p *page) (string, bool) { return detectSocialEngineering(p.text) },
}

var (
	hiddenClassSelector = ".spoiler, .hidden-instructions, .overlay, .invisible"

	hiddenStylePattern = regexp.MustCompile(
		`display\s*:\s*none` +
			`|visibility\s*:\s*hidden` +
			`|(?:^|[;\s])color\s*:\s*(?:white|transparent|#fff(?:fff)?\b)` +
			`|font-size\s*:\s*0+(?:\.0+)?[a-z%]*\s*(?:;|!|$)` +
			`|opacity\s*:\s*0+(?:\.0+)?\s*(?:;|!|$)`)

	cssContentPattern = regexp.MustCompile(`(?i)content\s*:`)
	cssExfilPattern   = regexp.MustCompile(
		`(?is)(extract|export|send|email|transfer|post|upload).{0,120}(password|2fa|otp|credential|token|session|cookie)`)

	commentExfilPattern = regexp.MustCompile(
		`(?is)(extract|export|send|email|transfer|post|navigate).{0,200}(password|credential|api key|token|session)`)

	socialEngineeringTerms = []string{
		"password",
		"2fa",
		"backup codes",
		"admin access",
		"urgent security",
		"secure your account",
	}
)

func detectMetaRefresh(p *page) (string, bool) {
	found := p.doc.Find("meta[http-equiv]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("http-equiv")
		return strings.EqualFold(strings.TrimSpace(v), "refresh")
	}).Length() > 0
	return SignalMetaRefresh, found
}

func detectAriaLive(p *page) (string, bool) {
	return SignalAriaLiveRegion, p.doc.Find("[aria-live]").Length() > 0
}

func detectJavascriptLink(p *page) (string, bool) {
	found := false
	p.doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if isScriptURL(href) {
			found = true
			return false
		}
		return true
	})
	return SignalJavascriptLink, found
}

// urlControlChars are removed from URLs by browsers before the scheme is read
var urlControlChars = strings.NewReplacer("\t", "", "\n", "", "\r", "")

func isScriptURL(href string) bool {
	href = urlControlChars.Replace(strings.TrimSpace(href))
	return strings.HasPrefix(strings.ToLower(href), "javascript:")
}

func detectHiddenClass(p *page) (string, bool) {
	return SignalHiddenText, p.doc.Find(hiddenClassSelector).Length() > 0
}

func detectHiddenStyle(p *page) (string, bool) {
	found := false
	p.doc.Find("[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if hiddenStylePattern.MatchString(strings.ToLower(style)) {
			found = true
			return false
		}
		return true
	})
	return SignalHiddenStyle, found
}

func detectDataInstructions(p *page) (string, bool) {
	return SignalDataInstructions, p.doc.Find("[data-instructions]").Length() > 0
}

func detectCSSSteganography(p *page) (string, bool) {
	found := false
	p.doc.Find("style").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		css := s.Text()
		if cssContentPattern.MatchString(css) && cssExfilPattern.MatchString(css) {
			found = true
			return false
		}
		return true
	})
	return SignalCSSSteganography, found
}

// detectHTMLComments stops at the first comment that reads like an
// exfiltration instruction.
func detectHTMLComments(p *page) (string, bool) {
	for _, root := range p.doc.Nodes {
		comments, err := htmlquery.QueryAll(root, "//comment()")
		if err != nil {
			return SignalHTMLComments, false
		}
		for _, c := range comments {
			if commentExfilPattern.MatchString(strings.ToLower(c.Data)) {
				return SignalHTMLComments, true
			}
		}
	}
	return SignalHTMLComments, false
}

func detectSocialEngineering(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, term := range socialEngineeringTerms {
		if strings.Contains(lowered, term) {
			return SignalSocialEngineering, true
		}
	}
	return SignalSocialEngineering, false
}
