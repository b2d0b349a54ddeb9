package policy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/blackrose-blackhat/browser-guardrail/backend/internal/cedar"
)

// Compile converts an override file into Cedar policy text.
// Forbid policies yield deny; permits annotated RequireApproval yield escalate.
func Compile(o *Overrides) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder

	b.WriteString("// Auto-generated from the overrides file. Do not edit directly.\n")
	b.WriteString(fmt.Sprintf("// Overrides version: %s\n\n", o.Version))

	// ── Section 1: Default Permit ──
	compileSectionHeader(&b, "1", "DEFAULT PERMIT")
	b.WriteString("permit(principal, action, resource);\n\n")

	// ── Section 2: Defaults ──
	if o.Defaults != nil && !o.Defaults.empty() {
		compileSectionHeader(&b, "2", "ALL USERS")
		compileRules(&b, "principal", *o.Defaults)
	}

	// ── Section 3: Users ──
	if len(o.Users) > 0 {
		compileSectionHeader(&b, "3", "PER-USER OVERRIDES")
		users := make([]string, 0, len(o.Users))
		for u := range o.Users {
			users = append(users, u)
		}
		// map order would make the text, and so the policy ids, unstable
		sort.Strings(users)
		for _, u := range users {
			b.WriteString(fmt.Sprintf("// user: %s\n", u))
			compileRules(&b, fmt.Sprintf(`principal == User::"%s"`, u), o.Users[u])
		}
	}

	return b.String(), nil
}

// CompileBytes parses override YAML and compiles it. It matches the
// cedar.CompileFunc signature so an engine can watch the YAML file directly.
func CompileBytes(data []byte) (string, error) {
	o, err := ParseOverrides(data)
	if err != nil {
		return "", err
	}
	return Compile(o)
}

var _ cedar.CompileFunc = CompileBytes

func compileSectionHeader(b *strings.Builder, num, title string) {
	b.WriteString(fmt.Sprintf("// ═══ SECTION %s: %s ═══\n", num, title))
}

func compileRules(b *strings.Builder, principal string, r UserRules) {
	for _, term := range r.DenyTerms {
		writePolicy(b, "forbid", principal, "",
			fmt.Sprintf(`context.intent like "*%s*"`, strings.ToLower(term)))
	}

	for _, s := range r.DenySignals {
		writePolicy(b, "forbid", principal, "",
			fmt.Sprintf(`context.flags.contains("signal:%s")`, s))
	}

	if r.MaxRisk != nil {
		writePolicy(b, "forbid", principal, "",
			fmt.Sprintf(`context.risk_score >= %d`, int64(math.Round(*r.MaxRisk*100))))
	}

	for _, term := range r.EscalateTerms {
		writePolicy(b, "permit", principal, cedar.ObligationRequireApproval,
			fmt.Sprintf(`context.intent like "*%s*"`, strings.ToLower(term)))
	}
}

func writePolicy(b *strings.Builder, effect, principal, obligation, condition string) {
	if obligation != "" {
		b.WriteString(fmt.Sprintf("@obligation(\"%s\")\n", obligation))
	}
	b.WriteString(fmt.Sprintf(`%s(
    %s,
    action == Action::"propose",
    resource
)
when {
    %s
};

`, effect, principal, condition))
}
