package policy

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Characters that cannot appear in a term or user name once compiled into a
// Cedar string literal or pattern
const forbiddenChars = "\"\\*\n\r"

var signalNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// LoadOverrides reads and validates an override file
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes and validates override YAML
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if o.Version == "" {
		o.Version = "1"
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Validate rejects rules that could not be compiled faithfully
func (o *Overrides) Validate() error {
	var errs []error
	if o.Defaults != nil {
		errs = append(errs, validateRules("defaults", *o.Defaults)...)
	}
	for user, rules := range o.Users {
		if strings.TrimSpace(user) == "" || strings.ContainsAny(user, forbiddenChars) {
			errs = append(errs, fmt.Errorf("invalid user name %q", user))
			continue
		}
		errs = append(errs, validateRules("users."+user, rules)...)
	}
	return errors.Join(errs...)
}

func validateRules(scope string, r UserRules) []error {
	var errs []error
	for _, term := range append(append([]string{}, r.DenyTerms...), r.EscalateTerms...) {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("%s: empty term", scope))
		} else if strings.ContainsAny(term, forbiddenChars) {
			errs = append(errs, fmt.Errorf("%s: term %q contains a quote, backslash, asterisk or newline", scope, term))
		}
	}
	for _, s := range r.DenySignals {
		if !signalNamePattern.MatchString(s) {
			errs = append(errs, fmt.Errorf("%s: invalid signal name %q", scope, s))
		}
	}
	if r.MaxRisk != nil && (*r.MaxRisk < 0 || *r.MaxRisk > 1) {
		errs = append(errs, fmt.Errorf("%s: max_risk %.2f outside [0,1]", scope, *r.MaxRisk))
	}
	return errs
}
