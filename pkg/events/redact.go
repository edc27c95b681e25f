package events

import (
	"regexp"
	"strings"
)

// Redactor masks sensitive content in published text fields (typed key
// chords, window titles) before a window leaves the pipeline.
//
// The zero value is a no-op redactor.
type Redactor struct {
	patterns []*regexp.Regexp
}

// Shorthand names accepted in the custom pattern list.
var namedPatterns = map[string]string{
	"email": `(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`,
	"cc16":  `\b(?:\d[ -]?){16}\b`,
	"jwt":   `eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9._-]+\.[A-Za-z0-9._-]+`,
}

// NewRedactor builds a redaction pipeline. When redactEmails is true the
// built-in email expression is included. Custom entries may be shorthand
// names or regular expressions.
func NewRedactor(redactEmails bool, custom []string) (Redactor, error) {
	patterns := make([]*regexp.Regexp, 0, len(custom)+1)

	if redactEmails {
		patterns = append(patterns, regexp.MustCompile(namedPatterns["email"]))
	}

	for _, expr := range custom {
		trimmed := strings.TrimSpace(expr)
		if trimmed == "" {
			continue
		}
		candidate := trimmed
		if mapped, ok := namedPatterns[strings.ToLower(trimmed)]; ok {
			candidate = mapped
		}
		rx, err := regexp.Compile(candidate)
		if err != nil {
			return Redactor{}, err
		}
		patterns = append(patterns, rx)
	}

	return Redactor{patterns: patterns}, nil
}

// ApplyString redacts sensitive content from a string.
func (r Redactor) ApplyString(input string) string {
	if len(r.patterns) == 0 {
		return input
	}
	redacted := input
	for _, rx := range r.patterns {
		redacted = rx.ReplaceAllString(redacted, "[REDACTED]")
	}
	return redacted
}

// ApplyWindow returns a copy of the focus event with its title redacted.
func (r Redactor) ApplyWindow(ev ProcessedWindowEvent) ProcessedWindowEvent {
	ev.WindowTitle = r.ApplyString(ev.WindowTitle)
	return ev
}

// PrivacyPolicy restricts which applications contribute window focus events.
// The zero value permits everything.
type PrivacyPolicy struct {
	allowApps   map[string]struct{}
	dropUnknown bool
}

// NewPrivacyPolicy constructs an allow-list filter over process names.
// With dropUnknown set, events with an empty process name are rejected.
func NewPrivacyPolicy(allowApps []string, dropUnknown bool) PrivacyPolicy {
	policy := PrivacyPolicy{
		allowApps:   make(map[string]struct{}, len(allowApps)),
		dropUnknown: dropUnknown,
	}
	for _, app := range allowApps {
		trimmed := strings.ToLower(strings.TrimSpace(app))
		if trimmed == "" {
			continue
		}
		policy.allowApps[trimmed] = struct{}{}
	}
	return policy
}

// AllowsProcess reports whether focus events from the process may be
// published.
func (p PrivacyPolicy) AllowsProcess(name string) bool {
	if len(p.allowApps) == 0 {
		return true
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return !p.dropUnknown
	}
	_, ok := p.allowApps[trimmed]
	return ok
}
