package prompt

import (
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyPrompt = errors.New("prompt: empty prompt")

// PolicyViolation lists the forbidden phrases found in a prompt.
type PolicyViolation struct {
	Version string
	Phrases []string
}

func (v *PolicyViolation) Error() string {
	return fmt.Sprintf("prompt: policy %s violated by %q", v.Version, strings.Join(v.Phrases, `", "`))
}

// Policy is a versioned blocklist of phrases that must never reach the model.
// Matching is case-insensitive.
type Policy struct {
	Version   string
	Forbidden []string
}

var DefaultPolicy = &Policy{
	Version: "2024-06",
	Forbidden: []string{
		"**Legal Analysis**:",
		"**Key Facts**:",
		"**Next Steps**:",
		"consult with an attorney",
		"consult an attorney",
		"seek legal counsel",
		"I am not a lawyer",
		"this is not legal advice",
	},
}

// With returns a copy of p extended with extra phrases under a new version.
func (p *Policy) With(version string, phrases ...string) *Policy {
	forbidden := make([]string, 0, len(p.Forbidden)+len(phrases))
	forbidden = append(forbidden, p.Forbidden...)
	forbidden = append(forbidden, phrases...)
	return &Policy{Version: version, Forbidden: forbidden}
}

func (p *Policy) Validate(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	lower := strings.ToLower(prompt)
	var hits []string
	for _, phrase := range p.Forbidden {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			hits = append(hits, phrase)
		}
	}
	if len(hits) > 0 {
		return &PolicyViolation{Version: p.Version, Phrases: hits}
	}
	return nil
}

// ValidatePrompt checks prompt against DefaultPolicy.
func ValidatePrompt(prompt string) error {
	return DefaultPolicy.Validate(prompt)
}
