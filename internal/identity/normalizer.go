package identity

import (
	"regexp"
	"sort"
	"strings"
)

// digitSuffixRe folds numbered variants of the same local part together,
// e.g. carlos.carias01@ and carlos.carias@ are one person. This can in
// principle conflate genuinely numeric addresses; accepted trade-off.
var digitSuffixRe = regexp.MustCompile(`[0-9]+@`)

// Normalizer maps the email spellings seen in Jira accounts and git commit
// authors onto one canonical form per developer
type Normalizer struct {
	domainAliases map[string]string
}

func NewNormalizer(domainAliases map[string]string) *Normalizer {
	return &Normalizer{domainAliases: domainAliases}
}

// Normalize returns the canonical spelling for a raw email, or "" when the
// input carries no usable identity (blank or the "Unknown" placeholder).
// Applying it twice yields the same result.
func (n *Normalizer) Normalize(raw string) string {
	email := strings.TrimSpace(raw)
	if email == "" || email == "Unknown" {
		return ""
	}

	// SSO-style identities look like "CORP/user@host"; keep the email part
	if idx := strings.LastIndex(email, "/"); idx >= 0 {
		email = email[idx+1:]
	}

	email = strings.ToLower(email)

	for _, from := range sortedKeys(n.domainAliases) {
		email = strings.ReplaceAll(email, from, n.domainAliases[from])
	}

	return digitSuffixRe.ReplaceAllString(email, "@")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
