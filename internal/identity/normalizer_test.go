package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	norm := NewNormalizer(map[string]string{"telusinternational.com": "telus.com"})

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"canonical passthrough", "carlos.carias@telus.com", "carlos.carias@telus.com"},
		{"case folded", "Carlos.Carias@TELUS.com", "carlos.carias@telus.com"},
		{"sso prefix stripped", "AWSReservedSSO_Role/User@Domain.com", "user@domain.com"},
		{"last slash segment kept", "corp/team/jane@telus.com", "jane@telus.com"},
		{"domain alias applied", "a@telusinternational.com", "a@telus.com"},
		{"numeric suffix folded", "carlos.carias01@telus.com", "carlos.carias@telus.com"},
		{"all rules together", "AWSReservedSSO_Dev/Jane01@TELUSinternational.com", "jane@telus.com"},
		{"digits away from at-sign kept", "team42dev@telus.com", "team42dev@telus.com"},
		{"surrounding whitespace trimmed", "  jane@telus.com  ", "jane@telus.com"},
		{"unknown placeholder", "Unknown", ""},
		{"padded unknown placeholder", "  Unknown  ", ""},
		{"blank", "   ", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, norm.Normalize(tt.raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	norm := NewNormalizer(map[string]string{"telusinternational.com": "telus.com"})

	inputs := []string{
		"carlos.carias@telus.com",
		"AWSReservedSSO_Dev/Jane01@TELUSinternational.com",
		"a@telusinternational.com",
		"weird//input@@nowhere",
	}
	for _, raw := range inputs {
		once := norm.Normalize(raw)
		assert.Equal(t, once, norm.Normalize(once), "input %q", raw)
	}
}

func TestNormalizeEquivalentSpellings(t *testing.T) {
	norm := NewNormalizer(map[string]string{"telusinternational.com": "telus.com"})

	assert.Equal(t,
		norm.Normalize("user@domain.com"),
		norm.Normalize("AWSReservedSSO_Role/User@Domain.com"))
	assert.Equal(t,
		norm.Normalize("a@telus.com"),
		norm.Normalize("a@telusinternational.com"))
}

func TestNormalizeNoAliases(t *testing.T) {
	norm := NewNormalizer(nil)
	assert.Equal(t, "a@telusinternational.com", norm.Normalize("A@TELUSinternational.com"))
}
