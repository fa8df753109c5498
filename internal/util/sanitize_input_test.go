package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", SanitizeInput("  hello  "))
	assert.Equal(t, "&lt;script&gt;", SanitizeInput("<script>"))
	assert.Equal(t, "", SanitizeInput("   "))
}

func TestNormalizeIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"email lowercased", "User@Example.COM", "user@example.com"},
		{"email trimmed", "  user@example.com ", "user@example.com"},
		{"phone formatting stripped", "(555) 010-0100", "5550100100"},
		{"phone with country code", "+1 555-010-0100", "+15550100100"},
		{"already normalized", "user@example.com", "user@example.com"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NormalizeIdentifier(tc.input))
		})
	}
}
