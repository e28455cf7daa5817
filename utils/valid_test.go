package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValidPhone(t *testing.T) {
	valid := []string{"+6281234567890", "+12025550123", "+442071838750"}
	for _, phone := range valid {
		require.True(t, IsValidPhone(phone), phone)
	}

	invalid := []string{"", "6281234567890", "+0812345678", "+62 812 3456", "+62abc", "+12345"}
	for _, phone := range invalid {
		require.False(t, IsValidPhone(phone), phone)
	}
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "+6281234567890", NormalizePhone(" 6281234567890 "))
	require.Equal(t, "+6281234567890", NormalizePhone("+6281234567890"))
	require.Equal(t, "", NormalizePhone("   "))
}

func TestSanitizeInputStripsScripts(t *testing.T) {
	require.Equal(t, "hello", SanitizeInput("  hello  "))
	require.NotContains(t, SanitizeInput("<script>alert(1)</script>"), "<script>")
}

func TestSanitizeEmail(t *testing.T) {
	email, err := SanitizeEmail("  User@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "user@example.com", email)

	_, err = SanitizeEmail("not-an-email")
	require.Error(t, err)
}
