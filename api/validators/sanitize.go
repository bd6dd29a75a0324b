package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input and caps it at maxLen bytes without splitting a rune.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 || len(trimmed) <= maxLen {
		return trimmed
	}
	cut := trimmed[:maxLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return strings.TrimSpace(cut)
}

// NormalizeEmail lowercases and trims an address. Rate-limit keys and
// stored customer emails both go through here so they agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(SanitizeString(email, 254))
}

// SanitizePhone keeps digits and a single leading plus sign.
func SanitizePhone(phone string, maxLen int) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return SanitizeString(b.String(), maxLen)
}
