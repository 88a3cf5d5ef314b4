// File: internal/crypto/passwords.go
package crypto

import "regexp"

var (
	reUpper   = regexp.MustCompile(`[A-Z]`)
	reLower   = regexp.MustCompile(`[a-z]`)
	reDigit   = regexp.MustCompile(`[0-9]`)
	reSpecial = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// PasswordStrength reports which strength characteristics a candidate
// password satisfies. It is advisory only: the engine never refuses to
// wrap a master key under a weak password, it just lets cmd/cryptfsctl
// warn the operator at `init`/`passwd` time.
func PasswordStrength(password string) map[string]bool {
	return map[string]bool{
		"min_length":    len(password) >= 8,
		"has_uppercase": reUpper.MatchString(password),
		"has_lowercase": reLower.MatchString(password),
		"has_digit":     reDigit.MatchString(password),
		"has_special":   reSpecial.MatchString(password),
	}
}

// IsStrongPassword is true when every PasswordStrength characteristic holds.
func IsStrongPassword(password string) bool {
	for _, ok := range PasswordStrength(password) {
		if !ok {
			return false
		}
	}
	return true
}
