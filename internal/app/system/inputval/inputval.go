// Package inputval holds the field-level validators shared by the donor
// forms and the sign-up flow.
package inputval

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers entered without a country code.
const DefaultPhoneRegion = "MA"

// IsValidEmail reports whether s is a bare address (no display name) with a
// dotted domain.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	return strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}

// NormalizePhone parses a phone number and returns it in E.164 form.
// ok is false when the number is not valid for its region.
func NormalizePhone(s, region string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// PasswordSpecials are the symbols that satisfy the special-character rule.
const PasswordSpecials = "@$!%*?&#"

// PasswordRules is the human-readable rule set shown on sign-up.
const PasswordRules = "8-64 characters with a lowercase letter, an uppercase letter, a number and one of @$!%*?&#"

// PasswordProblems returns every rule the password breaks (empty when ok).
func PasswordProblems(pw string) []string {
	var out []string
	n := utf8.RuneCountInString(pw)
	if n < 8 {
		out = append(out, "At least 8 characters")
	}
	if n > 64 {
		out = append(out, "Password cannot exceed 64 characters")
	}
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSpecials, r):
			special = true
		}
	}
	if !lower {
		out = append(out, "At least 1 lowercase letter")
	}
	if !upper {
		out = append(out, "At least 1 uppercase letter")
	}
	if !digit {
		out = append(out, "At least 1 number")
	}
	if !special {
		out = append(out, "At least 1 special character ("+PasswordSpecials+")")
	}
	return out
}

// ValidPersonName reports whether a first or last name is 3-50 characters
// after trimming.
func ValidPersonName(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= 3 && n <= 50
}
