// Package validate holds the deterministic checks applied to contact data
// before it is written to a session. Every function is pure: it returns the
// value to store and whether the input was accepted.
package validate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 11
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Name accepts a full name: more than three characters, at least two words,
// a capitalized first word and every word starting with a letter.
func Name(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) <= 3 {
		return "", false
	}
	words := strings.Fields(name)
	if len(words) < 2 {
		return "", false
	}
	first, _ := utf8.DecodeRuneInString(words[0])
	if !unicode.IsUpper(first) {
		return "", false
	}
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsLetter(r) {
			return "", false
		}
	}
	return name, true
}

// Email accepts raw only when the whole string is a local@domain.tld address.
func Email(raw string) (string, bool) {
	if !emailPattern.MatchString(raw) {
		return "", false
	}
	return raw, true
}

// Phone accepts raw when it carries 10 or 11 digits once every other
// character is dropped. The original text is returned, not the digits.
func Phone(raw string) (string, bool) {
	n := utf8.RuneCountInString(Digits(raw))
	if n < minPhoneDigits || n > maxPhoneDigits {
		return "", false
	}
	return raw, true
}

// Digits returns the decimal digits of s in order, in any script.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
