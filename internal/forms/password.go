package forms

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultPasswordMinLength is used when no minimum length is configured.
const DefaultPasswordMinLength = 8

var commonPasswords = map[string]struct{}{
	"123456": {}, "1234567": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"password": {}, "password1": {}, "password12": {}, "password123": {}, "passw0rd": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {}, "abc123": {}, "abcd1234": {},
	"111111": {}, "000000": {}, "iloveyou": {}, "letmein": {}, "welcome": {},
	"welcome1": {}, "admin": {}, "admin123": {}, "monkey": {}, "dragon": {},
	"football": {}, "baseball": {}, "sunshine": {}, "princess": {}, "trustno1": {},
	"superman": {}, "starwars": {}, "master": {}, "shadow": {}, "whatever": {},
	"1q2w3e4r": {}, "zaq12wsx": {}, "changeme": {}, "secret": {}, "login": {},
}

// PasswordPolicy describes the strength rules a new password must meet.
type PasswordPolicy struct {
	MinLength int
}

// UserAttribute is a named piece of user data a password must not resemble.
type UserAttribute struct {
	Label string
	Value string
}

// Check returns one message per rule the password breaks.
func (p PasswordPolicy) Check(password string, attrs ...UserAttribute) []string {
	minLength := p.MinLength
	if minLength <= 0 {
		minLength = DefaultPasswordMinLength
	}

	var problems []string
	lower := strings.ToLower(password)

	for _, attr := range attrs {
		if similar(lower, strings.ToLower(attr.Value)) {
			problems = append(problems, fmt.Sprintf("The password is too similar to the %s.", attr.Label))
			break
		}
	}
	if len([]rune(password)) < minLength {
		problems = append(problems, fmt.Sprintf("This password is too short. It must contain at least %d characters.", minLength))
	}
	if _, common := commonPasswords[lower]; common {
		problems = append(problems, "This password is too common.")
	}
	if isNumeric(password) {
		problems = append(problems, "This password is entirely numeric.")
	}
	return problems
}

// maxSimilarity is the character overlap ratio at which a password counts as
// too close to a user attribute.
const maxSimilarity = 0.7

var nonWord = regexp.MustCompile(`\W+`)

// similar compares password with value and with each word of value. Parts
// much shorter than the password are skipped.
func similar(password, value string) bool {
	if password == "" || value == "" {
		return false
	}
	parts := append(nonWord.Split(value, -1), value)
	for _, part := range parts {
		if part == "" || exceedsLengthRatio(password, part) {
			continue
		}
		if overlapRatio(password, part) >= maxSimilarity {
			return true
		}
	}
	return false
}

func exceedsLengthRatio(password, value string) bool {
	pwdLen := utf8.RuneCountInString(password)
	valueLen := utf8.RuneCountInString(value)
	return pwdLen >= 10*valueLen && float64(valueLen) < maxSimilarity/2*float64(pwdLen)
}

// overlapRatio is 2*M/T where M counts the characters a and b share, with
// multiplicity, and T is their combined length.
func overlapRatio(a, b string) float64 {
	counts := map[rune]int{}
	lb := 0
	for _, r := range b {
		counts[r]++
		lb++
	}
	la, matches := 0, 0
	for _, r := range a {
		la++
		if counts[r] > 0 {
			counts[r]--
			matches++
		}
	}
	if la+lb == 0 {
		return 1
	}
	return 2 * float64(matches) / float64(la+lb)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
