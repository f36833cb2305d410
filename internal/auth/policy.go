// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Rule identifies a password policy check.
type Rule string

// Password policy rules, in evaluation order.
const (
	RuleMismatch         Rule = "mismatch"
	RuleMinLength        Rule = "min_length"
	RuleLettersAndDigits Rule = "letters_and_digits"
	RuleRepeatedChars    Rule = "repeated_chars"
	RuleUppercase        Rule = "uppercase"
	RuleLowercase        Rule = "lowercase"
	RuleSpecialChar      Rule = "special_char"
	RuleNumericSequence  Rule = "numeric_sequence"
	RulePersonalData     Rule = "personal_data"
)

// Policy limits.
const (
	MinPasswordLength = 8
	// SpecialChars is the set a password must draw at least one character from.
	SpecialChars = "!@#$%^&*()"

	maxRepeatRun = 3
	piiWindow    = 4
)

// PII field names reported by RulePersonalData violations.
const (
	FieldDateOfBirth = "dateOfBirth"
	FieldPhone       = "cellphoneNumber"
	FieldEmail       = "email"
	FieldCPF         = "cpf"
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
)

var (
	letterRegex    = regexp.MustCompile(`[a-zA-Z]`)
	digitRegex     = regexp.MustCompile(`[0-9]`)
	upperRegex     = regexp.MustCompile(`[A-Z]`)
	lowerRegex     = regexp.MustCompile(`[a-z]`)
	specialRegex   = regexp.MustCompile(`[` + regexp.QuoteMeta(SpecialChars) + `]`)
	sequenceRegex  = regexp.MustCompile(`0123|1234|2345|3456|4567|5678|6789|9876|8765|7654|6543|5432|4321|3210`)
	nonDigitsRegex = regexp.MustCompile(`[^0-9]`)
)

// OwnerPII is the personal data of the password owner.
type OwnerPII struct {
	Email       string
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Phone       string
	CPF         string
}

// fields returns the normalized PII values in check order.
func (o OwnerPII) fields() []struct{ name, value string } {
	var dob string
	if o.DateOfBirth != nil {
		dob = o.DateOfBirth.Format("02012006")
	}
	return []struct{ name, value string }{
		{FieldDateOfBirth, dob},
		{FieldPhone, nonDigitsRegex.ReplaceAllString(o.Phone, "")},
		{FieldEmail, o.Email},
		{FieldCPF, nonDigitsRegex.ReplaceAllString(o.CPF, "")},
		{FieldFirstName, o.FirstName},
		{FieldLastName, o.LastName},
	}
}

// ValidatePassword checks password against the strength policy and the
// owner's personal data. Checks run in a fixed order and stop at the first
// failure, which is returned as PASSWORD_VALIDATION_FAILED carrying the rule.
func ValidatePassword(password, confirmation string, pii OwnerPII) error {
	switch {
	case password != confirmation:
		return violation(RuleMismatch, "", "Password and password confirmation do not match")
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return violation(RuleMinLength, "", "Password must have at least 8 characters")
	case !letterRegex.MatchString(password) || !digitRegex.MatchString(password):
		return violation(RuleLettersAndDigits, "", "Password must include both letters and numbers")
	case hasRepeatedRun(password):
		return violation(RuleRepeatedChars, "", "Password must not contain a sequence of more than 3 repeated characters")
	case !upperRegex.MatchString(password):
		return violation(RuleUppercase, "", "Password must have at least one uppercase letter")
	case !lowerRegex.MatchString(password):
		return violation(RuleLowercase, "", "Password must have at least one lowercase letter")
	case !specialRegex.MatchString(password):
		return violation(RuleSpecialChar, "", "Password must have at least one special character")
	case sequenceRegex.MatchString(password):
		return violation(RuleNumericSequence, "", "Password must not have numbers in ascending or descending sequence greater than 3 characters")
	}

	lowered := strings.ToLower(password)
	for _, f := range pii.fields() {
		if containsWindow(lowered, strings.ToLower(f.value)) {
			return violation(RulePersonalData, f.name, "Password must not contain variations of user ("+f.name+")")
		}
	}
	return nil
}

func violation(rule Rule, field, msg string) error {
	b := oops.Code(CodePasswordInvalid).With(ctxRule, rule)
	if field != "" {
		b = b.With(ctxField, field)
	}
	return b.Errorf("%s", msg)
}

// hasRepeatedRun reports a word character ([A-Za-z0-9_]) repeated more than
// maxRepeatRun times in a row.
func hasRepeatedRun(s string) bool {
	run := 0
	var prev rune = -1
	for _, r := range s {
		if r == prev && isWordChar(r) {
			run++
			if run > maxRepeatRun {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

func isWordChar(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

// containsWindow reports whether any piiWindow-rune window of value occurs in s.
func containsWindow(s, value string) bool {
	runes := []rune(value)
	for i := 0; i+piiWindow <= len(runes); i++ {
		if strings.Contains(s, string(runes[i:i+piiWindow])) {
			return true
		}
	}
	return false
}
