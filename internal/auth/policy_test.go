// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/pkg/errutil"
)

func ownerPII() auth.OwnerPII {
	dob := time.Date(1990, time.March, 7, 0, 0, 0, 0, time.UTC)
	return auth.OwnerPII{
		Email:       "ms@finlife.example",
		FirstName:   "Maria",
		LastName:    "Silva",
		DateOfBirth: &dob,
		Phone:       "+55 (11) 98765-4321",
		CPF:         "529.982.247-25",
	}
}

func TestValidatePassword_Accepts(t *testing.T) {
	require.NoError(t, auth.ValidatePassword("Abc123!@#", "Abc123!@#", ownerPII()))
	require.NoError(t, auth.ValidatePassword("Xy7#Kq9(Lm2", "Xy7#Kq9(Lm2", auth.OwnerPII{}))
}

func TestValidatePassword_Rules(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		rule     auth.Rule
		message  string
	}{
		{"mismatch", "Abc123!@#", "Abc123!@$", auth.RuleMismatch, "Password and password confirmation do not match"},
		{"too short", "Ab1!x", "Ab1!x", auth.RuleMinLength, "at least 8 characters"},
		{"no digits", "Abcdefg!", "Abcdefg!", auth.RuleLettersAndDigits, "both letters and numbers"},
		{"no letters", "13579!@#", "13579!@#", auth.RuleLettersAndDigits, "both letters and numbers"},
		{"four repeated letters", "Abbbb1!xy", "Abbbb1!xy", auth.RuleRepeatedChars, "more than 3 repeated"},
		{"four repeated digits", "Ab99991!x", "Ab99991!x", auth.RuleRepeatedChars, "more than 3 repeated"},
		{"no uppercase", "abc135!@#", "abc135!@#", auth.RuleUppercase, "uppercase"},
		{"no lowercase", "ABC135!@#", "ABC135!@#", auth.RuleLowercase, "lowercase"},
		{"no special", "Abc13579x", "Abc13579x", auth.RuleSpecialChar, "special character"},
		{"special outside set", "Abc13579_", "Abc13579_", auth.RuleSpecialChar, "special character"},
		{"ascending run", "Ab1234!xy", "Ab1234!xy", auth.RuleNumericSequence, "sequence"},
		{"descending run", "Ab!x9876y", "Ab!x9876y", auth.RuleNumericSequence, "sequence"},
		{"run wrapping zero", "Ab!x3210y", "Ab!x3210y", auth.RuleNumericSequence, "sequence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password, tt.confirm, auth.OwnerPII{})
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "PASSWORD_VALIDATION_FAILED")
			assert.Contains(t, err.Error(), tt.message)

			rule, field, ok := auth.ViolatedRule(err)
			require.True(t, ok)
			assert.Equal(t, tt.rule, rule)
			assert.Empty(t, field)
		})
	}
}

func TestValidatePassword_RepeatedSpecialCharsAllowed(t *testing.T) {
	// Only word characters count towards the repetition rule.
	require.NoError(t, auth.ValidatePassword("Ab3!!!!x7", "Ab3!!!!x7", auth.OwnerPII{}))
}

func TestValidatePassword_ShortCircuitsInOrder(t *testing.T) {
	// Fails several rules; the first in order wins.
	err := auth.ValidatePassword("aaaa", "aaaa", auth.OwnerPII{})
	rule, _, ok := auth.ViolatedRule(err)
	require.True(t, ok)
	assert.Equal(t, auth.RuleMinLength, rule)
}

func TestValidatePassword_PersonalData(t *testing.T) {
	tests := []struct {
		name     string
		password string
		field    string
	}{
		{"date of birth", "Xy!07031990", auth.FieldDateOfBirth},
		{"phone digits", "Xy!q1198ab", auth.FieldPhone},
		{"email fragment", "Xy!7FINLIFe", auth.FieldEmail},
		{"cpf digits", "Xy!q9822Ab", auth.FieldCPF},
		{"first name", "Xy!7MARIA.q", auth.FieldFirstName},
		{"last name case-insensitive", "Xy!7sILVa", auth.FieldLastName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password, tt.password, ownerPII())
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "PASSWORD_VALIDATION_FAILED")
			assert.Contains(t, err.Error(), "Password must not contain variations of user ("+tt.field+")")

			rule, field, ok := auth.ViolatedRule(err)
			require.True(t, ok)
			assert.Equal(t, auth.RulePersonalData, rule)
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestValidatePassword_FirstNameChecked(t *testing.T) {
	pii := auth.OwnerPII{FirstName: "Joaquim"}
	err := auth.ValidatePassword("Xy!7quim5", "Xy!7quim5", pii)
	_, field, ok := auth.ViolatedRule(err)
	require.True(t, ok)
	assert.Equal(t, auth.FieldFirstName, field)
}

func TestValidatePassword_ShortPIIIgnored(t *testing.T) {
	pii := auth.OwnerPII{FirstName: "Ana", LastName: "Li"}
	require.NoError(t, auth.ValidatePassword("Ana7!Li9x", "Ana7!Li9x", pii))
}

func TestGeneratePassword(t *testing.T) {
	pii := ownerPII()
	seen := make(map[string]bool)
	for range 20 {
		pw, err := auth.GeneratePassword(auth.GeneratedPasswordLength, pii)
		require.NoError(t, err)
		assert.Len(t, pw, auth.GeneratedPasswordLength)
		assert.True(t, strings.ContainsAny(pw, auth.SpecialChars))
		require.NoError(t, auth.ValidatePassword(pw, pw, pii))
		seen[pw] = true
	}
	assert.Len(t, seen, 20)

	_, err := auth.GeneratePassword(4, pii)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "PASSWORD_GENERATE_FAILED")
}
