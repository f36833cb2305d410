// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"crypto/rand"
	"math/big"

	"github.com/samber/oops"
)

// GeneratedPasswordLength is the length of provisioned passwords.
const GeneratedPasswordLength = 16

const (
	lowerLetters  = "abcdefghijklmnopqrstuvwxyz"
	upperLetters  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits        = "0123456789"
	extraSpecials = "_-+=<>?/{}~"
	allChars      = lowerLetters + upperLetters + digits + SpecialChars + extraSpecials

	maxGenerateTries = 32
)

// GeneratePassword returns a random password of the given length that passes
// ValidatePassword for pii. It holds at least one lower case letter, upper
// case letter, digit and policy special character.
func GeneratePassword(length int, pii OwnerPII) (string, error) {
	if length < MinPasswordLength {
		return "", oops.Code("PASSWORD_GENERATE_FAILED").
			With("length", length).
			Errorf("generated passwords must have at least %d characters", MinPasswordLength)
	}
	for range maxGenerateTries {
		candidate, err := randomPassword(length)
		if err != nil {
			return "", err
		}
		if ValidatePassword(candidate, candidate, pii) == nil {
			return candidate, nil
		}
	}
	return "", oops.Code("PASSWORD_GENERATE_FAILED").
		With("tries", maxGenerateTries).
		Errorf("could not generate a password satisfying the policy")
}

func randomPassword(length int) (string, error) {
	buf := make([]byte, 0, length)
	for _, set := range []string{lowerLetters, upperLetters, digits, SpecialChars} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := pick(allChars)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	// Fisher-Yates
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randIndex(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

func pick(set string) (byte, error) {
	i, err := randIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, oops.Code("PASSWORD_GENERATE_FAILED").Wrap(err)
	}
	return int(v.Int64()), nil
}
