package adsync

import (
	"github.com/sethvargo/go-password/password"
)

const (
	DefaultPasswordLength = 16
	minPasswordLength     = 8
)

type PasswordPolicy struct {
	Length  int
	Digits  int
	Symbols int
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		Length:  DefaultPasswordLength,
		Digits:  2,
		Symbols: 2,
	}
}

// GeneratePassword returns a random password of letters with at least the
// policy's number of digits and symbols, which satisfies the directory's
// three-of-four character class rule.
func GeneratePassword(policy PasswordPolicy) (string, error) {
	var length = policy.Length
	if length < minPasswordLength {
		length = minPasswordLength
	}
	var digits = max(policy.Digits, 1)
	var symbols = max(policy.Symbols, 1)
	if digits+symbols > length-2 {
		digits = 1
		symbols = 1
	}
	return password.Generate(length, digits, symbols, false, true)
}
