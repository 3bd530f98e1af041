package adsync

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// ExistsFunc reports whether an account name is already used in the directory.
type ExistsFunc func(ctx context.Context, accountName string) (bool, error)

// OwnerFunc returns the unique ID of the account using accountName, if any.
type OwnerFunc func(ctx context.Context, accountName string) (uniqueId string, found bool, err error)

func stripAccountName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '\'' {
			return -1
		}
		return r
	}, name)
}

func firstRunes(s string, n int) string {
	var i = 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// AllocateUsername returns the first free candidate of surname followed by the
// first n characters of givenName, n = 1, 2, ... Whitespace, hyphens and
// apostrophes are removed from every candidate. Allocation fails with
// ErrNoUsernameAvailable once the full surname+givenName candidate is taken.
func AllocateUsername(ctx context.Context, givenName string, surname string, exists ExistsFunc) (accountName string, err error) {
	var full = stripAccountName(surname + givenName)
	if len(full) == 0 {
		err = fmt.Errorf("%w: given name and surname are empty", ErrNoUsernameAvailable)
		return
	}
	for n := 1; ; n++ {
		var candidate = stripAccountName(surname + firstRunes(givenName, n))
		var taken bool
		if taken, err = exists(ctx, candidate); err != nil {
			return
		}
		if !taken {
			accountName = candidate
			return
		}
		if candidate == full {
			err = fmt.Errorf("%w: \"%s\" is taken", ErrNoUsernameAvailable, candidate)
			return
		}
	}
}

// RecheckUsername keeps current when it is free or already belongs to the person
// identified by ownerUniqueId. Otherwise a new name is allocated; names held by
// the same person count as free.
func RecheckUsername(ctx context.Context, current string, ownerUniqueId string, givenName string, surname string, owner OwnerFunc) (accountName string, err error) {
	var takenByOther = func(ctx context.Context, name string) (taken bool, err error) {
		var uid string
		var found bool
		if uid, found, err = owner(ctx, name); err != nil {
			return
		}
		taken = found && uid != ownerUniqueId
		return
	}

	if len(current) > 0 {
		var taken bool
		if taken, err = takenByOther(ctx, current); err != nil {
			return
		}
		if !taken {
			accountName = current
			return
		}
	}
	return AllocateUsername(ctx, givenName, surname, takenByOther)
}
