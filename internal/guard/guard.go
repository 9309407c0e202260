// Package guard holds the single authorization primitive used by every
// mutating ledger call: the caller must be exactly the expected principal.
// There are no roles, delegation or expiry.
package guard

import (
	"fmt"

	"github.com/punchamoorthee/decoledger/internal/domain"
)

// RequireCallerIs returns domain.ErrNotAuthorized unless caller equals
// expected. An unset expected principal never matches.
func RequireCallerIs(caller, expected domain.AccountID) error {
	if expected.IsZero() || caller != expected {
		return fmt.Errorf("%w: caller %q is not %q", domain.ErrNotAuthorized, caller, expected)
	}
	return nil
}
