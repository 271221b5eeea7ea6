package session

import (
	"errors"

	"github.com/trezcool/academia/core/principal"
)

// Rejection reasons. Every verification failure wraps exactly one of them.
var (
	ErrMissingToken       = errors.New("missing bearer token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpired            = errors.New("token expired")
	ErrWrongAudience      = errors.New("token not valid for this endpoint")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrAccountDeactivated = principal.ErrAccountDeactivated
)

var (
	errMissingClaims = errors.New("missing required claims")
	errUnknownUse    = errors.New("unknown token use")
	errUnknownType   = errors.New("unknown principal type")
	errWrongUse      = errors.New("token used for the wrong purpose")
)

// Reason returns the rejection reason wrapped by err, or nil.
func Reason(err error) error {
	for _, reason := range []error{
		ErrMissingToken,
		ErrInvalidToken,
		ErrExpired,
		ErrWrongAudience,
		ErrPrincipalNotFound,
		ErrAccountDeactivated,
	} {
		if errors.Is(err, reason) {
			return reason
		}
	}
	return nil
}
