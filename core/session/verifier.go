package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/principal"
)

// Denylist lists principals whose sessions must be refused before their tokens expire.
type Denylist interface {
	IsDenied(ctx context.Context, principalID string) (bool, error)
}

// Verifier resolves a bearer token into an access.Identity.
//
// A deactivated principal is refused on its next verification only; tokens already handed
// out stay cryptographically valid until they expire. Configure a Denylist to close that
// window immediately.
type Verifier struct {
	codec    *codec
	store    principal.Store
	denylist Denylist
}

func NewVerifier(conf *core.Config, store principal.Store, opts ...Option) (*Verifier, error) {
	o := buildOptions(opts)
	c, err := newCodec(conf, o)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		codec:    c,
		store:    store,
		denylist: o.denylist,
	}, nil
}

// Decode runs the token checks alone (signature, expiry, shape, access use).
func (v *Verifier) Decode(token string) (Claims, error) {
	return v.codec.decode(token, UseAccess)
}

// Verify checks an access token presented on an endpoint of the given audience and
// loads the live principal it names. Every failure wraps one of the rejection reasons,
// except store failures which are returned as they are.
func (v *Verifier) Verify(ctx context.Context, audience principal.Kind, token string) (access.Identity, error) {
	claims, err := v.Decode(token)
	if err != nil {
		return access.Identity{}, err
	}

	var kind principal.Kind
	switch c := claims.(type) {
	case StaffClaims:
		kind = c.Kind()
	case StudentClaims:
		kind = c.Kind()
	default:
		return access.Identity{}, errors.Wrap(ErrInvalidToken, errUnknownType.Error())
	}
	if kind != audience {
		return access.Identity{}, ErrWrongAudience
	}

	if v.denylist != nil {
		denied, err := v.denylist.IsDenied(ctx, claims.Subject())
		if err != nil {
			return access.Identity{}, errors.Wrap(err, "checking denylist")
		}
		if denied {
			return access.Identity{}, ErrAccountDeactivated
		}
	}

	p, err := v.store.FindPrincipalByID(ctx, kind, claims.Subject())
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return access.Identity{}, ErrPrincipalNotFound
		}
		return access.Identity{}, errors.Wrap(err, "finding principal")
	}
	if !p.Active() {
		return access.Identity{}, ErrAccountDeactivated
	}
	return access.NewIdentity(p), nil
}
