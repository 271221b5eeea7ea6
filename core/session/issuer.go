package session

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/principal"
)

// Pair is what a login, registration or refresh hands back to the client.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer mints signed access/refresh pairs. Nothing is persisted server side.
type Issuer struct {
	codec      *codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(conf *core.Config, opts ...Option) (*Issuer, error) {
	c, err := newCodec(conf, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	return &Issuer{
		codec:      c,
		accessTTL:  conf.AccessTokenTTL,
		refreshTTL: conf.RefreshTokenTTL,
	}, nil
}

// IssueStaffSession mints a pair whose tokens carry no "type" claim.
func (iss *Issuer) IssueStaffSession(staff principal.Staff) (Pair, error) {
	return iss.issue(principal.KindStaff, staff.ID)
}

// IssueStudentSession mints a pair whose tokens carry "type": "student".
func (iss *Issuer) IssueStudentSession(student principal.Student) (Pair, error) {
	return iss.issue(principal.KindStudent, student.ID)
}

// Refresh checks a refresh token (signature, expiry and use only) and mints a new pair
// for the same subject and kind. Access tokens are rejected with ErrInvalidToken.
func (iss *Issuer) Refresh(refreshToken string) (Pair, error) {
	claims, err := iss.codec.decode(refreshToken, UseRefresh)
	if err != nil {
		return Pair{}, err
	}
	return iss.issue(claims.Kind(), claims.Subject())
}

func (iss *Issuer) issue(kind principal.Kind, subject string) (Pair, error) {
	if subject == "" {
		return Pair{}, errors.New("issuing session: empty subject")
	}
	access, err := iss.codec.mint(kind, subject, UseAccess, iss.accessTTL)
	if err != nil {
		return Pair{}, errors.Wrap(err, "minting access token")
	}
	refresh, err := iss.codec.mint(kind, subject, UseRefresh, iss.refreshTTL)
	if err != nil {
		return Pair{}, errors.Wrap(err, "minting refresh token")
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}
