package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trezcool/academia/core/principal"
)

// Use tells access tokens and refresh tokens apart.
type Use string

const (
	UseAccess  Use = "access"
	UseRefresh Use = "refresh"

	studentType = "student"
)

// tokenClaims is the JSON shape of every session token.
// Staff tokens carry no "type"; student tokens carry "type": "student".
type tokenClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type,omitempty"`
	Use  Use    `json:"use"`
}

// Claims is either StaffClaims or StudentClaims.
type Claims interface {
	Subject() string
	Kind() principal.Kind
	Use() Use
	ID() string
	IssuedAt() time.Time
	ExpiresAt() time.Time

	sessionClaims()
}

var (
	_ Claims = StaffClaims{}
	_ Claims = StudentClaims{}
)

type baseClaims struct {
	subject   string
	use       Use
	id        string
	issuedAt  time.Time
	expiresAt time.Time
}

func (c baseClaims) Subject() string      { return c.subject }
func (c baseClaims) Use() Use             { return c.use }
func (c baseClaims) ID() string           { return c.id }
func (c baseClaims) IssuedAt() time.Time  { return c.issuedAt }
func (c baseClaims) ExpiresAt() time.Time { return c.expiresAt }

type StaffClaims struct{ baseClaims }

func (StaffClaims) Kind() principal.Kind { return principal.KindStaff }
func (StaffClaims) sessionClaims()       {}

type StudentClaims struct{ baseClaims }

func (StudentClaims) Kind() principal.Kind { return principal.KindStudent }
func (StudentClaims) sessionClaims()       {}

// fromToken decodes the wire claims into the closed Claims union.
func fromToken(tc *tokenClaims) (Claims, error) {
	if tc.Subject == "" || tc.IssuedAt == nil || tc.ExpiresAt == nil {
		return nil, errMissingClaims
	}
	if tc.Use != UseAccess && tc.Use != UseRefresh {
		return nil, errUnknownUse
	}
	base := baseClaims{
		subject:   tc.Subject,
		use:       tc.Use,
		id:        tc.RegisteredClaims.ID,
		issuedAt:  tc.IssuedAt.Time,
		expiresAt: tc.ExpiresAt.Time,
	}
	switch tc.Type {
	case "":
		return StaffClaims{base}, nil
	case studentType:
		return StudentClaims{base}, nil
	default:
		return nil, errUnknownType
	}
}

// toToken encodes the claims for signing.
func toToken(c Claims, issuer string) *tokenClaims {
	tc := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.Subject(),
			ID:        c.ID(),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt()),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt()),
		},
		Use: c.Use(),
	}
	switch c.(type) {
	case StaffClaims:
	case StudentClaims:
		tc.Type = studentType
	}
	return tc
}

func newClaims(kind principal.Kind, base baseClaims) (Claims, error) {
	switch kind {
	case principal.KindStaff:
		return StaffClaims{base}, nil
	case principal.KindStudent:
		return StudentClaims{base}, nil
	default:
		return nil, errUnknownType
	}
}
