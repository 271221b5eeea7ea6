package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/principal"
)

var signingMethod = jwt.SigningMethodHS256

type (
	options struct {
		now      func() time.Time
		leeway   time.Duration
		denylist Denylist
	}

	Option func(*options)
)

// WithNowFunc sets the clock used to stamp and check token times.
func WithNowFunc(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.leeway = d }
}

// WithDenylist makes the Verifier reject principals listed in d. Ignored by the Issuer.
func WithDenylist(d Denylist) Option {
	return func(o *options) { o.denylist = d }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// codec signs and checks tokens. It is shared by the Issuer and the Verifier.
type codec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

func newCodec(conf *core.Config, o options) (*codec, error) {
	if conf.SecretKey == "" {
		return nil, core.NewConfigurationError("secretKey", "is not set")
	}
	if len(conf.SecretKey) < core.MinSecretLength {
		return nil, core.NewConfigurationError("secretKey", fmt.Sprintf("must be at least %d characters", core.MinSecretLength))
	}
	return &codec{
		secret: []byte(conf.SecretKey),
		issuer: conf.AppName,
		now:    o.now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(conf.AppName),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(o.leeway),
			jwt.WithTimeFunc(o.now),
		),
	}, nil
}

func (c *codec) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(signingMethod, toToken(claims, c.issuer))
	ss, err := token.SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// mint returns a signed token of the given kind and use, valid for ttl.
func (c *codec) mint(kind principal.Kind, subject string, use Use, ttl time.Duration) (string, error) {
	now := c.now()
	claims, err := newClaims(kind, baseClaims{
		subject:   subject,
		use:       use,
		id:        uuid.New().String(),
		issuedAt:  now,
		expiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", err
	}
	return c.sign(claims)
}

// decode checks the signature, expiry and shape of a token, and that it is meant for use.
// It never consults the principal store.
func (c *codec) decode(token string, use Use) (Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	tc := new(tokenClaims)
	if _, err := c.parser.ParseWithClaims(token, tc, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}

	claims, err := fromToken(tc)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Use() != use {
		return nil, errors.Wrap(ErrInvalidToken, errWrongUse.Error())
	}
	return claims, nil
}
