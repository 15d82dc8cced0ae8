package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Options struct {
	// PublicKeyPEM enables RS256 verification.
	PublicKeyPEM string
	// Secret enables HS256 verification if no public key is configured.
	Secret   string
	Issuer   string
	Audience string
}

// Verifier verifies bearer ID tokens.
type Verifier struct {
	key    any
	method string
	opts   Options

	now func() time.Time
}

func NewVerifier(opts Options) (*Verifier, error) {
	v := &Verifier{
		opts: opts,
		now:  time.Now,
	}

	switch {
	case opts.PublicKeyPEM != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(opts.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}

		v.key = key
		v.method = jwt.SigningMethodRS256.Alg()

	case opts.Secret != "":
		v.key = []byte(opts.Secret)
		v.method = jwt.SigningMethodHS256.Alg()

	default:
		return nil, errors.New("either a public key or a secret is required")
	}

	return v, nil
}

func (v *Verifier) Verify(token string) (User, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}

	if v.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.opts.Audience))
	}

	var claims Claims
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:             claims.Subject,
		Email:          claims.Email,
		OrganisationID: claims.OrganisationID,
		Role:           claims.Role,
	}
	if user.ID == "" {
		user.ID = claims.UserID
	}

	if user.ID == "" {
		return User{}, errors.New("token does not identify a user")
	}

	if user.OrganisationID == "" && !user.IsAdmin() {
		return User{}, errors.New("token is not bound to an organisation")
	}

	return user, nil
}
