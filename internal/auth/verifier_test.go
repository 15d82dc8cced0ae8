package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/golang-jwt/jwt/v5"
)

var testNow = time.Unix(1700000000, 0).UTC()

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %s", err)
	}

	return token
}

func claimsFor(sub, org, role string, exp time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "idp",
			Audience:  jwt.ClaimStrings{"callboard"},
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:          sub + "@example.com",
		OrganisationID: org,
		Role:           role,
	}
}

func TestVerifyHS256(t *testing.T) {
	v, err := NewVerifier(Options{Secret: "secret", Issuer: "idp", Audience: "callboard"})
	if err != nil {
		t.Fatal(err)
	}
	v.now = func() time.Time { return testNow }

	cases := []struct {
		name   string
		token  string
		userID string
		err    bool
	}{
		{
			name:   "valid",
			token:  sign(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor("u1", "org", "", testNow.Add(time.Hour))),
			userID: "u1",
		},
		{
			name:   "expired within leeway",
			token:  sign(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor("u1", "org", "", testNow.Add(-10*time.Second))),
			userID: "u1",
		},
		{
			name:  "expired",
			token: sign(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor("u1", "org", "", testNow.Add(-time.Minute))),
			err:   true,
		},
		{
			name:  "wrong secret",
			token: sign(t, jwt.SigningMethodHS256, []byte("other"), claimsFor("u1", "org", "", testNow.Add(time.Hour))),
			err:   true,
		},
		{
			name:  "no organisation",
			token: sign(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor("u1", "", "", testNow.Add(time.Hour))),
			err:   true,
		},
		{
			name:   "admin without organisation",
			token:  sign(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor("root", "", RoleAdmin, testNow.Add(time.Hour))),
			userID: "root",
		},
		{
			name: "wrong audience",
			token: func() string {
				c := claimsFor("u1", "org", "", testNow.Add(time.Hour))
				c.Audience = jwt.ClaimStrings{"other"}
				return sign(t, jwt.SigningMethodHS256, []byte("secret"), c)
			}(),
			err: true,
		},
		{
			name: "user_id fallback",
			token: func() string {
				c := claimsFor("", "org", "", testNow.Add(time.Hour))
				c.UserID = "legacy"
				return sign(t, jwt.SigningMethodHS256, []byte("secret"), c)
			}(),
			userID: "legacy",
		},
		{
			name:  "garbage",
			token: "not-a-token",
			err:   true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			user, err := v.Verify(c.token)
			if c.err {
				if err == nil {
					t.Errorf("expected an error")
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}

			if user.ID != c.userID {
				t.Errorf("expected user %q, got %q", c.userID, user.ID)
			}
		})
	}
}

func TestVerifyRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewVerifier(Options{PublicKeyPEM: string(pemKey)})
	if err != nil {
		t.Fatal(err)
	}
	v.now = func() time.Time { return testNow }

	token := sign(t, jwt.SigningMethodRS256, key, claimsFor("u1", "org", "staff", testNow.Add(time.Hour)))

	user, err := v.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if user.OrganisationID != "org" || user.Role != "staff" || user.Email != "u1@example.com" {
		t.Errorf("unexpected user %+v", user)
	}

	// HS256 tokens must be rejected when a public key is configured
	hs := sign(t, jwt.SigningMethodHS256, []byte("secret"), claimsFor("u1", "org", "", testNow.Add(time.Hour)))
	if _, err := v.Verify(hs); err == nil {
		t.Errorf("expected HS256 token to be rejected")
	}
}

func TestNewVerifierRequiresKey(t *testing.T) {
	if _, err := NewVerifier(Options{}); err == nil {
		t.Errorf("expected an error")
	}

	if _, err := NewVerifier(Options{PublicKeyPEM: "invalid"}); err == nil {
		t.Errorf("expected an error for an invalid key")
	}
}

func TestOrganisation(t *testing.T) {
	staff := WithUser(context.Background(), User{ID: "u1", OrganisationID: "org"})
	admin := WithUser(context.Background(), User{ID: "root", Role: RoleAdmin})

	cases := []struct {
		name      string
		ctx       context.Context
		requested string
		want      string
		code      connect.Code
	}{
		{"own organisation", staff, "", "org", 0},
		{"explicit own organisation", staff, "org", "org", 0},
		{"foreign organisation", staff, "other", "", connect.CodePermissionDenied},
		{"admin foreign organisation", admin, "other", "other", 0},
		{"admin without selection", admin, "", "", connect.CodeInvalidArgument},
		{"unauthenticated", context.Background(), "org", "", connect.CodeUnauthenticated},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Organisation(c.ctx, c.requested)

			if c.code != 0 {
				var cerr *connect.Error
				if !errors.As(err, &cerr) || cerr.Code() != c.code {
					t.Errorf("expected code %s, got %v", c.code, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}

			if got != c.want {
				t.Errorf("expected %q, got %q", c.want, got)
			}
		})
	}
}
