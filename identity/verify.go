package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const leeway = 30 * time.Second

// Verifier validates ID tokens against the provider's JWKS.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// NewVerifier builds a Verifier for tokens issued by issuer to audience.
// If jwksURL is empty the issuer's well-known JWKS location is used.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = normalizeIssuer(issuer)
	if issuer == "" {
		return nil, errors.New("identity: issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("identity: audience must be set")
	}
	if jwksURL == "" {
		jwksURL = issuer + ".well-known/jwks.json"
	}
	kf, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("identity: JWKS: %w", err)
	}
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  kf,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithLeeway(leeway),
			jwt.WithExpirationRequired(),
			jwt.WithValidMethods([]string{
				jwt.SigningMethodRS256.Name,
				jwt.SigningMethodRS384.Name,
				jwt.SigningMethodRS512.Name,
			}),
		),
	}, nil
}

// Verify parses raw and returns the user it identifies.
func (v *Verifier) Verify(raw string) (*User, error) {
	token, err := v.parser.Parse(raw, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("identity: invalid token claims")
	}
	u := &User{
		Subject: readString(claims, "sub"),
		Email:   readString(claims, "email"),
		Name:    readString(claims, "name"),
		Picture: readString(claims, "picture"),
	}
	if u.Subject == "" {
		return nil, errors.New("identity: token missing sub")
	}
	return u, nil
}

func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}

func readString(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
