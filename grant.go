package gatekit

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const grantPurpose = "2fa"

// grantClaims binds a two-factor grant to one account, one session, and
// one credential generation. The generation is the VerifiedAt stamp of
// the credential at issue time, so disabling and re-enabling two-factor
// invalidates every outstanding grant without server-side state.
type grantClaims struct {
	SessionID  string `json:"sid,omitempty"`
	Generation int64  `json:"gen"`
	Purpose    string `json:"purpose"`
	jwt.RegisteredClaims
}

// grantIssuer signs and verifies short-lived two-factor grants with the
// configured HS256 key.
type grantIssuer struct {
	cfg GrantConfig
	now func() time.Time
}

func newGrantIssuer(cfg GrantConfig) *grantIssuer {
	return &grantIssuer{
		cfg: cfg,
		now: time.Now,
	}
}

func (g *grantIssuer) Issue(accountID, sessionToken string, generation int64) (string, error) {
	now := g.now()
	claims := grantClaims{
		SessionID:  sessionToken,
		Generation: generation,
		Purpose:    grantPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGrantInvalid, err)
	}
	return signed, nil
}

// Verify checks the signature, expiry, purpose, and the account, session
// and generation bindings. Any mismatch yields ErrGrantInvalid; callers
// must not distinguish failure causes to the client.
func (g *grantIssuer) Verify(tokenStr, accountID, sessionToken string, generation int64) error {
	if tokenStr == "" {
		return ErrGrantInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	token, err := parser.ParseWithClaims(tokenStr, &grantClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing algorithm")
		}
		return g.cfg.SigningKey, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGrantInvalid, err)
	}

	claims, ok := token.Claims.(*grantClaims)
	if !ok || !token.Valid {
		return ErrGrantInvalid
	}
	if claims.Purpose != grantPurpose {
		return ErrGrantInvalid
	}
	if claims.Subject == "" || claims.Subject != accountID {
		return ErrGrantInvalid
	}
	if claims.SessionID != sessionToken {
		return ErrGrantInvalid
	}
	if claims.Generation != generation {
		return ErrGrantInvalid
	}
	return nil
}
