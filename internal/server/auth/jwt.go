// Package auth issues and verifies ES256 session tokens.
package auth

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const signingMethod = "ES256"

// Claims is the session token claim set. The subject is the account email;
// Version is the account token_version at issuance.
type Claims struct {
	jwt.RegisteredClaims
	Org     string `json:"org,omitempty"`
	Version int64  `json:"ver"`
}

// Codec signs with a private key and verifies with the matching public
// key. It holds no mutable state and is safe for concurrent use.
type Codec struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	org        string
	now        func() time.Time
}

func NewCodec(privateKey *ecdsa.PrivateKey, publicKey *ecdsa.PublicKey, org string) *Codec {
	return &Codec{privateKey: privateKey, publicKey: publicKey, org: org, now: time.Now}
}

// WithClock returns a copy of c reading time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Codec) Issue(subject string, version int64, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Org:     c.org,
		Version: version,
	})

	s, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp.Truncate(time.Second), nil
}

// Verify checks signature, algorithm, expiration and subject. A token
// whose exp equals the current second is still accepted.
func (c *Codec) Verify(tokenString, expectedSubject string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.publicKey, nil },
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if claims.ExpiresAt == nil {
		return nil, common.ErrInvalidToken
	}
	if c.now().Unix() > claims.ExpiresAt.Unix() {
		return nil, common.ErrTokenExpired
	}
	if claims.Subject != expectedSubject {
		return nil, common.ErrSubjectMismatch
	}

	return claims, nil
}
