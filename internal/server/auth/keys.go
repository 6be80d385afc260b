package auth

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// LoadKeys reads the PEM encoded signing and verification keys. SEC1 and
// PKCS#8 private keys and PKIX public keys are accepted.
func LoadKeys(privatePath, publicPath string) (*ecdsa.PrivateKey, *ecdsa.PublicKey, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key: %w", err)
	}
	priv, err := jwt.ParseECPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key %s: %w", privatePath, err)
	}

	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := jwt.ParseECPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse public key %s: %w", publicPath, err)
	}

	return priv, pub, nil
}
