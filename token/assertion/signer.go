package assertion

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs client assertion claims.
type Signer interface {
	Sign(claims jwt.MapClaims) (string, error)
	SigningMethod() jwt.SigningMethod
}

var (
	_ Signer = (*HMACSigner)(nil)
	_ Signer = (*KeyPairSigner)(nil)
)

// HMACSigner signs with the client secret (client_secret_jwt).
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign assertion with HMAC")
	}
	return signedToken, nil
}

func (h *HMACSigner) SigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner signs with an RSA or ECDSA private key (private_key_jwt).
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.SigningMethod(), claims)
	if a.keyPair.KeyID != "" {
		token.Header["kid"] = a.keyPair.KeyID
	}

	signedToken, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign assertion with asymmetric key")
	}
	return signedToken, nil
}

func (a *KeyPairSigner) SigningMethod() jwt.SigningMethod {
	return a.keyPair.SigningMethod()
}
