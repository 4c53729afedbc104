package apns

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v4"
)

// Signer produces an ES256 signature over message.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// ECDSASigner signs with a P-256 key and emits DER encoded signatures.
type ECDSASigner struct {
	key *ecdsa.PrivateKey
}

func NewECDSASigner(key *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{key: key}
}

func (s *ECDSASigner) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ecdsa.SignASN1(rand.Reader, s.key, digest[:])
}

// ParseSigningKey reads a PEM encoded EC private key (PKCS#8 .p8 or SEC 1).
func ParseSigningKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// LoadSigningKey reads the provider key file downloaded from the developer portal.
func LoadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	return ParseSigningKey(data)
}

var errSignerKey = errors.New("apns: DER ES256 signing requires a Signer")

// signingMethodDER is ES256 with the signature left in ASN.1 DER form rather
// than the fixed-size r||s form of jwt.SigningMethodES256.
type signingMethodDER struct{}

var derES256 jwt.SigningMethod = signingMethodDER{}

func (signingMethodDER) Alg() string { return "ES256" }

func (signingMethodDER) Sign(signingString string, key interface{}) (string, error) {
	signer, ok := key.(Signer)
	if !ok {
		return "", errSignerKey
	}
	sig, err := signer.Sign([]byte(signingString))
	if err != nil {
		return "", err
	}
	return jwt.EncodeSegment(sig), nil
}

func (signingMethodDER) Verify(signingString, signature string, key interface{}) error {
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	sig, err := jwt.DecodeSegment(signature)
	if err != nil {
		return err
	}
	digest := sha256.Sum256([]byte(signingString))
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return jwt.ErrECDSAVerification
	}
	return nil
}
