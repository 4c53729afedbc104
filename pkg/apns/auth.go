package apns

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/pkcs12"
)

// Authenticator supplies per-request credentials.
type Authenticator interface {
	// Authorize adds credentials to the outgoing request headers.
	Authorize(header http.Header) error
	// Invalidate marks cached credentials stale and reports whether the next
	// Authorize call will present different ones.
	Invalidate() bool
}

// CertificateIdentity locates the client certificate used for mutual TLS.
// When Passphrase is set CertPath is read as a PKCS#12 bundle; otherwise
// CertPath and KeyPath are PEM files (KeyPath defaults to CertPath).
type CertificateIdentity struct {
	CertPath   string
	KeyPath    string
	Passphrase string
	CAPath     string
}

// CertificateAuthenticator leaves authentication to the TLS session.
type CertificateAuthenticator struct {
	identity CertificateIdentity
}

func NewCertificateAuthenticator(identity CertificateIdentity) *CertificateAuthenticator {
	return &CertificateAuthenticator{identity: identity}
}

func (a *CertificateAuthenticator) Authorize(http.Header) error { return nil }
func (a *CertificateAuthenticator) Invalidate() bool           { return false }

// TLSConfig loads the identity for the transport.
func (a *CertificateAuthenticator) TLSConfig() (*tls.Config, error) {
	return LoadCertificate(a.identity)
}

// LoadCertificate builds a client TLS configuration from identity.
func LoadCertificate(identity CertificateIdentity) (*tls.Config, error) {
	if identity.CertPath == "" {
		return nil, errors.New("apns: certificate path is required")
	}

	var cert tls.Certificate
	if identity.Passphrase != "" {
		data, err := os.ReadFile(identity.CertPath)
		if err != nil {
			return nil, fmt.Errorf("read certificate: %w", err)
		}
		key, leaf, err := pkcs12.Decode(data, identity.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("decode pkcs12 certificate: %w", err)
		}
		cert = tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}
	} else {
		keyPath := identity.KeyPath
		if keyPath == "" {
			keyPath = identity.CertPath
		}
		var err error
		cert, err = tls.LoadX509KeyPair(identity.CertPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load certificate: %w", err)
		}
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if identity.CAPath != "" {
		pem, err := os.ReadFile(identity.CAPath)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %s holds no certificates", identity.CAPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// SignatureEncoding selects how the ES256 signature is serialised.
type SignatureEncoding string

const (
	SignatureDER  SignatureEncoding = "der"
	SignatureJOSE SignatureEncoding = "jose"
)

// DefaultTokenMaxAge keeps tokens inside the gateway's one hour window.
const DefaultTokenMaxAge = 50 * time.Minute

// TokenConfig configures bearer token authentication.
type TokenConfig struct {
	TeamID string
	KeyID  string
	Key    *ecdsa.PrivateKey
	// Signer overrides Key for DER signatures.
	Signer   Signer
	Encoding SignatureEncoding
	// MaxAge forces regeneration of older tokens. Negative disables it.
	MaxAge time.Duration
	Now    func() time.Time
}

// TokenAuthenticator issues signed bearer tokens and reuses the last one
// until it is invalidated or older than MaxAge. Safe for concurrent use.
type TokenAuthenticator struct {
	teamID string
	keyID  string
	method jwt.SigningMethod
	key    interface{}
	maxAge time.Duration
	now    func() time.Time

	mu           sync.Mutex
	token        string
	issuedAt     time.Time
	needsRefresh bool
	generated    int
}

func NewTokenAuthenticator(cfg TokenConfig) (*TokenAuthenticator, error) {
	if cfg.TeamID == "" || cfg.KeyID == "" {
		return nil, errors.New("apns: team id and key id are required")
	}

	a := &TokenAuthenticator{
		teamID:       cfg.TeamID,
		keyID:        cfg.KeyID,
		maxAge:       cfg.MaxAge,
		now:          cfg.Now,
		needsRefresh: true,
	}
	if a.maxAge == 0 {
		a.maxAge = DefaultTokenMaxAge
	}
	if a.now == nil {
		a.now = time.Now
	}

	switch cfg.Encoding {
	case SignatureJOSE:
		if cfg.Key == nil {
			return nil, errors.New("apns: jose signatures require a private key")
		}
		a.method = jwt.SigningMethodES256
		a.key = cfg.Key
	case SignatureDER, "":
		signer := cfg.Signer
		if signer == nil {
			if cfg.Key == nil {
				return nil, errors.New("apns: private key or signer is required")
			}
			signer = NewECDSASigner(cfg.Key)
		}
		a.method = derES256
		a.key = signer
	default:
		return nil, fmt.Errorf("apns: unknown signature encoding %q", cfg.Encoding)
	}
	return a, nil
}

// Token returns the cached token or signs a new one.
func (a *TokenAuthenticator) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.token != "" && !a.needsRefresh && (a.maxAge < 0 || now.Sub(a.issuedAt) < a.maxAge) {
		return a.token, nil
	}

	token := jwt.NewWithClaims(a.method, jwt.MapClaims{
		"iss": a.teamID,
		"iat": now.Unix(),
	})
	token.Header = map[string]interface{}{
		"alg": a.method.Alg(),
		"kid": a.keyID,
	}
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("apns: sign provider token: %w", err)
	}

	a.token = signed
	a.issuedAt = now
	a.needsRefresh = false
	a.generated++
	return signed, nil
}

func (a *TokenAuthenticator) Authorize(header http.Header) error {
	token, err := a.Token()
	if err != nil {
		return err
	}
	header.Set("authorization", "bearer "+token)
	return nil
}

func (a *TokenAuthenticator) Invalidate() bool {
	a.mu.Lock()
	a.needsRefresh = true
	a.mu.Unlock()
	return true
}

// Generated counts signing operations.
func (a *TokenAuthenticator) Generated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generated
}
