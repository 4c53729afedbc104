package config

import (
	"crypto/tls"
	"fmt"

	"github.com/CyberwizD/Distributed-Notification-System/services/apns_service/pkg/apns"
)

// BaseURL returns the gateway address for the configured environment.
func (a APNSConfig) BaseURL() string {
	if a.Environment == EnvironmentProduction {
		return apns.Production
	}
	return apns.Development
}

// Authenticator builds the configured authentication strategy together with
// the TLS configuration the transport must use.
func (a APNSConfig) Authenticator() (apns.Authenticator, *tls.Config, error) {
	if err := a.Validate(); err != nil {
		return nil, nil, err
	}

	if a.AuthMethod == AuthCertificate {
		auth := apns.NewCertificateAuthenticator(apns.CertificateIdentity{
			CertPath:   a.CertPath,
			KeyPath:    a.CertKeyPath,
			Passphrase: a.CertPassphrase,
			CAPath:     a.CAPath,
		})
		tlsConfig, err := auth.TLSConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("load client certificate: %w", err)
		}
		return auth, tlsConfig, nil
	}

	key, err := apns.LoadSigningKey(a.KeyPath)
	if err != nil {
		return nil, nil, err
	}
	auth, err := apns.NewTokenAuthenticator(apns.TokenConfig{
		TeamID:   a.TeamID,
		KeyID:    a.KeyID,
		Key:      key,
		Encoding: apns.SignatureEncoding(a.SignatureEncoding),
		MaxAge:   a.TokenMaxAge,
	})
	if err != nil {
		return nil, nil, err
	}
	return auth, nil, nil
}
