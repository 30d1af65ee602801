package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"mercator-hq/throttle/pkg/config"
)

// NewServerConfig builds the server's TLS configuration. When reloader is
// non-nil certificates are served from it; otherwise the certificate files
// are loaded once. It returns nil when TLS is disabled.
func NewServerConfig(cfg config.TLSConfig, reloader *CertificateReloader) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	// #nosec G402 - MinVersion is validated (TLS 1.0/1.1 rejected)
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
	}

	suites, err := parseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, err
	}
	tlsConfig.CipherSuites = suites

	if reloader != nil {
		tlsConfig.GetCertificate = reloader.GetCertificateFunc()
	} else {
		cert, err := loadCertificate(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{*cert}
	}

	if cfg.ClientCAFile != "" {
		if err := configureClientAuth(tlsConfig, cfg); err != nil {
			return nil, fmt.Errorf("failed to configure mTLS: %w", err)
		}
	}

	return tlsConfig, nil
}

// loadCertificate loads and validates a key pair.
func loadCertificate(certFile, keyFile string) (*tls.Certificate, error) {
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("cert_file and key_file are required when TLS is enabled")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if err := ValidateCertificate(&cert); err != nil {
		return nil, fmt.Errorf("certificate validation failed: %w", err)
	}
	return &cert, nil
}

// parseTLSVersion maps "1.2" to TLS 1.2; anything else is TLS 1.3.
func parseTLSVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}

// parseCipherSuites resolves cipher suite names. An empty list keeps Go's
// defaults.
func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}

	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := cipherSuiteMap[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		suites = append(suites, id)
	}
	return suites, nil
}

// cipherSuiteMap lists the accepted TLS 1.2 cipher suites. TLS 1.3 suites
// are not configurable in crypto/tls.
var cipherSuiteMap = map[string]uint16{
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// configureClientAuth loads the client CA pool and sets the client
// certificate policy.
func configureClientAuth(tlsConfig *tls.Config, cfg config.TLSConfig) error {
	caCert, err := os.ReadFile(cfg.ClientCAFile)
	if err != nil {
		return fmt.Errorf("failed to read client CA: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse client CA certificate")
	}

	tlsConfig.ClientCAs = pool
	switch cfg.ClientAuth {
	case "verify_if_given":
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	default:
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return nil
}
