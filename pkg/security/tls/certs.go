package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// ExpiryWarning is how close to expiry a certificate is reported as
// expiring soon.
const ExpiryWarning = 30 * 24 * time.Hour

// ValidateCertificate checks that the leaf of cert is currently valid.
func ValidateCertificate(cert *tls.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if len(cert.Certificate) == 0 {
		return fmt.Errorf("certificate chain is empty")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	return ValidateX509Certificate(leaf, time.Now())
}

// ValidateX509Certificate checks that cert is valid at now.
func ValidateX509Certificate(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// CertificateInfo is a human-readable summary of a certificate.
type CertificateInfo struct {
	Subject     string    `json:"subject"`
	Issuer      string    `json:"issuer"`
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`
	DNSNames    []string  `json:"dns_names,omitempty"`
	IPAddresses []string  `json:"ip_addresses,omitempty"`
}

// ExpiresWithin reports whether the certificate expires within d of now.
func (i *CertificateInfo) ExpiresWithin(now time.Time, d time.Duration) bool {
	return i.NotAfter.Sub(now) < d
}

// ExtractCertificateInfo summarizes cert.
func ExtractCertificateInfo(cert *x509.Certificate) *CertificateInfo {
	info := &CertificateInfo{
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		DNSNames:  cert.DNSNames,
	}
	for _, ip := range cert.IPAddresses {
		info.IPAddresses = append(info.IPAddresses, ip.String())
	}
	return info
}

// ReadCertificateInfo parses the first certificate in a PEM file.
func ReadCertificateInfo(certFile string) (*CertificateInfo, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no PEM certificate found in %s", certFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return ExtractCertificateInfo(cert), nil
}
