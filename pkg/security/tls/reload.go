package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// CertificateReloader serves a certificate and reloads it when its files
// change on disk.
type CertificateReloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewCertificateReloader creates a reloader that checks the files every
// interval.
func NewCertificateReloader(certFile, keyFile string, interval time.Duration) *CertificateReloader {
	return &CertificateReloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		logger:   slog.Default().With("component", "security.tls"),
	}
}

// Start loads the certificate and, for a positive interval, keeps checking
// for changes until ctx is done.
func (r *CertificateReloader) Start(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}
	r.logCertificateInfo()

	if r.interval > 0 {
		go r.reloadLoop(ctx)
	}
	return nil
}

func (r *CertificateReloader) reloadLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Check()
		case <-ctx.Done():
			return
		}
	}
}

// Check reloads the certificate if either file changed since the last load.
// It reports whether a new certificate is now in use. A failed reload is
// logged and the previous certificate is kept.
func (r *CertificateReloader) Check() bool {
	if !r.needsReload() {
		return false
	}
	if err := r.reload(); err != nil {
		r.logger.Error("failed to reload certificate, keeping previous",
			"error", err,
			"cert_file", r.certFile,
			"key_file", r.keyFile,
		)
		return false
	}
	r.logger.Info("certificate reloaded", "cert_file", r.certFile)
	r.logCertificateInfo()
	return true
}

// needsReload reports whether either file is newer than the loaded pair.
func (r *CertificateReloader) needsReload() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

// reload loads and validates the key pair and swaps it in.
func (r *CertificateReloader) reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("certificate file: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}

	cert, err := loadCertificate(r.certFile, r.keyFile)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()
	return nil
}

// GetCertificate returns the current certificate, or nil before Start.
func (r *CertificateReloader) GetCertificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificateFunc adapts the reloader to tls.Config.GetCertificate.
func (r *CertificateReloader) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert := r.GetCertificate()
		if cert == nil {
			return nil, fmt.Errorf("no certificate loaded")
		}
		return cert, nil
	}
}

func (r *CertificateReloader) logCertificateInfo() {
	cert := r.GetCertificate()
	if cert == nil || len(cert.Certificate) == 0 {
		return
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return
	}

	info := ExtractCertificateInfo(leaf)
	args := []any{
		"subject", leaf.Subject.CommonName,
		"issuer", leaf.Issuer.CommonName,
		"expires_at", info.NotAfter.Format(time.RFC3339),
	}
	if info.ExpiresWithin(time.Now(), ExpiryWarning) {
		r.logger.Warn("certificate expiring soon", args...)
		return
	}
	r.logger.Info("certificate loaded", args...)
}
