package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/throttle/pkg/config"
	"mercator-hq/throttle/pkg/security/auth"
)

func withAuth(cfg *config.Config) {
	cfg.Server.Auth = config.AuthConfig{
		Enabled: true,
		Header:  "Authorization",
		Scheme:  "Bearer",
		Keys: []config.APIKeyConfig{
			{Name: "api-only", Key: "sk-api", Limiters: []string{"api"}},
			{Name: "ops", Key: "sk-ops"},
		},
	}
}

func TestHandler_Auth(t *testing.T) {
	env := newTestEnvWithConfig(t, withAuth, nil)

	tests := []struct {
		name       string
		method     string
		target     string
		key        string
		wantStatus int
	}{
		{"list without key", http.MethodGet, "/limits", "", http.StatusUnauthorized},
		{"list with key", http.MethodGet, "/limits", "sk-api", http.StatusOK},
		{"get allowed limiter", http.MethodGet, "/limits/api", "sk-api", http.StatusOK},
		{"get other limiter", http.MethodGet, "/limits/batch", "sk-api", http.StatusForbidden},
		{"acquire allowed limiter", http.MethodPost, "/limits/api/acquire", "sk-api", http.StatusOK},
		{"acquire other limiter", http.MethodPost, "/limits/batch/acquire", "sk-api", http.StatusForbidden},
		{"unrestricted key", http.MethodPost, "/limits/batch/acquire", "sk-ops", http.StatusOK},
		{"unknown key", http.MethodPost, "/limits/api/acquire", "sk-nope", http.StatusUnauthorized},
		{"health stays open", http.MethodGet, "/health/live", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.key != "" {
				req.Header.Set("Authorization", "Bearer "+tt.key)
			}
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_AuthReload(t *testing.T) {
	validator := auth.NewAPIKeyValidator([]*auth.APIKeyInfo{{Name: "old", Key: "sk-old", Enabled: true}})
	env := newTestEnvWithConfig(t, withAuth, func(d *Deps) { d.Auth = validator })
	handler := env.server.Handler()

	get := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/limits", nil)
		req.Header.Set("Authorization", "Bearer "+key)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get("sk-old"); code != http.StatusOK {
		t.Fatalf("Expected validator keys to be used, got %d", code)
	}
	if code := get("sk-ops"); code != http.StatusUnauthorized {
		t.Errorf("Expected config keys to be ignored when a validator is given, got %d", code)
	}

	validator.Replace([]*auth.APIKeyInfo{{Name: "new", Key: "sk-new", Enabled: true}})
	if code := get("sk-old"); code != http.StatusUnauthorized {
		t.Errorf("Expected rotated key to be rejected, got %d", code)
	}
	if code := get("sk-new"); code != http.StatusOK {
		t.Errorf("Expected new key to be accepted, got %d", code)
	}
}

func TestNewServer_AuthMissingEnv(t *testing.T) {
	env := newTestEnv(t, nil)
	cfg := *env.cfg
	cfg.Server.Auth = config.AuthConfig{
		Enabled: true,
		Header:  "Authorization",
		Keys:    []config.APIKeyConfig{{Name: "env", KeyEnv: "THROTTLE_SERVER_TEST_UNSET"}},
	}

	if _, err := NewServer(&cfg, Deps{Manager: env.manager}); err == nil {
		t.Error("Expected error for an unset key_env")
	}
}

func TestServer_StartTLS(t *testing.T) {
	certFile, keyFile := writeServerCert(t, t.TempDir())
	env := newTestEnvWithConfig(t, func(cfg *config.Config) {
		cfg.Server.TLS.Enabled = true
		cfg.Server.TLS.CertFile = certFile
		cfg.Server.TLS.KeyFile = keyFile
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for env.server.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	pool := x509.NewCertPool()
	caPEM, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatal(err)
	}
	pool.AppendCertsFromPEM(caPEM)
	client := &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS13}},
	}

	resp, err := client.Get("https://" + env.server.Addr() + "/health/live")
	if err != nil {
		t.Fatalf("HTTPS GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.TLS == nil || resp.TLS.Version != tls.VersionTLS13 {
		t.Errorf("Expected a TLS 1.3 connection, got %+v", resp.TLS)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down")
	}
}

func TestServer_StartTLS_BadCertificate(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnvWithConfig(t, func(cfg *config.Config) {
		cfg.Server.TLS.Enabled = true
		cfg.Server.TLS.CertFile = filepath.Join(dir, "missing.crt")
		cfg.Server.TLS.KeyFile = filepath.Join(dir, "missing.key")
	}, nil)

	if err := env.server.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to fail without a certificate")
	}
	if env.server.IsRunning() {
		t.Error("Expected server not to be running")
	}
}

// writeServerCert writes a self-signed certificate for 127.0.0.1.
func writeServerCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "throttle-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}

	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}
