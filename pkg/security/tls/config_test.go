package tls

import (
	"context"
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"mercator-hq/throttle/pkg/config"
)

func TestNewServerConfig_Disabled(t *testing.T) {
	tlsConfig, err := NewServerConfig(config.TLSConfig{}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tlsConfig != nil {
		t.Error("Expected nil config when TLS is disabled")
	}
}

func TestNewServerConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := validCert(t, dir, "server")

	tests := []struct {
		name        string
		cfg         config.TLSConfig
		wantVersion uint16
		wantSuites  int
		wantErr     string
	}{
		{
			name:        "defaults to TLS 1.3",
			cfg:         config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
			wantVersion: tls.VersionTLS13,
		},
		{
			name: "TLS 1.2 with suites",
			cfg: config.TLSConfig{
				Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.2",
				CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256", "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305"},
			},
			wantVersion: tls.VersionTLS12,
			wantSuites:  2,
		},
		{
			name:    "unknown suite",
			cfg:     config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, CipherSuites: []string{"TLS_RSA_WITH_RC4_128_SHA"}},
			wantErr: "unsupported cipher suite",
		},
		{
			name:    "missing key file",
			cfg:     config.TLSConfig{Enabled: true, CertFile: certFile},
			wantErr: "required",
		},
		{
			name:    "unreadable certificate",
			cfg:     config.TLSConfig{Enabled: true, CertFile: dir + "/missing.crt", KeyFile: keyFile},
			wantErr: "failed to load certificate",
		},
		{
			name:    "missing client CA",
			cfg:     config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, ClientCAFile: dir + "/ca.pem"},
			wantErr: "failed to configure mTLS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tlsConfig, err := NewServerConfig(tt.cfg, nil)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tlsConfig.MinVersion != tt.wantVersion {
				t.Errorf("Expected min version %x, got %x", tt.wantVersion, tlsConfig.MinVersion)
			}
			if len(tlsConfig.CipherSuites) != tt.wantSuites {
				t.Errorf("Expected %d cipher suites, got %d", tt.wantSuites, len(tlsConfig.CipherSuites))
			}
			if len(tlsConfig.Certificates) != 1 {
				t.Errorf("Expected static certificate, got %d", len(tlsConfig.Certificates))
			}
		})
	}
}

func TestNewServerConfig_ExpiredCertificate(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeTestCert(t, dir, "expired", now.AddDate(-2, 0, 0), now.AddDate(-1, 0, 0))

	_, err := NewServerConfig(config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}, nil)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Errorf("Expected expiry error, got %v", err)
	}
}

func TestNewServerConfig_MutualTLS(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := validCert(t, dir, "server")
	caFile, _ := validCert(t, dir, "client-ca")

	tests := []struct {
		clientAuth string
		want       tls.ClientAuthType
	}{
		{"require", tls.RequireAndVerifyClientCert},
		{"verify_if_given", tls.VerifyClientCertIfGiven},
		{"", tls.RequireAndVerifyClientCert},
	}

	for _, tt := range tests {
		t.Run(tt.clientAuth, func(t *testing.T) {
			tlsConfig, err := NewServerConfig(config.TLSConfig{
				Enabled: true, CertFile: certFile, KeyFile: keyFile,
				ClientCAFile: caFile, ClientAuth: tt.clientAuth,
			}, nil)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tlsConfig.ClientAuth != tt.want {
				t.Errorf("Expected client auth %v, got %v", tt.want, tlsConfig.ClientAuth)
			}
			if tlsConfig.ClientCAs == nil {
				t.Error("Expected client CA pool")
			}
		})
	}
}

func TestNewServerConfig_Reloader(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := validCert(t, dir, "server")

	reloader := NewCertificateReloader(certFile, keyFile, 0)
	if err := reloader.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tlsConfig, err := NewServerConfig(config.TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}, reloader)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(tlsConfig.Certificates) != 0 {
		t.Error("Expected certificates to come from the reloader")
	}
	cert, err := tlsConfig.GetCertificate(&tls.ClientHelloInfo{})
	if err != nil || cert != reloader.GetCertificate() {
		t.Errorf("Expected reloader certificate, got %v (err %v)", cert, err)
	}
}
