package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/throttle/pkg/cli"
)

const securedConfig = `
server:
  listen_address: 127.0.0.1:0
  tls:
    enabled: true
    cert_file: %s
    key_file: %s
  auth:
    enabled: true
    keys:
      - name: ops
        key: sk-ops-inline-value
      - name: checkout
        key_env: THROTTLE_TEST_CHECKOUT_KEY
        limiters: [api]
limits:
  api:
    limit: 10
    interval: 1s
`

func generateTestCert(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()
	if _, err := executeCommand(t, "certs", "generate", "--host", "localhost,127.0.0.1", "--output", dir); err != nil {
		t.Fatalf("certs generate failed: %v", err)
	}
	return filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")
}

func writeSecuredConfig(t *testing.T, certFile, keyFile string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "throttle.yaml")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(securedConfig, certFile, keyFile)), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestCertsGenerate(t *testing.T) {
	dir := t.TempDir()
	out, err := executeCommand(t, "certs", "generate", "--host", "throttle.local", "--validity", "10", "--output", dir)
	if err != nil {
		t.Fatalf("certs generate failed: %v", err)
	}
	if !strings.Contains(out, "✓ Certificate generated") || !strings.Contains(out, "cert_file:") {
		t.Errorf("Unexpected output: %q", out)
	}

	keyInfo, err := os.Stat(filepath.Join(dir, "key.pem"))
	if err != nil {
		t.Fatalf("Expected key file: %v", err)
	}
	if keyInfo.Mode().Perm() != 0o600 {
		t.Errorf("Expected key mode 0600, got %o", keyInfo.Mode().Perm())
	}
}

func TestCertsGenerate_InvalidFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"zero validity", []string{"--validity", "0"}, "--validity"},
		{"no hosts", []string{"--host", " , "}, "--host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"certs", "generate", "--output", t.TempDir()}, tt.args...)
			_, err := executeCommand(t, args...)
			var cfgErr *cli.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("Expected ConfigError on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestCertsInfo(t *testing.T) {
	certFile, keyFile := generateTestCert(t)

	t.Run("file argument", func(t *testing.T) {
		out, err := executeCommand(t, "certs", "info", certFile, "--output", "json")
		if err != nil {
			t.Fatalf("certs info failed: %v", err)
		}
		var info struct {
			File        string   `json:"file"`
			Subject     string   `json:"subject"`
			DNSNames    []string `json:"dns_names"`
			IPAddresses []string `json:"ip_addresses"`
		}
		if err := json.Unmarshal([]byte(out), &info); err != nil {
			t.Fatalf("Expected JSON output, got %q: %v", out, err)
		}
		if info.File != certFile || !strings.Contains(info.Subject, "CN=localhost") {
			t.Errorf("Unexpected info: %+v", info)
		}
		if len(info.DNSNames) != 1 || len(info.IPAddresses) != 1 {
			t.Errorf("Expected one DNS name and one IP, got %v %v", info.DNSNames, info.IPAddresses)
		}
	})

	t.Run("configured certificate", func(t *testing.T) {
		cfgPath := writeSecuredConfig(t, certFile, keyFile)
		out, err := executeCommand(t, "certs", "info", "--config", cfgPath)
		if err != nil {
			t.Fatalf("certs info from config failed: %v", err)
		}
		if !strings.Contains(out, certFile) || !strings.Contains(out, "valid (") {
			t.Errorf("Expected configured certificate details, got %q", out)
		}
	})
}

func TestValidateCommand_Secured(t *testing.T) {
	certFile, keyFile := generateTestCert(t)
	cfgPath := writeSecuredConfig(t, certFile, keyFile)
	t.Setenv("THROTTLE_TEST_CHECKOUT_KEY", "sk-checkout-env-value")

	out, err := executeCommand(t, "validate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	for _, want := range []string{"✓ TLS certificate: ", "✓ API key auth: 2 keys"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got %q", want, out)
		}
	}
}

func TestValidateCommand_SecuredErrors(t *testing.T) {
	certFile, keyFile := generateTestCert(t)

	t.Run("missing key env", func(t *testing.T) {
		cfgPath := writeSecuredConfig(t, certFile, keyFile)
		_, err := executeCommand(t, "validate", "--config", cfgPath)
		var cfgErr *cli.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "server.auth.keys" {
			t.Errorf("Expected ConfigError on server.auth.keys, got %v", err)
		}
	})

	t.Run("missing certificate", func(t *testing.T) {
		t.Setenv("THROTTLE_TEST_CHECKOUT_KEY", "sk-checkout-env-value")
		cfgPath := writeSecuredConfig(t, filepath.Join(t.TempDir(), "none.pem"), keyFile)
		_, err := executeCommand(t, "validate", "--config", cfgPath)
		if cli.ExitCode(err) != cli.ExitConfigError {
			t.Errorf("Expected config error, got %v", err)
		}
	})
}

func TestKeysGenerate(t *testing.T) {
	out, err := executeCommand(t, "keys", "generate", "--name", "checkout-web", "--limiter", "api", "--limiter", "batch")
	if err != nil {
		t.Fatalf("keys generate failed: %v", err)
	}
	for _, want := range []string{"Key: sk-", "key_env: THROTTLE_KEY_CHECKOUT_WEB", "limiters: [api, batch]"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got %q", want, out)
		}
	}
}

func TestKeysGenerate_RequiresName(t *testing.T) {
	if _, err := executeCommand(t, "keys", "generate"); err == nil {
		t.Error("Expected error without --name")
	}
}

func TestNewAPIKey(t *testing.T) {
	a, err := newAPIKey(32)
	if err != nil {
		t.Fatalf("newAPIKey failed: %v", err)
	}
	b, _ := newAPIKey(32)
	if a == b {
		t.Error("Expected distinct keys")
	}
	// 32 bytes encode to 43 base64url characters.
	if !strings.HasPrefix(a, "sk-") || len(a) != 3+43 {
		t.Errorf("Unexpected key shape %q", a)
	}
}

func TestKeysList(t *testing.T) {
	certFile, keyFile := generateTestCert(t)
	cfgPath := writeSecuredConfig(t, certFile, keyFile)
	t.Setenv("THROTTLE_TEST_CHECKOUT_KEY", "sk-checkout-env-value")

	out, err := executeCommand(t, "keys", "list", "--config", cfgPath, "--output", "json")
	if err != nil {
		t.Fatalf("keys list failed: %v", err)
	}
	if strings.Contains(out, "sk-ops-inline-value") || strings.Contains(out, "sk-checkout-env-value") {
		t.Errorf("Key values must not be printed, got %q", out)
	}

	var keys []struct {
		Name     string   `json:"name"`
		Enabled  bool     `json:"enabled"`
		Limiters []string `json:"limiters"`
	}
	if err := json.Unmarshal([]byte(out), &keys); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", out, err)
	}
	if len(keys) != 2 || keys[0].Name != "checkout" || keys[1].Name != "ops" {
		t.Fatalf("Expected [checkout ops], got %+v", keys)
	}
	if len(keys[0].Limiters) != 1 || keys[0].Limiters[0] != "api" {
		t.Errorf("Expected checkout limited to api, got %v", keys[0].Limiters)
	}
}
