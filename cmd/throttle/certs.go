package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/throttle/pkg/cli"
	"mercator-hq/throttle/pkg/config"
	securityTLS "mercator-hq/throttle/pkg/security/tls"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage TLS certificates",
	Long: `Manage the TLS certificates the server uses when server.tls is enabled.

Subcommands:
  info     - Display certificate details
  generate - Generate a self-signed certificate for testing

Examples:
  # Display certificate information
  throttle certs info certs/cert.pem

  # Generate a self-signed certificate for testing
  throttle certs generate --host localhost,127.0.0.1`,
}

var certsInfoFlags struct {
	output string
}

var certsInfoCmd = &cobra.Command{
	Use:   "info [cert-file]",
	Short: "Display certificate details",
	Long: `Display the subject, issuer, validity and alternative names of a PEM
certificate. Without an argument the certificate configured under
server.tls.cert_file is read.

Examples:
  throttle certs info certs/cert.pem
  throttle certs info --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: displayCertInfo,
}

var generateFlags struct {
	hosts    string
	org      string
	validity int
	output   string
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a self-signed certificate",
	Long: `Generate a self-signed ECDSA P-256 certificate and key for testing.

The certificate is written to cert.pem and the key to key.pem (mode 0600) in
the output directory.

Examples:
  throttle certs generate --host localhost
  throttle certs generate --host "localhost,127.0.0.1" --validity 30 --output certs/`,
	RunE: generateCertificate,
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsInfoCmd, certsGenerateCmd)

	certsInfoCmd.Flags().StringVarP(&certsInfoFlags.output, "output", "o", "text", "output format: text, json, csv")

	certsGenerateCmd.Flags().StringVar(&generateFlags.hosts, "host", "localhost", "comma-separated hostnames and IPs")
	certsGenerateCmd.Flags().StringVar(&generateFlags.org, "org", "Mercator", "organization name")
	certsGenerateCmd.Flags().IntVar(&generateFlags.validity, "validity", 365, "validity in days")
	certsGenerateCmd.Flags().StringVarP(&generateFlags.output, "output", "o", "certs", "output directory")
}

// certInfo renders a certificate summary as a two-column table.
type certInfo struct {
	*securityTLS.CertificateInfo
	File string `json:"file"`
}

// Header implements cli.Table.
func (c certInfo) Header() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements cli.Table.
func (c certInfo) Rows() [][]string {
	status := fmt.Sprintf("valid (%d days remaining)", int(time.Until(c.NotAfter).Hours()/24))
	switch now := time.Now(); {
	case now.After(c.NotAfter):
		status = "expired"
	case now.Before(c.NotBefore):
		status = "not yet valid"
	case c.ExpiresWithin(now, securityTLS.ExpiryWarning):
		status += ", expiring soon"
	}
	return [][]string{
		{"File", c.File},
		{"Subject", c.Subject},
		{"Issuer", c.Issuer},
		{"Not Before", c.NotBefore.Format(time.RFC3339)},
		{"Not After", c.NotAfter.Format(time.RFC3339)},
		{"DNS Names", strings.Join(c.DNSNames, ", ")},
		{"IP Addresses", strings.Join(c.IPAddresses, ", ")},
		{"Status", status},
	}
}

func displayCertInfo(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(certsInfoFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	certFile, err := certFileArg(args)
	if err != nil {
		return err
	}
	info, err := securityTLS.ReadCertificateInfo(certFile)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), certInfo{CertificateInfo: info, File: certFile})
}

// certFileArg returns the certificate named on the command line or in the
// config file.
func certFileArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return "", err
	}
	if cfg.Server.TLS.CertFile == "" {
		return "", cli.NewConfigError("server.tls.cert_file", "no certificate configured; pass a file argument")
	}
	return cfg.Server.TLS.CertFile, nil
}

func generateCertificate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if generateFlags.validity < 1 {
		return cli.NewConfigError("--validity", "must be at least 1 day")
	}

	var hosts, dnsNames []string
	var ipAddresses []net.IP
	for _, host := range strings.Split(generateFlags.hosts, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
		if ip := net.ParseIP(host); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else {
			dnsNames = append(dnsNames, host)
		}
	}
	if len(hosts) == 0 {
		return cli.NewConfigError("--host", "at least one host is required")
	}

	fmt.Fprintln(out, "Generating self-signed certificate...")

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.AddDate(0, 0, generateFlags.validity)
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{generateFlags.org},
			CommonName:   hosts[0],
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}

	if err := os.MkdirAll(generateFlags.output, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	certPath := filepath.Join(generateFlags.output, "cert.pem")
	if err := writePEMFile(certPath, "CERTIFICATE", derBytes, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	keyPath := filepath.Join(generateFlags.output, "key.pem")
	if err := writePEMFile(keyPath, "EC PRIVATE KEY", keyBytes, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	fmt.Fprintf(out, "✓ Certificate generated: %s\n", certPath)
	fmt.Fprintf(out, "✓ Private key generated: %s\n", keyPath)
	fmt.Fprintf(out, "  Hosts: %s\n", strings.Join(hosts, ", "))
	fmt.Fprintf(out, "  Valid until: %s\n\n", notAfter.Format(time.RFC3339))
	fmt.Fprintln(out, "⚠️  Self-signed certificates are for testing only")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To serve HTTPS, add to your throttle.yaml:")
	fmt.Fprintln(out, "server:")
	fmt.Fprintln(out, "  tls:")
	fmt.Fprintln(out, "    enabled: true")
	fmt.Fprintf(out, "    cert_file: %q\n", certPath)
	fmt.Fprintf(out, "    key_file: %q\n", keyPath)
	return nil
}

func writePEMFile(path, blockType string, der []byte, perm os.FileMode) error {
	// #nosec G304 - output path is chosen by the operator
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
