/*
Package tls builds the HTTPS configuration of the throttle server.

# Server Configuration

NewServerConfig turns the server.tls section into a crypto/tls config. TLS
1.3 is the default minimum; TLS 1.2 may be allowed with a restricted set of
cipher suites:

	server:
	  tls:
	    enabled: true
	    cert_file: /etc/throttle/server.crt
	    key_file: /etc/throttle/server.key
	    min_version: "1.2"

Setting client_ca_file turns on mutual TLS: clients must present a
certificate issued by one of the CAs in the file.

# Certificate Auto-Reload

A CertificateReloader serves the current certificate and checks the files
for changes, so renewed certificates are picked up without a restart:

	reloader := tls.NewCertificateReloader(certFile, keyFile, 5*time.Minute)
	if err := reloader.Start(ctx); err != nil {
		return err
	}
	tlsConfig, err := tls.NewServerConfig(cfg.Server.TLS, reloader)

A certificate that fails to load or has expired is rejected and the
previous one stays in use.
*/
package tls
