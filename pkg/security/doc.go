/*
Package security groups the transport and access controls of the throttle
HTTP server.

Subpackages:

  - tls: server TLS configuration, certificate inspection and hot reload of
    the certificate pair from disk.
  - auth: API key middleware that restricts keys to named limiters.

Both are configured under server in throttle.yaml:

	server:
	  tls:
	    enabled: true
	    cert_file: /etc/throttle/certs/cert.pem
	    key_file: /etc/throttle/certs/key.pem
	    min_version: "1.3"
	  auth:
	    enabled: true
	    keys:
	      - name: checkout
	        key_env: CHECKOUT_API_KEY
	        limiters: [api]
*/
package security
