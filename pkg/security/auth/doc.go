/*
Package auth provides API key authentication for the throttle HTTP API.

Keys are configured under server.auth and may be restricted to a set of
limiters. A key with no limiters may address every limiter.

	server:
	  auth:
	    enabled: true
	    header: Authorization
	    scheme: Bearer
	    keys:
	      - name: checkout
	        key_env: CHECKOUT_API_KEY
	        limiters: [api]
	      - name: ops
	        key: sk-ops-0123456789

Build the validator and wrap the limiter routes:

	keys, err := auth.FromConfig(cfg.Server.Auth)
	if err != nil {
		return err
	}
	validator := auth.NewAPIKeyValidator(keys)
	mw := auth.NewAPIKeyMiddleware(validator, cfg.Server.Auth.Header, cfg.Server.Auth.Scheme)
	mux.Handle("POST /limits/{name}/acquire", mw.Handle(acquire))

A missing or unknown key gets 401. A valid key addressing a limiter outside
its list gets 403. Key values are never logged, only key names.

On a configuration reload call Replace with the new key set; in-flight
requests keep the key info they were authenticated with.
*/
package auth
