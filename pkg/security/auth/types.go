package auth

// APIKeyInfo is a configured API key and the limiters it may use.
type APIKeyInfo struct {
	Name    string `json:"name"`
	Key     string `json:"-"`
	Enabled bool   `json:"enabled"`

	// Limiters lists the limiters the key may address. An empty list allows
	// every limiter.
	Limiters []string `json:"limiters,omitempty"`
}

// Allows reports whether the key may address limiter.
func (k *APIKeyInfo) Allows(limiter string) bool {
	if len(k.Limiters) == 0 {
		return true
	}
	for _, name := range k.Limiters {
		if name == limiter {
			return true
		}
	}
	return false
}

// APIKeyStore stores and validates API keys
type APIKeyStore interface {
	Validate(key string) (*APIKeyInfo, error)
	List() []*APIKeyInfo
}
