package auth

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"mercator-hq/throttle/pkg/config"
)

var (
	// ErrInvalidKey is returned for a key that is not configured.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrKeyDisabled is returned for a configured key marked disabled.
	ErrKeyDisabled = errors.New("API key disabled")
)

// APIKeyValidator validates API keys against a configured set of keys
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[string]*APIKeyInfo
}

// NewAPIKeyValidator creates a new API key validator with the given keys
func NewAPIKeyValidator(keys []*APIKeyInfo) *APIKeyValidator {
	v := &APIKeyValidator{}
	v.Replace(keys)
	return v
}

// Validate checks if the given API key is valid and returns its info
func (v *APIKeyValidator) Validate(key string) (*APIKeyInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	info, ok := v.keys[key]
	if !ok || key == "" {
		return nil, ErrInvalidKey
	}
	if !info.Enabled {
		return nil, ErrKeyDisabled
	}
	return info, nil
}

// List returns the configured keys sorted by name.
func (v *APIKeyValidator) List() []*APIKeyInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()

	keys := make([]*APIKeyInfo, 0, len(v.keys))
	for _, key := range v.keys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

// Replace swaps the whole key set, as on a configuration reload.
func (v *APIKeyValidator) Replace(keys []*APIKeyInfo) {
	keyMap := make(map[string]*APIKeyInfo, len(keys))
	for _, key := range keys {
		keyMap[key.Key] = key
	}

	v.mu.Lock()
	v.keys = keyMap
	v.mu.Unlock()
}

// FromConfig builds the key set from configuration, reading key_env
// entries from the environment.
func FromConfig(cfg config.AuthConfig) ([]*APIKeyInfo, error) {
	keys := make([]*APIKeyInfo, 0, len(cfg.Keys))
	for _, kc := range cfg.Keys {
		value := kc.Key
		if kc.KeyEnv != "" {
			value = os.Getenv(kc.KeyEnv)
			if value == "" {
				return nil, fmt.Errorf("API key %q: environment variable %s is not set", kc.Name, kc.KeyEnv)
			}
		}
		keys = append(keys, &APIKeyInfo{
			Name:     kc.Name,
			Key:      value,
			Enabled:  !kc.Disabled,
			Limiters: append([]string(nil), kc.Limiters...),
		})
	}
	return keys, nil
}
