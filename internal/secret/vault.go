// internal/secret/vault.go
//
// Vault-backed secret resolution.
//
// Context
// -------
// Configuration values may carry the form `vault:<mount>/<path>#<key>`
// instead of a literal secret.  `Resolve` detects that prefix, fetches the
// key from a KV-v2 secret engine, and returns the plain string; literal
// values pass through untouched.  The database password is the only such
// value today, but any config field can adopt the scheme.
//
// Environment expectations
// ------------------------
//   • VAULT_ADDR  – scheme and host of the Vault server.
//   • VAULT_TOKEN – token (falls back to ~/.vault-token).
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// URIPrefix marks a config value as a Vault reference.
const URIPrefix = "vault:"

// Client is a thin, concurrency-safe wrapper over the Vault SDK with
// per-key caching.  Zero value is invalid; use New.
type Client struct {
	api *vault.Client

	mu    sync.RWMutex
	cache map[string]cached
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from the standard VAULT_* environment.
func New() (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		api.SetToken(tok)
	}
	return &Client{api: api, cache: make(map[string]cached)}, nil
}

// IsRef reports whether value is a vault: reference.
func IsRef(value string) bool { return strings.HasPrefix(value, URIPrefix) }

// Resolve returns the literal value, or the referenced secret when value
// has the form `vault:<mount>/<path>#<key>`.
func (c *Client) Resolve(ctx context.Context, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	ref := strings.TrimPrefix(value, URIPrefix)
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" {
		return "", fmt.Errorf("malformed vault reference %q", value)
	}
	return c.GetKV(ctx, path, key, 5*time.Minute)
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result
// is cached for that duration.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key
	if ttl > 0 {
		c.mu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.mu.RUnlock()
			return cv.val, nil
		}
		c.mu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.mu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.mu.Unlock()
	}
	return sval, nil
}

func splitMount(p string) (mount, rel string) {
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}
