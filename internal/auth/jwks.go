package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWKSKeyfunc resolves a token's signing key by fetching and caching the
// issuer's JSON Web Key Set, refetching when the cache is older than
// cacheTTL or does not hold the token's kid. Mirrors the
// bounded-timeout HTTP client idiom used by the rules and reporter clients.
type JWKSKeyfunc struct {
	url      string
	http     *http.Client
	cacheTTL time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWKSKeyfunc builds a Keyfunc that fetches keys from jwksURL (typically
// "<issuer>/.well-known/jwks.json").
func NewJWKSKeyfunc(jwksURL string) *JWKSKeyfunc {
	return &JWKSKeyfunc{
		url:      jwksURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 10 * time.Minute,
	}
}

// Keyfunc returns a jwt.Keyfunc bound to this resolver.
func (k *JWKSKeyfunc) Keyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := k.resolve(kid)
		if err != nil {
			return nil, err
		}
		return key, nil
	}
}

func (k *JWKSKeyfunc) resolve(kid string) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[kid]; ok && time.Since(k.fetchedAt) < k.cacheTTL {
		return key, nil
	}
	if err := k.refresh(); err != nil {
		return nil, err
	}
	key, ok := k.keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: no key found for kid %q", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []jwkEntry `json:"keys"`
}

type jwkEntry struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k *JWKSKeyfunc) refresh() error {
	resp, err := k.http.Get(k.url)
	if err != nil {
		return fmt.Errorf("auth: fetching jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: jwks endpoint returned %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("auth: decoding jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, entry := range doc.Keys {
		if entry.Kty != "RSA" {
			continue
		}
		key, err := parseRSAPublicKey(entry.N, entry.E)
		if err != nil {
			continue
		}
		keys[entry.Kid] = key
	}
	k.keys = keys
	k.fetchedAt = time.Now()
	return nil
}

func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
