package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingCredentials = errors.New("missing Authorization header")
	ErrInvalidCredentials = errors.New("invalid API key")
)

// Verifier checks bearer API keys against a plain key or a bcrypt hash
type Verifier struct {
	plainKey string
	keyHash  []byte
	exempt   map[string]bool
}

// NewVerifier creates a verifier. If both are empty, authentication is off.
func NewVerifier(plainKey, keyHash string) (*Verifier, error) {
	if keyHash != "" {
		if _, err := bcrypt.Cost([]byte(keyHash)); err != nil {
			return nil, fmt.Errorf("invalid api key hash: %w", err)
		}
	}
	return &Verifier{
		plainKey: plainKey,
		keyHash:  []byte(keyHash),
		exempt:   map[string]bool{"/health": true},
	}, nil
}

// Enabled reports whether any key is configured
func (v *Verifier) Enabled() bool {
	return v.plainKey != "" || len(v.keyHash) > 0
}

// Exempt excludes a path from authentication
func (v *Verifier) Exempt(path string) {
	v.exempt[path] = true
}

// Verify checks an Authorization header value
func (v *Verifier) Verify(header string) error {
	if header == "" {
		return ErrMissingCredentials
	}
	key, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || key == "" {
		return ErrInvalidCredentials
	}

	if len(v.keyHash) > 0 {
		if bcrypt.CompareHashAndPassword(v.keyHash, []byte(key)) == nil {
			return nil
		}
	}
	if v.plainKey != "" && SecureCompare(key, v.plainKey) {
		return nil
	}
	return ErrInvalidCredentials
}

// Middleware rejects requests without a valid bearer key
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Enabled() || v.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if err := v.Verify(r.Header.Get("Authorization")); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="euclid"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
				"code":  "unauthorized",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HashKey returns a bcrypt hash suitable for auth.api_key_hash
func HashKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("key must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
