package handler

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// APIKeyInfo is the identity behind a validated API key.
type APIKeyInfo struct {
	UserID     int64
	KeyHash    string
	Name       string
	Privileged bool
}

// APIKeyRepository looks up API keys by their SHA-256 hex hash.
type APIKeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type identityKey struct{}

// identityFrom returns the authenticated identity stored by Authenticate.
func identityFrom(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(identityKey{}).(*APIKeyInfo)
	return info, ok
}

// Authenticate validates the X-API-Key header by hashing the presented key,
// looking it up, and comparing hashes in constant time. The resolved
// identity is stored in the request context.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		hash := sha256.Sum256([]byte(key))
		hexHash := hex.EncodeToString(hash[:])

		info, err := h.keys.FindByHash(r.Context(), hexHash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		// The lookup already matched, but compare in constant time anyway
		// in case the repository returns a stale row.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash[:], stored) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireIdentity fetches the identity or writes 401. The auth middleware
// makes a missing identity unreachable in practice.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*APIKeyInfo, bool) {
	info, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return info, ok
}
