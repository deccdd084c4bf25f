package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/dnd-knowledge-navigator/pkg/errors"
)

// HashKey returns the SHA-256 hex digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AdminKey guards administrative routes. Keys arrive as
// "Authorization: Bearer <key>" or "X-API-Key"; only their SHA-256 digests
// are kept in memory. With no keys configured every request passes.
func AdminKey(keys []string) func(http.Handler) http.Handler {
	hashes := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			hashes = append(hashes, []byte(HashKey(k)))
		}
	}
	return func(next http.Handler) http.Handler {
		if len(hashes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if key == "" {
				writeError(w, apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "missing api key"))
				return
			}
			presented := []byte(HashKey(key))
			for _, h := range hashes {
				if subtle.ConstantTimeCompare(presented, h) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "invalid api key"))
		})
	}
}

func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// writeError sends the same JSON error body the API handlers use.
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(apperrors.Response{Error: err.Message, Code: apperrors.Code(err)})
}
