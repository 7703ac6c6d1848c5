package middleware

import (
	"net/http"
	"os"
	"strings"

	"dropsync-api/internal/transport/http/response"
	"dropsync-api/pkg/apierror"
)

// APIKeyAuth validates the X-API-Key header against the API_KEYS (or
// API_KEY) environment variable. When neither is set the middleware is a
// pass-through, which keeps local development friction-free.
func APIKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probes stay unauthenticated.
		if r.URL.Path == "/api/v1/health" || r.URL.Path == "/api/v1/ready" {
			next.ServeHTTP(w, r)
			return
		}

		validKeys := getValidAPIKeys()
		if len(validKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			// Also accept Authorization: Bearer <key>.
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			response.Error(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
			return
		}
		if !isValidKey(apiKey, validKeys) {
			response.Error(w, apierror.Unauthorized("Invalid API key"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getValidAPIKeys returns the configured keys, comma-separated in API_KEYS
// with API_KEY as the single-key fallback.
func getValidAPIKeys() []string {
	keysEnv := os.Getenv("API_KEYS")
	if keysEnv == "" {
		if singleKey := os.Getenv("API_KEY"); singleKey != "" {
			return []string{singleKey}
		}
		return nil
	}

	keys := strings.Split(keysEnv, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if key == valid {
			return true
		}
	}
	return false
}
