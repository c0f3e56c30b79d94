package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth requires the API key as "Authorization: Bearer <key>" or "X-API-Key".
// An empty apiKey disables the check. Paths in public skip it, as do CORS
// preflights; the webhook is public because alert senders cannot set
// headers and authenticate with a shared secret in the body instead.
func Auth(apiKey string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, isPublic := open[r.URL.Path]
			if apiKey == "" || isPublic || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			switch token := apiToken(r); {
			case token == "":
				reject(w, http.StatusUnauthorized, "missing api key")
			case subtle.ConstantTimeCompare([]byte(token), want) != 1:
				reject(w, http.StatusUnauthorized, "invalid api key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func apiToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// reject writes the same failure envelope the handlers use.
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
