package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"bastionrp.ru/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/discord",
	"/v1/auth/discord/callback",
	"/v1/forum/posts",
	"/v1/factions",
}

var publicPrefixes = []string{
	"/v1/users/",
	"/v1/forum/posts/",
	"/v1/factions/",
}

// publicGet paths are readable anonymously; writes still require a token.
func isPublicPath(path, method string) bool {
	for _, p := range publicPaths {
		if path == p {
			if method == http.MethodGet {
				return true
			}
			// Auth endpoints accept anonymous POSTs.
			return strings.HasPrefix(path, "/v1/auth/")
		}
	}
	if method != http.MethodGet {
		return false
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path, r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		snap, err := a.deps.Issuer.Verify(raw)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				writeError(w, r, http.StatusUnauthorized, "token expired")
			default:
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			}
			return
		}

		// The token's owner/admin bits are a cache. They gate entry to the
		// admin surface only; every moderation handler re-authorizes against
		// live store state.
		if isAdminSurface(r.URL.Path) && !snap.Owner && !snap.Admin {
			writeError(w, r, http.StatusForbidden, "admin access required")
			return
		}
		if isOwnerSurface(r.URL.Path) && !snap.Owner {
			writeError(w, r, http.StatusForbidden, "owner access required")
			return
		}

		next.ServeHTTP(w, r.WithContext(token.ContextWithSnapshot(r.Context(), snap)))
	})
}

func isAdminSurface(path string) bool {
	return strings.HasPrefix(path, "/v1/admin/") || strings.HasPrefix(path, "/v1/owner/")
}

func isOwnerSurface(path string) bool {
	return strings.HasPrefix(path, "/v1/owner/")
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}
