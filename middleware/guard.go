// Package middleware provides net/http guards over an authcore engine.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/opsdeck/authcore"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard] or [Require].
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return claims, ok
}

// Guard validates the bearer token and stores the claims on the request
// context. No permission is checked; pair with [Require] or check in
// the handler.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(engine, w, r)
			if !ok {
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require validates the bearer token and additionally demands one
// module/action grant. Missing authentication answers 401; a valid
// identity without the grant answers 403.
func Require(engine *authcore.Engine, module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(engine, w, r)
			if !ok {
				return
			}

			if err := engine.RequirePermission(r.Context(), claims, module, action); err != nil {
				if errors.Is(err, authcore.ErrPermissionDenied) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(engine *authcore.Engine, w http.ResponseWriter, r *http.Request) (*authcore.Claims, bool) {
	if engine == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	claims, err := engine.Validate(r.Context(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
