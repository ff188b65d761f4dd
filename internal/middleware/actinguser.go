package middleware

import (
	"net/http"

	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/internal/logging"
	"github.com/gorilla/mux"
)

// ActingUser resolves the X-User-ID header against the user store and places
// the acting user's identity and role on the request context. Credential
// verification happens upstream; the header is trusted here.
//
// Mutating requests without a resolvable identity are rejected, except user
// registration itself.
func ActingUser(users storage.UserStore) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")

			if userID != "" {
				user, err := users.GetUser(r.Context(), userID)
				if err != nil {
					writeServiceError(w, errors.Unauthorized("Unknown acting user"))
					return
				}
				ctx := logging.WithUser(r.Context(), user.ID, string(user.Role))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if isMutating(r.Method) && !isIdentityExempt(r) {
				writeServiceError(w, errors.Unauthorized("X-User-ID header is required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// isIdentityExempt allows user registration through without an identity.
func isIdentityExempt(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template == "/api/v1/users"
		}
	}
	return r.URL.Path == "/api/v1/users"
}
