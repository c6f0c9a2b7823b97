package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/familyq/internal/auth"
	"github.com/dukerupert/familyq/internal/store"
)

// MemberHeader carries the authenticated member id set by the upstream gateway.
const MemberHeader = "X-Member-ID"

func writeAuthError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "error": msg})
}

// RequireMember resolves the member named by MemberHeader and populates the
// request Identity. Members without a family pass through with FamilyID 0 so
// handlers can report that condition themselves.
func RequireMember(families *store.FamilyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(MemberHeader))
			id, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || id <= 0 {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid "+MemberHeader)
				return
			}

			m, err := families.GetMember(r.Context(), id)
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, "internal", "internal server error")
				return
			}
			if m == nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "unknown member")
				return
			}

			ident := auth.Identity{MemberID: m.ID}
			if m.FamilyID != nil {
				ident.FamilyID = *m.FamilyID
			}
			ctx := auth.WithIdentity(r.Context(), ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin accepts requests whose bearer token matches tokenHash, a bcrypt
// hash. An empty hash disables the admin surface entirely.
func RequireAdmin(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				writeAuthError(w, http.StatusNotFound, "not_found", "admin API is disabled")
				return
			}
			token, ok := bearerToken(r)
			if !ok || bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "invalid admin token")
				return
			}
			ctx := auth.WithIdentity(r.Context(), auth.Identity{Admin: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// HashToken returns the bcrypt hash stored in configuration for an admin token.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
