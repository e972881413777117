package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/Jay-S9/backend-foundation/pkg/config"
	"github.com/Jay-S9/backend-foundation/pkg/logger"
)

// APIKeyHeader carries the caller's key
const APIKeyHeader = "X-API-Key"

// Permission names an action a role may perform
type Permission string

const (
	PermRead     Permission = "read"
	PermCreate   Permission = "create"
	PermDeposit  Permission = "deposit"
	PermWithdraw Permission = "withdraw"
	PermFreeze   Permission = "freeze"
	PermUnfreeze Permission = "unfreeze"
	PermClose    Permission = "close"
)

// Roles
const (
	RoleService = "service"
	RoleAdmin   = "admin"
)

var rolePermissions = map[string]map[Permission]bool{
	RoleService: {PermRead: true, PermCreate: true, PermDeposit: true},
	RoleAdmin: {
		PermRead: true, PermCreate: true, PermDeposit: true, PermWithdraw: true,
		PermFreeze: true, PermUnfreeze: true, PermClose: true,
	},
}

// HasPermission reports whether role grants p
func HasPermission(role string, p Permission) bool {
	return rolePermissions[role][p]
}

// APIKeyAuth authenticates requests against bcrypt hashed keys.
// A verified key is remembered by its SHA-256 digest so bcrypt runs once
// per key and process.
type APIKeyAuth struct {
	keys     []config.APIKey
	verified sync.Map // digest -> role
	log      *logger.Logger
}

// NewAPIKeyAuth creates the authenticator. Unknown roles are rejected.
func NewAPIKeyAuth(keys []config.APIKey, log *logger.Logger) (*APIKeyAuth, error) {
	for _, k := range keys {
		if _, ok := rolePermissions[k.Role]; !ok {
			return nil, fmt.Errorf("unknown API key role %q", k.Role)
		}
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			return nil, fmt.Errorf("invalid bcrypt hash for role %s: %w", k.Role, err)
		}
	}
	return &APIKeyAuth{keys: keys, log: log}, nil
}

// Authenticate resolves the key's role or reports false
func (a *APIKeyAuth) Authenticate(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if role, ok := a.verified.Load(digest); ok {
		return role.(string), true
	}

	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(key)) == nil {
			a.verified.Store(digest, k.Role)
			return k.Role, true
		}
	}
	return "", false
}

// Middleware rejects requests without a valid key and stores the role
// in the request context.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := a.Authenticate(r.Header.Get(APIKeyHeader))
		if !ok {
			a.log.WithContext(r.Context()).Warn("rejected API key", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(logger.ContextWithRole(r.Context(), role)))
	})
}

// Require allows the request only when the authenticated role grants p
func Require(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := GetRoleFromContext(r.Context())
			if !HasPermission(role, p) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", fmt.Sprintf("role %q may not %s", role, p))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetRoleFromContext extracts the authenticated role from the request context
func GetRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(logger.RoleKey).(string)
	return role, ok
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
