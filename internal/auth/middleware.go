package auth

import (
	"context"
	"net/http"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"

	"go.uber.org/zap"
)

// VerifiedUserHeader carries the subject id verified by the upstream auth
// gateway. Authentication itself is out of scope here; this layer only
// attaches the server-side role claim to the request. Roles are resolved
// from the assignment table on every request; nothing client-held decides
// privilege.
const VerifiedUserHeader = "X-Verified-User"

type ctxKey int

const identityKey ctxKey = iota

// Identity is the verified caller attached to a request context.
type Identity struct {
	UserID string
	Role   domain.Role
}

// FromContext returns the request identity, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// WithIdentity returns a context carrying the verified identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Middleware rejects requests without a verified subject and resolves the
// caller's role through the role repository.
func Middleware(roles repository.RoleRepository, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(VerifiedUserHeader)
			if userID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			role, err := roles.GetRole(r.Context(), userID)
			if err != nil {
				log.Error("failed to resolve role", zap.String("user_id", userID), zap.Error(err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin guards admin-only routes with the resolved role claim.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok || id.Role != domain.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
