package authmw

import (
	"context"
	"net/http"
	"strconv"
)

// Role partitions the API surface: claimants file and edit claims,
// approvers decide them.
type Role string

const (
	RoleClaimant Role = "claimant"
	RoleApprover Role = "approver"
)

// Identity is the authenticated caller, as asserted by the fronting
// gateway. This service trusts the identity headers; the bearer token
// gates who may speak to it at all.
type Identity struct {
	UserID int64
	Role   Role
}

// IsApprover reports whether the identity may decide claims.
func (i Identity) IsApprover() bool {
	return i.Role == RoleApprover
}

type identityKey struct{}

// WithIdentity returns middleware that extracts the caller identity from
// the X-User-Id and X-User-Role headers. Requests without a valid user id
// are rejected; the role defaults to claimant.
func WithIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
			if err != nil || userID <= 0 {
				http.Error(w, `{"error":"missing or invalid X-User-Id header"}`, http.StatusUnauthorized)
				return
			}

			role := Role(r.Header.Get("X-User-Role"))
			switch role {
			case "":
				role = RoleClaimant
			case RoleClaimant, RoleApprover:
			default:
				http.Error(w, `{"error":"unknown X-User-Role"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, Identity{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the caller identity placed by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
