package client

import (
	"github.com/lumivid/messaging/pkg/jwt"
)

// JWTIdentityResolver resolves bearer tokens via the shared-secret JWT
// manager. It is the gateway's identity source.
type JWTIdentityResolver struct {
	manager *jwt.Manager
}

// NewJWTIdentityResolver creates a resolver backed by the given manager.
func NewJWTIdentityResolver(manager *jwt.Manager) *JWTIdentityResolver {
	return &JWTIdentityResolver{manager: manager}
}

// ResolveToken validates the token and returns the user id it carries.
func (r *JWTIdentityResolver) ResolveToken(token string) (string, error) {
	claims, err := r.manager.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
