// README: Firebase bearer-token auth with a shared revocation list and role gating.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"potluck/internal/infra"
	"potluck/internal/types"
)

const (
	ctxCallerUID  = "caller_uid"
	ctxCallerRole = "caller_role"
	ctxToken      = "caller_token"
	ctxExpiry     = "caller_token_expiry"

	revokedKeyPrefix = "auth:revoked:"
	// Firebase ID tokens live for an hour.
	TokenLifetime = time.Hour
)

// Revocations is a token blacklist shared by every API instance.
type Revocations interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type RedisRevocations struct {
	redis *redis.Client
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{redis: client}
}

func (r *RedisRevocations) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return r.redis.Set(ctx, revokedKey(token), "1", ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.redis.Exists(ctx, revokedKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// revokedKey stores a digest, never the bearer token itself.
func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}

// Auth verifies the bearer token and stores the caller's uid and role on the context.
// revoked may be nil.
func Auth(verifier infra.TokenVerifier, revoked Revocations) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			Logger(c).Info("token rejected", zap.Error(err))
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		if revoked != nil {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), raw)
			if err != nil {
				// Fail open: the list is advisory.
				Logger(c).Warn("revocation lookup failed", zap.Error(err))
			} else if isRevoked {
				abort(c, http.StatusUnauthorized, "unauthorized", "token revoked")
				return
			}
		}
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerRole, token.Role())
		c.Set(ctxToken, raw)
		c.Set(ctxExpiry, token.ExpiresAt)
		c.Next()
	}
}

// RequireRole rejects callers whose role claim is not one of roles.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "forbidden", "this action requires the "+joinRoles(roles)+" role")
	}
}

func joinRoles(roles []types.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, " or ")
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

func CallerID(c *gin.Context) types.ID {
	return types.ID(CallerUID(c))
}

func CallerRole(c *gin.Context) types.Role {
	v, _ := c.Get(ctxCallerRole)
	role, _ := v.(types.Role)
	return role
}

// CallerToken is the raw bearer token, used to revoke it on logout.
func CallerToken(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// CallerTokenTTL is how long the bearer token stays valid, TokenLifetime when unknown.
func CallerTokenTTL(c *gin.Context) time.Duration {
	exp := c.GetTime(ctxExpiry)
	if exp.IsZero() {
		return TokenLifetime
	}
	if ttl := time.Until(exp); ttl > 0 {
		return ttl
	}
	return time.Second
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}
