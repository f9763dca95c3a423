package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const userKey = "user"

type AuthConfig struct {
	JWTSecret    string
	JWTExpiresIn time.Duration
}

// Principal is the authenticated caller. Identity lives outside this
// service, so the token is trusted as issued.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for p.
func IssueToken(cfg AuthConfig, p Principal, now time.Time) (string, error) {
	if !IsValidRole(p.Role) {
		return "", errors.Errorf("unknown role %q", p.Role)
	}
	ttl := cfg.JWTExpiresIn
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	claims := Claims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func AuthMiddleware(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearer(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing or invalid authorization header"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.UserID == "" || !IsValidRole(claims.Role) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid token"})
			return
		}

		c.Set(userKey, Principal{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// bearer reads the Authorization header, falling back to ?token= for
// websocket upgrades where browsers cannot set headers.
func bearer(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			return ""
		}
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

func CurrentUser(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "unauthorized"})
			return
		}
		if _, ok := allowed[user.Role]; !ok {
			// allow admin to pass any role-gate
			if user.Role != RoleAdmin {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "forbidden"})
				return
			}
		}
		c.Next()
	}
}
