package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// actorClaims is the JWT payload identifying the calling actor. The demo
// issues and verifies tokens with a single shared secret; a production
// deployment would source this from a key management service instead.
type actorClaims struct {
	Owner string `json:"owner"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies a bearer token and stashes the actor's owner
// name in the gin context for downstream handlers.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware builds an AuthMiddleware signing/verifying with secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	if secret == "" {
		secret = "engine-demo-dev-secret"
	}
	return &AuthMiddleware{secret: []byte(secret)}
}

// IssueToken mints a short-lived demo token for owner, used by the login
// handler below.
func (m *AuthMiddleware) IssueToken(owner string) (string, error) {
	claims := actorClaims{
		Owner: owner,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// RequireAuth parses the Authorization header and aborts with 401 on any
// failure, otherwise setting "owner" in the gin context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == header || raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		var claims actorClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		})
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("owner", claims.Owner)
		c.Next()
	}
}

// LoginHandler issues a demo token for the owner named in the request
// body. There is no password check: this binary exists to exercise the
// transport stack, not to be a credential store.
func (m *AuthMiddleware) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Owner string `json:"owner" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, err := m.IssueToken(body.Owner)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}
