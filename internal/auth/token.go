// Package auth guards the HTTP API with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// Valid reports whether the Authorization header carries token. An empty
// token disables the check.
func Valid(header, token string) bool {
	if token == "" {
		return true
	}
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return false
	}
	got := strings.TrimSpace(header[len(bearerPrefix):])
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// Bearer rejects requests without the token. Browsers cannot set headers on
// a websocket handshake, so a "token" query parameter is accepted as well.
func Bearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Valid(c.GetHeader("Authorization"), token) {
			c.Next()
			return
		}
		if q := c.Query("token"); q != "" && Valid(bearerPrefix+q, token) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}
