package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the key for email in gin context
	ContextKeyEmail = "email"
	// ContextKeySession is the key for the request Session in gin context
	ContextKeySession = "session"
)

// RoleChecker answers global role membership questions
type RoleChecker interface {
	HasRole(ctx context.Context, userID uint, roleName string) (bool, error)
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "Authorization header required"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", "Invalid authorization header format"
	}
	return parts[1], ""
}

// authenticate returns a non-zero status when the request must be rejected
func authenticate(c *gin.Context, tokens *TokenManager, store RevocationStore) (int, string) {
	tokenString, problem := bearerToken(c)
	if problem != "" {
		return http.StatusUnauthorized, problem
	}

	claims, err := tokens.ValidateToken(tokenString)
	if err != nil {
		if err == ErrExpiredToken {
			return http.StatusUnauthorized, "Token has expired"
		}
		return http.StatusUnauthorized, "Invalid token"
	}

	revoked, err := store.IsRevoked(c.Request.Context(), claims.SessionID())
	if err != nil {
		return http.StatusInternalServerError, "Failed to check session"
	}
	if revoked {
		return http.StatusUnauthorized, "Session has ended"
	}

	c.Set(ContextKeyUserID, claims.UserID)
	c.Set(ContextKeyEmail, claims.Email)
	c.Set(ContextKeySession, NewSession(claims, store))
	return 0, ""
}

// AuthMiddleware validates JWT tokens and sets the caller's session in context
func AuthMiddleware(tokens *TokenManager, store RevocationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if status, msg := authenticate(c, tokens, store); status != 0 {
			c.JSON(status, gin.H{"error": msg})
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth authenticates when a token is present and otherwise
// continues with an anonymous session
func OptionalAuth(tokens *TokenManager, store RevocationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Set(ContextKeySession, Anonymous)
			c.Next()
			return
		}
		if status, msg := authenticate(c, tokens, store); status != 0 {
			c.JSON(status, gin.H{"error": msg})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole middleware checks that the caller holds a global role
func RequireRole(checker RoleChecker, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := GetUserID(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		ok, err := checker.HasRole(c.Request.Context(), userID, role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check role"})
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": strings.ToLower(role) + " access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetEmail returns the email from the gin context
func GetEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get(ContextKeyEmail)
	if !exists {
		return "", false
	}
	return email.(string), true
}

// GetSession returns the request session, anonymous when unauthenticated
func GetSession(c *gin.Context) Session {
	s, exists := c.Get(ContextKeySession)
	if !exists {
		return Anonymous
	}
	return s.(Session)
}
