package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/models"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/service"
)

// ClaimsKey is the gin context key holding the authenticated user claims.
const ClaimsKey = "user_claims"

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(auth service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer <token>"})
			c.Abort()
			return
		}

		claims, err := auth.ParseUserToken(parts[1])
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				c.Abort()
				return
			}
			logger.Warn("Invalid JWT token", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// UserClaims pulls the authenticated claims out of the gin context. It only
// works behind AuthMiddleware.
func UserClaims(c *gin.Context) *models.UserClaims {
	return c.MustGet(ClaimsKey).(*models.UserClaims)
}

// RequireResearcher guards routes that only researcher accounts may call.
// It must run behind AuthMiddleware.
func RequireResearcher() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserClaims(c).ClientType != label.RoleResearcher {
			c.JSON(http.StatusForbidden, gin.H{"error": "Researcher account required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
