package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/service"
)

type AuthHandler interface {
	Login(c *gin.Context)
	UpdateClientType(c *gin.Context)
}

type authHandler struct {
	authService service.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService service.AuthService, log *zap.Logger) AuthHandler {
	return &authHandler{authService: authService, log: log}
}

type LoginRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	// Password is only required for researcher accounts.
	Password string `json:"password"`
}

func (h *authHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokenString, user, err := h.authService.Login(req.ClientID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserBanned):
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is banned"})
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		default:
			h.log.Error("Failed to login user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to login"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_token":  tokenString,
		"user_id":     user.ID,
		"client_type": user.ClientType,
	})
}

type UpdateClientTypeRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	// ClientType takes the role codes, -1 bans the account.
	ClientType int `json:"client_type"`
}

func (h *authHandler) UpdateClientType(c *gin.Context) {
	var req UpdateClientTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.SetClientType(req.UserID, label.Role(req.ClientType))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownClientType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			h.log.Error("Failed to update client type", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update client type"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":     user.ID,
		"client_type": user.ClientType,
	})
}
