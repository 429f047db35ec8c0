package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/middleware"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/service"
)

type VideoHandler interface {
	GetBatch(c *gin.Context)
	SendBatch(c *gin.Context)
	SetLabelState(c *gin.Context)
	GetPosLabels(c *gin.Context)
	GetNegLabels(c *gin.Context)
	GetMaybePosLabels(c *gin.Context)
	GetMaybeNegLabels(c *gin.Context)
	GetDiscordedLabels(c *gin.Context)
	GetPosGoldLabels(c *gin.Context)
	GetNegGoldLabels(c *gin.Context)
	GetBadLabels(c *gin.Context)
}

type videoHandler struct {
	labeling service.LabelingService
	auth     service.AuthService
	videos   repository.VideoRepository
	log      *zap.Logger
}

func NewVideoHandler(labeling service.LabelingService, auth service.AuthService,
	videos repository.VideoRepository, log *zap.Logger) VideoHandler {
	return &videoHandler{labeling: labeling, auth: auth, videos: videos, log: log}
}

func (h *videoHandler) GetBatch(c *gin.Context) {
	claims := middleware.UserClaims(c)

	batch, err := h.labeling.RequestVideoBatch(claims)
	if err != nil {
		if errors.Is(err, label.ErrInsufficientPool) {
			c.Status(http.StatusNoContent)
			return
		}
		if errors.Is(err, service.ErrUserBanned) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is banned"})
			return
		}
		h.log.Error("Failed to assemble video batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assemble batch"})
		return
	}

	c.JSON(http.StatusOK, batch)
}

type SendBatchRequest struct {
	BatchToken string               `json:"batch_token" binding:"required"`
	Data       []label.ClipResponse `json:"data" binding:"required"`
}

func (h *videoHandler) SendBatch(c *gin.Context) {
	claims := middleware.UserClaims(c)

	var req SendBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batchClaims, err := h.auth.ParseBatchToken(req.BatchToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Batch returned too fast"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid batch token"})
		return
	}

	outcome, err := h.labeling.SubmitVideoBatch(claims, batchClaims, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBatchMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Batch does not match the issued one"})
		case errors.Is(err, repository.ErrBatchAlreadyScored):
			c.JSON(http.StatusConflict, gin.H{"error": "Batch was already scored"})
		default:
			h.log.Error("Failed to score video batch", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to score batch"})
		}
		return
	}

	c.JSON(http.StatusOK, outcome)
}

type SetLabelStateRequest struct {
	VideoID int64 `json:"video_id" binding:"required"`
	Label   int   `json:"label"`
}

func (h *videoHandler) SetLabelState(c *gin.Context) {
	claims := middleware.UserClaims(c)

	var req SetLabelStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.labeling.SetVideoLabelState(claims, req.VideoID, req.Label); err != nil {
		switch {
		case errors.Is(err, service.ErrNotResearcher):
			c.JSON(http.StatusForbidden, gin.H{"error": "Researcher account required"})
		case errors.Is(err, service.ErrUndefinedChange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		default:
			h.log.Error("Failed to set video label state", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set label state"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Label state updated"})
}

// pagination reads pageNumber/pageSize query parameters with the defaults
// the front end uses.
func pagination(c *gin.Context) (int, int) {
	pageNumber, err := strconv.Atoi(c.DefaultQuery("pageNumber", "1"))
	if err != nil || pageNumber < 1 {
		pageNumber = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "16"))
	if err != nil || pageSize < 1 || pageSize > 1000 {
		pageSize = 16
	}
	return pageNumber, pageSize
}

func (h *videoHandler) listAggregated(c *gin.Context, pos bool) {
	pageNumber, pageSize := pagination(c)
	videos, total, err := h.videos.ListAggregated(pos, pageNumber, pageSize)
	if err != nil {
		h.log.Error("Failed to list labels", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list labels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": videos, "total": total})
}

func (h *videoHandler) list(c *gin.Context, states []label.State, adminTrack bool) {
	pageNumber, pageSize := pagination(c)
	videos, total, err := h.videos.List(states, adminTrack, pageNumber, pageSize)
	if err != nil {
		h.log.Error("Failed to list labels", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list labels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": videos, "total": total})
}

// GetPosLabels returns clips settled positive by either track, researcher
// decisions taking precedence over crowd consensus.
func (h *videoHandler) GetPosLabels(c *gin.Context) { h.listAggregated(c, true) }

func (h *videoHandler) GetNegLabels(c *gin.Context) { h.listAggregated(c, false) }

func (h *videoHandler) GetMaybePosLabels(c *gin.Context) {
	h.list(c, []label.State{label.StateMaybePos}, false)
}

func (h *videoHandler) GetMaybeNegLabels(c *gin.Context) {
	h.list(c, []label.State{label.StateMaybeNeg}, false)
}

func (h *videoHandler) GetDiscordedLabels(c *gin.Context) {
	h.list(c, []label.State{label.StateDiscord}, false)
}

func (h *videoHandler) GetPosGoldLabels(c *gin.Context) {
	h.list(c, label.GoldPosStates, true)
}

func (h *videoHandler) GetNegGoldLabels(c *gin.Context) {
	h.list(c, label.GoldNegStates, true)
}

func (h *videoHandler) GetBadLabels(c *gin.Context) {
	h.list(c, label.BadStates, true)
}
