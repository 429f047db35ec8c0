package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/middleware"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/service"
)

type MaskHandler interface {
	GetSegmentBatch(c *gin.Context)
	SendSegmentBatch(c *gin.Context)
	SetSegmentLabelState(c *gin.Context)
	GetPosSegmentLabels(c *gin.Context)
	GetNegSegmentLabels(c *gin.Context)
	GetPartialSegmentLabels(c *gin.Context)
	GetGoldSegmentLabels(c *gin.Context)
	GetBadSegmentLabels(c *gin.Context)
}

type maskHandler struct {
	labeling service.LabelingService
	auth     service.AuthService
	masks    repository.MaskRepository
	log      *zap.Logger
}

func NewMaskHandler(labeling service.LabelingService, auth service.AuthService,
	masks repository.MaskRepository, log *zap.Logger) MaskHandler {
	return &maskHandler{labeling: labeling, auth: auth, masks: masks, log: log}
}

func (h *maskHandler) GetSegmentBatch(c *gin.Context) {
	claims := middleware.UserClaims(c)

	batch, err := h.labeling.RequestMaskBatch(claims)
	if err != nil {
		if errors.Is(err, label.ErrInsufficientPool) {
			c.Status(http.StatusNoContent)
			return
		}
		if errors.Is(err, service.ErrUserBanned) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is banned"})
			return
		}
		h.log.Error("Failed to assemble segmentation batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assemble batch"})
		return
	}

	c.JSON(http.StatusOK, batch)
}

type SendSegmentBatchRequest struct {
	BatchToken string               `json:"batch_token" binding:"required"`
	Data       []label.MaskResponse `json:"data" binding:"required"`
}

func (h *maskHandler) SendSegmentBatch(c *gin.Context) {
	claims := middleware.UserClaims(c)

	var req SendSegmentBatchRequest
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

	outcome, err := h.labeling.SubmitMaskBatch(claims, batchClaims, req.Data)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBatchMismatch):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Batch does not match the issued one"})
		case errors.Is(err, repository.ErrBatchAlreadyScored):
			c.JSON(http.StatusConflict, gin.H{"error": "Batch was already scored"})
		default:
			h.log.Error("Failed to score segmentation batch", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to score batch"})
		}
		return
	}

	c.JSON(http.StatusOK, outcome)
}

type SetSegmentLabelStateRequest struct {
	SegmentationID int64                `json:"segmentation_id" binding:"required"`
	Feedback       label.MaskSubmission `json:"feedback"`
	// Gold marks the feedback as a gold standard answer; only meaningful
	// for researcher edits and removals.
	Gold bool `json:"gold"`
}

func (h *maskHandler) SetSegmentLabelState(c *gin.Context) {
	claims := middleware.UserClaims(c)

	var req SetSegmentLabelStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.labeling.SetMaskFeedback(claims, req.SegmentationID, req.Feedback, req.Gold); err != nil {
		switch {
		case errors.Is(err, service.ErrNotResearcher):
			c.JSON(http.StatusForbidden, gin.H{"error": "Researcher account required"})
		case errors.Is(err, service.ErrUndefinedChange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Segmentation mask not found"})
		default:
			h.log.Error("Failed to set mask feedback", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set label state"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Label state updated"})
}

func (h *maskHandler) list(c *gin.Context, states []label.MaskState, adminTrack bool) {
	pageNumber, pageSize := pagination(c)
	masks, total, err := h.masks.List(states, adminTrack, pageNumber, pageSize)
	if err != nil {
		h.log.Error("Failed to list segment labels", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list labels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": masks, "total": total})
}

func (h *maskHandler) GetPosSegmentLabels(c *gin.Context) {
	h.list(c, label.MaskPosStates, false)
}

func (h *maskHandler) GetNegSegmentLabels(c *gin.Context) {
	h.list(c, label.MaskNegStates, false)
}

func (h *maskHandler) GetPartialSegmentLabels(c *gin.Context) {
	h.list(c, label.MaskPartialStates, false)
}

func (h *maskHandler) GetGoldSegmentLabels(c *gin.Context) {
	h.list(c, label.MaskGoldStates, true)
}

func (h *maskHandler) GetBadSegmentLabels(c *gin.Context) {
	h.list(c, label.MaskBadStates, true)
}
