package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
)

type StatsHandler interface {
	GetLabelStatistics(c *gin.Context)
	GetLeaderboard(c *gin.Context)
}

type statsHandler struct {
	videos repository.VideoRepository
	masks  repository.MaskRepository
	users  repository.UserRepository
	log    *zap.Logger
}

func NewStatsHandler(videos repository.VideoRepository, masks repository.MaskRepository,
	users repository.UserRepository, log *zap.Logger) StatsHandler {
	return &statsHandler{videos: videos, masks: masks, users: users, log: log}
}

func (h *statsHandler) GetLabelStatistics(c *gin.Context) {
	videoStats, err := h.videos.Statistics()
	if err != nil {
		h.log.Error("Failed to compute video statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}
	maskStats, err := h.masks.Statistics()
	if err != nil {
		h.log.Error("Failed to compute mask statistics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video":        videoStats,
		"segmentation": maskStats,
	})
}

func (h *statsHandler) GetLeaderboard(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	users, err := h.users.Leaderboard(limit)
	if err != nil {
		h.log.Error("Failed to load leaderboard", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leaderboard"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}
