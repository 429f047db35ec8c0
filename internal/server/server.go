package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/config"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/handler"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/label"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/middleware"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/repository"
	"github.com/MultiX-Amsterdam/ijmond-camera-monitor/internal/service"
)

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	cfg    *config.Config
	log    *zap.Logger
}

func NewServer(db *sqlx.DB, cfg *config.Config, log *zap.Logger) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		db:     db,
		cfg:    cfg,
		log:    log,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	userRepo := repository.NewUserRepository(s.db, s.log)
	connRepo := repository.NewConnectionRepository(s.db, s.log)
	videoRepo := repository.NewVideoRepository(s.db, s.log)
	maskRepo := repository.NewMaskRepository(s.db, s.log)
	batchRepo := repository.NewBatchRepository(s.db, s.log)

	authService := service.NewAuthService(userRepo, connRepo, s.cfg.Auth.JWTSecret, s.log)
	labelingService := service.NewLabelingService(videoRepo, maskRepo, batchRepo, authService,
		labelingConfig(s.cfg), s.log)

	authHandler := handler.NewAuthHandler(authService, s.log)
	videoHandler := handler.NewVideoHandler(labelingService, authService, videoRepo, s.log)
	maskHandler := handler.NewMaskHandler(labelingService, authService, maskRepo, s.log)
	statsHandler := handler.NewStatsHandler(videoRepo, maskRepo, userRepo, s.log)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	api := s.router.Group("/api/v1")
	api.POST("/login", authHandler.Login)

	// Public aggregated reads
	api.GET("/get_label_statistics", statsHandler.GetLabelStatistics)
	api.GET("/leaderboard", statsHandler.GetLeaderboard)
	api.GET("/get_pos_labels", videoHandler.GetPosLabels)
	api.GET("/get_neg_labels", videoHandler.GetNegLabels)
	api.GET("/get_pos_segment_labels", maskHandler.GetPosSegmentLabels)
	api.GET("/get_neg_segment_labels", maskHandler.GetNegSegmentLabels)

	// Authenticated labeling routes
	authRequired := s.router.Group("/api/v1")
	authRequired.Use(middleware.AuthMiddleware(authService, s.log))
	{
		authRequired.POST("/get_batch", videoHandler.GetBatch)
		authRequired.POST("/send_batch", videoHandler.SendBatch)
		authRequired.POST("/get_segment_batch", maskHandler.GetSegmentBatch)
		authRequired.POST("/send_segment_batch", maskHandler.SendSegmentBatch)
	}

	// Researcher-only routes
	researcher := s.router.Group("/api/v1")
	researcher.Use(middleware.AuthMiddleware(authService, s.log), middleware.RequireResearcher())
	{
		researcher.POST("/update_client_type", authHandler.UpdateClientType)
		researcher.POST("/set_label_state", videoHandler.SetLabelState)
		researcher.POST("/set_segment_label_state", maskHandler.SetSegmentLabelState)
		researcher.GET("/get_maybe_pos_labels", videoHandler.GetMaybePosLabels)
		researcher.GET("/get_maybe_neg_labels", videoHandler.GetMaybeNegLabels)
		researcher.GET("/get_discorded_labels", videoHandler.GetDiscordedLabels)
		researcher.GET("/get_pos_gold_labels", videoHandler.GetPosGoldLabels)
		researcher.GET("/get_neg_gold_labels", videoHandler.GetNegGoldLabels)
		researcher.GET("/get_bad_labels", videoHandler.GetBadLabels)
		researcher.GET("/get_partial_segment_labels", maskHandler.GetPartialSegmentLabels)
		researcher.GET("/get_gold_segment_labels", maskHandler.GetGoldSegmentLabels)
		researcher.GET("/get_bad_segment_labels", maskHandler.GetBadSegmentLabels)
	}
}

func labelingConfig(cfg *config.Config) service.LabelingConfig {
	return service.LabelingConfig{
		VideoSampler: label.SamplerConfig{
			BatchSize:    cfg.Labeling.VideoBatchSize,
			GoldPerBatch: cfg.Labeling.VideoGoldStandards,
			PartialRatio: cfg.Labeling.PartialLabelRatio,
		},
		MaskSampler: label.SamplerConfig{
			BatchSize:    cfg.Labeling.SegmentBatchSize,
			GoldPerBatch: cfg.Labeling.SegmentGoldStandards,
			PartialRatio: cfg.Labeling.PartialLabelRatio,
		},
		VideoGate: label.GateConfig{
			MinCorrectGold: cfg.Labeling.MinCorrectGold,
		},
		MaskGate: label.GateConfig{
			MinCorrectGold: cfg.Labeling.MinCorrectGold,
			IoUThreshold:   cfg.Labeling.IoUThreshold,
		},
		BatchCooldown: time.Duration(cfg.Labeling.BatchCooldownSeconds) * time.Second,
	}
}

func (s *Server) Run(addr string) {
	s.log.Info("Server starting", zap.String("addr", addr))
	if err := s.router.Run(addr); err != nil {
		s.log.Fatal("Server failed to start", zap.Error(err))
	}
}
