package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/upishield/fraud-screening/configs"
	"github.com/upishield/fraud-screening/internal/auth"
	"github.com/upishield/fraud-screening/internal/detectors"
	"github.com/upishield/fraud-screening/internal/models"
	"github.com/upishield/fraud-screening/internal/queue"
	"github.com/upishield/fraud-screening/internal/repositories"
	"github.com/upishield/fraud-screening/internal/scoring"
	"github.com/upishield/fraud-screening/internal/services"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := configs.Load()

	setupLogging(cfg.Server.Environment)

	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting UPIShield screening API server")

	// Initialize database
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	streamClient, err := queue.NewDecisionStreamClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Cache")
	}
	defer cacheClient.Close()

	// Initialize repositories
	analystRepo := repositories.NewAnalystRepository(db)
	reviewRepo := repositories.NewReviewQueueRepository(db)
	feedbackRepo := repositories.NewFeedbackRepository(db)

	// Initialize detectors
	registry := detectors.LoadRegistry(cfg.Scoring.ModelDir)
	if !registry.AllLoaded() && !cfg.Scoring.AllowDegradedMode {
		log.Fatal().Str("state", registry.String()).Msg("Model artifacts missing and degraded mode disabled")
	}
	log.Info().Str("state", registry.String()).Msg("Detector registry ready")

	dets := []detectors.Detector{
		detectors.NewPhishingDetector(registry),
		detectors.NewQuishingDetector(registry),
		detectors.NewCollectDetector(registry, cfg.Scoring.LargeAmount),
		detectors.NewMalwareDetector(registry),
	}

	// Initialize services
	settings := scoring.NewSettings(cfg.Scoring, cfg.HITL)
	coordinator := scoring.NewCoordinator(settings, dets, reviewRepo, cacheClient, streamClient)

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	authService := services.NewAuthService(analystRepo, jwtManager)
	reviewService := services.NewReviewService(reviewRepo, feedbackRepo, cfg.Scoring.WarnThreshold)

	// Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	// Rate limiting: 100 requests per minute per IP
	rateLimiter := NewRateLimiter(100, time.Minute)
	router.Use(rateLimitMiddleware(rateLimiter))

	setupRoutes(router, cfg, registry, jwtManager, authService, reviewService, coordinator, db)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func setupRoutes(
	router *gin.Engine,
	cfg *configs.Config,
	registry *detectors.Registry,
	jwtManager *auth.JWTManager,
	authService *services.AuthService,
	reviewService *services.ReviewService,
	coordinator *scoring.Coordinator,
	db *repositories.Database,
) {
	// Health check reports model load state so a degraded instance is visible
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			status = "degraded"
		}

		// Queue depth is informational; its failure never flips the status.
		pending := -1
		if summary, err := reviewService.ListQueue(c.Request.Context(), 1); err == nil {
			pending = summary.Pending
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          status,
			"models":          registry.Loaded(),
			"pending_reviews": pending,
			"timestamp":       time.Now().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/api/v1")

	// Scoring is called by the payment switch, not by analysts
	v1.POST("/score_request", scoreRequestHandler(coordinator))

	// Auth routes (public)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", registerHandler(authService))
		authRoutes.POST("/login", loginHandler(authService))
	}

	// Analyst routes
	analystRoutes := v1.Group("")
	analystRoutes.Use(auth.AuthMiddleware(jwtManager))
	analystRoutes.Use(auth.RoleMiddleware(models.RoleAnalyst, models.RoleAdmin))
	{
		analystRoutes.GET("/review_queue", listQueueHandler(reviewService))
		analystRoutes.GET("/review_queue/overdue", overdueHandler(reviewService))
		analystRoutes.GET("/review_queue/:transaction_id", getEntryHandler(reviewService))
		analystRoutes.POST("/submit_review", submitReviewHandler(reviewService))
	}

	// Admin routes: retraining export and model lifecycle
	adminRoutes := v1.Group("/admin")
	adminRoutes.Use(auth.AuthMiddleware(jwtManager))
	adminRoutes.Use(auth.RoleMiddleware(models.RoleAdmin))
	{
		adminRoutes.GET("/feedback/pending", pendingFeedbackHandler(reviewService))
		adminRoutes.POST("/feedback/mark_used", markFeedbackUsedHandler(reviewService))
		adminRoutes.GET("/feedback/accuracy", modelAccuracyHandler(reviewService))
		adminRoutes.POST("/models/reload", reloadModelsHandler(registry, cfg.Scoring.ModelDir))
	}
}

// Middleware

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Str("request_id", c.GetString("request_id")).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimiter implements a simple in-memory rate limiter using token bucket algorithm
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Clean up old visitors periodically
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	now := time.Now()

	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastSeen: now}
		return true
	}

	// Refill tokens based on time elapsed
	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed / (rl.window / time.Duration(rl.rate)))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens > 0 {
		v.tokens--
		return true
	}

	return false
}

func rateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Handlers

func scoreRequestHandler(coordinator *scoring.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.TransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := coordinator.Score(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, scoring.ErrInvalidRequest) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func registerHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Register(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrWeakPassword) || errors.Is(err, repositories.ErrAnalystAlreadyExists) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func loginHandler(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := authService.Login(c.Request.Context(), &req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrInvalidCredentials) {
				status = http.StatusUnauthorized
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func listQueueHandler(reviewService *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := getIntParam(c, "limit", 100)

		summary, err := reviewService.ListQueue(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func overdueHandler(reviewService *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := reviewService.Overdue(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"overdue": entries, "count": len(entries)})
	}
}

func getEntryHandler(reviewService *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		transactionID := c.Param("transaction_id")

		entry, err := reviewService.GetEntry(c.Request.Context(), transactionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, scoring.ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, entry)
	}
}

func submitReviewHandler(reviewService *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SubmitReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		analystID, ok := auth.GetAnalystIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "analyst identity missing"})
			return
		}

		feedback, err := reviewService.SubmitReview(c.Request.Context(), analystID, &req)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, scoring.ErrNotFound):
				status = http.StatusNotFound
			case errors.Is(err, scoring.ErrAlreadyReviewed):
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, feedback)
	}
}

func pendingFeedbackHandler(reviewService *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		minSamples := getIntParam(c, "min_samples", 100)

		batch, err := reviewService.PendingFeedback(c.Request.Context(), minSamples)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, batch)
	}
}

func markFeedbackUsedHandler(reviewService *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TransactionIDs []string `json:"transaction_ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := reviewService.MarkFeedbackUsed(c.Request.Context(), req.TransactionIDs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"marked": len(req.TransactionIDs)})
	}
}

func modelAccuracyHandler(reviewService *services.ReviewService) gin.HandlerFunc {
	return func(c *gin.Context) {
		accuracy, total, err := reviewService.ModelAccuracy(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"accuracy": accuracy, "samples": total})
	}
}

func reloadModelsHandler(registry *detectors.Registry, modelDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry.Reload(modelDir)
		log.Info().Str("state", registry.String()).Msg("Model registry reloaded")
		c.JSON(http.StatusOK, gin.H{"models": registry.Loaded()})
	}
}

// Helper functions

func getIntParam(c *gin.Context, key string, defaultValue int) int {
	if val := c.Query(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil && result > 0 {
			return result
		}
	}
	return defaultValue
}
