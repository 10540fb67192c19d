package main

import (
	"fmt"
	"log"
	"os"

	apirest "github.com/dmcompanion/api/api/rest"
	"github.com/dmcompanion/api/audit"
	"github.com/dmcompanion/api/cache"
	"github.com/dmcompanion/api/config"
	dbadapter "github.com/dmcompanion/api/db"
	"github.com/dmcompanion/api/image"
	mw "github.com/dmcompanion/api/middleware"
	"github.com/dmcompanion/api/model"
	"github.com/dmcompanion/api/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Session cache ----
	c, err := cache.NewCache(cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Image resolver ----
	images, err := image.NewResolver(cfg.Uploads, logger)
	if err != nil {
		log.Fatalf("uploads: %v", err)
	}

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("image_cleanup", cfg.Uploads.CleanupInterval, func() {
		if _, err := images.CleanOrphans(db); err != nil {
			logger.Warn("image cleanup failed", zap.Error(err))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(cfg.Security))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// Stored portrait assets, served under the same paths as picUrl values.
	r.Static("/uploads", cfg.Uploads.Dir)

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	charH := apirest.NewCharacterHandler(db, images, auditSvc, cfg.Server.PublicURL, logger)
	encH := apirest.NewEncounterHandler(db, auditSvc, cfg.Server.PublicURL, logger)
	adminH := apirest.NewAdminHandler(db, images, sched, logger)

	authG := r.Group("/auth")
	authG.POST("/login", authH.Login)
	authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
	authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

	charsG := r.Group("/characters")
	charsG.POST("", charH.Create)
	charsG.GET("", charH.List)
	charsG.GET("/mine", mw.Auth(cfg.Security, c), charH.ListMine)
	charsG.GET("/:id", charH.Get)
	charsG.PATCH("/:id", charH.Patch)
	charsG.POST("/:id/image", charH.UpdateImage)
	charsG.DELETE("/:id", charH.Delete)
	charsG.DELETE("", charH.DeleteAll)

	encsG := r.Group("/encounters")
	encsG.POST("", encH.Create)
	encsG.GET("", encH.List)
	encsG.GET("/:id", encH.Get)
	encsG.POST("/:id/setActive", encH.SetActive)
	encsG.PATCH("/:id", encH.Patch)
	encsG.DELETE("/:id", encH.Delete)
	encsG.DELETE("", encH.DeleteAll)

	adminG := r.Group("/admin")
	adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
	adminG.GET("/metrics", adminH.Metrics)
	adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	adminG.POST("/cleanup-images", adminH.CleanupImages)
	adminG.POST("/accounts/:id/ban", adminH.BanAccount)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
