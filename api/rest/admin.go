package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmcompanion/api/image"
	"github.com/dmcompanion/api/model"
	"github.com/dmcompanion/api/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db      *gorm.DB
	images  *image.Resolver
	sched   *scheduler.Scheduler
	started time.Time
	logger  *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, images *image.Resolver, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, images: images, sched: sched, started: time.Now(), logger: logger}
}

// Metrics returns collection sizes and server health.
// GET /admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var characters, encounters int64
	h.db.Model(&model.Character{}).Count(&characters)
	h.db.Model(&model.Encounter{}).Count(&encounters)

	var active model.Encounter
	activeID := ""
	if err := h.db.Where("status = ?", model.EncounterActive).First(&active).Error; err == nil {
		activeID = active.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"characters":       characters,
		"encounters":       encounters,
		"active_encounter": activeID,
		"uptime_s":         int64(time.Since(h.started).Seconds()),
		"scheduler_tasks":  h.sched.ListTickers(),
	})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// CleanupImages runs the orphan image sweep immediately.
// POST /admin/cleanup-images
func (h *AdminHandler) CleanupImages(c *gin.Context) {
	removed, err := h.images.CleanOrphans(h.db)
	if err != nil {
		h.logger.Error("image cleanup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// BanAccount bans or unbans a user account.
// POST /admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Ban {
		status = 0
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	h.logger.Info("admin changed account status",
		zap.Int64("account_id", accountID), zap.Int("status", status))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
