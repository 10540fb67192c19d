package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmcompanion/api/audit"
	mw "github.com/dmcompanion/api/middleware"
	"github.com/dmcompanion/api/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EncounterHandler handles encounter REST endpoints.
type EncounterHandler struct {
	db      *gorm.DB
	audit   *audit.Service
	baseURL string
	logger  *zap.Logger
}

// NewEncounterHandler creates a new EncounterHandler.
func NewEncounterHandler(db *gorm.DB, auditSvc *audit.Service, baseURL string, logger *zap.Logger) *EncounterHandler {
	return &EncounterHandler{db: db, audit: auditSvc, baseURL: baseURL, logger: logger}
}

// encounterResource is an encounter document with its injected self-link.
type encounterResource struct {
	model.Encounter
	Request resourceLink `json:"request"`
}

func (h *EncounterHandler) wrap(enc model.Encounter) encounterResource {
	return encounterResource{Encounter: enc, Request: getLink(h.baseURL, "encounters", enc.ID)}
}

type createEncounterRequest struct {
	Name   string `json:"name" binding:"required,max=64"`
	Status string `json:"status" binding:"required"`
}

// Create handles POST /encounters.
func (h *EncounterHandler) Create(c *gin.Context) {
	var req createEncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("encounter create rejected", zap.Error(err))
		respond(c, http.StatusBadRequest, "Error creating Encounter document", nil)
		return
	}
	if !model.ValidEncounterStatus(req.Status) {
		respond(c, http.StatusBadRequest, "Invalid status: must be Pending, Active or Concluded", nil)
		return
	}

	enc := model.Encounter{
		ID:     uuid.NewString(),
		Name:   req.Name,
		Status: req.Status,
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		// Creating an encounter directly as Active displaces the holder.
		if enc.Status == model.EncounterActive {
			if err := tx.Model(&model.Encounter{}).
				Where("status = ?", model.EncounterActive).
				Update("status", model.EncounterConcluded).Error; err != nil {
				return err
			}
		}
		return tx.Create(&enc).Error
	})
	if err != nil {
		h.logger.Error("encounter create failed", zap.Error(err))
		respond(c, http.StatusBadRequest, "Error creating Encounter document", nil)
		return
	}

	h.auditLog(c, "encounter.create", enc.ID, req, "")
	respond(c, http.StatusCreated, "Successfully created new Encounter document", gin.H{
		"createdEncounter": h.wrap(enc),
	})
}

// List handles GET /encounters.
func (h *EncounterHandler) List(c *gin.Context) {
	var encs []model.Encounter
	if err := h.db.Find(&encs).Error; err != nil {
		h.logger.Error("encounter list failed", zap.Error(err))
		respond(c, http.StatusBadRequest, "Error getting Encounter documents", nil)
		return
	}
	items := make([]encounterResource, 0, len(encs))
	for _, enc := range encs {
		items = append(items, h.wrap(enc))
	}
	// An empty collection is still a successful fetch with count 0.
	respond(c, http.StatusOK, "Successfully fetched all Encounter documents", gin.H{
		"count":      len(items),
		"encounters": items,
	})
}

// Get handles GET /encounters/:id.
func (h *EncounterHandler) Get(c *gin.Context) {
	id := c.Param("id")
	var enc model.Encounter
	err := h.db.First(&enc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respond(c, http.StatusNotFound, "No Encounter document found for provided ID", nil)
		return
	}
	if err != nil {
		h.logger.Error("encounter get failed", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error getting Encounter document", nil)
		return
	}
	respond(c, http.StatusOK, "Successfully fetched Encounter document", gin.H{
		"encounter": enc,
	})
}

// SetActive handles POST /encounters/:id/setActive.
//
// The demotion is a conditional UPDATE, never a read-then-write: an UPDATE
// locks the rows it matches and sees committed state, so two concurrent
// promotions serialize and exactly one encounter ends up Active. A snapshot
// read of the current holder would let both transactions demote the same
// stale row under MySQL repeatable read.
func (h *EncounterHandler) SetActive(c *gin.Context) {
	id := c.Param("id")

	var target model.Encounter
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&target, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Encounter{}).
			Where("status = ? AND id <> ?", model.EncounterActive, id).
			Update("status", model.EncounterConcluded).Error; err != nil {
			return err
		}
		return tx.Model(&target).Update("status", model.EncounterActive).Error
	})
	if err != nil {
		h.logger.Warn("encounter set active failed", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error updating/setting Active Encounter", nil)
		return
	}

	h.auditLog(c, "encounter.set_active", id, nil, "")
	respond(c, http.StatusOK, "Successfully updated/set Active Encounter", gin.H{
		"activeEncounter": h.wrap(target),
	})
}

// Patch handles PATCH /encounters/:id with an array of {propName, value} ops.
// Setting status to Active demotes every currently Active encounter first,
// which also repairs a prior state with more than one Active holder.
func (h *EncounterHandler) Patch(c *gin.Context) {
	id := c.Param("id")
	var ops []patchOp
	if err := c.ShouldBindJSON(&ops); err != nil {
		respond(c, http.StatusBadRequest, "Error patching Encounter document", nil)
		return
	}

	updates, err := encounterUpdates(ops)
	if err != nil {
		h.logger.Warn("encounter patch rejected", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error patching Encounter document", nil)
		return
	}
	settingActive := updates["status"] == model.EncounterActive

	var modified int64
	txErr := h.db.Transaction(func(tx *gorm.DB) error {
		if settingActive {
			if err := tx.Model(&model.Encounter{}).
				Where("status = ?", model.EncounterActive).
				Update("status", model.EncounterConcluded).Error; err != nil {
				return err
			}
		}
		result := tx.Model(&model.Encounter{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Roll back so a failed patch leaves the demotions unapplied.
			return gorm.ErrRecordNotFound
		}
		modified = result.RowsAffected
		return nil
	})
	if errors.Is(txErr, gorm.ErrRecordNotFound) {
		respond(c, http.StatusInternalServerError, "Patch failed: Encounter document not found", nil)
		return
	}
	if txErr != nil {
		h.logger.Error("encounter patch failed", zap.Error(txErr), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error patching Encounter document", nil)
		return
	}

	h.auditLog(c, "encounter.patch", id, ops, "")
	payload := gin.H{
		"modifiedCount": modified,
		"id":            id,
		"request":       getLink(h.baseURL, "encounters", id),
	}
	if settingActive {
		payload["activeEncounter"] = id
	}
	respond(c, http.StatusOK, "Successfully patched Encounter document", payload)
}

// Delete handles DELETE /encounters/:id.
func (h *EncounterHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	result := h.db.Where("id = ?", id).Delete(&model.Encounter{})
	if result.Error != nil {
		h.logger.Error("encounter delete failed", zap.Error(result.Error), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error deleting Encounter document", nil)
		return
	}
	h.auditLog(c, "encounter.delete", id, nil, "")
	respond(c, http.StatusOK, "Successfully deleted Encounter document", gin.H{
		"deletedCount": result.RowsAffected,
	})
}

// DeleteAll handles DELETE /encounters.
func (h *EncounterHandler) DeleteAll(c *gin.Context) {
	result := h.db.Where("1 = 1").Delete(&model.Encounter{})
	if result.Error != nil {
		h.logger.Error("encounter delete all failed", zap.Error(result.Error))
		respond(c, http.StatusBadRequest, "Error deleting all Encounter documents", nil)
		return
	}
	h.auditLog(c, "encounter.delete_all", "", nil, "")
	respond(c, http.StatusOK, "Successfully deleted all Encounter documents", gin.H{
		"deletedCount": result.RowsAffected,
	})
}

func (h *EncounterHandler) auditLog(c *gin.Context, action, resourceID string, req interface{}, errMsg string) {
	if h.audit == nil {
		return
	}
	var account *int64
	if id := mw.GetAccountID(c); id != 0 {
		account = &id
	}
	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		AccountID:  account,
		Action:     action,
		ResourceID: resourceID,
		Request:    req,
		Error:      errMsg,
		IP:         c.ClientIP(),
	})
}

// encounterUpdates maps patch ops onto the allowed encounter columns.
func encounterUpdates(ops []patchOp) (map[string]interface{}, error) {
	updates := make(map[string]interface{}, len(ops))
	for _, op := range ops {
		switch op.PropName {
		case "name":
			s, ok := op.Value.(string)
			if !ok {
				return nil, fmt.Errorf("field %q wants a string", op.PropName)
			}
			updates["name"] = s
		case "status":
			s, ok := op.Value.(string)
			if !ok || !model.ValidEncounterStatus(s) {
				return nil, fmt.Errorf("field %q wants one of Pending, Active, Concluded", op.PropName)
			}
			updates["status"] = s
		default:
			return nil, fmt.Errorf("unknown field %q", op.PropName)
		}
	}
	return updates, nil
}
