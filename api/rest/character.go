package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmcompanion/api/audit"
	"github.com/dmcompanion/api/image"
	mw "github.com/dmcompanion/api/middleware"
	"github.com/dmcompanion/api/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CharacterHandler handles character REST endpoints.
type CharacterHandler struct {
	db      *gorm.DB
	images  *image.Resolver
	audit   *audit.Service
	baseURL string
	logger  *zap.Logger
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(db *gorm.DB, images *image.Resolver, auditSvc *audit.Service, baseURL string, logger *zap.Logger) *CharacterHandler {
	return &CharacterHandler{db: db, images: images, audit: auditSvc, baseURL: baseURL, logger: logger}
}

// characterResource is a character document with its injected self-link.
type characterResource struct {
	model.Character
	Request resourceLink `json:"request"`
}

func (h *CharacterHandler) wrap(char model.Character) characterResource {
	return characterResource{Character: char, Request: getLink(h.baseURL, "characters", char.ID)}
}

type createCharacterRequest struct {
	Name         string   `form:"name" json:"name" binding:"required,max=64"`
	Level        int      `form:"level" json:"level"`
	ArmorClass   int      `form:"armorclass" json:"armorclass"`
	HitPoints    *int     `form:"hitpoints" json:"hitpoints"`
	MaxHitPoints int      `form:"maxhitpoints" json:"maxhitpoints"`
	Conditions   []string `form:"conditions" json:"conditions"`
	Player       bool     `form:"player" json:"player"`
	User         *int64   `form:"user" json:"user"`
	CharacterPic string   `form:"characterPic" json:"characterPic"`
}

// Create handles POST /characters. Accepts JSON or multipart form data; an
// uploaded "characterImage" file takes priority over the characterPic URL.
func (h *CharacterHandler) Create(c *gin.Context) {
	var req createCharacterRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("character create rejected", zap.Error(err))
		respond(c, http.StatusBadRequest, "Error creating Character document", nil)
		return
	}

	// FormFile fails on non-multipart requests; that simply means no upload.
	file, _ := c.FormFile("characterImage")

	picURL, err := h.images.Resolve(file, req.CharacterPic)
	if err != nil {
		h.logger.Error("character image store failed", zap.Error(err))
		respond(c, http.StatusBadRequest, "Error creating Character document", nil)
		return
	}

	hitpoints := req.MaxHitPoints
	if req.HitPoints != nil {
		hitpoints = *req.HitPoints
	}
	if req.Conditions == nil {
		req.Conditions = []string{}
	}
	condJSON, _ := json.Marshal(req.Conditions)

	// Only player characters carry an owning account.
	var user *int64
	if req.Player {
		user = req.User
	}

	char := model.Character{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Level:        req.Level,
		ArmorClass:   req.ArmorClass,
		HitPoints:    hitpoints,
		MaxHitPoints: req.MaxHitPoints,
		Conditions:   datatypes.JSON(condJSON),
		Player:       req.Player,
		UserID:       user,
		PicURL:       picURL,
	}

	if err := h.db.Create(&char).Error; err != nil {
		h.logger.Error("character create failed", zap.Error(err))
		respond(c, http.StatusBadRequest, "Error creating Character document", nil)
		return
	}

	h.auditLog(c, "character.create", char.ID, req, "")
	respond(c, http.StatusCreated, "Successfully created new Character document", gin.H{
		"createdCharacter": h.wrap(char),
	})
}

// List handles GET /characters.
func (h *CharacterHandler) List(c *gin.Context) {
	var chars []model.Character
	if err := h.db.Find(&chars).Error; err != nil {
		h.logger.Error("character list failed", zap.Error(err))
		respond(c, http.StatusBadRequest, "Error getting Character documents", nil)
		return
	}
	items := make([]characterResource, 0, len(chars))
	for _, char := range chars {
		items = append(items, h.wrap(char))
	}
	// An empty collection is still a successful fetch with count 0.
	respond(c, http.StatusOK, "Successfully fetched all Character documents", gin.H{
		"count":      len(items),
		"characters": items,
	})
}

// ListMine handles GET /characters/mine for the authenticated account.
func (h *CharacterHandler) ListMine(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var chars []model.Character
	if err := h.db.Where("user_id = ?", accountID).Find(&chars).Error; err != nil {
		h.logger.Error("character list failed", zap.Error(err), zap.Int64("account_id", accountID))
		respond(c, http.StatusBadRequest, "Error getting User's Character documents", nil)
		return
	}
	items := make([]characterResource, 0, len(chars))
	for _, char := range chars {
		items = append(items, h.wrap(char))
	}
	respond(c, http.StatusOK, "Successfully fetched all User's Character documents", gin.H{
		"count":      len(items),
		"characters": items,
	})
}

// Get handles GET /characters/:id.
func (h *CharacterHandler) Get(c *gin.Context) {
	id := c.Param("id")
	var char model.Character
	err := h.db.First(&char, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respond(c, http.StatusNotFound, "No Character document found for provided ID", nil)
		return
	}
	if err != nil {
		h.logger.Error("character get failed", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error getting Character document", nil)
		return
	}
	respond(c, http.StatusOK, "Successfully fetched Character document", gin.H{
		"character": char,
	})
}

// Patch handles PATCH /characters/:id with an array of {propName, value} ops.
func (h *CharacterHandler) Patch(c *gin.Context) {
	id := c.Param("id")
	var ops []patchOp
	if err := c.ShouldBindJSON(&ops); err != nil {
		respond(c, http.StatusBadRequest, "Error patching Character document", nil)
		return
	}

	updates, err := characterUpdates(ops)
	if err != nil {
		h.logger.Warn("character patch rejected", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error patching Character document", nil)
		return
	}

	var char model.Character
	err = h.db.First(&char, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respond(c, http.StatusInternalServerError, "Patch failed: Character document not found", nil)
		return
	}
	if err != nil {
		h.logger.Error("character patch failed", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error patching Character document", nil)
		return
	}

	// Ownership tracks the player flag: a non-player character cannot gain
	// an owner, and demoting one to non-player drops its owner.
	player := char.Player
	if p, ok := updates["player"].(bool); ok {
		player = p
	}
	if !player {
		if v, ok := updates["user_id"]; ok && v != nil {
			h.logger.Warn("character patch rejected",
				zap.String("id", id), zap.String("reason", "owner on non-player"))
			respond(c, http.StatusBadRequest, "Error patching Character document", nil)
			return
		}
		if _, ok := updates["player"]; ok && char.UserID != nil {
			updates["user_id"] = nil
		}
	}

	result := h.db.Model(&model.Character{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		h.logger.Error("character patch failed", zap.Error(result.Error), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error patching Character document", nil)
		return
	}
	if result.RowsAffected == 0 {
		respond(c, http.StatusInternalServerError, "Patch failed: Character document not found", nil)
		return
	}

	h.auditLog(c, "character.patch", id, ops, "")
	respond(c, http.StatusOK, "Successfully patched Character document", gin.H{
		"modifiedCount": result.RowsAffected,
		"id":            id,
		"request":       getLink(h.baseURL, "characters", id),
	})
}

type updateImageRequest struct {
	CharacterPic string `form:"characterPic" json:"characterPic"`
}

// UpdateImage handles POST /characters/:id/image. The new portrait is
// resolved exactly like Create; the replaced file is reclaimed later by the
// orphan cleanup task.
func (h *CharacterHandler) UpdateImage(c *gin.Context) {
	id := c.Param("id")
	var char model.Character
	err := h.db.First(&char, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respond(c, http.StatusInternalServerError, "Character Image update failed: Character document not found", nil)
		return
	}
	if err != nil {
		h.logger.Error("character image update failed", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error updating Character Image", nil)
		return
	}

	var req updateImageRequest
	_ = c.ShouldBind(&req)
	file, _ := c.FormFile("characterImage")

	var picURL string
	switch {
	case file != nil:
		picURL, err = h.images.SaveUpload(file)
		if err != nil {
			h.logger.Error("character image store failed", zap.Error(err), zap.String("id", id))
			respond(c, http.StatusBadRequest, "Error updating Character Image", nil)
			return
		}
	case image.IsWebURL(req.CharacterPic):
		picURL = h.images.Fetch(req.CharacterPic)
	default:
		respond(c, http.StatusNotFound, "Character Image update failed: no valid image or URL found", nil)
		return
	}

	if err := h.db.Model(&char).Update("pic_url", picURL).Error; err != nil {
		h.logger.Error("character image update failed", zap.Error(err), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error updating Character Image", nil)
		return
	}
	char.PicURL = picURL

	h.auditLog(c, "character.update_image", id, gin.H{"picUrl": picURL}, "")
	respond(c, http.StatusOK, "Successfully updated Character Image", gin.H{
		"character": char,
		"id":        id,
		"picUrl":    h.baseURL + "/" + picURL,
		"request":   getLink(h.baseURL, "characters", id),
	})
}

// Delete handles DELETE /characters/:id.
func (h *CharacterHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	result := h.db.Where("id = ?", id).Delete(&model.Character{})
	if result.Error != nil {
		h.logger.Error("character delete failed", zap.Error(result.Error), zap.String("id", id))
		respond(c, http.StatusBadRequest, "Error deleting Character document", nil)
		return
	}
	h.auditLog(c, "character.delete", id, nil, "")
	respond(c, http.StatusOK, "Successfully deleted Character document", gin.H{
		"deletedCount": result.RowsAffected,
	})
}

// DeleteAll handles DELETE /characters.
func (h *CharacterHandler) DeleteAll(c *gin.Context) {
	result := h.db.Where("1 = 1").Delete(&model.Character{})
	if result.Error != nil {
		h.logger.Error("character delete all failed", zap.Error(result.Error))
		respond(c, http.StatusBadRequest, "Error deleting all Character documents", nil)
		return
	}
	h.auditLog(c, "character.delete_all", "", nil, "")
	respond(c, http.StatusOK, "Successfully deleted all Character documents", gin.H{
		"deletedCount": result.RowsAffected,
	})
}

func (h *CharacterHandler) auditLog(c *gin.Context, action, resourceID string, req interface{}, errMsg string) {
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

// characterUpdates maps patch ops onto an allow-list of columns with typed
// values. Unknown field names are rejected.
func characterUpdates(ops []patchOp) (map[string]interface{}, error) {
	updates := make(map[string]interface{}, len(ops))
	for _, op := range ops {
		switch op.PropName {
		case "name", "picUrl":
			s, ok := op.Value.(string)
			if !ok {
				return nil, fmt.Errorf("field %q wants a string", op.PropName)
			}
			if op.PropName == "picUrl" {
				updates["pic_url"] = s
			} else {
				updates["name"] = s
			}
		case "level", "armorclass", "hitpoints", "maxhitpoints":
			n, ok := toInt(op.Value)
			if !ok {
				return nil, fmt.Errorf("field %q wants a number", op.PropName)
			}
			updates[op.PropName] = n
		case "player":
			b, ok := op.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("field %q wants a boolean", op.PropName)
			}
			updates["player"] = b
		case "user":
			if op.Value == nil {
				updates["user_id"] = nil
				continue
			}
			n, ok := toInt(op.Value)
			if !ok {
				return nil, fmt.Errorf("field %q wants a number or null", op.PropName)
			}
			updates["user_id"] = int64(n)
		case "conditions":
			if _, ok := op.Value.([]interface{}); !ok {
				return nil, fmt.Errorf("field %q wants an array", op.PropName)
			}
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return nil, err
			}
			updates["conditions"] = datatypes.JSON(raw)
		default:
			return nil, fmt.Errorf("unknown field %q", op.PropName)
		}
	}
	return updates, nil
}
