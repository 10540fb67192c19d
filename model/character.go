package model

import (
	"time"

	"gorm.io/datatypes"
)

// Character is a player or non-player character tracked by the companion app.
type Character struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Name         string         `gorm:"size:64;not null" json:"name"`
	Level        int            `json:"level"`
	ArmorClass   int            `gorm:"column:armorclass" json:"armorclass"`
	HitPoints    int            `gorm:"column:hitpoints" json:"hitpoints"`
	MaxHitPoints int            `gorm:"column:maxhitpoints" json:"maxhitpoints"`
	Conditions   datatypes.JSON `json:"conditions"` // ["Stunned", "Prone", ...]
	Player       bool           `gorm:"default:false" json:"player"`
	UserID       *int64         `gorm:"column:user_id;index" json:"user"` // owning account, player characters only
	PicURL       string         `gorm:"column:pic_url;size:255" json:"picUrl"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
