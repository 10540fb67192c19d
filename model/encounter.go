package model

import "time"

// Encounter status values. At most one encounter may be Active at a time.
const (
	EncounterPending   = "Pending"
	EncounterActive    = "Active"
	EncounterConcluded = "Concluded"
)

// ValidEncounterStatus reports whether s is one of the known status labels.
func ValidEncounterStatus(s string) bool {
	return s == EncounterPending || s == EncounterActive || s == EncounterConcluded
}

// Encounter is a combat or scene encounter run by the game master.
type Encounter struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	Status    string    `gorm:"size:16;index;not null" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
