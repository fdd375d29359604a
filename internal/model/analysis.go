package model

import (
	"time"

	"gorm.io/datatypes"

	"wristsight-viewer/pkg/models"
)

// Analysis is a stored X-ray analysis
type Analysis struct {
	ID           string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PatientID    string `gorm:"type:varchar(100);not null;index" json:"patient_id"`
	APImagePath  string `gorm:"type:varchar(500)" json:"-"`
	LatImagePath string `gorm:"type:varchar(500)" json:"-"`
	Notes        string `gorm:"type:text" json:"notes"`
	Status       string `gorm:"type:varchar(32);not null;default:Complete" json:"status"`
	Summary      string `gorm:"type:text" json:"summary"`

	// Measurements with their overlay geometry, stored as one JSON column
	Measurements datatypes.JSONSlice[models.Measurement] `json:"measurements"`

	UserID *uint `gorm:"index" json:"user_id,omitempty"`

	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasImage reports whether an image was stored for the view
func (a *Analysis) HasImage(view models.View) bool {
	if view == models.ViewLat {
		return a.LatImagePath != ""
	}
	return a.APImagePath != ""
}

// TableName returns the table name for Analysis
func (Analysis) TableName() string {
	return "analyses"
}

// User is a backend account
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null;default:NORMAL" json:"role"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}
