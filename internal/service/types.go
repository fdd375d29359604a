package service

import (
	"time"

	"wristsight-viewer/pkg/models"
)

// ImageURLs are the nested image links of a history summary
type ImageURLs struct {
	APImageURL  *string `json:"ap_image_url"`
	LatImageURL *string `json:"lat_image_url"`
}

// AnalysisDetail is the answer of GET /api/analyses/{id}
type AnalysisDetail struct {
	ID           string               `json:"id"`
	PatientID    string               `json:"patient_id"`
	Timestamp    time.Time            `json:"timestamp"`
	APImageURL   *string              `json:"ap_image_url"`
	LatImageURL  *string              `json:"lat_image_url"`
	HasAP        bool                 `json:"has_ap"`
	HasLat       bool                 `json:"has_lat"`
	Notes        *string              `json:"notes"`
	Status       string               `json:"status"`
	Measurements []models.Measurement `json:"measurements"`
	Summary      string               `json:"summary"`
}

// AnalysisSummary is one row of GET /api/history
type AnalysisSummary struct {
	ID        string     `json:"id"`
	PatientID string     `json:"patient_id"`
	Timestamp time.Time  `json:"timestamp"`
	ImageURLs *ImageURLs `json:"image_urls"`
	Summary   string     `json:"summary"`
	Status    string     `json:"status"`
}

// PatientSummary is one row of GET /api/patients/{id}/history
type PatientSummary struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	Timestamp    time.Time `json:"timestamp"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	Summary      string    `json:"summary"`
	Status       string    `json:"status"`
}

// UploadedImage is one image of a create request
type UploadedImage struct {
	Filename string
	Data     []byte
}

// CreateAnalysisInput is a validated POST /api/analyses request
type CreateAnalysisInput struct {
	PatientID string
	Notes     string
	Images    map[models.View]UploadedImage
	UserID    *uint
}

// UserOut is an account as returned by the auth endpoints
type UserOut struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
