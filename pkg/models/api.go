package models

// ImageFile is an image selected for upload
type ImageFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"` // not serialized
}

// CreateAnalysisRequest is the multipart submission for POST /analyses
type CreateAnalysisRequest struct {
	PatientID string     `json:"patient_id"`
	Notes     string     `json:"notes,omitempty"`
	APImage   *ImageFile `json:"ap_image,omitempty"`
	LatImage  *ImageFile `json:"lat_image,omitempty"`
}

// CreateAnalysisResponse is returned by POST /analyses
type CreateAnalysisResponse struct {
	AnalysisID string `json:"analysis_id"`
}

// HistoryQuery carries the server-side filters of GET /history.
// Zero values are omitted from the query string.
type HistoryQuery struct {
	Skip      int    `form:"skip" json:"skip,omitempty"`
	Limit     int    `form:"limit" json:"limit,omitempty"`
	PatientID string `form:"patient_id" json:"patient_id,omitempty"`
	StartDate string `form:"start_date" json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate   string `form:"end_date" json:"end_date,omitempty"`     // YYYY-MM-DD
}

// TokenResponse is returned by POST /auth/login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// User roles known to the backend
const (
	RoleNormal    = "NORMAL"
	RoleAdmin     = "ADMIN"
	RoleSuperuser = "SUPERUSER"
)

// User is the authenticated account returned by GET /auth/me
type User struct {
	ID       FlexString `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email,omitempty"`
	Role     string     `json:"role"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email           string `json:"email" form:"email" validate:"required,email"`
	Username        string `json:"username" form:"username" validate:"required,username"`
	Password        string `json:"password" form:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"-" form:"confirm_password" validate:"eqfield=Password"`
}

// ErrorResponse is the error body used by the backend
type ErrorResponse struct {
	Detail string `json:"detail"`
}
