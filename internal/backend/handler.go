package backend

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/handler"
	"wristsight-viewer/internal/history"
	"wristsight-viewer/internal/model"
	"wristsight-viewer/internal/repository"
	"wristsight-viewer/internal/service"
	"wristsight-viewer/pkg/models"
)

const userContextKey = "user"

// Options configure the development backend
type Options struct {
	// RequireAuth protects the analysis and history endpoints with the bearer token
	RequireAuth bool
	StaticDir   string
	MaxUploadMB int
	CORSOrigins []string
}

// Handler serves the analysis REST API
type Handler struct {
	analyses *service.AnalysisService
	auth     *service.AuthService
	ping     func() error
	opts     Options
	logger   *logrus.Logger
}

// NewHandler creates the API handler. ping reports database health and may be nil.
func NewHandler(analyses *service.AnalysisService, auth *service.AuthService, ping func() error, opts Options, logger *logrus.Logger) *Handler {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 20
	}
	return &Handler{
		analyses: analyses,
		auth:     auth,
		ping:     ping,
		opts:     opts,
		logger:   logger,
	}
}

// NewRouter builds the backend engine
func (h *Handler) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestLogger(h.logger))

	corsConfig := cors.DefaultConfig()
	if len(h.opts.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = h.opts.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsConfig))

	router.MaxMultipartMemory = int64(h.opts.MaxUploadMB) << 20
	if h.opts.StaticDir != "" {
		router.Static("/static", h.opts.StaticDir)
	}

	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers the API routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.GET("/me", h.RequireAuth(), h.Me)

		data := api.Group("")
		if h.opts.RequireAuth {
			data.Use(h.RequireAuth())
		}
		data.POST("/analyses", h.CreateAnalysis)
		data.GET("/analyses/:id", h.GetAnalysis)
		data.DELETE("/analyses/:id", h.DeleteAnalysis)
		data.GET("/history", h.History)
		data.GET("/patients/:id/history", h.PatientHistory)
	}
}

// Health reports whether the database answers
func (h *Handler) Health(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(); err != nil {
			h.logger.Errorf("Database health check failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "detail": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// CreateAnalysis stores the uploaded views and answers with the new id
func (h *Handler) CreateAnalysis(c *gin.Context) {
	patientID := strings.TrimSpace(c.PostForm("patient_id"))
	if patientID == "" {
		h.detail(c, http.StatusUnprocessableEntity, service.ErrPatientIDRequired.Error())
		return
	}

	in := service.CreateAnalysisInput{
		PatientID: patientID,
		Notes:     c.PostForm("notes"),
		Images:    make(map[models.View]service.UploadedImage),
	}
	if user, ok := c.Get(userContextKey); ok {
		id := user.(*model.User).ID
		in.UserID = &id
	}

	for _, v := range models.Views {
		header, err := c.FormFile(string(v) + "_image")
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			h.detail(c, http.StatusBadRequest, "invalid multipart form")
			return
		}
		data, err := h.readImage(header)
		if err != nil {
			h.detail(c, http.StatusBadRequest, err.Error())
			return
		}
		in.Images[v] = service.UploadedImage{Filename: header.Filename, Data: data}
	}

	id, err := h.analyses.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CreateAnalysisResponse{AnalysisID: id})
}

func (h *Handler) readImage(header *multipart.FileHeader) ([]byte, error) {
	maxBytes := int64(h.opts.MaxUploadMB) << 20
	if header.Size > maxBytes {
		return nil, fmt.Errorf("%s is larger than %d MB", header.Filename, h.opts.MaxUploadMB)
	}
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s", header.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s", header.Filename)
	}
	if mime := mimetype.Detect(data); !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", header.Filename, mime.String())
	}
	return data, nil
}

// GetAnalysis returns one analysis with its measurements
func (h *Handler) GetAnalysis(c *gin.Context) {
	detail, err := h.analyses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// DeleteAnalysis removes an analysis and its files
func (h *Handler) DeleteAnalysis(c *gin.Context) {
	if err := h.analyses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// History lists summaries with skip/limit and optional patient and date filters
func (h *Handler) History(c *gin.Context) {
	var query models.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.detail(c, http.StatusUnprocessableEntity, "skip and limit must be integers")
		return
	}
	limit, ok := queryLimit(c, service.DefaultHistoryLimit, service.MaxHistoryLimit)
	if !ok || query.Skip < 0 {
		h.detail(c, http.StatusUnprocessableEntity, fmt.Sprintf("limit must be between 1 and %d and skip must not be negative", service.MaxHistoryLimit))
		return
	}

	// end_date covers its whole day
	_, criteria, err := history.ParseFilters(history.Filters{
		PatientID: query.PatientID,
		StartDate: query.StartDate,
		EndDate:   query.EndDate,
	})
	if err != nil {
		h.detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	summaries, err := h.analyses.History(c.Request.Context(), repository.HistoryFilter{
		PatientID: criteria.PatientID,
		From:      criteria.Start,
		To:        criteria.End,
		Skip:      query.Skip,
		Limit:     limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// PatientHistory lists one patient's analyses with thumbnails
func (h *Handler) PatientHistory(c *gin.Context) {
	limit, ok := queryLimit(c, service.DefaultPatientLimit, service.MaxPatientLimit)
	if !ok {
		h.detail(c, http.StatusUnprocessableEntity, fmt.Sprintf("limit must be between 1 and %d", service.MaxPatientLimit))
		return
	}
	summaries, err := h.analyses.PatientHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func queryLimit(c *gin.Context, def, upper int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, false
	}
	return n, true
}

type registerBody struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates an account
func (h *Handler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.detail(c, http.StatusUnprocessableEntity, "invalid registration: "+err.Error())
		return
	}
	user, err := h.auth.Register(c.Request.Context(), models.RegisterRequest{
		Email:    body.Email,
		Username: body.Username,
		Password: body.Password,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Login exchanges form credentials for a bearer token
func (h *Handler) Login(c *gin.Context) {
	username, password := c.PostForm("username"), c.PostForm("password")
	if username == "" || password == "" {
		h.detail(c, http.StatusUnprocessableEntity, "username and password are required")
		return
	}
	token, err := h.auth.Login(c.Request.Context(), username, password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me returns the account owning the token
func (h *Handler) Me(c *gin.Context) {
	user := c.MustGet(userContextKey).(*model.User)
	c.JSON(http.StatusOK, service.ToUserOut(user))
}

// RequireAuth rejects requests without a valid bearer token
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			h.detail(c, http.StatusUnauthorized, "not authenticated")
			c.Abort()
			return
		}
		user, err := h.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (h *Handler) detail(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{Detail: message})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.detail(c, http.StatusNotFound, "Analysis with ID "+c.Param("id")+" not found")
	case errors.Is(err, service.ErrPatientIDRequired),
		errors.Is(err, service.ErrNoImages),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrUsernameTaken):
		h.detail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		c.Header("WWW-Authenticate", "Bearer")
		h.detail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled):
		h.detail(c, http.StatusForbidden, err.Error())
	default:
		h.logger.Errorf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		h.detail(c, http.StatusInternalServerError, "internal server error")
	}
}
