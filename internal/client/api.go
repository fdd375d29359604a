package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wristsight-viewer/pkg/models"
)

// ErrUnauthorized is returned when the backend answers 401. The token has already been cleared.
var ErrUnauthorized = errors.New("authentication required")

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// TokenSource supplies and forgets the bearer token of the current user
type TokenSource interface {
	Token() string
	SetToken(token string)
	Clear()
}

// APIClient talks to the analysis backend. It is the only network boundary of the viewer.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *logrus.Logger
}

// NewAPIClient creates a client for the backend API rooted at baseURL (e.g. http://localhost:8000/api).
// A zero timeout leaves requests unbounded. tokens may be nil when auth is disabled.
func NewAPIClient(baseURL string, timeout time.Duration, tokens TokenSource, logger *logrus.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokens: tokens,
		logger: logger,
	}
}

// WithTokens returns a client sharing the HTTP transport but using another token source
func (c *APIClient) WithTokens(tokens TokenSource) *APIClient {
	clone := *c
	clone.tokens = tokens
	return &clone
}

// BaseURL returns the API root
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// CreateAnalysis uploads the images and returns the id of the new analysis
func (c *APIClient) CreateAnalysis(ctx context.Context, request models.CreateAnalysisRequest) (string, error) {
	c.logger.Infof("Submitting analysis for patient %s", request.PatientID)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("patient_id", request.PatientID); err != nil {
		return "", fmt.Errorf("failed to write patient_id: %w", err)
	}
	if request.Notes != "" {
		if err := writer.WriteField("notes", request.Notes); err != nil {
			return "", fmt.Errorf("failed to write notes: %w", err)
		}
	}
	if err := writeImage(writer, "ap_image", request.APImage); err != nil {
		return "", err
	}
	if err := writeImage(writer, "lat_image", request.LatImage); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var resp models.CreateAnalysisResponse
	if err := c.do(ctx, http.MethodPost, "/analyses", &body, writer.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	if resp.AnalysisID == "" {
		return "", errors.New("no analysis ID returned from server")
	}

	c.logger.Infof("Analysis %s created", resp.AnalysisID)
	return resp.AnalysisID, nil
}

func writeImage(writer *multipart.Writer, field string, image *models.ImageFile) error {
	if image == nil {
		return nil
	}
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, escapeQuotes(image.Filename)))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create form field %s: %w", field, err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return fmt.Errorf("failed to write %s data: %w", field, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// GetAnalysis fetches the full record of an analysis
func (c *APIClient) GetAnalysis(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	c.logger.Debugf("Fetching analysis %s", id)

	var payload models.AnalysisPayload
	if err := c.do(ctx, http.MethodGet, "/analyses/"+url.PathEscape(id), nil, "", &payload); err != nil {
		return nil, err
	}
	rec := payload.Normalize()
	return &rec, nil
}

// DeleteAnalysis removes an analysis and its images
func (c *APIClient) DeleteAnalysis(ctx context.Context, id string) error {
	c.logger.Infof("Deleting analysis %s", id)
	return c.do(ctx, http.MethodDelete, "/analyses/"+url.PathEscape(id), nil, "", nil)
}

// GetHistory lists analysis summaries matching the server-side filters
func (c *APIClient) GetHistory(ctx context.Context, query models.HistoryQuery) ([]models.AnalysisRecord, error) {
	params := url.Values{}
	if query.Skip > 0 {
		params.Set("skip", strconv.Itoa(query.Skip))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.PatientID != "" {
		params.Set("patient_id", query.PatientID)
	}
	if query.StartDate != "" {
		params.Set("start_date", query.StartDate)
	}
	if query.EndDate != "" {
		params.Set("end_date", query.EndDate)
	}

	path := "/history"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var payloads []models.AnalysisPayload
	if err := c.do(ctx, http.MethodGet, path, nil, "", &payloads); err != nil {
		return nil, err
	}
	c.logger.Debugf("Received %d history records", len(payloads))
	return models.NormalizeAll(payloads), nil
}

// GetPatientHistory lists the analyses of one patient
func (c *APIClient) GetPatientHistory(ctx context.Context, patientID string, limit int) ([]models.AnalysisRecord, error) {
	path := fmt.Sprintf("/patients/%s/history", url.PathEscape(patientID))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var payloads []models.AnalysisPayload
	if err := c.do(ctx, http.MethodGet, path, nil, "", &payloads); err != nil {
		return nil, err
	}
	return models.NormalizeAll(payloads), nil
}

// Login exchanges credentials for an access token and stores it
func (c *APIClient) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var token models.TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &token)
	if err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", errors.New("no access token returned from server")
	}
	if c.tokens != nil {
		c.tokens.SetToken(token.AccessToken)
	}
	return token.AccessToken, nil
}

// Register creates a new account
func (c *APIClient) Register(ctx context.Context, request models.RegisterRequest) (*models.User, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode register request: %w", err)
	}

	var user models.User
	if err := c.do(ctx, http.MethodPost, "/auth/register", bytes.NewReader(data), "application/json", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUser returns the account owning the stored token
func (c *APIClient) CurrentUser(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, "", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do sends a request and decodes a JSON answer into out (skipped when out is nil)
func (c *APIClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.logger.Debugf("Sending %s request to %s", method, endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warnf("%s %s returned 401, clearing token", method, path)
		if c.tokens != nil {
			c.tokens.Clear()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody models.ErrorResponse
		if json.Unmarshal(respBody, &errBody) == nil {
			apiErr.Detail = errBody.Detail
		}
		c.logger.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// ResolveImageURL turns the backend's relative static paths into absolute URLs.
// Static files live at the backend origin, outside the /api root.
func (c *APIClient) ResolveImageURL(raw string) string {
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		ref.Path = "/" + ref.Path
	}
	return base.ResolveReference(ref).String()
}

// StaticImagePath returns the conventional path of an analysis image
func StaticImagePath(analysisID string, view models.View) string {
	return fmt.Sprintf("/static/images/%s/%s.jpg", analysisID, view)
}
