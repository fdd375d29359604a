package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/client"
	"wristsight-viewer/pkg/models"
)

// ErrCredentialsRequired is returned by Login when username or password is empty
var ErrCredentialsRequired = errors.New("username and password are required")

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// Gateway is the part of the API client used for authentication
type Gateway interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, request models.RegisterRequest) (*models.User, error)
	CurrentUser(ctx context.Context) (*models.User, error)
}

// ValidationError lists the problems found in a registration form
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, field := range []string{"Email", "Username", "Password", "ConfirmPassword"} {
		if msg, ok := e.Fields[field]; ok {
			msgs = append(msgs, msg)
		}
	}
	return strings.Join(msgs, "; ")
}

var fieldMessages = map[string]string{
	"Email":           "Please enter a valid email address",
	"Username":        "Username must be 3-20 characters and contain only letters, numbers, and underscores",
	"Password":        "Password must be at least 8 characters long",
	"ConfirmPassword": "Passwords do not match",
}

// NewValidator returns a validator that knows the "username" rule
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Manager keeps the login state of one browser session
type Manager struct {
	mu       sync.Mutex
	gateway  Gateway
	tokens   client.TokenSource
	validate *validator.Validate
	logger   *logrus.Logger
	user     *models.User
}

// NewManager creates a manager. tokens must be the same source the gateway reads from.
func NewManager(gateway Gateway, tokens client.TokenSource, validate *validator.Validate, logger *logrus.Logger) *Manager {
	if validate == nil {
		validate = NewValidator()
	}
	return &Manager{
		gateway:  gateway,
		tokens:   tokens,
		validate: validate,
		logger:   logger,
	}
}

// Login exchanges credentials for a token and resolves the user. When /auth/me
// fails for any reason other than a rejected token, the user is read from the token claims instead.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	token, err := m.gateway.Login(ctx, username, password)
	if err != nil {
		m.logger.Warnf("Login failed for %s: %v", username, err)
		return nil, fmt.Errorf("login failed: %w", err)
	}

	user, err := m.gateway.CurrentUser(ctx)
	if errors.Is(err, client.ErrUnauthorized) {
		// the client has already dropped the token
		m.logger.Warnf("Token for %s was rejected by /auth/me", username)
		m.Logout()
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if err != nil {
		m.logger.Warnf("Failed to fetch current user, falling back to token claims: %v", err)
		user = userFromToken(token, username)
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	m.logger.Infof("User %s logged in with role %s", user.Username, user.Role)
	return user, nil
}

// userFromToken reads the claims without verifying the signature; the backend verifies on every call
func userFromToken(token, username string) *models.User {
	user := &models.User{Username: username, Role: models.RoleNormal}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return user
	}
	if id, ok := claims["user_id"]; ok {
		user.ID = models.FlexString(fmt.Sprint(id))
	} else if sub, err := claims.GetSubject(); err == nil && sub != "" {
		user.ID = models.FlexString(sub)
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		user.Role = strings.ToUpper(role)
	}
	if name, ok := claims["username"].(string); ok && name != "" {
		user.Username = name
	}
	return user
}

// Register validates the form and creates the account. It does not log in.
func (m *Manager) Register(ctx context.Context, request models.RegisterRequest) (*models.User, error) {
	request.Email = strings.TrimSpace(request.Email)
	request.Username = strings.TrimSpace(request.Username)

	if err := m.validate.Struct(request); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("failed to validate registration: %w", err)
		}
		verr := &ValidationError{Fields: make(map[string]string)}
		for _, fe := range fieldErrs {
			verr.Fields[fe.Field()] = fieldMessages[fe.Field()]
		}
		return nil, verr
	}

	user, err := m.gateway.Register(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	m.logger.Infof("Registered user %s", request.Username)
	return user, nil
}

// Logout forgets the token and the user
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens != nil {
		m.tokens.Clear()
	}
	m.user = nil
}

// IsAuthenticated reports whether a token is held. A 401 from the backend clears it.
func (m *Manager) IsAuthenticated() bool {
	return m.tokens != nil && m.tokens.Token() != ""
}

// CurrentUser returns the logged-in user
func (m *Manager) CurrentUser() (*models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.IsAuthenticated() {
		m.user = nil
		return nil, false
	}
	if m.user == nil {
		return nil, false
	}
	u := *m.user
	return &u, true
}
