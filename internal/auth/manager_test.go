package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"wristsight-viewer/internal/client"
	"wristsight-viewer/pkg/models"
)

type memTokens struct{ token string }

func (m *memTokens) Token() string     { return m.token }
func (m *memTokens) SetToken(t string) { m.token = t }
func (m *memTokens) Clear()            { m.token = "" }

type fakeGateway struct {
	tokens     *memTokens
	token      string
	loginErr   error
	me         *models.User
	meErr      error
	registered []models.RegisterRequest
}

func (g *fakeGateway) Login(ctx context.Context, username, password string) (string, error) {
	if g.loginErr != nil {
		return "", g.loginErr
	}
	g.tokens.SetToken(g.token)
	return g.token, nil
}

func (g *fakeGateway) Register(ctx context.Context, request models.RegisterRequest) (*models.User, error) {
	g.registered = append(g.registered, request)
	return &models.User{ID: "1", Username: request.Username, Email: request.Email, Role: models.RoleNormal}, nil
}

func (g *fakeGateway) CurrentUser(ctx context.Context) (*models.User, error) {
	if g.meErr != nil {
		return nil, g.meErr
	}
	return g.me, nil
}

func newManager(gw *fakeGateway) *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(gw, gw.tokens, nil, logger)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestLogin_UsesCurrentUser(t *testing.T) {
	gw := &fakeGateway{
		tokens: &memTokens{},
		token:  "opaque",
		me:     &models.User{ID: "42", Username: "alice", Role: models.RoleAdmin},
	}
	m := newManager(gw)

	user, err := m.Login(context.Background(), "alice", "secret123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != models.RoleAdmin || !m.IsAuthenticated() {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestLogin_FallsBackToClaims(t *testing.T) {
	gw := &fakeGateway{tokens: &memTokens{}, meErr: errors.New("boom")}
	gw.token = signedToken(t, jwt.MapClaims{"user_id": 7, "role": "superuser"})
	m := newManager(gw)

	user, err := m.Login(context.Background(), "bob", "secret123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "7" || user.Role != models.RoleSuperuser || user.Username != "bob" {
		t.Errorf("unexpected fallback user %+v", user)
	}

	gw.token = "not-a-jwt"
	user, _ = m.Login(context.Background(), "carol", "secret123")
	if user.Role != models.RoleNormal || user.Username != "carol" {
		t.Errorf("expected default role for unreadable token, got %+v", user)
	}
}

func TestLogin_Errors(t *testing.T) {
	gw := &fakeGateway{tokens: &memTokens{}, loginErr: errors.New("Incorrect username or password")}
	m := newManager(gw)

	if _, err := m.Login(context.Background(), " ", "x"); !errors.Is(err, ErrCredentialsRequired) {
		t.Errorf("expected ErrCredentialsRequired, got %v", err)
	}
	if _, err := m.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Error("expected login error")
	}
	if m.IsAuthenticated() {
		t.Error("failed login must not authenticate")
	}
}

func TestLogoutAndClearedToken(t *testing.T) {
	gw := &fakeGateway{tokens: &memTokens{}, token: "t", me: &models.User{Username: "alice", Role: models.RoleNormal}}
	m := newManager(gw)
	m.Login(context.Background(), "alice", "secret123")

	if _, ok := m.CurrentUser(); !ok {
		t.Fatal("expected logged in user")
	}
	// a 401 seen by the API client clears the shared token
	gw.tokens.Clear()
	if _, ok := m.CurrentUser(); ok {
		t.Error("user must be dropped once the token is cleared")
	}

	m.Login(context.Background(), "alice", "secret123")
	m.Logout()
	if m.IsAuthenticated() || gw.tokens.token != "" {
		t.Error("logout must clear the token")
	}
}

func TestRegister_Validation(t *testing.T) {
	gw := &fakeGateway{tokens: &memTokens{}}
	m := newManager(gw)

	_, err := m.Register(context.Background(), models.RegisterRequest{
		Email:           "not-an-email",
		Username:        "a!",
		Password:        "short",
		ConfirmPassword: "other",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"Email", "Username", "Password", "ConfirmPassword"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("expected %s to be rejected", field)
		}
	}
	if len(gw.registered) != 0 {
		t.Error("invalid form must not reach the backend")
	}

	user, err := m.Register(context.Background(), models.RegisterRequest{
		Email:           "dr.who@example.com",
		Username:        "dr_who",
		Password:        "tardis-1963",
		ConfirmPassword: "tardis-1963",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "dr_who" || len(gw.registered) != 1 {
		t.Errorf("unexpected registration result %+v", user)
	}
	if m.IsAuthenticated() {
		t.Error("registration must not log in")
	}
}

func TestLogin_RejectedByCurrentUser(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/login":
			io.WriteString(w, `{"access_token":"issued-token","token_type":"bearer"}`)
		case "/api/auth/me":
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Could not validate credentials"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tokens := &memTokens{}
	api := client.NewAPIClient(backend.URL+"/api", 0, tokens, logger)
	m := NewManager(api, tokens, nil, logger)

	user, err := m.Login(context.Background(), "alice", "secret123")
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got user=%+v err=%v", user, err)
	}
	if user != nil || m.IsAuthenticated() {
		t.Error("a rejected token must not leave a logged-in user")
	}
	if _, ok := m.CurrentUser(); ok {
		t.Error("no current user expected")
	}
}
