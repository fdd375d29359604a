package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"wristsight-viewer/internal/model"
	"wristsight-viewer/internal/repository"
	"wristsight-viewer/pkg/models"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidToken       = errors.New("could not validate credentials")
)

// Claims are the access token claims. user_id is what clients read back.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService registers accounts and issues HS256 access tokens
type AuthService struct {
	users     repository.UserRepository
	secretKey []byte
	tokenTTL  time.Duration
	logger    *logrus.Logger
}

// NewAuthService creates the service
func NewAuthService(users repository.UserRepository, secret string, tokenTTL time.Duration, logger *logrus.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 30 * time.Minute
	}
	return &AuthService{
		users:     users,
		secretKey: []byte(secret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// Register creates a NORMAL account
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*UserOut, error) {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)

	taken, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	if taken, err = s.users.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	user, err := s.createUser(ctx, email, username, req.Password, models.RoleNormal)
	if err != nil {
		return nil, err
	}
	s.logger.Infof("User %s registered", user.Username)
	return ToUserOut(user), nil
}

// EnsureAdmin creates an ADMIN account unless the username already exists
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	taken, err := s.users.ExistsByUsername(ctx, username)
	if err != nil || taken {
		return err
	}
	if _, err := s.createUser(ctx, email, username, password, models.RoleAdmin); err != nil {
		return err
	}
	s.logger.Infof("Seeded admin account %s", username)
	return nil
}

func (s *AuthService) createUser(ctx context.Context, email, username, password, role string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &model.User{
		Email:    email,
		Username: username,
		Password: string(hash),
		Role:     role,
		IsActive: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the password of the account matching the username or email and returns an access token
func (s *AuthService) Login(ctx context.Context, login, password string) (string, error) {
	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warnf("Login attempt for unknown account %s", login)
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.logger.Warnf("Wrong password for %s", user.Username)
		return "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", ErrAccountDisabled
	}
	return s.issueToken(user)
}

func (s *AuthService) issueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Authenticate validates the token and loads its active account
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// ToUserOut converts an account for the API
func ToUserOut(user *model.User) *UserOut {
	return &UserOut{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}
