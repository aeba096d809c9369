package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/marketplace/internal/models"
	"github.com/xtrntr/marketplace/internal/store"
)

var (
	// ErrUnauthorized means no valid identity was presented
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the identity lacks the role an operation requires
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput rejects malformed registration data
	ErrInvalidInput = errors.New("invalid input")
	// ErrUsernameTaken is returned when registering an existing username
	ErrUsernameTaken = errors.New("username already exists")
)

// AuthService handles user registration and authentication
type AuthService struct {
	Users  store.Users
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthService creates a new auth service signing tokens with secret
func NewAuthService(users store.Users, secret string, ttl time.Duration) *AuthService {
	return &AuthService{Users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Register creates a shopper or seller account and returns a signed token for it
func (s *AuthService) Register(ctx context.Context, username, password string, role models.Role) (*models.User, string, error) {
	if role == models.RoleAdmin {
		return nil, "", fmt.Errorf("%w: admins are created by an admin", ErrForbidden)
	}
	user, err := s.CreateUser(ctx, username, password, role)
	if err != nil {
		return nil, "", err
	}
	token, err := s.issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// CreateUser validates input and stores a user with a hashed password
func (s *AuthService) CreateUser(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	// Validate input
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username, password, and role are required", ErrInvalidInput)
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("%w: username too long (max 50 characters)", ErrInvalidInput)
	}
	// bcrypt ignores anything past 72 bytes
	if len(password) > 72 {
		return nil, fmt.Errorf("%w: password too long (max 72 characters)", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.Users.CreateUser(ctx, username, string(hashedPassword), role)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) issue(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"exp":      s.now().Add(s.ttl).Unix(),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Authenticate verifies a token and returns the identity it carries
func (s *AuthService) Authenticate(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrUnauthorized
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return Identity{}, fmt.Errorf("%w: missing user_id", ErrUnauthorized)
	}
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)
	if !models.Role(role).Valid() {
		return Identity{}, fmt.Errorf("%w: missing role", ErrUnauthorized)
	}
	return Identity{UserID: int(userID), Username: username, Role: models.Role(role)}, nil
}
