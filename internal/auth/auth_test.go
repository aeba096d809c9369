package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/marketplace/internal/memstore"
	"github.com/xtrntr/marketplace/internal/models"
)

const testSecret = "test-secret"

func newTestService() (*AuthService, *memstore.Store) {
	users := memstore.New()
	return NewAuthService(users, testSecret, time.Hour), users
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		role        models.Role
		expectError error
	}{
		{
			name:     "Success",
			username: "alice",
			password: "password123",
			role:     models.RoleShopper,
		},
		{
			name:     "Seller",
			username: "sam",
			password: "password123",
			role:     models.RoleSeller,
		},
		{
			name:        "EmptyUsername",
			username:    "",
			password:    "password123",
			role:        models.RoleShopper,
			expectError: ErrInvalidInput,
		},
		{
			name:        "EmptyPassword",
			username:    "bob",
			password:    "",
			role:        models.RoleShopper,
			expectError: ErrInvalidInput,
		},
		{
			name:        "DuplicateUsername",
			username:    "taken",
			password:    "newpass",
			role:        models.RoleShopper,
			expectError: ErrUsernameTaken,
		},
		{
			name:        "LongUsername",
			username:    strings.Repeat("a", 1000),
			password:    "password123",
			role:        models.RoleShopper,
			expectError: ErrInvalidInput,
		},
		{
			name:        "UnknownRole",
			username:    "carol",
			password:    "password123",
			role:        models.Role("owner"),
			expectError: ErrInvalidInput,
		},
		{
			name:        "SelfRegisterAdmin",
			username:    "root",
			password:    "password123",
			role:        models.RoleAdmin,
			expectError: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, users := newTestService()
			ctx := context.Background()

			if tt.name == "DuplicateUsername" {
				if _, _, err := s.Register(ctx, "taken", "password123", models.RoleShopper); err != nil {
					t.Fatalf("Failed to create user for duplicate test: %v", err)
				}
			}

			user, token, err := s.Register(ctx, tt.username, tt.password, tt.role)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if user.Username != tt.username || user.Role != tt.role {
				t.Errorf("unexpected user %+v", user)
			}
			if token == "" {
				t.Errorf("expected a token")
			}

			stored, err := users.GetUserByUsername(ctx, tt.username)
			if err != nil {
				t.Fatalf("user not stored: %v", err)
			}
			if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(tt.password)); err != nil {
				t.Errorf("password hash mismatch")
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	s, _ := newTestService()
	if _, _, err := s.Register(context.Background(), "alice", "password123", models.RoleShopper); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{name: "Success", username: "alice", password: "password123"},
		{name: "WrongPassword", username: "alice", password: "wrongpass", expectError: true},
		{name: "NonExistentUser", username: "bob", password: "password123", expectError: true},
		{name: "LongPassword", username: "alice", password: strings.Repeat("p", 1000), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, token, err := s.Login(context.Background(), tt.username, tt.password)
			if tt.expectError {
				if !errors.Is(err, ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
				return []byte(testSecret), nil
			})
			if err != nil {
				t.Fatalf("invalid token: %v", err)
			}
			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok || claims["username"] != "alice" || claims["role"] != "shopper" {
				t.Errorf("invalid token claims: %v", claims)
			}
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	user, token, err := s.Register(ctx, "alice", "password123", models.RoleShopper)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  float64(user.ID),
		"username": "alice",
		"role":     "shopper",
		"exp":      time.Now().Add(-time.Hour).Unix(),
	})
	expiredTokenStr, _ := expiredToken.SignedString([]byte(testSecret))
	validClaims := jwt.MapClaims{
		"user_id":  float64(user.ID),
		"username": "alice",
		"role":     "shopper",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	invalidToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims).SignedString([]byte("wrong-key"))
	noRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": float64(user.ID),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims).SignedString([]byte(testSecret))

	tests := []struct {
		name         string
		token        string
		expectUserID int
		expectError  bool
	}{
		{name: "Success", token: token, expectUserID: user.ID},
		{name: "ExpiredToken", token: expiredTokenStr, expectError: true},
		{name: "InvalidSignature", token: invalidToken, expectError: true},
		{name: "MissingRole", token: noRole, expectError: true},
		{name: "UnexpectedAlgorithm", token: wrongAlg, expectError: true},
		{name: "EmptyToken", token: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := s.Authenticate(tt.token)
			if tt.expectError {
				if !errors.Is(err, ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.UserID != tt.expectUserID || id.Role != models.RoleShopper {
				t.Errorf("unexpected identity %+v", id)
			}
		})
	}
}

func TestAuthService_CreateUser_Admin(t *testing.T) {
	s, users := newTestService()
	ctx := context.Background()

	admin, err := s.CreateUser(ctx, "root", "password123", models.RoleAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if admin.Role != models.RoleAdmin {
		t.Errorf("expected admin role, got %s", admin.Role)
	}
	list, err := users.ListUsers(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("expected 1 stored user, got %d (%v)", len(list), err)
	}
}
