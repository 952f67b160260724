package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/pkg/hash"
	. "github.com/soumenroys/imotaraapp-sub002/pkg/jwt"
)

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	u := *user
	m.users[user.ID] = &u
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if user, ok := m.users[id]; ok {
		u := *user
		return &u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	return err == nil, nil
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	repo := newMockUserRepository()
	service := NewAuthService(repo, "test-secret", 15*time.Minute, 7*24*time.Hour)

	tests := []struct {
		name    string
		req     *domain.RegisterRequest
		wantErr error
		setup   func()
	}{
		{
			name: "successful registration",
			req: &domain.RegisterRequest{
				DisplayName: "New User",
				Email:       "new@example.com",
				Password:    "Password123!",
			},
			setup: func() {},
		},
		{
			name: "duplicate email",
			req: &domain.RegisterRequest{
				DisplayName: "Another",
				Email:       "existing@example.com",
				Password:    "Password123!",
			},
			wantErr: ErrEmailTaken,
			setup: func() {
				hashedPw, _ := hash.Hash("ExistingPass123!")
				repo.Create(ctx, &domain.User{
					ID:          "existing-id",
					DisplayName: "Existing",
					Email:       "existing@example.com",
					Password:    hashedPw,
				})
			},
		},
		{
			name: "weak password",
			req: &domain.RegisterRequest{
				DisplayName: "Test",
				Email:       "test@example.com",
				Password:    "weak",
			},
			wantErr: errors.New("any"),
			setup:   func() {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.users = make(map[string]*domain.User)
			tt.setup()

			user, err := service.Register(ctx, tt.req)

			if tt.wantErr != nil {
				if err == nil {
					t.Error("Register() expected error but got none")
				}
				if tt.wantErr == ErrEmailTaken && !errors.Is(err, ErrEmailTaken) {
					t.Errorf("Register() error = %v, want %v", err, ErrEmailTaken)
				}
				return
			}

			if err != nil {
				t.Errorf("Register() unexpected error = %v", err)
				return
			}
			if user.Password != "" {
				t.Error("Register() returned user with password hash")
			}

			exists, _ := repo.EmailExists(ctx, tt.req.Email)
			if !exists {
				t.Error("Register() user not created in repository")
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	repo := newMockUserRepository()
	service := NewAuthService(repo, "test-secret-key", 15*time.Minute, 7*24*time.Hour)

	password := "UserPassword123!"
	hashedPassword, _ := hash.Hash(password)

	repo.Create(ctx, &domain.User{
		ID:          "test-user-id",
		DisplayName: "Test User",
		Email:       "test@example.com",
		Password:    hashedPassword,
	})

	tests := []struct {
		name    string
		req     *domain.LoginRequest
		wantErr bool
	}{
		{
			name: "successful login",
			req: &domain.LoginRequest{
				Email:    "test@example.com",
				Password: password,
			},
			wantErr: false,
		},
		{
			name: "wrong password",
			req: &domain.LoginRequest{
				Email:    "test@example.com",
				Password: "WrongPassword",
			},
			wantErr: true,
		},
		{
			name: "non-existent email",
			req: &domain.LoginRequest{
				Email:    "nonexistent@example.com",
				Password: password,
			},
			wantErr: true,
		},
		{
			name: "empty password",
			req: &domain.LoginRequest{
				Email:    "test@example.com",
				Password: "",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.Login(ctx, tt.req)

			if tt.wantErr {
				if err == nil {
					t.Error("Login() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("Login() unexpected error = %v", err)
				return
			}

			if resp.AccessToken == "" {
				t.Error("Login() returned empty access token")
			}

			if resp.RefreshToken == "" {
				t.Error("Login() returned empty refresh token")
			}

			if resp.User == nil {
				t.Fatal("Login() returned nil user")
			}

			if resp.User.Password != "" {
				t.Error("Login() returned user with password (security issue)")
			}

			if resp.ExpiresIn != int64(15*time.Minute.Seconds()) {
				t.Errorf("Login() expiresIn = %v, want %v", resp.ExpiresIn, 15*60)
			}
		})
	}
}

func TestAuthService_RefreshToken(t *testing.T) {
	repo := newMockUserRepository()
	secret := "refresh-test-secret-key"
	service := NewAuthService(repo, secret, 15*time.Minute, 7*24*time.Hour)

	validToken, _ := GenerateRefreshToken("refresh-user-id", 7*24*time.Hour, secret)
	expiredToken, _ := GenerateRefreshToken("refresh-user-id", -1*time.Hour, secret)
	accessToken, _ := GenerateToken("refresh-user-id", time.Hour, secret)

	tests := []struct {
		name    string
		req     *domain.RefreshTokenRequest
		wantErr bool
	}{
		{
			name:    "valid refresh token",
			req:     &domain.RefreshTokenRequest{RefreshToken: validToken},
			wantErr: false,
		},
		{
			name:    "expired refresh token",
			req:     &domain.RefreshTokenRequest{RefreshToken: expiredToken},
			wantErr: true,
		},
		{
			name:    "access token used as refresh token",
			req:     &domain.RefreshTokenRequest{RefreshToken: accessToken},
			wantErr: true,
		},
		{
			name:    "invalid refresh token",
			req:     &domain.RefreshTokenRequest{RefreshToken: "invalid.token.here"},
			wantErr: true,
		},
		{
			name:    "empty refresh token",
			req:     &domain.RefreshTokenRequest{RefreshToken: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.RefreshToken(tt.req)

			if tt.wantErr {
				if err == nil {
					t.Error("RefreshToken() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("RefreshToken() unexpected error = %v", err)
				return
			}

			if resp.AccessToken == "" {
				t.Error("RefreshToken() returned empty access token")
			}

			if resp.ExpiresIn != int64(15*time.Minute.Seconds()) {
				t.Errorf("RefreshToken() expiresIn = %v, want %v", resp.ExpiresIn, 15*60)
			}
		})
	}
}

func TestAuthService_ValidateToken(t *testing.T) {
	repo := newMockUserRepository()
	secret := "validation-test-secret"
	service := NewAuthService(repo, secret, 15*time.Minute, 7*24*time.Hour)

	validToken, _ := GenerateToken("user-id", 1*time.Hour, secret)
	refreshToken, _ := GenerateRefreshToken("user-id", 1*time.Hour, secret)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid token", token: validToken},
		{name: "refresh token rejected", token: refreshToken, wantErr: true},
		{name: "invalid token", token: "invalid.token.format", wantErr: true},
		{name: "empty token", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)

			if tt.wantErr {
				if err == nil {
					t.Error("ValidateToken() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("ValidateToken() unexpected error = %v", err)
				return
			}

			if claims == nil || claims.UserID != "user-id" {
				t.Errorf("ValidateToken() claims = %+v", claims)
			}
		})
	}
}
