package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/middleware"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/internal/service"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter() *mux.Router {
	authService := service.NewAuthService(repository.NewMemoryUserRepository(), testSecret, time.Hour, 24*time.Hour)
	historyService := service.NewHistoryService(repository.NewMemoryRemoteHistoryRepository(), nil)

	authHandler := NewAuthHandler(authService)
	syncHandler := NewSyncHandler(historyService)

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/auth/refresh", authHandler.Refresh).Methods("POST")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(testSecret))
	protected.HandleFunc("/auth/me", authHandler.Me).Methods("GET")
	protected.HandleFunc("/history/sync", syncHandler.ProcessSync).Methods("POST")
	protected.HandleFunc("/history", syncHandler.Snapshot).Methods("GET")
	protected.HandleFunc("/history", syncHandler.Append).Methods("POST")
	return r
}

func do(t *testing.T, h http.Handler, method, path, token, device string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if device != "" {
		req.Header.Set(middleware.DeviceIDHeader, device)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func login(t *testing.T, h http.Handler, email string) *domain.LoginResponse {
	t.Helper()
	rec, _ := do(t, h, "POST", "/api/v1/auth/register", "", "", domain.RegisterRequest{
		Email: email, DisplayName: "Test", Password: "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, h, "POST", "/api/v1/auth/login", "", "", domain.LoginRequest{
		Email: email, Password: "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out domain.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return &out
}

func TestAuthHandler(t *testing.T) {
	h := newTestRouter()
	session := login(t, h, "a@example.com")

	rec, _ := do(t, h, "POST", "/api/v1/auth/register", "", "", domain.RegisterRequest{
		Email: "a@example.com", DisplayName: "Again", Password: "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, h, "POST", "/api/v1/auth/login", "", "", domain.LoginRequest{
		Email: "a@example.com", Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, h, "GET", "/api/v1/auth/me", session.AccessToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me domain.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "a@example.com", me.Email)
	assert.Empty(t, me.Password)

	rec, _ = do(t, h, "GET", "/api/v1/auth/me", session.RefreshToken, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens do not authenticate requests")

	rec, _ = do(t, h, "POST", "/api/v1/auth/refresh", "", "", domain.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncHandler_ProcessSync(t *testing.T) {
	h := newTestRouter()
	session := login(t, h, "b@example.com")

	record := &domain.EmotionRecord{ID: "r1", Message: "hi", Emotion: domain.EmotionJoy, Intensity: 0.4, CreatedAt: 1000, UpdatedAt: 1000}

	rec, env := do(t, h, "POST", "/api/v1/history/sync", session.AccessToken, "phone", domain.SyncRequest{
		ClientChanges: []*domain.EmotionRecord{record},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.SyncResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, []string{"r1"}, res.Accepted)
	require.NotNil(t, res.ServerSince)

	rec, env = do(t, h, "POST", "/api/v1/history/sync", session.AccessToken, "laptop", domain.SyncRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.ServerChanges, 1)
	assert.Equal(t, "hi", res.ServerChanges[0].Message)

	// Another device may only replace r1 when it says which version it edited.
	edited := *record
	edited.Message = "hi from the laptop"
	edited.UpdatedAt = 2000
	rec, env = do(t, h, "POST", "/api/v1/history/sync", session.AccessToken, "laptop", domain.SyncRequest{
		ClientSince:   res.ServerSince,
		ClientChanges: []*domain.EmotionRecord{&edited},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res = domain.SyncResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Empty(t, res.Accepted)
	require.Len(t, res.ServerChanges, 1)
	assert.Equal(t, "hi", res.ServerChanges[0].Message)

	rec, env = do(t, h, "POST", "/api/v1/history/sync", session.AccessToken, "laptop", domain.SyncRequest{
		ClientSince:   res.ServerSince,
		ClientChanges: []*domain.EmotionRecord{&edited},
		Bases:         map[string]domain.ShadowEntry{"r1": domain.ShadowOf(record)},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res = domain.SyncResponse{}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, []string{"r1"}, res.Accepted)

	rec, env = do(t, h, "GET", "/api/v1/history", session.AccessToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot []*domain.EmotionRecord
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	require.Len(t, snapshot, 1)
	assert.Equal(t, "hi from the laptop", snapshot[0].Message)
}

func TestSyncHandler_Rejects(t *testing.T) {
	h := newTestRouter()
	session := login(t, h, "c@example.com")

	tests := []struct {
		name  string
		path  string
		token string
		body  interface{}
		want  int
	}{
		{"no token", "/api/v1/history/sync", "", domain.SyncRequest{}, http.StatusUnauthorized},
		{"bad body", "/api/v1/history/sync", session.AccessToken, "not an object", http.StatusBadRequest},
		{
			"invalid record",
			"/api/v1/history",
			session.AccessToken,
			[]*domain.EmotionRecord{{ID: "x", Emotion: "bliss"}},
			http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, "POST", tt.path, tt.token, "", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
