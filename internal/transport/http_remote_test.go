package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRemote_Sync(t *testing.T) {
	since := int64(12)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/history/sync", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "device-1", r.Header.Get("X-Device-ID"))

		var req domain.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.ClientChanges, 1)

		response.Success(w, &domain.SyncResponse{
			ServerChanges: []*domain.EmotionRecord{{ID: "remote", Emotion: domain.EmotionJoy}},
			ServerSince:   &since,
			Accepted:      []string{},
		})
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL+"/", "secret-token", "device-1", time.Second)
	res, err := remote.Sync(context.Background(), &domain.SyncRequest{
		ClientChanges: []*domain.EmotionRecord{{ID: "local", Emotion: domain.EmotionFear}},
	})
	require.NoError(t, err)

	require.Len(t, res.ServerChanges, 1)
	assert.Equal(t, "remote", res.ServerChanges[0].ID)
	assert.Equal(t, int64(12), *res.ServerSince)
	assert.NotNil(t, res.Accepted, "an explicit empty list means nothing was accepted")
	assert.Empty(t, res.Accepted)
}

func populatedRecord() *domain.EmotionRecord {
	joy := domain.EmotionJoy
	intensity := 0.9
	msg := "before the walk"
	important := true
	prevEmotion := domain.EmotionSadness

	return &domain.EmotionRecord{
		ID:        "rec-1",
		Message:   "walked it off",
		Emotion:   domain.EmotionJoy,
		Intensity: 0.75,
		CreatedAt: 1700000000000,
		UpdatedAt: 1700000005000,
		Rev:       4,
		Deleted:   true,
		Source:    domain.SourceMerged,
		TopicTags: []string{"health", "outdoors"},
		Important: true,
		FollowUps: []domain.FollowUp{{ID: "f1", Text: "walk again tomorrow", CreatedAt: 1700000001000}},
		Choices: []domain.Choice{{
			ID:     "c1",
			Label:  "Feeling better",
			Action: domain.ActionSetEmotion,
			Payload: &domain.ChoicePayload{
				Emotion:   &joy,
				Intensity: &intensity,
				Message:   &msg,
				Important: &important,
				TopicTags: []string{"mood"},
			},
			Tooltip: "switch to joy",
		}},
		AppliedChoices: []string{"c1"},
		AppliedChoiceHistory: []domain.AppliedChoice{{
			ChoiceID:  "c1",
			AppliedAt: 1700000004000,
			PrevSnapshot: domain.ChoiceSnapshot{
				Fields:    []string{domain.FieldEmotion, domain.FieldFollowUps},
				Emotion:   &prevEmotion,
				FollowUps: []domain.FollowUp{{ID: "f0", Text: "older", CreatedAt: 1699999999000}},
				UpdatedAt: 1700000003000,
			},
		}},
	}
}

// Every record field survives the trip to the server and back.
func TestHTTPRemote_SyncCarriesFullRecord(t *testing.T) {
	want := populatedRecord()
	base := domain.ShadowOf(want)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.ClientChanges, 1)
		assert.Equal(t, want, req.ClientChanges[0])
		assert.Equal(t, map[string]domain.ShadowEntry{want.ID: base}, req.Bases)

		response.Success(w, &domain.SyncResponse{
			ServerChanges: req.ClientChanges,
			ServerSince:   req.ClientSince,
			Accepted:      []string{},
		})
	}))
	defer srv.Close()

	since := int64(3)
	res, err := NewHTTPRemote(srv.URL, "t", "d", time.Second).Sync(context.Background(), &domain.SyncRequest{
		ClientSince:   &since,
		ClientChanges: []*domain.EmotionRecord{populatedRecord()},
		Bases:         map[string]domain.ShadowEntry{want.ID: base},
	})
	require.NoError(t, err)

	require.Len(t, res.ServerChanges, 1)
	assert.Equal(t, want, res.ServerChanges[0])
	assert.Equal(t, int64(3), *res.ServerSince)
}

func TestHTTPRemote_MissingAcceptedStaysNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"serverChanges":[]}}`))
	}))
	defer srv.Close()

	res, err := NewHTTPRemote(srv.URL, "", "", 0).Sync(context.Background(), &domain.SyncRequest{})
	require.NoError(t, err)
	assert.Nil(t, res.Accepted)
	assert.Nil(t, res.ServerSince)
}

func TestHTTPRemote_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				response.Unauthorized(w, "invalid token")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				response.InternalError(w, "boom")
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPRemote(srv.URL, "t", "", time.Second).Sync(context.Background(), &domain.SyncRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNetwork)

			var se *StatusError
			if tt.wantStatus != 0 {
				require.True(t, errors.As(err, &se))
				assert.Equal(t, tt.wantStatus, se.StatusCode)
			}
		})
	}
}

func TestHTTPRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPRemote(url, "", "", time.Second).Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestHTTPRemote_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPRemote(srv.URL, "", "", time.Second).Sync(ctx, &domain.SyncRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPRemote_SnapshotAndAppend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/history", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			response.Success(w, []*domain.EmotionRecord{{ID: "a"}, {ID: "b"}})
		case http.MethodPost:
			var records []*domain.EmotionRecord
			require.NoError(t, json.NewDecoder(r.Body).Decode(&records))
			ids := make([]string, 0, len(records))
			for _, rec := range records {
				ids = append(ids, rec.ID)
			}
			response.Success(w, &domain.SyncResponse{ServerChanges: []*domain.EmotionRecord{}, Accepted: ids})
		}
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL, "", "", time.Second)

	records, err := remote.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	res, err := remote.Append(context.Background(), []*domain.EmotionRecord{{ID: "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.Accepted)
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	assert.True(t, NewHealthCheck(healthy.URL, time.Second).Online(context.Background()))
	assert.False(t, NewHealthCheck(down.URL, time.Second).Online(context.Background()))
	assert.False(t, NewHealthCheck("http://127.0.0.1:1", 100*time.Millisecond).Online(context.Background()))
}
