package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/soumenroys/imotaraapp-sub002/pkg/jwt"
	"github.com/soumenroys/imotaraapp-sub002/pkg/response"
)

type contextKey string

const (
	UserIDKey   contextKey = "userID"
	DeviceIDKey contextKey = "deviceID"

	DeviceIDHeader = "X-Device-ID"
)

// AuthMiddleware accepts access tokens only and stores the caller's user id,
// plus the device id from X-Device-ID when present, on the request context.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateTokenOfType(parts[1], jwtSecret, jwt.TokenTypeAccess)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			if deviceID := strings.TrimSpace(r.Header.Get(DeviceIDHeader)); deviceID != "" {
				ctx = context.WithValue(ctx, DeviceIDKey, deviceID)
			}
			if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
				info.userID = claims.UserID
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetDeviceID(r *http.Request) string {
	deviceID, ok := r.Context().Value(DeviceIDKey).(string)
	if !ok {
		return ""
	}
	return deviceID
}
