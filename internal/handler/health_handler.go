package handler

import (
	"net/http"

	"github.com/soumenroys/imotaraapp-sub002/pkg/response"
)

func Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"service": "imotara-history",
	})
}

func Root(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]interface{}{
		"message": "Imotara History API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"/api/v1/auth/register": "POST",
			"/api/v1/auth/login":    "POST",
			"/api/v1/auth/refresh":  "POST",
			"/api/v1/auth/me":       "GET (protected)",
			"/api/v1/history/sync":  "POST (protected)",
			"/api/v1/history":       "GET, POST (protected)",
			"/ws":                   "GET (websocket)",
		},
	})
}
