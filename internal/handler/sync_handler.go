package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/soumenroys/imotaraapp-sub002/internal/domain"
	"github.com/soumenroys/imotaraapp-sub002/internal/middleware"
	"github.com/soumenroys/imotaraapp-sub002/internal/repository"
	"github.com/soumenroys/imotaraapp-sub002/internal/service"
	"github.com/soumenroys/imotaraapp-sub002/pkg/response"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 4 << 20

type SyncHandler struct {
	historyService *service.HistoryService
	validator      *validator.Validate
}

func NewSyncHandler(historyService *service.HistoryService) *SyncHandler {
	return &SyncHandler{
		historyService: historyService,
		validator:      validator.New(),
	}
}

// ProcessSync handles POST /api/v1/history/sync.
func (h *SyncHandler) ProcessSync(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.historyService.ProcessSync(r.Context(), userID, middleware.GetDeviceID(r), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, res)
}

// Snapshot handles GET /api/v1/history.
func (h *SyncHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	records, err := h.historyService.Snapshot(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, records)
}

// Append handles POST /api/v1/history.
func (h *SyncHandler) Append(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var records []*domain.EmotionRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&records); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	for _, rec := range records {
		if rec == nil {
			response.BadRequest(w, "null record")
			return
		}
		if err := h.validator.Struct(rec); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
	}

	res, err := h.historyService.Append(r.Context(), userID, middleware.GetDeviceID(r), records)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.Success(w, res)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		response.Conflict(w, err.Error(), conflict.Stored)
	case errors.Is(err, repository.ErrSeqContention):
		response.ServiceUnavailable(w, "history is busy, retry")
	case errors.Is(err, repository.ErrUserNotFound):
		response.NotFound(w, err.Error())
	default:
		log.Printf("[Handler] internal error: %v", err)
		response.InternalError(w, "internal server error")
	}
}
