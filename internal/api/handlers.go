package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/soramir/inkwell/internal/apperr"
	"github.com/soramir/inkwell/internal/capture"
	"github.com/soramir/inkwell/internal/runlog"
)

// Handler holds API route handlers.
type Handler struct {
	svc  *capture.Service
	runs *runlog.DB // may be nil when the run log is disabled
}

// NewHandler creates a new Handler.
func NewHandler(svc *capture.Service, runs *runlog.DB) *Handler {
	return &Handler{svc: svc, runs: runs}
}

// ListMessages handles GET /api/messages.
func (h *Handler) ListMessages(w http.ResponseWriter, _ *http.Request) {
	msgs := h.svc.Messages()
	writeJSON(w, http.StatusOK, MessageListResponse{Messages: msgs, Total: len(msgs)})
}

// SendMessage handles POST /api/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	msg, err := h.svc.Send(r.Context(), req.Content)
	if err != nil {
		slog.Error("send message failed", slog.String("error", err.Error()))
		writeJSON(w, storeStatus(err), errorBody("failed to send message"))
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GenerateDiary handles POST /api/diary.
func (h *Handler) GenerateDiary(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GenerateDiary(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNoContent):
			writeJSON(w, http.StatusConflict, errorBody("no messages captured today"))
		case errors.Is(err, apperr.ErrNotConfigured):
			writeJSON(w, http.StatusPreconditionFailed, errorBody("AI provider API key is not configured"))
		default:
			slog.Error("generate diary failed", slog.String("error", err.Error()))
			writeJSON(w, storeStatus(err), errorBody("failed to generate diary"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// ListDiaryRuns handles GET /api/diary/runs.
func (h *Handler) ListDiaryRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusOK, DiaryRunListResponse{Runs: nil})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.List(limit)
	if err != nil {
		slog.Error("list diary runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, DiaryRunListResponse{Runs: runs})
}

// storeStatus maps kernel availability errors to 502, everything else
// to 500.
func storeStatus(err error) int {
	if errors.Is(err, apperr.ErrStoreUnavailable) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
