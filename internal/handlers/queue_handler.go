package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/matchmaker"
	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/utils"
)

// QueueHandler exposes the ranked queue operations.
type QueueHandler struct {
	svc    *matchmaker.Service
	logger *zap.Logger
}

func NewQueueHandler(svc *matchmaker.Service, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{svc: svc, logger: logger}
}

func (h *QueueHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req models.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	resp, err := h.svc.JoinQueue(r.Context(), UserIDFromContext(r.Context()), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *QueueHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req models.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	resp, err := h.svc.LeaveQueue(r.Context(), UserIDFromContext(r.Context()), req.GameMode, req.Mode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *QueueHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req models.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	if err := h.svc.Heartbeat(r.Context(), UserIDFromContext(r.Context()), req.GameMode, req.Mode); err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *QueueHandler) MyStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.MyStatus(r.Context(), UserIDFromContext(r.Context()),
		r.URL.Query().Get("gameMode"), r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *QueueHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.QueueStatuses(r.Context(), r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"queues": statuses})
}
