package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/match"
	"github.com/LiiXo/nomercy-sub000/internal/models"
	"github.com/LiiXo/nomercy-sub000/internal/repositories"
	"github.com/LiiXo/nomercy-sub000/internal/utils"
)

const defaultHistoryLimit = 20

// MatchHandler exposes the match lifecycle operations.
type MatchHandler struct {
	svc      *match.Service
	rankings repositories.RankingRepository
	logger   *zap.Logger
}

func NewMatchHandler(svc *match.Service, rankings repositories.RankingRepository, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{svc: svc, rankings: rankings, logger: logger}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Get(r.Context(), UserIDFromContext(r.Context()),
		StaffFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *MatchHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	m, err := h.svc.SubmitGameCode(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "id"), req.GameCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.MatchResponse{Match: m})
}

func (h *MatchHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	m, err := h.svc.PostChat(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.MatchResponse{Match: m})
}

func (h *MatchHandler) ReportResult(w http.ResponseWriter, r *http.Request) {
	var req models.ReportResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	m, report, err := h.svc.ReportResult(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Winner)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.MatchResponse{Match: m, BattleReport: report})
}

func (h *MatchHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	var req models.DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	m, err := h.svc.ReportDispute(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.MatchResponse{Match: m})
}

func (h *MatchHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	m, report, err := h.svc.ResolveDispute(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Winner, req.Resolution)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.MatchResponse{Match: m, BattleReport: report})
}

func (h *MatchHandler) CancelDispute(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveDisputeRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body optional
	m, err := h.svc.CancelDispute(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Resolution)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.MatchResponse{Match: m})
}

func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req models.CancelMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, &models.ValidationError{Msg: "invalid JSON body"})
		return
	}
	m, err := h.svc.AdminCancel(r.Context(), UserIDFromContext(r.Context()),
		chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.MatchResponse{Match: m})
}

func (h *MatchHandler) Disputes(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.Disputes(r.Context(), 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

func (h *MatchHandler) Active(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Active(r.Context(), UserIDFromContext(r.Context()), r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *MatchHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	resp, err := h.svc.History(r.Context(), chi.URLParam(r, "userId"),
		r.URL.Query().Get("mode"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *MatchHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if !models.ValidMode(mode) {
		writeError(w, h.logger, &models.ValidationError{Msg: "mode query parameter is required"})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	top, err := h.rankings.Top(r.Context(), mode, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := models.LeaderboardResponse{Mode: mode, Entries: make([]models.LeaderboardEntry, 0, len(top))}
	for i, e := range top {
		resp.Entries = append(resp.Entries, models.LeaderboardEntry{
			RankingEntry: e,
			Division:     models.DivisionFor(e.Points),
			Rank:         i + 1,
		})
	}
	utils.JSON(w, http.StatusOK, resp)
}
