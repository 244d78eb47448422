package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/wolfbot/internal/api/middleware"
	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/game"
)

// VoteHandler handles day vote endpoints
type VoteHandler struct {
	gameController *game.Controller
}

// NewVoteHandler creates a new vote handler
func NewVoteHandler(gameController *game.Controller) *VoteHandler {
	return &VoteHandler{gameController: gameController}
}

// Tally handles GET /api/v1/games/{game}/votes
func (h *VoteHandler) Tally(w http.ResponseWriter, r *http.Request) {
	report, err := h.gameController.CurrentTally(r.Context(), gameID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.TallyFromReport(report))
}

// Cast handles PUT /api/v1/games/{game}/votes/{voter}
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	voter := model.MemberID(mux.Vars(r)["voter"])
	if err := middleware.ActingFor(r.Context(), voter); err != nil {
		WriteError(w, err)
		return
	}

	var req request.CastVoteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TargetID == "" || req.Day < 1 {
		WriteError(w, NewInvalidRequestError("target_id and day are required"))
		return
	}

	err := h.gameController.CastVote(r.Context(), gameID(r), voter, model.MemberID(req.TargetID), req.Day)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Retract handles DELETE /api/v1/games/{game}/votes/{voter}?day=N
func (h *VoteHandler) Retract(w http.ResponseWriter, r *http.Request) {
	voter := model.MemberID(mux.Vars(r)["voter"])
	if err := middleware.ActingFor(r.Context(), voter); err != nil {
		WriteError(w, err)
		return
	}

	day, err := strconv.Atoi(r.URL.Query().Get("day"))
	if err != nil || day < 1 {
		WriteError(w, NewInvalidRequestError("day query parameter is required"))
		return
	}

	if err := h.gameController.RetractVote(r.Context(), gameID(r), voter, day); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}
