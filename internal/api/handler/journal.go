package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/wolfbot/internal/api/middleware"
	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/journal"
)

// JournalHandler handles journal endpoints
type JournalHandler struct {
	journals *journal.Partitioner
}

// NewJournalHandler creates a new journal handler
func NewJournalHandler(journals *journal.Partitioner) *JournalHandler {
	return &JournalHandler{journals: journals}
}

// Create handles POST /api/v1/communities/{community}/journals
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateJournalRequest
	if !decode(w, r, &req) {
		return
	}

	member := model.MemberID(req.MemberID)
	if member == "" {
		member = middleware.GetClaims(r.Context()).Member()
	}
	if err := middleware.ActingFor(r.Context(), member); err != nil {
		WriteError(w, err)
		return
	}

	j, err := h.journals.CreateJournal(r.Context(), community(r), member, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.JournalFromModel(j))
}

// Assign handles PUT /api/v1/communities/{community}/journals/{channel}/owner
func (h *JournalHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req request.AssignJournalRequest
	if !decode(w, r, &req) {
		return
	}
	if req.MemberID == "" {
		WriteError(w, NewInvalidRequestError("member_id is required"))
		return
	}

	channel := model.ChannelID(mux.Vars(r)["channel"])
	j, err := h.journals.AssignJournal(r.Context(), community(r), channel, model.MemberID(req.MemberID), req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.JournalFromModel(j))
}

// Rebalance handles POST /api/v1/communities/{community}/journals/rebalance
func (h *JournalHandler) Rebalance(w http.ResponseWriter, r *http.Request) {
	report, err := h.journals.Rebalance(r.Context(), community(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RebalanceFromReport(report))
}
