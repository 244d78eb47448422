package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/wolfbot/internal/api/middleware"
	"github.com/mcoot/wolfbot/internal/api/request"
	"github.com/mcoot/wolfbot/internal/api/response"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/game"
)

// GameHandler handles game lifecycle endpoints
type GameHandler struct {
	gameController *game.Controller
}

// NewGameHandler creates a new game handler
func NewGameHandler(gameController *game.Controller) *GameHandler {
	return &GameHandler{gameController: gameController}
}

func gameID(r *http.Request) model.GameID {
	return model.GameID(mux.Vars(r)["game"])
}

func community(r *http.Request) model.CommunityID {
	return model.CommunityID(mux.Vars(r)["community"])
}

// Create handles POST /api/v1/communities/{community}/games
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateGameRequest
	if !decode(w, r, &req) {
		return
	}

	g, err := h.gameController.CreateGame(r.Context(), community(r), req.Settings())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.GameFromModel(g, nil, nil))
}

// Current handles GET /api/v1/communities/{community}/game
func (h *GameHandler) Current(w http.ResponseWriter, r *http.Request) {
	g, err := h.gameController.GetCurrentGame(r.Context(), community(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	h.writeGame(w, r, g)
}

// Get handles GET /api/v1/games/{game}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.gameController.GetGame(r.Context(), gameID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	h.writeGame(w, r, g)
}

func (h *GameHandler) writeGame(w http.ResponseWriter, r *http.Request, g *model.Game) {
	players, err := h.gameController.ListPlayers(r.Context(), g.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	aux, err := h.gameController.ListAuxChannels(r.Context(), g.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.GameFromModel(g, players, aux))
}

// SignUp handles POST /api/v1/games/{game}/signups
func (h *GameHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req request.SignUpRequest
	if !decode(w, r, &req) {
		return
	}

	// Players sign themselves up unless a moderator does it for them
	member := model.MemberID(req.MemberID)
	if member == "" {
		member = middleware.GetClaims(r.Context()).Member()
	}
	if err := middleware.ActingFor(r.Context(), member); err != nil {
		WriteError(w, err)
		return
	}

	p, err := h.gameController.SignUp(r.Context(), gameID(r), member, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.PlayerFromModel(p))
}

// SignOut handles DELETE /api/v1/games/{game}/signups/{member}
func (h *GameHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	member := model.MemberID(mux.Vars(r)["member"])
	if err := middleware.ActingFor(r.Context(), member); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.gameController.SignOut(r.Context(), gameID(r), member); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Start handles POST /api/v1/games/{game}/start
func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	result, err := h.gameController.StartGame(r.Context(), gameID(r))
	writeTransition(w, result, err)
}

// Advance handles POST /api/v1/games/{game}/advance
func (h *GameHandler) Advance(w http.ResponseWriter, r *http.Request) {
	moderator := middleware.GetClaims(r.Context()).Member()
	result, err := h.gameController.AdvancePhase(r.Context(), gameID(r), moderator)
	writeTransition(w, result, err)
}

// End handles POST /api/v1/games/{game}/end
func (h *GameHandler) End(w http.ResponseWriter, r *http.Request) {
	result, err := h.gameController.EndGame(r.Context(), gameID(r))
	writeTransition(w, result, err)
}

// Resync handles POST /api/v1/games/{game}/resync
func (h *GameHandler) Resync(w http.ResponseWriter, r *http.Request) {
	result, err := h.gameController.Resync(r.Context(), gameID(r))
	writeTransition(w, result, err)
}

// Lockdown handles POST /api/v1/games/{game}/lockdown
func (h *GameHandler) Lockdown(w http.ResponseWriter, r *http.Request) {
	var req request.LockdownRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.gameController.SetLockdown(r.Context(), gameID(r), req.Locked)
	writeTransition(w, result, err)
}

// UpdateSettings handles PATCH /api/v1/games/{game}/settings
func (h *GameHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.gameController.UpdateSettings(r.Context(), gameID(r), req.Update())
	if err != nil {
		WriteError(w, err)
		return
	}
	h.writeGame(w, r, g)
}

// Kill handles POST /api/v1/games/{game}/players/{member}/kill
func (h *GameHandler) Kill(w http.ResponseWriter, r *http.Request) {
	member := model.MemberID(mux.Vars(r)["member"])

	p, err := h.gameController.Kill(r.Context(), gameID(r), member)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(p))
}

// AddChannel handles POST /api/v1/games/{game}/channels
func (h *GameHandler) AddChannel(w http.ResponseWriter, r *http.Request) {
	var req request.AddChannelRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.gameController.ProvisionAuxChannel(r.Context(), gameID(r), req.Spec())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.AuxChannelFromModel(c))
}

// writeTransition writes a transition result. Directory failures do not
// fail the request: the new state is committed and reported in the body.
func writeTransition(w http.ResponseWriter, result *game.AdvanceResult, err error) {
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.TransitionFromResult(result))
}
