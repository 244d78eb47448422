package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wolfbot/internal/api"
	"github.com/mcoot/wolfbot/internal/api/apierr"
	"github.com/mcoot/wolfbot/internal/api/response"
	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/factory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/auth"
	"github.com/mcoot/wolfbot/internal/testutil"
)

const community = "guild-1"

// testServer wraps a router over an in-memory app
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	router := api.NewRouter(api.RouterConfig{
		Logger:         testutil.NopLogger(),
		AuthService:    app.AuthService,
		GameController: app.GameController,
		Journals:       app.Journals,
	})

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// token issues a token and registers the member with the directory
func (ts *testServer) token(t *testing.T, member string, moderator bool) string {
	t.Helper()
	ts.app.MemoryDir.AddMember(community, directory.Member{ID: model.MemberID(member), DisplayName: member})
	session, err := ts.app.AuthService.Issue(model.MemberID(member), moderator)
	require.NoError(t, err)
	return session.Token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[apierr.ErrorResponse](t, rr).Error.Code
}

func createGame(t *testing.T, ts *testServer, modToken string, body any) response.Game {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/communities/"+community+"/games", body, modToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[response.Game](t, rr)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/communities/"+community+"/game", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeUnauthorized, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/communities/"+community+"/games", map[string]any{}, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestModeratorRoutesRejectPlayers(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "u-alice", false)

	rr := ts.request(http.MethodPost, "/api/v1/communities/"+community+"/games", map[string]any{}, alice)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeForbidden, errorCode(t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/communities/"+community+"/journals/rebalance", nil, alice)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	authService := auth.New(ts.app.MockClock, auth.Config{
		Secret:             factory.TestSecret,
		ModeratorKeyHashes: []string{string(hash)},
	}, testutil.NopLogger())
	handler := api.NewRouter(api.RouterConfig{
		Logger:         testutil.NopLogger(),
		AuthService:    authService,
		GameController: ts.app.GameController,
		Journals:       ts.app.Journals,
	})
	ts.handler = handler

	rr := ts.request(http.MethodPost, "/api/v1/sessions", map[string]string{"member_id": "mod-1", "key": "hunter2"}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	session := decode[response.Session](t, rr)
	assert.True(t, session.Moderator)
	assert.Equal(t, "mod-1", session.MemberID)

	// The issued token opens moderator routes
	createGame(t, ts, session.Token, map[string]any{})

	rr = ts.request(http.MethodPost, "/api/v1/sessions", map[string]string{"member_id": "mod-1", "key": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, errorCode(t, rr))
}

func TestCreateGameAppliesDefaults(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)

	g := createGame(t, ts, mod, map[string]any{"name": "Spooky"})
	assert.Equal(t, 1, g.Number)
	assert.Equal(t, "signup", g.Status)
	assert.Equal(t, 4, g.VotesToHang)
	assert.Contains(t, g.Channels, string(model.SlotDeadChat))

	// Only one open game per community
	rr := ts.request(http.MethodPost, "/api/v1/communities/"+community+"/games", map[string]any{}, mod)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeGameInProgress, errorCode(t, rr))
}

func TestCreateGameRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)

	rr := ts.request(http.MethodPost, "/api/v1/communities/"+community+"/games", map[string]any{"votes_to_hang": -2}, mod)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/communities/"+community+"/games", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+mod)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rec))
}

func TestGetUnknownGame(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.token(t, "u-alice", false)

	rr := ts.request(http.MethodGet, "/api/v1/games/nope", nil, alice)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeGameNotFound, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/communities/"+community+"/game", nil, alice)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPlayersActOnlyForThemselves(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	alice := ts.token(t, "u-alice", false)
	ts.token(t, "u-bob", false)
	g := createGame(t, ts, mod, map[string]any{})

	rr := ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/signups", map[string]string{"member_id": "u-bob", "display_name": "Bob"}, alice)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// A moderator may sign anyone up
	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/signups", map[string]string{"member_id": "u-bob", "display_name": "Bob"}, mod)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/games/"+g.ID+"/signups/u-bob", nil, alice)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSignUpAndSignOut(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	alice := ts.token(t, "u-alice", false)
	g := createGame(t, ts, mod, map[string]any{})

	rr := ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/signups", map[string]string{"display_name": "Alice"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	p := decode[response.Player](t, rr)
	assert.Equal(t, "u-alice", p.MemberID)
	assert.Equal(t, "alive", p.Status)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/signups", map[string]string{"display_name": "Alice"}, alice)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/games/"+g.ID, nil, alice)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[response.Game](t, rr).Players, 1)

	rr = ts.request(http.MethodDelete, "/api/v1/games/"+g.ID+"/signups/u-alice", nil, alice)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/communities/"+community+"/game", nil, alice)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[response.Game](t, rr).Players)
}

func TestFullGameFlow(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	players := map[string]string{
		"u-alice": ts.token(t, "u-alice", false),
		"u-bob":   ts.token(t, "u-bob", false),
		"u-carol": ts.token(t, "u-carol", false),
	}
	g := createGame(t, ts, mod, map[string]any{"votes_to_hang": 2})

	for id, token := range players {
		rr := ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/signups", map[string]string{"display_name": id[2:]}, token)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	// Players cannot drive the game
	rr := ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/start", nil, players["u-alice"])
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/start", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	started := decode[response.Transition](t, rr)
	assert.Equal(t, "signup", started.From)
	assert.Equal(t, "night 1", started.To)
	assert.Zero(t, started.Sync.Failed)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/advance", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "day 2", decode[response.Transition](t, rr).To)

	// Alice votes, and may only vote as herself
	rr = ts.request(http.MethodPut, "/api/v1/games/"+g.ID+"/votes/u-carol", map[string]any{"target_id": "u-bob", "day": 2}, players["u-alice"])
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = ts.request(http.MethodPut, "/api/v1/games/"+g.ID+"/votes/u-alice", map[string]any{"target_id": "u-bob", "day": 2}, players["u-alice"])
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	rr = ts.request(http.MethodPut, "/api/v1/games/"+g.ID+"/votes/u-carol", map[string]any{"target_id": "u-bob", "day": 2}, players["u-carol"])
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	// Wrong day is rejected
	rr = ts.request(http.MethodPut, "/api/v1/games/"+g.ID+"/votes/u-bob", map[string]any{"target_id": "u-alice", "day": 1}, players["u-bob"])
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, apierr.CodeVoteRejected, errorCode(t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/games/"+g.ID+"/votes", nil, players["u-bob"])
	require.Equal(t, http.StatusOK, rr.Code)
	tally := decode[response.Tally](t, rr)
	require.Len(t, tally.Results, 1)
	assert.Equal(t, "u-bob", tally.Results[0].TargetID)
	assert.Equal(t, 2, tally.Results[0].Count)
	assert.True(t, tally.Results[0].Eligible)

	// Ending the day posts the tally
	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/advance", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code)
	ended := decode[response.Transition](t, rr)
	require.NotNil(t, ended.Tally)
	assert.Equal(t, 2, ended.Tally.Results[0].Count)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/players/u-bob/kill", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "dead", decode[response.Player](t, rr).Status)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/end", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ended", decode[response.Transition](t, rr).To)

	// Ending again is harmless
	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/end", nil, mod)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRetractVote(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	alice := ts.token(t, "u-alice", false)
	bob := ts.token(t, "u-bob", false)
	g := createGame(t, ts, mod, map[string]any{})

	for _, token := range []string{alice, bob} {
		rr := ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/signups", map[string]string{"display_name": "Player"}, token)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	rr := ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/start", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/advance", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodPut, "/api/v1/games/"+g.ID+"/votes/u-alice", map[string]any{"target_id": "u-bob", "day": 2}, alice)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/games/"+g.ID+"/votes/u-alice", nil, alice)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "day is required")

	rr = ts.request(http.MethodDelete, "/api/v1/games/"+g.ID+"/votes/u-alice?day=2", nil, alice)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/games/"+g.ID+"/votes/u-alice?day=2", nil, alice)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestLockdownAndChannels(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	alice := ts.token(t, "u-alice", false)
	g := createGame(t, ts, mod, map[string]any{})

	rr := ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/signups", map[string]string{"display_name": "Alice"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/start", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/lockdown", map[string]bool{"locked": true}, mod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[response.Transition](t, rr).Game.Lockdown)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/channels", map[string]any{
		"name":         "seer",
		"open_at_dusk": true,
		"invited":      []string{"u-alice"},
	}, mod)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	aux := decode[response.AuxChannel](t, rr)
	assert.Equal(t, "seer", aux.Name)
	assert.NotEmpty(t, aux.ChannelID)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/resync", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, decode[response.Transition](t, rr).Sync.Failed)
}

func TestJournals(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	alice := ts.token(t, "u-alice", false)

	rr := ts.request(http.MethodPost, "/api/v1/communities/"+community+"/journals", map[string]string{"display_name": "Alice"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	j := decode[response.Journal](t, rr)
	assert.Equal(t, "u-alice", j.MemberID)
	assert.NotEmpty(t, j.ChannelID)

	rr = ts.request(http.MethodPost, "/api/v1/communities/"+community+"/journals", map[string]string{"display_name": "Alice"}, alice)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/communities/"+community+"/journals/rebalance", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	report := decode[response.Rebalance](t, rr)
	assert.Equal(t, 1, report.Journals)
	assert.Equal(t, 1, report.Containers)
}

func TestAssignJournal(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	alice := ts.token(t, "u-alice", false)
	ts.token(t, "u-bob", false)

	rr := ts.request(http.MethodPost, "/api/v1/communities/"+community+"/journals", map[string]string{"display_name": "Alice"}, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	j := decode[response.Journal](t, rr)
	path := "/api/v1/communities/" + community + "/journals/" + j.ChannelID + "/owner"

	rr = ts.request(http.MethodPut, path, map[string]string{"member_id": "u-bob"}, alice)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodPut, path, map[string]string{}, mod)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rr))

	rr = ts.request(http.MethodPut, path, map[string]string{"member_id": "u-bob"}, mod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	moved := decode[response.Journal](t, rr)
	assert.Equal(t, "u-bob", moved.MemberID)
	assert.Equal(t, j.ChannelID, moved.ChannelID)

	ch, ok := ts.app.MemoryDir.Channel(model.ChannelID(j.ChannelID))
	require.True(t, ok)
	_, ok = ch.Overlay(directory.MemberTarget("u-alice"))
	assert.False(t, ok)
	_, ok = ch.Overlay(directory.MemberTarget("u-bob"))
	assert.True(t, ok)

	rr = ts.request(http.MethodPut, "/api/v1/communities/"+community+"/journals/nope/owner", map[string]string{"member_id": "u-bob"}, mod)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateSettings(t *testing.T) {
	ts := newTestServer(t)
	mod := ts.token(t, "mod-1", true)
	alice := ts.token(t, "u-alice", false)
	g := createGame(t, ts, mod, map[string]any{})
	path := "/api/v1/games/" + g.ID + "/settings"

	rr := ts.request(http.MethodPatch, path, map[string]any{"votes_to_hang": 2}, alice)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.request(http.MethodPatch, path, map[string]any{}, mod)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeValidation, errorCode(t, rr))

	rr = ts.request(http.MethodPatch, path, map[string]any{"votes_to_hang": 2, "day_message": "Rise and shine."}, mod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[response.Game](t, rr)
	assert.Equal(t, 2, updated.VotesToHang)
	assert.Equal(t, "Rise and shine.", updated.Messages.Day)
	assert.Equal(t, g.Messages.Night, updated.Messages.Night)

	rr = ts.request(http.MethodPost, "/api/v1/games/"+g.ID+"/end", nil, mod)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = ts.request(http.MethodPatch, path, map[string]any{"votes_to_hang": 3}, mod)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeInvalidState, errorCode(t, rr))
}
