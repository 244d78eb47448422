package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeGameNotFound         = "GAME_NOT_FOUND"
	CodePlayerNotFound       = "PLAYER_NOT_FOUND"
	CodeJournalNotFound      = "JOURNAL_NOT_FOUND"
	CodeNotFound             = "NOT_FOUND"
	CodeGameInProgress       = "GAME_IN_PROGRESS"
	CodeInvalidState         = "INVALID_STATE"
	CodeTransitionInProgress = "TRANSITION_IN_PROGRESS"
	CodeVoteRejected         = "VOTE_REJECTED"
	CodeConflict             = "CONFLICT"
	CodePersistenceError     = "PERSISTENCE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	// Auth
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid member or moderator key"}}
	case errors.Is(err, auth.ErrInvalidToken):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired token"}}
	case errors.Is(err, auth.ErrForbidden):
		return &httpError{http.StatusForbidden, APIError{CodeForbidden, "Moderator access required"}}

	// Lookups
	case errors.Is(err, model.ErrGameNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeGameNotFound, "Game not found"}}
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrJournalNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeJournalNotFound, "Journal not found"}}
	case errors.Is(err, model.ErrMemberNotFound),
		errors.Is(err, model.ErrChannelNotFound),
		errors.Is(err, directory.ErrNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, err.Error()}}

	// Lifecycle
	case errors.Is(err, model.ErrGameInProgress):
		return &httpError{http.StatusConflict, APIError{CodeGameInProgress, "Community already has a game in progress"}}
	case errors.Is(err, model.ErrTransitionInProgress),
		errors.Is(err, model.ErrConcurrentTransition):
		return &httpError{http.StatusConflict, APIError{CodeTransitionInProgress, "Another transition is in progress, retry shortly"}}
	case errors.Is(err, model.ErrNotInSignup),
		errors.Is(err, model.ErrGameNotActive),
		errors.Is(err, model.ErrGameEnded),
		errors.Is(err, model.ErrInsufficientPlayers):
		return &httpError{http.StatusConflict, APIError{CodeInvalidState, err.Error()}}
	case errors.Is(err, model.ErrAlreadySignedUp),
		errors.Is(err, model.ErrDuplicateChannel),
		errors.Is(err, model.ErrJournalExists):
		return &httpError{http.StatusConflict, APIError{CodeConflict, err.Error()}}

	// Votes
	case errors.Is(err, model.ErrVotingClosed),
		errors.Is(err, model.ErrWrongDay),
		errors.Is(err, model.ErrVoterNotAlive),
		errors.Is(err, model.ErrTargetNotAlive),
		errors.Is(err, model.ErrSelfVote),
		errors.Is(err, model.ErrNoVote):
		return &httpError{http.StatusUnprocessableEntity, APIError{CodeVoteRejected, err.Error()}}

	case model.IsValidation(err):
		return &httpError{http.StatusBadRequest, APIError{CodeValidation, err.Error()}}
	case model.IsPersistence(err):
		return &httpError{http.StatusInternalServerError, APIError{CodePersistenceError, "Failed to save game state, nothing was changed"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
