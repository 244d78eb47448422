package model

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors used across the application
var (
	// Lookup errors
	ErrGameNotFound    = errors.New("game not found")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrJournalNotFound = errors.New("journal not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrMemberNotFound  = errors.New("member not found")

	// Lifecycle errors
	ErrGameInProgress       = errors.New("community already has a game in progress")
	ErrNotInSignup          = errors.New("game is not accepting sign-ups")
	ErrGameNotActive        = errors.New("game is not active")
	ErrGameEnded            = errors.New("game has ended")
	ErrInsufficientPlayers  = errors.New("insufficient players to start game")
	ErrAlreadySignedUp      = errors.New("member is already signed up")
	ErrTransitionInProgress = errors.New("another transition is in progress for this game")
	ErrConcurrentTransition = errors.New("game state changed during transition")
	ErrInvalidThreshold     = errors.New("votes to hang must be at least 1")
	ErrInvalidDisplayName   = errors.New("display name must not be empty")
	ErrNoSettingsChanged    = errors.New("no settings to change")

	// Vote errors
	ErrVotingClosed   = errors.New("voting is not open")
	ErrWrongDay       = errors.New("vote is not for the current day")
	ErrVoterNotAlive  = errors.New("voter is not an alive player")
	ErrTargetNotAlive = errors.New("target is not an alive player")
	ErrSelfVote       = errors.New("players cannot vote for themselves")
	ErrNoVote         = errors.New("no vote to retract")

	// Channel errors
	ErrInvalidChannelName = errors.New("invalid channel name")
	ErrDuplicateChannel   = errors.New("channel already exists")
	ErrPlayerNotAlive     = errors.New("player is not alive")

	// Journal errors
	ErrJournalExists = errors.New("journal already exists")
	ErrNoJournals    = errors.New("no journal channels found")
)

// ValidationError is bad caller input. Surfaced directly, never retried.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid wraps err as a ValidationError for op
func Invalid(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}

// PersistenceError is a failed store write. The operation was aborted
// before any external side effects.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError for op
func Persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// DirectoryError is a failed remote write for one channel
type DirectoryError struct {
	ChannelID ChannelID
	Name      string
	Op        string
	Err       error
}

func (e *DirectoryError) Error() string {
	name := e.Name
	if name == "" {
		name = string(e.ChannelID)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, name, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// ConfirmationTimeoutError reports container moves never observed remotely
type ConfirmationTimeoutError struct {
	Pending  []ChannelID
	Attempts int
}

func (e *ConfirmationTimeoutError) Error() string {
	ids := make([]string, len(e.Pending))
	for i, id := range e.Pending {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%d moves not confirmed after %d attempts: %s",
		len(e.Pending), e.Attempts, strings.Join(ids, ", "))
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is a PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
