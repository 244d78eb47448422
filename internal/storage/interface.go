package storage

import (
	"context"

	"github.com/mcoot/wolfbot/internal/model"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Community operations

	// NextGameNumber atomically increments and returns the community's game counter
	NextGameNumber(ctx context.Context, community model.CommunityID) (int, error)

	// Game operations

	// CreateGame stores a new game, failing with ErrGameInProgress when the
	// community already has a game that has not ended
	CreateGame(ctx context.Context, game *model.Game) error
	SaveGame(ctx context.Context, game *model.Game) error
	GetGame(ctx context.Context, id model.GameID) (*model.Game, error)
	// GetCurrentGame returns the community's game in signup or active status
	GetCurrentGame(ctx context.Context, community model.CommunityID) (*model.Game, error)
	// ApplyTransition moves a game from t.From to t.To in one atomic write,
	// failing with ErrConcurrentTransition if the stored state is not t.From
	ApplyTransition(ctx context.Context, t model.Transition) (*model.Game, error)

	// Player operations
	SavePlayer(ctx context.Context, player *model.Player) error
	GetPlayer(ctx context.Context, gameID model.GameID, member model.MemberID) (*model.Player, error)
	ListPlayers(ctx context.Context, gameID model.GameID) ([]*model.Player, error)
	DeletePlayer(ctx context.Context, gameID model.GameID, member model.MemberID) error

	// Vote operations

	// UpsertVote replaces any vote by the same voter on the same day. The
	// write is conditional on the stored game being open for votes on that
	// day, checked atomically with ApplyTransition; otherwise ErrVotingClosed.
	UpsertVote(ctx context.Context, vote *model.Vote) error
	// DeleteVote removes a voter's vote under the same condition as
	// UpsertVote, failing with ErrNoVote if there is none
	DeleteVote(ctx context.Context, gameID model.GameID, day int, voter model.MemberID) error
	ListVotes(ctx context.Context, gameID model.GameID, day int) ([]*model.Vote, error)

	// Auxiliary channel operations
	SaveAuxChannel(ctx context.Context, ch *model.AuxChannel) error
	ListAuxChannels(ctx context.Context, gameID model.GameID) ([]*model.AuxChannel, error)

	// Journal operations
	SaveJournal(ctx context.Context, j *model.Journal) error
	GetJournal(ctx context.Context, community model.CommunityID, member model.MemberID) (*model.Journal, error)
	ListJournals(ctx context.Context, community model.CommunityID) ([]*model.Journal, error)
	// ReassignJournal moves the journal record owned by from to j.MemberID in
	// one write. It fails with ErrJournalNotFound if from has none and with
	// ErrJournalExists if the new owner already has one.
	ReassignJournal(ctx context.Context, from model.MemberID, j *model.Journal) error
}
