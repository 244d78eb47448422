package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	counters map[model.CommunityID]int
	games    map[model.GameID]*model.Game
	players  map[playerKey]*model.Player
	votes    map[voteKey]*model.Vote
	aux      map[auxKey]*model.AuxChannel
	journals map[journalKey]*model.Journal
}

type playerKey struct {
	gameID   model.GameID
	memberID model.MemberID
}

type voteKey struct {
	gameID model.GameID
	day    int
	voter  model.MemberID
}

type auxKey struct {
	gameID model.GameID
	name   string
}

type journalKey struct {
	community model.CommunityID
	memberID  model.MemberID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		counters: make(map[model.CommunityID]int),
		games:    make(map[model.GameID]*model.Game),
		players:  make(map[playerKey]*model.Player),
		votes:    make(map[voteKey]*model.Vote),
		aux:      make(map[auxKey]*model.AuxChannel),
		journals: make(map[journalKey]*model.Journal),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Community operations

func (s *Storage) NextGameNumber(ctx context.Context, community model.CommunityID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[community]++
	return s.counters[community], nil
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.CommunityID == game.CommunityID && g.IsOpen() {
			return model.ErrGameInProgress
		}
	}
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *Storage) SaveGame(ctx context.Context, game *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[id]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return game.Clone(), nil
}

func (s *Storage) GetCurrentGame(ctx context.Context, community model.CommunityID) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var current *model.Game
	for _, g := range s.games {
		if g.CommunityID != community || !g.IsOpen() {
			continue
		}
		if current == nil || g.Number > current.Number {
			current = g
		}
	}
	if current == nil {
		return nil, model.ErrGameNotFound
	}
	return current.Clone(), nil
}

func (s *Storage) ApplyTransition(ctx context.Context, t model.Transition) (*model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[t.GameID]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	if game.State() != t.From {
		return nil, model.ErrConcurrentTransition
	}
	game.Apply(t)
	if t.ClearVotes {
		for k := range s.votes {
			if k.gameID == t.GameID {
				delete(s.votes, k)
			}
		}
	}
	return game.Clone(), nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *player
	s.players[playerKey{player.GameID, player.MemberID}] = &cp
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, gameID model.GameID, member model.MemberID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[playerKey{gameID, member}]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Storage) ListPlayers(ctx context.Context, gameID model.GameID) ([]*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.Player{}
	for k, p := range s.players {
		if k.gameID == gameID {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, storage.ComparePlayers)
	return out, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, gameID model.GameID, member model.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, playerKey{gameID, member})
	return nil
}

// Vote operations

func (s *Storage) UpsertVote(ctx context.Context, vote *model.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVoting(vote.GameID, vote.DayNumber); err != nil {
		return err
	}
	cp := *vote
	s.votes[voteKey{vote.GameID, vote.DayNumber, vote.VoterID}] = &cp
	return nil
}

func (s *Storage) DeleteVote(ctx context.Context, gameID model.GameID, day int, voter model.MemberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVoting(gameID, day); err != nil {
		return err
	}
	k := voteKey{gameID, day, voter}
	if _, ok := s.votes[k]; !ok {
		return model.ErrNoVote
	}
	delete(s.votes, k)
	return nil
}

// checkVoting fails unless the game is open for votes on day. Caller holds mu.
func (s *Storage) checkVoting(gameID model.GameID, day int) error {
	game, ok := s.games[gameID]
	if !ok {
		return model.ErrGameNotFound
	}
	if !game.State().AcceptsVotesFor(day) {
		return model.ErrVotingClosed
	}
	return nil
}

func (s *Storage) ListVotes(ctx context.Context, gameID model.GameID, day int) ([]*model.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.Vote{}
	for k, v := range s.votes {
		if k.gameID == gameID && k.day == day {
			cp := *v
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, storage.CompareVotes)
	return out, nil
}

// Auxiliary channel operations

func (s *Storage) SaveAuxChannel(ctx context.Context, ch *model.AuxChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ch
	cp.Invited = slices.Clone(ch.Invited)
	s.aux[auxKey{ch.GameID, ch.Name}] = &cp
	return nil
}

func (s *Storage) ListAuxChannels(ctx context.Context, gameID model.GameID) ([]*model.AuxChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.AuxChannel{}
	for k, ch := range s.aux {
		if k.gameID == gameID {
			cp := *ch
			cp.Invited = slices.Clone(ch.Invited)
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, storage.CompareAuxChannels)
	return out, nil
}

// Journal operations

func (s *Storage) SaveJournal(ctx context.Context, j *model.Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.journals[journalKey{j.CommunityID, j.MemberID}] = &cp
	return nil
}

func (s *Storage) GetJournal(ctx context.Context, community model.CommunityID, member model.MemberID) (*model.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.journals[journalKey{community, member}]
	if !ok {
		return nil, model.ErrJournalNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Storage) ReassignJournal(ctx context.Context, from model.MemberID, j *model.Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := journalKey{j.CommunityID, from}
	if _, ok := s.journals[old]; !ok {
		return model.ErrJournalNotFound
	}
	if _, ok := s.journals[journalKey{j.CommunityID, j.MemberID}]; ok && j.MemberID != from {
		return model.ErrJournalExists
	}
	delete(s.journals, old)
	cp := *j
	s.journals[journalKey{j.CommunityID, j.MemberID}] = &cp
	return nil
}

func (s *Storage) ListJournals(ctx context.Context, community model.CommunityID) ([]*model.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.Journal{}
	for k, j := range s.journals {
		if k.community == community {
			cp := *j
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, storage.CompareJournals)
	return out, nil
}
