package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Community operations

func (s *Storage) NextGameNumber(ctx context.Context, community model.CommunityID) (int, error) {
	n, err := s.client.Incr(ctx, counterKey(community)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}
	current := currentGameKey(game.CommunityID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		id, err := tx.Get(ctx, current).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if id != "" {
			existing, err := getGame(ctx, tx, model.GameID(id))
			if err != nil && !errors.Is(err, model.ErrGameNotFound) {
				return err
			}
			if existing != nil && existing.IsOpen() {
				return model.ErrGameInProgress
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey(game.ID), data, 0)
			if game.IsOpen() {
				pipe.Set(ctx, current, string(game.ID), 0)
			}
			return nil
		})
		return err
	}, current)
	if errors.Is(err, redis.TxFailedErr) {
		return model.ErrGameInProgress
	}
	return err
}

func (s *Storage) SaveGame(ctx context.Context, game *model.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, gameKey(game.ID), data, redis.KeepTTL).Err()
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	return getGame(ctx, s.client, id)
}

func (s *Storage) GetCurrentGame(ctx context.Context, community model.CommunityID) (*model.Game, error) {
	id, err := s.client.Get(ctx, currentGameKey(community)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}
	game, err := s.GetGame(ctx, model.GameID(id))
	if err != nil {
		return nil, err
	}
	if !game.IsOpen() {
		return nil, model.ErrGameNotFound
	}
	return game, nil
}

func (s *Storage) ApplyTransition(ctx context.Context, t model.Transition) (*model.Game, error) {
	key := gameKey(t.GameID)
	var updated *model.Game

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		game, err := getGame(ctx, tx, t.GameID)
		if err != nil {
			return err
		}
		if game.State() != t.From {
			return model.ErrConcurrentTransition
		}
		game.Apply(t)
		data, err := json.Marshal(game)
		if err != nil {
			return err
		}

		var voteKeys []string
		if t.ClearVotes {
			voteKeys, err = tx.SMembers(ctx, voteDaysIndexKey(t.GameID)).Result()
			if err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			if t.ClearVotes {
				for _, k := range voteKeys {
					pipe.Del(ctx, k)
				}
				pipe.Del(ctx, voteDaysIndexKey(t.GameID))
			}
			if t.To.Status == model.GameStatusEnded && s.cfg.EndedGameTTL > 0 {
				pipe.Expire(ctx, key, s.cfg.EndedGameTTL)
				pipe.Expire(ctx, playersKey(t.GameID), s.cfg.EndedGameTTL)
				pipe.Expire(ctx, auxChannelsKey(t.GameID), s.cfg.EndedGameTTL)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = game
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, model.ErrConcurrentTransition
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	return hsetJSON(ctx, s.client, playersKey(player.GameID), string(player.MemberID), player)
}

func (s *Storage) GetPlayer(ctx context.Context, gameID model.GameID, member model.MemberID) (*model.Player, error) {
	var player model.Player
	if err := hgetJSON(ctx, s.client, playersKey(gameID), string(member), &player, model.ErrPlayerNotFound); err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *Storage) ListPlayers(ctx context.Context, gameID model.GameID) ([]*model.Player, error) {
	players, err := hgetAllJSON[model.Player](ctx, s.client, playersKey(gameID))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(players, storage.ComparePlayers)
	return players, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, gameID model.GameID, member model.MemberID) error {
	return s.client.HDel(ctx, playersKey(gameID), string(member)).Err()
}

// Vote operations

func (s *Storage) UpsertVote(ctx context.Context, vote *model.Vote) error {
	data, err := json.Marshal(vote)
	if err != nil {
		return err
	}
	key := votesKey(vote.GameID, vote.DayNumber)

	// Single hash field per voter makes the replace atomic
	return s.whileVoting(ctx, vote.GameID, vote.DayNumber, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, string(vote.VoterID), data)
			pipe.SAdd(ctx, voteDaysIndexKey(vote.GameID), key)
			return nil
		})
		return err
	})
}

func (s *Storage) DeleteVote(ctx context.Context, gameID model.GameID, day int, voter model.MemberID) error {
	return s.whileVoting(ctx, gameID, day, func(tx *redis.Tx) error {
		var del *redis.IntCmd
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.HDel(ctx, votesKey(gameID, day), string(voter))
			return nil
		})
		if err != nil {
			return err
		}
		if del.Val() == 0 {
			return model.ErrNoVote
		}
		return nil
	})
}

// voteWriteAttempts bounds retries when another write touches the game
// between the state check and the vote write
const voteWriteAttempts = 3

// whileVoting runs write in a transaction that aborts if the game key changes
// after its state was checked, so a day-end purge cannot be overtaken by a
// late vote
func (s *Storage) whileVoting(ctx context.Context, gameID model.GameID, day int, write func(tx *redis.Tx) error) error {
	var err error
	for range voteWriteAttempts {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			game, err := getGame(ctx, tx, gameID)
			if err != nil {
				return err
			}
			if !game.State().AcceptsVotesFor(day) {
				return model.ErrVotingClosed
			}
			return write(tx)
		}, gameKey(gameID))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("vote write kept conflicting: %w", err)
}

func (s *Storage) ListVotes(ctx context.Context, gameID model.GameID, day int) ([]*model.Vote, error) {
	votes, err := hgetAllJSON[model.Vote](ctx, s.client, votesKey(gameID, day))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(votes, storage.CompareVotes)
	return votes, nil
}

// Auxiliary channel operations

func (s *Storage) SaveAuxChannel(ctx context.Context, ch *model.AuxChannel) error {
	return hsetJSON(ctx, s.client, auxChannelsKey(ch.GameID), ch.Name, ch)
}

func (s *Storage) ListAuxChannels(ctx context.Context, gameID model.GameID) ([]*model.AuxChannel, error) {
	channels, err := hgetAllJSON[model.AuxChannel](ctx, s.client, auxChannelsKey(gameID))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(channels, storage.CompareAuxChannels)
	return channels, nil
}

// Journal operations

func (s *Storage) SaveJournal(ctx context.Context, j *model.Journal) error {
	return hsetJSON(ctx, s.client, journalsKey(j.CommunityID), string(j.MemberID), j)
}

func (s *Storage) GetJournal(ctx context.Context, community model.CommunityID, member model.MemberID) (*model.Journal, error) {
	var j model.Journal
	if err := hgetJSON(ctx, s.client, journalsKey(community), string(member), &j, model.ErrJournalNotFound); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Storage) ListJournals(ctx context.Context, community model.CommunityID) ([]*model.Journal, error) {
	journals, err := hgetAllJSON[model.Journal](ctx, s.client, journalsKey(community))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(journals, storage.CompareJournals)
	return journals, nil
}

func (s *Storage) ReassignJournal(ctx context.Context, from model.MemberID, j *model.Journal) error {
	key := journalsKey(j.CommunityID)
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		found, err := tx.HExists(ctx, key, string(from)).Result()
		if err != nil {
			return err
		}
		if !found {
			return model.ErrJournalNotFound
		}
		if j.MemberID != from {
			taken, err := tx.HExists(ctx, key, string(j.MemberID)).Result()
			if err != nil {
				return err
			}
			if taken {
				return model.ErrJournalExists
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, string(from))
			pipe.HSet(ctx, key, string(j.MemberID), data)
			return nil
		})
		return err
	}, key)
}

// Helpers

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getGame(ctx context.Context, c getter, id model.GameID) (*model.Game, error) {
	data, err := c.Get(ctx, gameKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}

	var game model.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func hsetJSON(ctx context.Context, c redis.Cmdable, key, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.HSet(ctx, key, field, data).Err()
}

func hgetJSON(ctx context.Context, c redis.Cmdable, key, field string, v any, notFound error) error {
	data, err := c.HGet(ctx, key, field).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func hgetAllJSON[T any](ctx context.Context, c redis.Cmdable, key string) ([]*T, error) {
	values, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(values))
	for field, val := range values {
		var v T
		if err := json.Unmarshal([]byte(val), &v); err != nil {
			return nil, fmt.Errorf("decode %s[%s]: %w", key, field, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
