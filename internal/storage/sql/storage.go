// Package sql is a relational storage backend built on gorm. It supports
// sqlite for local runs and tests, and mysql or postgres in production.
package sql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/storage"
)

// Config holds the database connection settings
type Config struct {
	// Driver is one of sqlite, mysql, postgres
	Driver string
	DSN    string

	MaxOpenConns int
	MaxIdleConns int
	// LogQueries enables gorm's query logger
	LogQueries bool
}

// DefaultConfig returns a local sqlite database
func DefaultConfig() Config {
	return Config{
		Driver:       "sqlite",
		DSN:          "wolfbot.db",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// Storage is a gorm-backed implementation of the storage interface
type Storage struct {
	db *gorm.DB
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// New opens the database and migrates the schema
func New(cfg Config) (*Storage, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown sql driver %q", cfg.Driver)
	}

	level := logger.Silent
	if cfg.LogQueries {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	return NewWithDB(db)
}

// NewWithDB wraps an open gorm handle and migrates the schema
func NewWithDB(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(allRecords...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Community operations

func (s *Storage) NextGameNumber(ctx context.Context, community model.CommunityID) (int, error) {
	var rec communityRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"game_counter": gorm.Expr("communities.game_counter + 1"),
			}),
		}).Create(&communityRecord{ID: string(community), GameCounter: 1}).Error
		if err != nil {
			return err
		}
		return tx.First(&rec, "id = ?", string(community)).Error
	})
	if err != nil {
		return 0, err
	}
	return rec.GameCounter, nil
}

// Game operations

func (s *Storage) CreateGame(ctx context.Context, game *model.Game) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize creators on the community row
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&communityRecord{ID: string(game.CommunityID)}).Error; err != nil {
			return err
		}
		var community communityRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&community, "id = ?", string(game.CommunityID)).Error; err != nil {
			return err
		}

		var open int64
		err := tx.Model(&gameRecord{}).
			Where("community_id = ? AND status IN ?", string(game.CommunityID), openStatuses).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return model.ErrGameInProgress
		}
		return tx.Create(gameToRecord(game)).Error
	})
}

var openStatuses = []string{string(model.GameStatusSignup), string(model.GameStatusActive)}

func (s *Storage) SaveGame(ctx context.Context, game *model.Game) error {
	return s.db.WithContext(ctx).Save(gameToRecord(game)).Error
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	var rec gameRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		return nil, notFound(err, model.ErrGameNotFound)
	}
	return rec.toModel(), nil
}

func (s *Storage) GetCurrentGame(ctx context.Context, community model.CommunityID) (*model.Game, error) {
	var rec gameRecord
	err := s.db.WithContext(ctx).
		Where("community_id = ? AND status IN ?", string(community), openStatuses).
		Order("number DESC").
		First(&rec).Error
	if err != nil {
		return nil, notFound(err, model.ErrGameNotFound)
	}
	return rec.toModel(), nil
}

func (s *Storage) ApplyTransition(ctx context.Context, t model.Transition) (*model.Game, error) {
	var updated gameRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional update on the full triple is the compare-and-set
		res := tx.Model(&gameRecord{}).
			Where("id = ? AND status = ? AND phase = ? AND day_number = ?",
				string(t.GameID), string(t.From.Status), string(t.From.Phase), t.From.DayNumber).
			Updates(map[string]any{
				"status":           string(t.To.Status),
				"phase":            string(t.To.Phase),
				"day_number":       t.To.DayNumber,
				"phase_changed_at": t.ChangedAt,
				"updated_at":       t.ChangedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&gameRecord{}).Where("id = ?", string(t.GameID)).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return model.ErrGameNotFound
			}
			return model.ErrConcurrentTransition
		}

		if t.ClearVotes {
			if err := tx.Where("game_id = ?", string(t.GameID)).Delete(&voteRecord{}).Error; err != nil {
				return err
			}
		}
		return tx.First(&updated, "id = ?", string(t.GameID)).Error
	})
	if err != nil {
		return nil, err
	}
	return updated.toModel(), nil
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	return s.db.WithContext(ctx).Save(playerToRecord(player)).Error
}

func (s *Storage) GetPlayer(ctx context.Context, gameID model.GameID, member model.MemberID) (*model.Player, error) {
	var rec playerRecord
	err := s.db.WithContext(ctx).First(&rec, "game_id = ? AND member_id = ?", string(gameID), string(member)).Error
	if err != nil {
		return nil, notFound(err, model.ErrPlayerNotFound)
	}
	return rec.toModel(), nil
}

func (s *Storage) ListPlayers(ctx context.Context, gameID model.GameID) ([]*model.Player, error) {
	var recs []playerRecord
	if err := s.db.WithContext(ctx).Where("game_id = ?", string(gameID)).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Player, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	slices.SortFunc(out, storage.ComparePlayers)
	return out, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, gameID model.GameID, member model.MemberID) error {
	return s.db.WithContext(ctx).
		Where("game_id = ? AND member_id = ?", string(gameID), string(member)).
		Delete(&playerRecord{}).Error
}

// Vote operations

func (s *Storage) UpsertVote(ctx context.Context, vote *model.Vote) error {
	rec := &voteRecord{
		GameID:    string(vote.GameID),
		DayNumber: vote.DayNumber,
		VoterID:   string(vote.VoterID),
		TargetID:  string(vote.TargetID),
		CastAt:    vote.CastAt,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockVoting(tx, vote.GameID, vote.DayNumber); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game_id"}, {Name: "day_number"}, {Name: "voter_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"target_id", "cast_at"}),
		}).Create(rec).Error
	})
}

func (s *Storage) DeleteVote(ctx context.Context, gameID model.GameID, day int, voter model.MemberID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockVoting(tx, gameID, day); err != nil {
			return err
		}
		res := tx.Where("game_id = ? AND day_number = ? AND voter_id = ?", string(gameID), day, string(voter)).
			Delete(&voteRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNoVote
		}
		return nil
	})
}

// lockVoting locks the game row for the rest of tx and checks it is open for
// votes on day. ApplyTransition updates the same row, so a vote write and a
// day-end purge cannot interleave.
func lockVoting(tx *gorm.DB, gameID model.GameID, day int) error {
	var rec gameRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "status", "phase", "day_number").
		First(&rec, "id = ?", string(gameID)).Error
	if err != nil {
		return notFound(err, model.ErrGameNotFound)
	}
	state := model.State{Status: model.GameStatus(rec.Status), Phase: model.Phase(rec.Phase), DayNumber: rec.DayNumber}
	if !state.AcceptsVotesFor(day) {
		return model.ErrVotingClosed
	}
	return nil
}

func (s *Storage) ListVotes(ctx context.Context, gameID model.GameID, day int) ([]*model.Vote, error) {
	var recs []voteRecord
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND day_number = ?", string(gameID), day).
		Order("voter_id").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.Vote, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	return out, nil
}

// Auxiliary channel operations

func (s *Storage) SaveAuxChannel(ctx context.Context, ch *model.AuxChannel) error {
	return s.db.WithContext(ctx).Save(auxToRecord(ch)).Error
}

func (s *Storage) ListAuxChannels(ctx context.Context, gameID model.GameID) ([]*model.AuxChannel, error) {
	var recs []auxChannelRecord
	if err := s.db.WithContext(ctx).Where("game_id = ?", string(gameID)).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*model.AuxChannel, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	slices.SortFunc(out, storage.CompareAuxChannels)
	return out, nil
}

// Journal operations

func (s *Storage) SaveJournal(ctx context.Context, j *model.Journal) error {
	return s.db.WithContext(ctx).Save(journalToRecord(j)).Error
}

func (s *Storage) GetJournal(ctx context.Context, community model.CommunityID, member model.MemberID) (*model.Journal, error) {
	var rec journalRecord
	err := s.db.WithContext(ctx).
		First(&rec, "community_id = ? AND member_id = ?", string(community), string(member)).Error
	if err != nil {
		return nil, notFound(err, model.ErrJournalNotFound)
	}
	return rec.toModel(), nil
}

func (s *Storage) ListJournals(ctx context.Context, community model.CommunityID) ([]*model.Journal, error) {
	var recs []journalRecord
	err := s.db.WithContext(ctx).
		Where("community_id = ?", string(community)).
		Order("member_id").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.Journal, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	return out, nil
}

func (s *Storage) ReassignJournal(ctx context.Context, from model.MemberID, j *model.Journal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old journalRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&old, "community_id = ? AND member_id = ?", string(j.CommunityID), string(from)).Error
		if err != nil {
			return notFound(err, model.ErrJournalNotFound)
		}
		if j.MemberID != from {
			var taken int64
			err := tx.Model(&journalRecord{}).
				Where("community_id = ? AND member_id = ?", string(j.CommunityID), string(j.MemberID)).
				Count(&taken).Error
			if err != nil {
				return err
			}
			if taken > 0 {
				return model.ErrJournalExists
			}
		}
		if err := tx.Delete(&old).Error; err != nil {
			return err
		}
		return tx.Create(journalToRecord(j)).Error
	})
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
