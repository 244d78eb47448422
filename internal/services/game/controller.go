package game

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/mcoot/wolfbot/internal/dependencies/clock"
	"github.com/mcoot/wolfbot/internal/dependencies/ids"
	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	"github.com/mcoot/wolfbot/internal/services/tally"
	"github.com/mcoot/wolfbot/internal/storage"
)

// Config holds game rules that are not per-game settings
type Config struct {
	// AllowSelfVote lets a player vote for themselves
	AllowSelfVote bool
	// Defaults fill in settings omitted when a game is created
	Defaults model.GameSettings
}

// DefaultConfig returns the standard rules
func DefaultConfig() Config {
	return Config{Defaults: model.DefaultGameSettings()}
}

// AdvanceResult describes one completed transition
type AdvanceResult struct {
	Game *model.Game
	From model.State
	To   model.State
	// Tally is set when a day ended
	Tally *tally.Report
	// Sync holds the per-channel permission outcomes
	Sync dirsync.Result
	// Errors are directory failures outside permission sync: provisioning,
	// role changes and announcements
	Errors []error
}

// Err joins every directory failure of the transition
func (r *AdvanceResult) Err() error {
	return errors.Join(append([]error{r.Sync.Err()}, r.Errors...)...)
}

// Controller drives the game state machine and projects each state onto
// the directory
type Controller struct {
	storage storage.Storage
	dir     directory.Directory
	syncer  *dirsync.Syncer
	clock   clock.Clock
	ids     ids.Generator
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[model.GameID]bool
}

// NewController creates a new Controller
func NewController(
	storage storage.Storage,
	dir directory.Directory,
	syncer *dirsync.Syncer,
	clock clock.Clock,
	ids ids.Generator,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage:  storage,
		dir:      dir,
		syncer:   syncer,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
		inFlight: make(map[model.GameID]bool),
	}
}

// begin claims the game for one transition. A second caller is rejected
// rather than queued.
func (c *Controller) begin(gameID model.GameID) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[gameID] {
		return nil, model.ErrTransitionInProgress
	}
	c.inFlight[gameID] = true
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.inFlight, gameID)
	}, nil
}

// CreateGame sets up a new game in signup. The game record is stored first;
// if the directory then fails the game still exists and Resync provisions
// what is missing.
func (c *Controller) CreateGame(ctx context.Context, community model.CommunityID, settings model.GameSettings) (*model.Game, error) {
	const op = "create game"

	if current, err := c.storage.GetCurrentGame(ctx, community); err == nil {
		c.logger.Info("game already in progress",
			slog.String("community_id", string(community)),
			slog.String("game_id", string(current.ID)),
		)
		return nil, model.Invalid(op, model.ErrGameInProgress)
	} else if !errors.Is(err, model.ErrGameNotFound) {
		return nil, err
	}

	settings = c.withDefaults(settings)
	if settings.VotesToHang < 1 {
		return nil, model.Invalid(op, model.ErrInvalidThreshold)
	}

	number, err := c.storage.NextGameNumber(ctx, community)
	if err != nil {
		return nil, model.Persistence(op, err)
	}

	now := c.clock.Now()
	game := &model.Game{
		ID:               model.GameID(c.ids.New("game-")),
		CommunityID:      community,
		Number:           number,
		Name:             strings.TrimSpace(settings.Name),
		Status:           model.GameStatusSignup,
		VotesToHang:      settings.VotesToHang,
		DayMessage:       settings.DayMessage,
		NightMessage:     settings.NightMessage,
		WolfDayMessage:   settings.WolfDayMessage,
		WolfNightMessage: settings.WolfNightMessage,
		Channels:         make(map[model.Slot]model.ChannelID),
		PhaseChangedAt:   now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := c.storage.CreateGame(ctx, game); err != nil {
		if errors.Is(err, model.ErrGameInProgress) {
			return nil, model.Invalid(op, err)
		}
		c.logger.Error("failed to save game",
			slog.String("game_id", string(game.ID)),
			slog.String("error", err.Error()),
		)
		return nil, model.Persistence(op, err)
	}

	c.logger.Info("game created",
		slog.String("game_id", string(game.ID)),
		slog.String("community_id", string(community)),
		slog.Int("number", number),
	)

	errs := c.provision(ctx, game, setupSlots)
	if err := c.storage.SaveGame(ctx, game); err != nil {
		return game, model.Persistence(op, err)
	}
	return game, errors.Join(errs...)
}

func (c *Controller) withDefaults(s model.GameSettings) model.GameSettings {
	d := c.cfg.Defaults
	if s.VotesToHang == 0 {
		s.VotesToHang = d.VotesToHang
	}
	if s.DayMessage == "" {
		s.DayMessage = d.DayMessage
	}
	if s.NightMessage == "" {
		s.NightMessage = d.NightMessage
	}
	if s.WolfDayMessage == "" {
		s.WolfDayMessage = d.WolfDayMessage
	}
	if s.WolfNightMessage == "" {
		s.WolfNightMessage = d.WolfNightMessage
	}
	return s
}

// UpdateSettings changes an open game's vote threshold and phase messages.
// They take effect from the next tally and phase banner.
func (c *Controller) UpdateSettings(ctx context.Context, gameID model.GameID, update model.SettingsUpdate) (*model.Game, error) {
	const op = "update settings"

	if update.IsEmpty() {
		return nil, model.Invalid(op, model.ErrNoSettingsChanged)
	}
	if update.VotesToHang != nil && *update.VotesToHang < 1 {
		return nil, model.Invalid(op, model.ErrInvalidThreshold)
	}

	done, err := c.begin(gameID)
	if err != nil {
		return nil, err
	}
	defer done()

	g, err := c.storage.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status == model.GameStatusEnded {
		return nil, model.Invalid(op, model.ErrGameEnded)
	}

	update.ApplyTo(g)
	g.UpdatedAt = c.clock.Now()
	if err := c.storage.SaveGame(ctx, g); err != nil {
		return nil, model.Persistence(op, err)
	}

	c.logger.Info("game settings updated",
		slog.String("game_id", string(g.ID)),
		slog.Int("votes_to_hang", g.VotesToHang),
	)
	return g, nil
}

// GetGame retrieves a game by ID
func (c *Controller) GetGame(ctx context.Context, gameID model.GameID) (*model.Game, error) {
	return c.storage.GetGame(ctx, gameID)
}

// GetCurrentGame returns the community's game in signup or active status
func (c *Controller) GetCurrentGame(ctx context.Context, community model.CommunityID) (*model.Game, error) {
	return c.storage.GetCurrentGame(ctx, community)
}

// ListPlayers returns a game's players in signup order
func (c *Controller) ListPlayers(ctx context.Context, gameID model.GameID) ([]*model.Player, error) {
	return c.storage.ListPlayers(ctx, gameID)
}

// ListAuxChannels returns a game's auxiliary channels
func (c *Controller) ListAuxChannels(ctx context.Context, gameID model.GameID) ([]*model.AuxChannel, error) {
	return c.storage.ListAuxChannels(ctx, gameID)
}

// transition persists t in one atomic write. Nothing remote may happen
// before it succeeds.
func (c *Controller) transition(ctx context.Context, op string, t model.Transition) (*model.Game, error) {
	g, err := c.storage.ApplyTransition(ctx, t)
	if err != nil {
		if errors.Is(err, model.ErrConcurrentTransition) || errors.Is(err, model.ErrGameNotFound) {
			return nil, err
		}
		c.logger.Error("failed to persist transition",
			slog.String("game_id", string(t.GameID)),
			slog.String("from", t.From.String()),
			slog.String("to", t.To.String()),
			slog.String("error", err.Error()),
		)
		return nil, model.Persistence(op, err)
	}
	return g, nil
}
