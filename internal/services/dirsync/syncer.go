// Package dirsync applies resolved permission matrices to remote channels.
// Writes are sequential and paced. A failure on one channel is recorded and
// the batch moves on; there are no retries at this layer.
package dirsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/wolfbot/internal/dependencies/clock"
	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/permissions"
)

// Target is one channel to bring in line with a matrix
type Target struct {
	ChannelID model.ChannelID
	Name      string
	Matrix    permissions.Matrix
}

// Outcome is the result for one channel
type Outcome struct {
	ChannelID model.ChannelID
	Name      string
	Writes    int
	Err       error
}

// Result collects the outcomes of a batch
type Result struct {
	Outcomes []Outcome
	Failed   int
}

// Synced returns the number of channels updated without error
func (r Result) Synced() int {
	return len(r.Outcomes) - r.Failed
}

// FailedChannels returns the channels that did not sync
func (r Result) FailedChannels() []model.ChannelID {
	var out []model.ChannelID
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o.ChannelID)
		}
	}
	return out
}

// Err joins the per-channel errors, nil when everything synced
func (r Result) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Merge folds another batch into r
func (r *Result) Merge(other Result) {
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
	r.Failed += other.Failed
}

// Syncer applies permission matrices to a directory
type Syncer struct {
	dir    directory.Directory
	clock  clock.Clock
	pace   time.Duration
	logger *slog.Logger
}

// New creates a syncer that waits pace between remote writes
func New(dir directory.Directory, clk clock.Clock, pace time.Duration, logger *slog.Logger) *Syncer {
	return &Syncer{
		dir:    dir,
		clock:  clk,
		pace:   pace,
		logger: logger,
	}
}

// Sync applies each target's matrix in order
func (s *Syncer) Sync(ctx context.Context, community model.CommunityID, targets []Target) Result {
	var result Result
	for _, t := range targets {
		out := s.syncOne(ctx, community, t)
		if out.Err != nil {
			result.Failed++
			s.logger.Warn("channel sync failed",
				slog.String("channel_id", string(t.ChannelID)),
				slog.String("channel", t.Name),
				slog.String("error", out.Err.Error()),
			)
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	s.logger.Info("sync batch complete",
		slog.String("community_id", string(community)),
		slog.Int("channels", len(targets)),
		slog.Int("failed", result.Failed),
	)
	return result
}

func (s *Syncer) syncOne(ctx context.Context, community model.CommunityID, t Target) Outcome {
	out := Outcome{ChannelID: t.ChannelID, Name: t.Name}
	fail := func(op string, err error) Outcome {
		out.Err = &model.DirectoryError{ChannelID: t.ChannelID, Name: t.Name, Op: op, Err: err}
		return out
	}

	if err := ctx.Err(); err != nil {
		return fail("sync", err)
	}

	ch, err := s.dir.GetChannel(ctx, t.ChannelID)
	if err != nil {
		return fail("read", err)
	}

	for _, o := range Diff(ch.Overlays, t.Matrix) {
		if err := s.wait(ctx); err != nil {
			return fail("sync", err)
		}
		if err := s.dir.SetOverlay(ctx, community, t.ChannelID, o); err != nil {
			return fail("set overlay", err)
		}
		out.Writes++
	}
	return out
}

// RestoreOverlays makes a channel's overlays equal to a snapshot, writing
// only what differs. Writes are paced like a sync.
func (s *Syncer) RestoreOverlays(ctx context.Context, community model.CommunityID, id model.ChannelID, name string, snapshot []directory.Overlay) (int, error) {
	fail := func(err error) error {
		return &model.DirectoryError{ChannelID: id, Name: name, Op: "restore", Err: err}
	}

	ch, err := s.dir.GetChannel(ctx, id)
	if err != nil {
		return 0, fail(err)
	}

	writes, deletes := Restore(ch.Overlays, snapshot)
	n := 0
	for _, o := range writes {
		if err := s.wait(ctx); err != nil {
			return n, fail(err)
		}
		if err := s.dir.SetOverlay(ctx, community, id, o); err != nil {
			return n, fail(err)
		}
		n++
	}
	for _, t := range deletes {
		if err := s.wait(ctx); err != nil {
			return n, fail(err)
		}
		if err := s.dir.DeleteOverlay(ctx, community, id, t); err != nil {
			return n, fail(err)
		}
		n++
	}
	return n, nil
}

// Pace waits the configured delay ahead of a remote write
func (s *Syncer) Pace(ctx context.Context) error {
	return s.wait(ctx)
}

func (s *Syncer) wait(ctx context.Context) error {
	if s.pace <= 0 {
		return ctx.Err()
	}
	return s.clock.Sleep(ctx, s.pace)
}
