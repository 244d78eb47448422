package storagetest

import (
	"context"
	"sync"

	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/storage"
)

// Write methods that can be made to fail
const (
	MethodCreateGame      = "CreateGame"
	MethodSaveGame        = "SaveGame"
	MethodApplyTransition = "ApplyTransition"
	MethodSavePlayer      = "SavePlayer"
	MethodUpsertVote      = "UpsertVote"
	MethodDeleteVote      = "DeleteVote"
	MethodSaveAuxChannel  = "SaveAuxChannel"
	MethodSaveJournal     = "SaveJournal"
	MethodReassignJournal = "ReassignJournal"
)

// Failing wraps a Storage and fails chosen write methods
type Failing struct {
	storage.Storage

	mu    sync.Mutex
	errs  map[string]error
	hooks map[string]func(context.Context)
}

// NewFailing wraps s
func NewFailing(s storage.Storage) *Failing {
	return &Failing{Storage: s, errs: make(map[string]error), hooks: make(map[string]func(context.Context))}
}

// FailOn makes method return err until cleared
func (f *Failing) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

// Before runs hook once, ahead of the next call to method. Used to land a
// concurrent write between a caller's read and its write.
func (f *Failing) Before(method string, hook func(context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[method] = hook
}

// Clear removes every injected failure and pending hook
func (f *Failing) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = make(map[string]error)
	f.hooks = make(map[string]func(context.Context))
}

func (f *Failing) err(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

func (f *Failing) runHook(ctx context.Context, method string) {
	f.mu.Lock()
	hook := f.hooks[method]
	delete(f.hooks, method)
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
}

func (f *Failing) CreateGame(ctx context.Context, g *model.Game) error {
	if err := f.err(MethodCreateGame); err != nil {
		return err
	}
	return f.Storage.CreateGame(ctx, g)
}

func (f *Failing) SaveGame(ctx context.Context, g *model.Game) error {
	if err := f.err(MethodSaveGame); err != nil {
		return err
	}
	return f.Storage.SaveGame(ctx, g)
}

func (f *Failing) ApplyTransition(ctx context.Context, t model.Transition) (*model.Game, error) {
	if err := f.err(MethodApplyTransition); err != nil {
		return nil, err
	}
	return f.Storage.ApplyTransition(ctx, t)
}

func (f *Failing) SavePlayer(ctx context.Context, p *model.Player) error {
	if err := f.err(MethodSavePlayer); err != nil {
		return err
	}
	return f.Storage.SavePlayer(ctx, p)
}

func (f *Failing) UpsertVote(ctx context.Context, v *model.Vote) error {
	f.runHook(ctx, MethodUpsertVote)
	if err := f.err(MethodUpsertVote); err != nil {
		return err
	}
	return f.Storage.UpsertVote(ctx, v)
}

func (f *Failing) DeleteVote(ctx context.Context, gameID model.GameID, day int, voter model.MemberID) error {
	f.runHook(ctx, MethodDeleteVote)
	if err := f.err(MethodDeleteVote); err != nil {
		return err
	}
	return f.Storage.DeleteVote(ctx, gameID, day, voter)
}

func (f *Failing) SaveAuxChannel(ctx context.Context, c *model.AuxChannel) error {
	if err := f.err(MethodSaveAuxChannel); err != nil {
		return err
	}
	return f.Storage.SaveAuxChannel(ctx, c)
}

func (f *Failing) SaveJournal(ctx context.Context, j *model.Journal) error {
	if err := f.err(MethodSaveJournal); err != nil {
		return err
	}
	return f.Storage.SaveJournal(ctx, j)
}

func (f *Failing) ReassignJournal(ctx context.Context, from model.MemberID, j *model.Journal) error {
	if err := f.err(MethodReassignJournal); err != nil {
		return err
	}
	return f.Storage.ReassignJournal(ctx, from, j)
}
