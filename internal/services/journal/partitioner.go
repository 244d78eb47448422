// Package journal provisions per-player journal channels and keeps them
// partitioned across capacity-bounded containers in name order.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/mcoot/wolfbot/internal/dependencies/clock"
	"github.com/mcoot/wolfbot/internal/dependencies/ids"
	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
	"github.com/mcoot/wolfbot/internal/services/dirsync"
	"github.com/mcoot/wolfbot/internal/services/permissions"
	"github.com/mcoot/wolfbot/internal/storage"
)

// Config holds partitioning settings
type Config struct {
	// Capacity is the most journals one container may hold
	Capacity int
	// ContainerName is the base name of journal containers
	ContainerName string
	// Confirm bounds the wait for container moves to land
	Confirm dirsync.ConfirmPolicy
}

// DefaultConfig returns the platform's category limit and a 15s confirm budget
func DefaultConfig() Config {
	return Config{
		Capacity:      50,
		ContainerName: "Journals",
		Confirm:       dirsync.DefaultConfirmPolicy(),
	}
}

// Report describes what a rebalance did
type Report struct {
	RunID        string
	Journals     int
	Containers   int
	Moved        int
	Unconfirmed  []model.ChannelID
	Created      int
	Renamed      int
	Deleted      int
	Repositioned int
	Restored     int
	Healed       int
	Failures     []error
}

// Partitioner manages journal channels for every community
type Partitioner struct {
	store  storage.Storage
	dir    directory.Directory
	syncer *dirsync.Syncer
	clock  clock.Clock
	ids    ids.Generator
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	locks map[model.CommunityID]*sync.Mutex
	// owed holds pre-move overlay snapshots for moves that were requested
	// but never confirmed. Entries are only touched under the community lock.
	owed map[model.CommunityID]map[model.ChannelID][]directory.Overlay
}

// New creates a Partitioner
func New(
	store storage.Storage,
	dir directory.Directory,
	syncer *dirsync.Syncer,
	clk clock.Clock,
	idGen ids.Generator,
	cfg Config,
	logger *slog.Logger,
) *Partitioner {
	return &Partitioner{
		store:  store,
		dir:    dir,
		syncer: syncer,
		clock:  clk,
		ids:    idGen,
		cfg:    cfg,
		logger: logger,
		locks:  make(map[model.CommunityID]*sync.Mutex),
		owed:   make(map[model.CommunityID]map[model.ChannelID][]directory.Overlay),
	}
}

// lock serializes journal work per community
func (p *Partitioner) lock(community model.CommunityID) func() {
	p.mu.Lock()
	l, ok := p.locks[community]
	if !ok {
		l = &sync.Mutex{}
		p.locks[community] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// owedFor returns the snapshots still owed to community's journals. Caller
// holds the community lock.
func (p *Partitioner) owedFor(community model.CommunityID) map[model.ChannelID][]directory.Overlay {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.owed[community]
	if !ok {
		o = make(map[model.ChannelID][]directory.Overlay)
		p.owed[community] = o
	}
	return o
}

// journalMatrix is the access a journal grants its owner
func journalMatrix(owner model.MemberID) permissions.Matrix {
	return permissions.Resolve(permissions.KindJournal, model.State{}, permissions.Flags{Owner: owner})
}

// layout is the journal part of a community's channel listing
type layout struct {
	containers []directory.Channel // Sorted by position
	primary    directory.Channel
	entries    []Entry
	counts     map[model.ChannelID]int
}

func (p *Partitioner) layout(channels []directory.Channel) layout {
	var l layout
	l.counts = make(map[model.ChannelID]int)
	isContainer := make(map[model.ChannelID]bool)
	for _, c := range channels {
		if c.IsContainer() && IsContainerName(p.cfg.ContainerName, c.Name) {
			l.containers = append(l.containers, c)
			isContainer[c.ID] = true
		}
	}
	slices.SortStableFunc(l.containers, func(a, b directory.Channel) int { return a.Position - b.Position })

	for _, c := range channels {
		if c.IsContainer() || !isContainer[c.ParentID] || !model.IsJournalName(c.Name) {
			continue
		}
		l.entries = append(l.entries, Entry{ChannelID: c.ID, Name: c.Name, ParentID: c.ParentID})
		l.counts[c.ParentID]++
	}

	for _, c := range l.containers {
		if c.Name == p.cfg.ContainerName {
			l.primary = c
			break
		}
	}
	if l.primary.ID == "" && len(l.containers) > 0 {
		l.primary = l.containers[0]
	}
	return l
}

// nonEmpty returns how many containers currently hold a journal
func (l layout) nonEmpty() int {
	n := 0
	for _, c := range l.containers {
		if l.counts[c.ID] > 0 {
			n++
		}
	}
	return n
}

// Rebalance repartitions a community's journals across containers
func (p *Partitioner) Rebalance(ctx context.Context, community model.CommunityID) (*Report, error) {
	unlock := p.lock(community)
	defer unlock()
	return p.rebalance(ctx, community, false)
}

type move struct {
	entry    Entry
	to       model.ChannelID
	snapshot []directory.Overlay
}

// rebalance does the work of Rebalance. grow forces one container more than
// are currently in use. Caller holds the community lock.
func (p *Partitioner) rebalance(ctx context.Context, community model.CommunityID, grow bool) (*Report, error) {
	report := &Report{RunID: p.ids.New("rb-")}
	logger := p.logger.With(
		slog.String("run_id", report.RunID),
		slog.String("community_id", string(community)),
	)

	channels, err := p.dir.ListChannels(ctx, community)
	if err != nil {
		return report, fmt.Errorf("list channels: %w", err)
	}
	l := p.layout(channels)
	if len(l.entries) == 0 {
		return report, model.ErrNoJournals
	}

	k := ContainerCount(len(l.entries), p.cfg.Capacity, l.nonEmpty())
	if grow {
		k = max(k, l.nonEmpty()+1)
	}
	// Every container holds at least one journal
	k = min(k, len(l.entries))
	ranges := Plan(l.entries, k)
	report.Journals = len(l.entries)
	report.Containers = k

	logger.Info("rebalancing journals",
		slog.Int("journals", report.Journals),
		slog.Int("containers", k),
		slog.Int("existing_containers", len(l.containers)),
	)

	targets, err := p.assignContainers(ctx, community, l, ranges, report)
	if err != nil {
		return report, err
	}

	// Snapshot overlays and request every move. A channel still owed a
	// snapshot from an earlier run keeps that one.
	owed := p.owedFor(community)
	byID := make(map[model.ChannelID]directory.Channel, len(channels))
	for _, c := range channels {
		byID[c.ID] = c
	}
	var moves []move
	for i, r := range ranges {
		for _, e := range r.Entries {
			if e.ParentID == targets[i].ID {
				continue
			}
			snapshot, ok := owed[e.ChannelID]
			if !ok {
				snapshot = byID[e.ChannelID].Overlays
			}
			mv := move{entry: e, to: targets[i].ID, snapshot: directory.CloneOverlays(snapshot)}
			if err := p.syncer.Pace(ctx); err != nil {
				return report, err
			}
			if err := p.dir.SetParent(ctx, e.ChannelID, mv.to); err != nil {
				report.Failures = append(report.Failures, &model.DirectoryError{ChannelID: e.ChannelID, Name: e.Name, Op: "move", Err: err})
				continue
			}
			moves = append(moves, mv)
		}
	}

	confirmed, timeout := p.confirmMoves(ctx, community, moves, report, logger)

	inFlight := make(map[model.ChannelID]bool, len(report.Unconfirmed))
	for _, id := range report.Unconfirmed {
		inFlight[id] = true
	}
	for _, mv := range moves {
		if inFlight[mv.entry.ChannelID] {
			owed[mv.entry.ChannelID] = mv.snapshot
		}
	}

	// Overlays only stick once the channel is in its new container
	for _, mv := range confirmed {
		if _, err := p.syncer.RestoreOverlays(ctx, community, mv.entry.ChannelID, mv.entry.Name, mv.snapshot); err != nil {
			owed[mv.entry.ChannelID] = mv.snapshot
			report.Failures = append(report.Failures, err)
			continue
		}
		delete(owed, mv.entry.ChannelID)
		report.Restored++
	}
	report.Moved = len(confirmed)

	if err := p.heal(ctx, community, inFlight, report); err != nil {
		return report, err
	}

	if err := p.alphabetizeAll(ctx, community, targets, ranges, report); err != nil {
		return report, err
	}
	keep := make(map[model.ChannelID]bool, len(targets))
	for _, t := range targets {
		keep[t.ID] = true
	}
	if err := p.deleteEmpty(ctx, community, keep, report); err != nil {
		return report, err
	}

	logger.Info("journal rebalance complete",
		slog.Int("moved", report.Moved),
		slog.Int("unconfirmed", len(report.Unconfirmed)),
		slog.Int("created", report.Created),
		slog.Int("deleted", report.Deleted),
		slog.Int("healed", report.Healed),
		slog.Int("failures", len(report.Failures)),
	)

	var errs []error
	if timeout != nil {
		errs = append(errs, timeout)
	}
	errs = append(errs, report.Failures...)
	return report, errors.Join(errs...)
}

// assignContainers maps each range to a container. Range 0 keeps the primary
// container; others reuse a same-named or spare container before creating one.
func (p *Partitioner) assignContainers(ctx context.Context, community model.CommunityID, l layout, ranges []Range, report *Report) ([]directory.Channel, error) {
	k := len(ranges)
	names := make([]string, k)
	for i, r := range ranges {
		names[i] = r.ContainerName(p.cfg.ContainerName, k)
	}

	out := make([]directory.Channel, k)
	used := map[model.ChannelID]bool{l.primary.ID: true}
	out[0] = l.primary
	for i := 1; i < k; i++ {
		for _, c := range l.containers {
			if !used[c.ID] && c.Name == names[i] {
				out[i] = c
				used[c.ID] = true
				break
			}
		}
	}
	for i := 1; i < k; i++ {
		if out[i].ID != "" {
			continue
		}
		for _, c := range l.containers {
			if !used[c.ID] {
				out[i] = c
				used[c.ID] = true
				break
			}
		}
	}

	for i := range out {
		if out[i].ID == "" {
			if err := p.syncer.Pace(ctx); err != nil {
				return nil, err
			}
			created, err := p.dir.CreateChannel(ctx, directory.ChannelSpec{
				CommunityID: community,
				Name:        names[i],
				Kind:        directory.KindContainer,
				Overlays:    directory.CloneOverlays(l.primary.Overlays),
			})
			if err != nil {
				return nil, &model.DirectoryError{Name: names[i], Op: "create container", Err: err}
			}
			report.Created++
			pos := out[i-1].Position + 1
			if err := p.syncer.Pace(ctx); err != nil {
				return nil, err
			}
			if err := p.dir.SetPosition(ctx, created.ID, pos); err != nil {
				report.Failures = append(report.Failures, &model.DirectoryError{ChannelID: created.ID, Name: names[i], Op: "position container", Err: err})
			} else {
				created.Position = pos
			}
			out[i] = created
			continue
		}
		if out[i].Name != names[i] {
			if err := p.syncer.Pace(ctx); err != nil {
				return nil, err
			}
			if err := p.dir.RenameChannel(ctx, out[i].ID, names[i]); err != nil {
				report.Failures = append(report.Failures, &model.DirectoryError{ChannelID: out[i].ID, Name: out[i].Name, Op: "rename container", Err: err})
				continue
			}
			out[i].Name = names[i]
			report.Renamed++
		}
	}
	return out, nil
}

// confirmMoves polls until every move is visible or the budget runs out
func (p *Partitioner) confirmMoves(ctx context.Context, community model.CommunityID, moves []move, report *Report, logger *slog.Logger) ([]move, error) {
	if len(moves) == 0 {
		return nil, nil
	}
	pending := make(map[model.ChannelID]move, len(moves))
	for _, mv := range moves {
		pending[mv.entry.ChannelID] = mv
	}

	var confirmed []move
	status, attempts, err := dirsync.Confirm(ctx, p.clock, p.cfg.Confirm, func(ctx context.Context, attempt int) (bool, error) {
		listing, err := p.dir.ListChannels(ctx, community)
		if err != nil {
			return false, err
		}
		for id, mv := range pending {
			if ch, ok := directory.Find(listing, id); ok && ch.ParentID == mv.to {
				confirmed = append(confirmed, mv)
				delete(pending, id)
			}
		}
		return len(pending) == 0, nil
	})
	slices.SortFunc(confirmed, func(a, b move) int {
		return compareEntries(a.entry, b.entry)
	})
	if status == dirsync.Confirmed {
		logger.Debug("moves confirmed", slog.Int("moves", len(moves)), slog.Int("attempts", attempts))
		return confirmed, nil
	}
	if err != nil {
		report.Failures = append(report.Failures, fmt.Errorf("confirm moves: %w", err))
	}

	for id := range pending {
		report.Unconfirmed = append(report.Unconfirmed, id)
	}
	slices.Sort(report.Unconfirmed)
	logger.Warn("journal moves not confirmed, overlays left for the next rebalance",
		slog.String("status", status.String()),
		slog.Int("attempts", attempts),
		slog.Int("unconfirmed", len(report.Unconfirmed)),
	)
	return confirmed, &model.ConfirmationTimeoutError{Pending: report.Unconfirmed, Attempts: attempts}
}

// heal restores overlays lost to moves that landed after their confirm
// window. Owed snapshots are restored as taken. Journals with a record and no
// snapshot are brought back in line with their owner's matrix. Channels in
// inFlight may still move and are left alone.
func (p *Partitioner) heal(ctx context.Context, community model.CommunityID, inFlight map[model.ChannelID]bool, report *Report) error {
	listing, err := p.dir.ListChannels(ctx, community)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	owed := p.owedFor(community)
	done := make(map[model.ChannelID]bool)
	for _, id := range slices.Sorted(maps.Keys(owed)) {
		if inFlight[id] {
			continue
		}
		ch, ok := directory.Find(listing, id)
		if !ok {
			delete(owed, id)
			continue
		}
		n, err := p.syncer.RestoreOverlays(ctx, community, id, ch.Name, owed[id])
		if err != nil {
			report.Failures = append(report.Failures, err)
			continue
		}
		delete(owed, id)
		done[id] = true
		if n > 0 {
			report.Healed++
		}
	}

	journals, err := p.store.ListJournals(ctx, community)
	if err != nil {
		return fmt.Errorf("list journals: %w", err)
	}
	var targets []dirsync.Target
	for _, j := range journals {
		if _, stillOwed := owed[j.ChannelID]; inFlight[j.ChannelID] || done[j.ChannelID] || stillOwed {
			continue
		}
		ch, ok := directory.Find(listing, j.ChannelID)
		if !ok {
			continue
		}
		m := journalMatrix(j.MemberID)
		if len(dirsync.Diff(ch.Overlays, m)) == 0 {
			continue
		}
		targets = append(targets, dirsync.Target{ChannelID: ch.ID, Name: ch.Name, Matrix: m})
	}
	if len(targets) == 0 {
		return nil
	}
	result := p.syncer.Sync(ctx, community, targets)
	report.Healed += result.Synced()
	if err := result.Err(); err != nil {
		report.Failures = append(report.Failures, err)
	}
	return nil
}

// alphabetizeAll sorts every target container's children into name order
func (p *Partitioner) alphabetizeAll(ctx context.Context, community model.CommunityID, targets []directory.Channel, ranges []Range, report *Report) error {
	listing, err := p.dir.ListChannels(ctx, community)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	for i, c := range targets {
		if err := p.alphabetize(ctx, c, ranges[i].Entries, listing, report); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partitioner) alphabetize(ctx context.Context, container directory.Channel, want []Entry, listing []directory.Channel, report *Report) error {
	children := directory.Children(listing, container.ID)
	current := make([]model.ChannelID, len(children))
	present := make(map[model.ChannelID]bool, len(children))
	for i, c := range children {
		current[i] = c.ID
		present[c.ID] = true
	}

	// Journals in name order, anything else after them in its current order
	order := make([]model.ChannelID, 0, len(children))
	wanted := make(map[model.ChannelID]bool, len(want))
	for _, e := range want {
		wanted[e.ChannelID] = true
		if present[e.ChannelID] {
			order = append(order, e.ChannelID)
		}
	}
	for _, id := range current {
		if !wanted[id] {
			order = append(order, id)
		}
	}

	for i, id := range order {
		if current[i] == id {
			continue
		}
		if err := p.syncer.Pace(ctx); err != nil {
			return err
		}
		if err := p.dir.SetPosition(ctx, id, i); err != nil {
			report.Failures = append(report.Failures, &model.DirectoryError{ChannelID: id, Op: "position", Err: err})
			return nil
		}
		report.Repositioned++
		from := slices.Index(current, id)
		current = slices.Delete(current, from, from+1)
		current = slices.Insert(current, i, id)
	}
	return nil
}

// deleteEmpty removes journal containers left with no children. Containers in
// keep are still assigned a range and may be awaiting moves.
func (p *Partitioner) deleteEmpty(ctx context.Context, community model.CommunityID, keep map[model.ChannelID]bool, report *Report) error {
	listing, err := p.dir.ListChannels(ctx, community)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	for _, c := range listing {
		if !c.IsContainer() || keep[c.ID] || !IsContainerName(p.cfg.ContainerName, c.Name) {
			continue
		}
		if len(directory.Children(listing, c.ID)) > 0 {
			continue
		}
		if err := p.syncer.Pace(ctx); err != nil {
			return err
		}
		if err := p.dir.DeleteChannel(ctx, c.ID); err != nil {
			report.Failures = append(report.Failures, &model.DirectoryError{ChannelID: c.ID, Name: c.Name, Op: "delete container", Err: err})
			continue
		}
		report.Deleted++
	}
	return nil
}

// CreateJournal provisions a member's journal in the container covering its
// name, splitting first when that container is about to fill up
func (p *Partitioner) CreateJournal(ctx context.Context, community model.CommunityID, member model.MemberID, displayName string) (*model.Journal, error) {
	const op = "create journal"
	unlock := p.lock(community)
	defer unlock()

	if _, err := p.store.GetJournal(ctx, community, member); err == nil {
		return nil, model.Invalid(op, model.ErrJournalExists)
	} else if !errors.Is(err, model.ErrJournalNotFound) {
		return nil, err
	}

	name := model.JournalChannelName(displayName)
	if name == model.JournalSuffix {
		return nil, model.Invalid(op, model.ErrInvalidChannelName)
	}

	channels, err := p.dir.ListChannels(ctx, community)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	l := p.layout(channels)
	for _, e := range l.entries {
		if e.Name == name {
			return nil, model.Invalid(op, model.ErrDuplicateChannel)
		}
	}

	if len(l.containers) == 0 {
		if err := p.syncer.Pace(ctx); err != nil {
			return nil, err
		}
		primary, err := p.dir.CreateChannel(ctx, directory.ChannelSpec{
			CommunityID: community,
			Name:        p.cfg.ContainerName,
			Kind:        directory.KindContainer,
			Overlays: []directory.Overlay{
				{Target: directory.RoleTarget(model.RoleEveryone), Deny: directory.PermView},
			},
		})
		if err != nil {
			return nil, &model.DirectoryError{Name: p.cfg.ContainerName, Op: "create container", Err: err}
		}
		l.containers = []directory.Channel{primary}
		l.primary = primary
	}

	target := p.pickContainer(l, name)
	if l.counts[target.ID] >= p.cfg.Capacity-1 {
		p.logger.Info("journal container nearly full, rebalancing first",
			slog.String("community_id", string(community)),
			slog.String("container", target.Name),
			slog.Int("children", l.counts[target.ID]),
		)
		if _, err := p.rebalance(ctx, community, true); err != nil {
			// A partial rebalance still leaves room to place the journal
			p.logger.Warn("rebalance before journal creation incomplete", slog.String("error", err.Error()))
		}
		if channels, err = p.dir.ListChannels(ctx, community); err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
		l = p.layout(channels)
		target = p.pickContainer(l, name)
	}

	if err := p.syncer.Pace(ctx); err != nil {
		return nil, err
	}
	ch, err := p.dir.CreateChannel(ctx, directory.ChannelSpec{
		CommunityID: community,
		Name:        name,
		Kind:        directory.KindText,
		ParentID:    target.ID,
		Overlays:    dirsync.Overlays(journalMatrix(member)),
	})
	if err != nil {
		return nil, &model.DirectoryError{Name: name, Op: "create journal", Err: err}
	}

	// Slot the new journal into name order
	pos := 0
	newBase := model.JournalBaseName(name)
	for _, e := range l.entries {
		if e.ParentID == target.ID && e.BaseName() < newBase {
			pos++
		}
	}
	if err := p.syncer.Pace(ctx); err == nil {
		if err := p.dir.SetPosition(ctx, ch.ID, pos); err != nil {
			p.logger.Warn("failed to position journal", slog.String("channel_id", string(ch.ID)), slog.String("error", err.Error()))
		}
	}

	j := &model.Journal{
		CommunityID: community,
		MemberID:    member,
		ChannelID:   ch.ID,
		DisplayName: displayName,
		CreatedAt:   p.clock.Now(),
	}
	if err := p.store.SaveJournal(ctx, j); err != nil {
		// Without a record the channel would block every retry as a duplicate
		p.discard(ctx, ch)
		return nil, model.Persistence(op, err)
	}

	welcome := fmt.Sprintf("Welcome to your journal, %s. Only you and the moderators can post here.", displayName)
	if err := p.dir.SendMessage(ctx, ch.ID, welcome); err != nil {
		p.logger.Warn("failed to send journal welcome", slog.String("channel_id", string(ch.ID)), slog.String("error", err.Error()))
	}

	p.logger.Info("journal created",
		slog.String("community_id", string(community)),
		slog.String("member_id", string(member)),
		slog.String("channel", name),
		slog.String("container", target.Name),
	)
	return j, nil
}

// discard deletes a journal channel whose record could not be saved
func (p *Partitioner) discard(ctx context.Context, ch directory.Channel) {
	err := p.syncer.Pace(ctx)
	if err == nil {
		err = p.dir.DeleteChannel(ctx, ch.ID)
	}
	if err != nil {
		p.logger.Error("failed to remove unrecorded journal",
			slog.String("channel_id", string(ch.ID)),
			slog.String("channel", ch.Name),
			slog.String("error", err.Error()),
		)
	}
}

// AssignJournal makes owner the owner of a journal channel. A recorded
// journal changes hands and its previous owner loses access; an unrecorded
// one is linked. displayName defaults to the current record's, then to the
// channel's base name.
func (p *Partitioner) AssignJournal(ctx context.Context, community model.CommunityID, channelID model.ChannelID, owner model.MemberID, displayName string) (*model.Journal, error) {
	const op = "assign journal"
	unlock := p.lock(community)
	defer unlock()

	ch, err := p.dir.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, model.Invalid(op, model.ErrChannelNotFound)
		}
		return nil, &model.DirectoryError{ChannelID: channelID, Op: "read", Err: err}
	}
	if ch.CommunityID != community || ch.IsContainer() || !model.IsJournalName(ch.Name) {
		return nil, model.Invalid(op, model.ErrJournalNotFound)
	}

	journals, err := p.store.ListJournals(ctx, community)
	if err != nil {
		return nil, err
	}
	var prev *model.Journal
	for _, j := range journals {
		if j.ChannelID == channelID {
			prev = j
		} else if j.MemberID == owner {
			return nil, model.Invalid(op, model.ErrJournalExists)
		}
	}

	j := &model.Journal{
		CommunityID: community,
		MemberID:    owner,
		ChannelID:   channelID,
		DisplayName: displayName,
		CreatedAt:   p.clock.Now(),
	}
	if prev != nil {
		j.CreatedAt = prev.CreatedAt
		if j.DisplayName == "" {
			j.DisplayName = prev.DisplayName
		}
		err = p.store.ReassignJournal(ctx, prev.MemberID, j)
	} else {
		if j.DisplayName == "" {
			j.DisplayName = model.JournalBaseName(ch.Name)
		}
		err = p.store.SaveJournal(ctx, j)
	}
	if err != nil {
		if errors.Is(err, model.ErrJournalExists) {
			return nil, model.Invalid(op, err)
		}
		return nil, model.Persistence(op, err)
	}
	// The record now drives healing; a snapshot taken for the old owner is stale
	delete(p.owedFor(community), channelID)

	result := p.syncer.Sync(ctx, community, []dirsync.Target{{ChannelID: ch.ID, Name: ch.Name, Matrix: journalMatrix(owner)}})
	if err := result.Err(); err != nil {
		return j, err
	}
	if prev != nil && prev.MemberID != owner {
		if _, ok := ch.Overlay(directory.MemberTarget(prev.MemberID)); ok {
			if err := p.syncer.Pace(ctx); err != nil {
				return j, err
			}
			if err := p.dir.DeleteOverlay(ctx, community, ch.ID, directory.MemberTarget(prev.MemberID)); err != nil {
				return j, &model.DirectoryError{ChannelID: ch.ID, Name: ch.Name, Op: "revoke owner", Err: err}
			}
		}
	}

	attrs := []any{
		slog.String("community_id", string(community)),
		slog.String("channel", ch.Name),
		slog.String("owner", string(owner)),
	}
	if prev != nil {
		attrs = append(attrs, slog.String("previous_owner", string(prev.MemberID)))
	}
	p.logger.Info("journal assigned", attrs...)
	return j, nil
}

// pickContainer returns the container whose letter range covers name
func (p *Partitioner) pickContainer(l layout, name string) directory.Channel {
	letter := initial(model.JournalBaseName(name))

	type lettered struct {
		c           directory.Channel
		first, last string
	}
	var ranged []lettered
	for _, c := range l.containers {
		if first, last, ok := ParseRangeName(p.cfg.ContainerName, c.Name); ok {
			ranged = append(ranged, lettered{c, first, last})
		}
	}
	if len(ranged) == 0 {
		return l.primary
	}
	slices.SortFunc(ranged, func(a, b lettered) int { return strings.Compare(a.first, b.first) })

	pick := ranged[0].c
	for _, r := range ranged {
		if r.first <= letter {
			pick = r.c
		}
		if r.first <= letter && letter <= r.last {
			return r.c
		}
	}
	return pick
}
