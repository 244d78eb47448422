// Package memory is an in-process directory used by tests and local runs.
// It models the parts of the remote platform the engine has to cope with:
// container moves that only become visible after a few reads, permission
// sync when a channel changes container, and injected failures.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/model"
)

// Ops that can be counted or made to fail
const (
	OpCreate      = "create"
	OpRename      = "rename"
	OpDelete      = "delete"
	OpSetPosition = "set-position"
	OpSetParent   = "set-parent"
	OpSetOverlay  = "set-overlay"
	OpDelOverlay  = "delete-overlay"
	OpGetChannel  = "get-channel"
	OpList        = "list-channels"
	OpAddRole     = "add-role"
	OpRemoveRole  = "remove-role"
	OpSend        = "send"
	OpListMembers = "list-members"
)

// Directory is an in-memory directory
type Directory struct {
	mu sync.Mutex

	channels map[model.ChannelID]*directory.Channel
	members  map[model.CommunityID]map[model.MemberID]*directory.Member
	messages map[model.ChannelID][]string
	nextID   int

	// moveLag is the number of reads a parent change stays invisible for
	moveLag int
	// dropMoves makes SetParent accept requests that never land
	dropMoves bool
	pending   map[model.ChannelID]*pendingMove

	failures map[failKey]error
	calls    map[string]int
}

type pendingMove struct {
	parentID  model.ChannelID
	remaining int
}

type failKey struct {
	op  string
	key string
}

// New creates an empty directory where moves land immediately
func New() *Directory {
	return &Directory{
		channels: make(map[model.ChannelID]*directory.Channel),
		members:  make(map[model.CommunityID]map[model.MemberID]*directory.Member),
		messages: make(map[model.ChannelID][]string),
		pending:  make(map[model.ChannelID]*pendingMove),
		failures: make(map[failKey]error),
		calls:    make(map[string]int),
	}
}

var _ directory.Directory = (*Directory)(nil)

// SetMoveLag makes container moves invisible for n channel reads
func (d *Directory) SetMoveLag(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moveLag = n
}

// DropMoves makes every subsequent SetParent succeed without ever landing
func (d *Directory) DropMoves(drop bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropMoves = drop
}

// Fail makes op fail with err for the channel id or name given as key.
// An empty key fails every call of op.
func (d *Directory) Fail(op, key string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[failKey{op: op, key: key}] = err
}

// ClearFailures removes all injected failures
func (d *Directory) ClearFailures() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = make(map[failKey]error)
}

// Calls returns the number of times op was invoked
func (d *Directory) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// AddMember registers a member in a community
func (d *Directory) AddMember(community model.CommunityID, m directory.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[community] == nil {
		d.members[community] = make(map[model.MemberID]*directory.Member)
	}
	m.Roles = slices.Clone(m.Roles)
	d.members[community][m.ID] = &m
}

// Member returns a copy of a member
func (d *Directory) Member(community model.CommunityID, id model.MemberID) (directory.Member, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[community][id]
	if !ok {
		return directory.Member{}, false
	}
	out := *m
	out.Roles = slices.Clone(m.Roles)
	return out, true
}

// Channel returns a copy of the channel without counting as a read
func (d *Directory) Channel(id model.ChannelID) (directory.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.channels[id]
	if !ok {
		return directory.Channel{}, false
	}
	return clone(c), true
}

// ChannelByName returns the first channel with a name, for assertions
func (d *Directory) ChannelByName(community model.CommunityID, name string) (directory.Channel, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.sorted(community) {
		if c.Name == name {
			return clone(c), true
		}
	}
	return directory.Channel{}, false
}

// Messages returns everything sent to a channel
func (d *Directory) Messages(id model.ChannelID) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.messages[id])
}

// Settle applies every pending move
func (d *Directory) Settle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, mv := range d.pending {
		d.applyMove(id, mv.parentID)
	}
	d.pending = make(map[model.ChannelID]*pendingMove)
}

func (d *Directory) CreateChannel(ctx context.Context, spec directory.ChannelSpec) (directory.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreate, spec.Name); err != nil {
		return directory.Channel{}, err
	}
	if spec.ParentID != "" {
		if _, ok := d.channels[spec.ParentID]; !ok {
			return directory.Channel{}, fmt.Errorf("parent %s: %w", spec.ParentID, directory.ErrNotFound)
		}
	}
	kind := spec.Kind
	if kind == "" {
		kind = directory.KindText
	}
	d.nextID++
	c := &directory.Channel{
		ID:          model.ChannelID(strconv.Itoa(1000 + d.nextID)),
		CommunityID: spec.CommunityID,
		Name:        spec.Name,
		Kind:        kind,
		ParentID:    spec.ParentID,
		Position:    len(d.siblings(spec.CommunityID, spec.ParentID, kind)),
		Overlays:    directory.CloneOverlays(spec.Overlays),
	}
	directory.SortOverlays(c.Overlays)
	d.channels[c.ID] = c
	return clone(c), nil
}

func (d *Directory) RenameChannel(ctx context.Context, id model.ChannelID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRename, string(id)); err != nil {
		return err
	}
	c, ok := d.channels[id]
	if !ok {
		return directory.ErrNotFound
	}
	c.Name = name
	return nil
}

func (d *Directory) DeleteChannel(ctx context.Context, id model.ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpDelete, string(id)); err != nil {
		return err
	}
	c, ok := d.channels[id]
	if !ok {
		return directory.ErrNotFound
	}
	delete(d.channels, id)
	delete(d.pending, id)
	// Children of a deleted container fall back to the top level
	for _, child := range d.channels {
		if child.ParentID == id {
			child.ParentID = ""
		}
	}
	d.renumber(c.CommunityID, c.ParentID, c.Kind)
	return nil
}

func (d *Directory) SetPosition(ctx context.Context, id model.ChannelID, pos int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetPosition, string(id)); err != nil {
		return err
	}
	c, ok := d.channels[id]
	if !ok {
		return directory.ErrNotFound
	}
	sibs := d.siblings(c.CommunityID, c.ParentID, c.Kind)
	sibs = slices.DeleteFunc(sibs, func(s *directory.Channel) bool { return s.ID == id })
	pos = max(0, min(pos, len(sibs)))
	sibs = slices.Insert(sibs, pos, c)
	for i, s := range sibs {
		s.Position = i
	}
	return nil
}

func (d *Directory) SetParent(ctx context.Context, id, parentID model.ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetParent, string(id)); err != nil {
		return err
	}
	if _, ok := d.channels[id]; !ok {
		return directory.ErrNotFound
	}
	if _, ok := d.channels[parentID]; !ok {
		return fmt.Errorf("parent %s: %w", parentID, directory.ErrNotFound)
	}
	if d.dropMoves {
		return nil
	}
	if d.moveLag <= 0 {
		d.applyMove(id, parentID)
		return nil
	}
	d.pending[id] = &pendingMove{parentID: parentID, remaining: d.moveLag}
	return nil
}

func (d *Directory) GetChannel(ctx context.Context, id model.ChannelID) (directory.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpGetChannel, string(id)); err != nil {
		return directory.Channel{}, err
	}
	d.tick()
	c, ok := d.channels[id]
	if !ok {
		return directory.Channel{}, directory.ErrNotFound
	}
	return clone(c), nil
}

func (d *Directory) ListChannels(ctx context.Context, community model.CommunityID) ([]directory.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpList, string(community)); err != nil {
		return nil, err
	}
	d.tick()
	var out []directory.Channel
	for _, c := range d.sorted(community) {
		out = append(out, clone(c))
	}
	return out, nil
}

func (d *Directory) SetOverlay(ctx context.Context, community model.CommunityID, id model.ChannelID, overlay directory.Overlay) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetOverlay, string(id)); err != nil {
		return err
	}
	c, ok := d.channels[id]
	if !ok {
		return directory.ErrNotFound
	}
	for i, o := range c.Overlays {
		if o.Target == overlay.Target {
			c.Overlays[i] = overlay
			return nil
		}
	}
	c.Overlays = append(c.Overlays, overlay)
	directory.SortOverlays(c.Overlays)
	return nil
}

func (d *Directory) DeleteOverlay(ctx context.Context, community model.CommunityID, id model.ChannelID, target directory.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpDelOverlay, string(id)); err != nil {
		return err
	}
	c, ok := d.channels[id]
	if !ok {
		return directory.ErrNotFound
	}
	c.Overlays = slices.DeleteFunc(c.Overlays, func(o directory.Overlay) bool { return o.Target == target })
	return nil
}

func (d *Directory) AddMemberRole(ctx context.Context, community model.CommunityID, member model.MemberID, role model.RoleName) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpAddRole, string(member)); err != nil {
		return err
	}
	m, ok := d.members[community][member]
	if !ok {
		return directory.ErrNotFound
	}
	if !slices.Contains(m.Roles, role) {
		m.Roles = append(m.Roles, role)
	}
	return nil
}

func (d *Directory) RemoveMemberRole(ctx context.Context, community model.CommunityID, member model.MemberID, role model.RoleName) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRemoveRole, string(member)); err != nil {
		return err
	}
	m, ok := d.members[community][member]
	if !ok {
		return directory.ErrNotFound
	}
	m.Roles = slices.DeleteFunc(m.Roles, func(r model.RoleName) bool { return r == role })
	return nil
}

func (d *Directory) ListMembers(ctx context.Context, community model.CommunityID) ([]directory.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpListMembers, string(community)); err != nil {
		return nil, err
	}
	var out []directory.Member
	for _, m := range d.members[community] {
		cp := *m
		cp.Roles = slices.Clone(m.Roles)
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b directory.Member) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (d *Directory) SendMessage(ctx context.Context, id model.ChannelID, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSend, string(id)); err != nil {
		return err
	}
	if _, ok := d.channels[id]; !ok {
		return directory.ErrNotFound
	}
	d.messages[id] = append(d.messages[id], content)
	return nil
}

// enter counts the call and returns any injected failure. Caller holds mu.
func (d *Directory) enter(op, key string) error {
	d.calls[op]++
	if err, ok := d.failures[failKey{op: op, key: key}]; ok {
		return err
	}
	if err, ok := d.failures[failKey{op: op}]; ok {
		return err
	}
	return nil
}

// tick advances pending moves by one read. Caller holds mu.
func (d *Directory) tick() {
	for id, mv := range d.pending {
		mv.remaining--
		if mv.remaining <= 0 {
			d.applyMove(id, mv.parentID)
			delete(d.pending, id)
		}
	}
}

// applyMove lands a container change. The channel takes the new parent's
// overlays, discarding its own. Caller holds mu.
func (d *Directory) applyMove(id, parentID model.ChannelID) {
	c, ok := d.channels[id]
	if !ok {
		return
	}
	parent, ok := d.channels[parentID]
	if !ok {
		return
	}
	oldParent := c.ParentID
	c.ParentID = parentID
	c.Overlays = directory.CloneOverlays(parent.Overlays)
	c.Position = len(d.siblings(c.CommunityID, parentID, c.Kind)) - 1
	d.renumber(c.CommunityID, oldParent, c.Kind)
}

// siblings returns channels sharing a parent, ordered by position. Caller holds mu.
func (d *Directory) siblings(community model.CommunityID, parentID model.ChannelID, kind directory.ChannelKind) []*directory.Channel {
	var out []*directory.Channel
	for _, c := range d.channels {
		if c.CommunityID != community || c.ParentID != parentID {
			continue
		}
		// Containers and top-level text channels are positioned separately
		if (c.Kind == directory.KindContainer) != (kind == directory.KindContainer) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, byPosition)
	return out
}

func (d *Directory) renumber(community model.CommunityID, parentID model.ChannelID, kind directory.ChannelKind) {
	for i, s := range d.siblings(community, parentID, kind) {
		s.Position = i
	}
}

func (d *Directory) sorted(community model.CommunityID) []*directory.Channel {
	var out []*directory.Channel
	for _, c := range d.channels {
		if c.CommunityID == community {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, byPosition)
	return out
}

func byPosition(a, b *directory.Channel) int {
	if a.Position != b.Position {
		return a.Position - b.Position
	}
	ai, _ := strconv.Atoi(string(a.ID))
	bi, _ := strconv.Atoi(string(b.ID))
	return ai - bi
}

func clone(c *directory.Channel) directory.Channel {
	out := *c
	out.Overlays = directory.CloneOverlays(c.Overlays)
	return out
}
