package dirsync

import (
	"github.com/mcoot/wolfbot/internal/directory"
	"github.com/mcoot/wolfbot/internal/services/permissions"
)

// Apply merges an access entry into an existing overlay. Rights the access
// leaves Unset keep their current value.
func Apply(o directory.Overlay, a permissions.Access) directory.Overlay {
	o = applyGrant(o, directory.PermView, a.View)
	o = applyGrant(o, directory.PermPost, a.Post)
	o = applyGrant(o, directory.PermCreateThreads|directory.PermPostInThreads, a.Threads)
	o = applyGrant(o, directory.PermPinMessages, a.Pin)
	return o
}

func applyGrant(o directory.Overlay, bits directory.Permission, g permissions.Grant) directory.Overlay {
	switch g {
	case permissions.Allow:
		o.Allow |= bits
		o.Deny &^= bits
	case permissions.Deny:
		o.Deny |= bits
		o.Allow &^= bits
	case permissions.Neutral:
		o.Allow &^= bits
		o.Deny &^= bits
	}
	return o
}

// Diff returns the overlay writes needed to bring current in line with m
func Diff(current []directory.Overlay, m permissions.Matrix) []directory.Overlay {
	var writes []directory.Overlay
	consider := func(target directory.Target, a permissions.Access) {
		cur, ok := find(current, target)
		if !ok {
			cur = directory.Overlay{Target: target}
		}
		want := Apply(cur, a)
		if ok && want == cur {
			return
		}
		if !ok && want.Allow == 0 && want.Deny == 0 {
			return
		}
		writes = append(writes, want)
	}

	for _, role := range m.RoleNames() {
		consider(directory.RoleTarget(role), m.Roles[role])
	}
	for _, id := range m.MemberIDs() {
		consider(directory.MemberTarget(id), m.Members[id])
	}
	return writes
}

// Overlays renders a matrix as the overlay set for a new channel
func Overlays(m permissions.Matrix) []directory.Overlay {
	return Diff(nil, m)
}

// Restore returns the writes and deletions that make current equal snapshot
func Restore(current, snapshot []directory.Overlay) (writes []directory.Overlay, deletes []directory.Target) {
	for _, want := range snapshot {
		if cur, ok := find(current, want.Target); !ok || cur != want {
			writes = append(writes, want)
		}
	}
	for _, cur := range current {
		if _, ok := find(snapshot, cur.Target); !ok {
			deletes = append(deletes, cur.Target)
		}
	}
	return writes, deletes
}

func find(overlays []directory.Overlay, t directory.Target) (directory.Overlay, bool) {
	for _, o := range overlays {
		if o.Target == t {
			return o, true
		}
	}
	return directory.Overlay{}, false
}
