package dentry

import (
	"sync/atomic"

	"github.com/wimfuse/wimfuse/internal/clock"
)

// Tree is the whole in-memory directory tree for one mounted image.
// Per SPEC_FULL.md §5 the filesystem dispatches single-threaded, so Tree
// needs no internal locking.
type Tree struct {
	Root *Dentry
	clk  clock.Clock

	nextLinkGroupID atomic.Uint64
}

// NewTree creates a tree rooted at an empty directory dentry.
func NewTree(clk clock.Clock) *Tree {
	root := &Dentry{
		Name:        "",
		IsDirectory: true,
	}
	root.StampAll(clk)
	t := &Tree{Root: root, clk: clk}
	root.LinkGroup = t.newSoloLinkGroup(root)
	return t
}

func (t *Tree) newSoloLinkGroup(d *Dentry) *HardLinkGroup {
	g := &HardLinkGroup{id: t.nextLinkGroupID.Add(1), Master: d, Members: []*Dentry{d}}
	return g
}

// Children returns the children of parent in traversal order, starting
// from FirstChild and following the circular sibling list exactly once
// around.
func (t *Tree) Children(parent *Dentry) []*Dentry {
	if parent.FirstChild == nil {
		return nil
	}
	var out []*Dentry
	cur := parent.FirstChild
	for {
		out = append(out, cur)
		cur = cur.NextSibling
		if cur == parent.FirstChild {
			break
		}
	}
	return out
}

// FindChild looks up an immediate child of parent by native name.
func (t *Tree) FindChild(parent *Dentry, name string) *Dentry {
	if parent.FirstChild == nil {
		return nil
	}
	cur := parent.FirstChild
	for {
		if cur.Name == name {
			return cur
		}
		cur = cur.NextSibling
		if cur == parent.FirstChild {
			return nil
		}
	}
}

// AddChild splices child into parent's circular sibling list. child must
// not already be linked anywhere.
func (t *Tree) AddChild(parent, child *Dentry) {
	child.Parent = parent
	if parent.FirstChild == nil {
		child.NextSibling = child
		parent.FirstChild = child
		return
	}
	last := parent.FirstChild
	for last.NextSibling != parent.FirstChild {
		last = last.NextSibling
	}
	last.NextSibling = child
	child.NextSibling = parent.FirstChild
}

// RemoveChild splices child out of its parent's circular sibling list.
// It does not mark child unlinked or touch its link group; callers
// handle that as part of unlink/rmdir/rename.
func (t *Tree) RemoveChild(parent, child *Dentry) {
	if parent.FirstChild == child {
		if child.NextSibling == child {
			parent.FirstChild = nil
		} else {
			parent.FirstChild = child.NextSibling
		}
	}

	prev := child
	for prev.NextSibling != child {
		prev = prev.NextSibling
	}
	if prev == child {
		// child was the only entry; nothing further to splice.
	} else {
		prev.NextSibling = child.NextSibling
	}
	child.NextSibling = nil
	child.Parent = nil
}

// NewSoloLinkGroup returns a fresh one-member link group with d as its
// master, for dentries created outside NewTree (the mount-time seeding in
// cmd, and mkdir/create/mknod/symlink in internal/fs).
func (t *Tree) NewSoloLinkGroup(d *Dentry) *HardLinkGroup {
	return t.newSoloLinkGroup(d)
}

// Clock returns the tree's injected clock, so sibling packages (staging,
// fs) stamp timestamps consistently with dentry construction.
func (t *Tree) Clock() clock.Clock {
	return t.clk
}

// Walk visits every reachable dentry in the tree, depth-first, starting
// at the root. Used by the commit pipeline to retarget stream hashes
// after rehashing/deduplication.
func (t *Tree) Walk(fn func(*Dentry)) {
	var visit func(*Dentry)
	visit = func(d *Dentry) {
		fn(d)
		for _, child := range t.Children(d) {
			visit(child)
		}
	}
	visit(t.Root)
}
