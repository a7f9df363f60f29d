package dentry

import (
	"github.com/wimfuse/wimfuse/internal/wimerr"
)

// Link clones src (shallow — sharing hashes) as a new dentry named name
// under parent, splices the clone into src's hard-link group as a slave,
// and attaches it to the tree. Refcount bumping for the clone's
// effective streams is the caller's responsibility (internal/catalog),
// since Tree has no knowledge of the catalog.
func (t *Tree) Link(src, parent *Dentry, name string) (*Dentry, error) {
	if !parent.IsDirectory {
		return nil, wimerr.ErrNotDirectory
	}
	if src.IsDirectory {
		return nil, wimerr.ErrInvalidArgument
	}
	if t.FindChild(parent, name) != nil {
		return nil, wimerr.ErrExists
	}

	clone := &Dentry{
		Name:        name,
		IsDirectory: false,
		IsSymlink:   src.IsSymlink,
		Attributes:  src.Attributes,
		ReparseTag:  src.ReparseTag,
		HasPrimary:  src.HasPrimary,
		PrimaryHash: src.PrimaryHash,
		ADS:         append([]ADSEntry(nil), src.ADS...),
		LinkGroup:   src.LinkGroup,
	}
	clone.StampAll(t.clk)

	src.LinkGroup.Members = append(src.LinkGroup.Members, clone)

	t.AddChild(parent, clone)
	return clone, nil
}

// Remove splices child out of its parent and out of its hard-link group.
// If child still has open handles (tracked by the caller via
// NumTimesOpened or an external "has open fds" flag), the caller should
// mark it unlinked via MarkUnlinked instead of forgetting it outright;
// Remove itself only performs the structural detach.
func (t *Tree) Remove(child *Dentry) {
	if child.Parent != nil {
		t.RemoveChild(child.Parent, child)
	}
	if g := child.LinkGroup; g != nil {
		for i, m := range g.Members {
			if m == child {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				break
			}
		}
		if g.Master == child && len(g.Members) > 0 {
			g.Master = g.Members[0]
		}
	}
}

// MarkUnlinked flags child as an orphan kept alive only by open handles
// or a held directory handle (NumTimesOpened > 0).
func (t *Tree) MarkUnlinked(child *Dentry) {
	child.unlinked = true
}

// Rmdir removes an empty directory dentry from the tree.
func (t *Tree) Rmdir(dir *Dentry) error {
	if !dir.IsDirectory {
		return wimerr.ErrNotDirectory
	}
	if dir.FirstChild != nil {
		return wimerr.ErrNotEmpty
	}
	t.Remove(dir)
	return nil
}

// Rename implements the structural half of rename(src, dst): if dst
// exists and is the same dentry this is a no-op; type mismatches and
// non-empty target directories fail; otherwise any existing dst is
// detached (its effective-stream refcount teardown is the caller's
// responsibility, mirroring Link/Remove) and src is relinked under dst's
// parent with dst's basename. Re-encoding the name in the archive
// encoding is the caller's responsibility via NameCodec.
func (t *Tree) Rename(src *Dentry, dstParent *Dentry, dstName string) (replaced *Dentry, err error) {
	existing := t.FindChild(dstParent, dstName)
	if existing == src {
		return nil, nil
	}
	if existing != nil {
		if existing.IsDirectory != src.IsDirectory {
			if existing.IsDirectory {
				return nil, wimerr.ErrIsDirectory
			}
			return nil, wimerr.ErrNotDirectory
		}
		if existing.IsDirectory && existing.FirstChild != nil {
			return nil, wimerr.ErrNotEmpty
		}
		t.Remove(existing)
		replaced = existing
	}

	if src.Parent != nil {
		t.RemoveChild(src.Parent, src)
	}
	src.Name = dstName
	t.AddChild(dstParent, src)
	return replaced, nil
}
