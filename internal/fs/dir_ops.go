package fs

import (
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/handle"
	"github.com/wimfuse/wimfuse/internal/wimerr"
)

// MkDir creates a new, empty directory dentry under op.Parent.
func (mc *MountContext) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	if mc.Tree.FindChild(parent, op.Name) != nil {
		return fuse.EEXIST
	}

	child := &dentry.Dentry{Name: op.Name, IsDirectory: true}
	child.LinkGroup = mc.Tree.NewSoloLinkGroup(child)
	child.StampAll(mc.Clock)
	mc.Tree.AddChild(parent, child)

	id := mc.inodeID(child)
	mc.incLookup(child)

	op.Entry.Child = id
	op.Entry.Attributes = mc.attributesFor(child)
	return nil
}

// RmDir removes an empty directory.
func (mc *MountContext) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child := mc.Tree.FindChild(parent, op.Name)
	if child == nil {
		return fuse.ENOENT
	}
	return mc.Tree.Rmdir(child)
}

// OpenDir allocates a directory handle over op.Inode.
func (mc *MountContext) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	d, ok := mc.dentryForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if !d.IsDirectory {
		return wimerr.ErrNotDirectory
	}
	d.NumTimesOpened++
	op.Handle = mc.Handles.OpenDir(&handle.DirHandle{DentryOpaque: d})
	return nil
}

// ReadDir serves one page of directory entries, buffered through
// fuseutil.WriteDirent exactly as the teacher's directory-handle
// continuation pattern does, with the offset cookie equal to the
// position in traversal order (SPEC_FULL.md §4.9).
func (mc *MountContext) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	dh, ok := mc.Handles.Dir(op.Handle)
	if !ok {
		return fuse.EIO
	}
	d := dh.DentryOpaque.(*dentry.Dentry)

	entries := mc.listDirEntries(d)

	offset := int(op.Offset)
	n := 0
	for offset < len(entries) {
		written := fuseutil.WriteDirent(op.Dst[n:], entries[offset])
		if written == 0 {
			break
		}
		n += written
		offset++
	}
	op.BytesRead = n
	return nil
}

// listDirEntries builds the synthetic "." and ".." entries plus every
// child, in circular-sibling-list traversal order, each stamped with an
// Offset cookie equal to its position (SPEC_FULL.md §4.9).
func (mc *MountContext) listDirEntries(d *dentry.Dentry) []fuseutil.Dirent {
	direntType := func(isDir bool) fuseutil.DirentType {
		if isDir {
			return fuseutil.DT_Directory
		}
		return fuseutil.DT_File
	}

	parent := d.Parent
	if parent == nil {
		parent = d
	}

	entries := []fuseutil.Dirent{
		{Inode: mc.inodeID(d), Name: ".", Type: fuseutil.DT_Directory},
		{Inode: mc.inodeID(parent), Name: "..", Type: fuseutil.DT_Directory},
	}
	for _, child := range mc.Tree.Children(d) {
		entries = append(entries, fuseutil.Dirent{
			Inode: mc.inodeID(child),
			Name:  child.Name,
			Type:  direntType(child.IsDirectory),
		})
	}
	for i := range entries {
		entries[i].Offset = fuseops.DirOffset(i + 1)
	}
	return entries
}

// ReleaseDirHandle releases a directory handle and decrements the
// dentry's open-directory count; nothing else is done to the dentry,
// even if it was unlinked while the handle was held.
func (mc *MountContext) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	dh, ok := mc.Handles.ReleaseDir(op.Handle)
	if !ok {
		return nil
	}
	d := dh.DentryOpaque.(*dentry.Dentry)
	d.NumTimesOpened--
	return nil
}
