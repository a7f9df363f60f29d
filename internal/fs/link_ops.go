package fs

import (
	"context"
	"strings"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/wimerr"
)

// splitStreamName splits a single path component into its base name and
// (in windows stream-interface mode) a trailing ":streamname" suffix.
func (mc *MountContext) splitStreamName(name string) (base, stream string) {
	if mc.streamInterfaceMode() != dentry.StreamInterfaceWindows {
		return name, ""
	}
	if idx := strings.IndexByte(name, ':'); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return name, ""
}

// Unlink removes a dentry (or, in windows-ADS mode, just one of its ADS
// entries) and decrements the catalog refcount of every stream it named
// (§4.4).
func (mc *MountContext) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	base, streamName := mc.splitStreamName(op.Name)
	child := mc.Tree.FindChild(parent, base)
	if child == nil {
		return fuse.ENOENT
	}
	if child.IsDirectory {
		return wimerr.ErrIsDirectory
	}

	if streamName != "" {
		return mc.unlinkADS(child, streamName)
	}
	mc.unlinkDentry(child)
	return nil
}

// unlinkADS removes only the named ADS entry and decrements only its
// hash's refcount.
func (mc *MountContext) unlinkADS(d *dentry.Dentry, name string) error {
	for i, ads := range d.ADS {
		if ads.Name == name {
			mc.decRefStream(d, ads.Hash)
			d.ADS = append(d.ADS[:i], d.ADS[i+1:]...)
			return nil
		}
	}
	return fuse.ENOENT
}

// unlinkDentry removes d from the tree, decrementing refcount on every
// effective stream (primary + every ADS). If a decremented entry's
// refcount reaches zero while it still has open fds, those handles'
// dentry back-pointer is cleared so the handle survives reads/closes
// without pointing at a freed dentry, and the entry's own destruction is
// deferred until the last fd closes (§4.4, §5).
func (mc *MountContext) unlinkDentry(d *dentry.Dentry) {
	for _, stream := range d.EffectiveStreams() {
		mc.decRefStream(d, stream.Hash)
	}

	mc.Tree.Remove(d)
	if d.NumTimesOpened > 0 {
		// A held directory handle keeps d as an orphan; open file
		// handles on d's own streams need no such tracking here — they
		// keep serving content through their catalog entry pointer
		// regardless of d's tree membership (scenario 5, §8).
		mc.Tree.MarkUnlinked(d)
	}
}

// decRefStream decrements hash's catalog refcount by one on behalf of
// d, clearing the dentry back-pointer on any handle still open against
// the entry once its refcount (not its open-fd count) has reached zero.
func (mc *MountContext) decRefStream(d *dentry.Dentry, hash catalog.Hash) {
	entry, ok := mc.Catalog.Lookup(hash)
	if !ok {
		return
	}
	destroyed := mc.Catalog.DecRef(entry, 1)
	if destroyed {
		return
	}
	if entry.Refcount() == 0 {
		entry.ForEachFD(func(slot int, h *catalog.Handle) {
			if h.Dentry == d {
				h.Dentry = nil
			}
		})
	}
}

// CreateLink implements link(src, new) (§4.4): it clones the source
// dentry into a new name, shares its hashes, and bumps the refcount of
// every effective stream on the clone.
func (mc *MountContext) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	src, ok := mc.dentryForInode(op.Target)
	if !ok {
		return fuse.ENOENT
	}
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	clone, err := mc.Tree.Link(src, parent, op.Name)
	if err != nil {
		return err
	}
	for _, stream := range clone.EffectiveStreams() {
		if entry, ok := mc.Catalog.Lookup(stream.Hash); ok {
			mc.Catalog.IncRef(entry, 1)
		}
	}

	id := mc.inodeID(clone)
	mc.incLookup(clone)
	op.Entry.Child = id
	op.Entry.Attributes = mc.attributesFor(clone)
	return nil
}

// Rename implements rename(src, dst) (§4.4): same-dentry is a no-op;
// type mismatches and non-empty target directories fail; an existing
// target is unlinked first (with the same refcount teardown as Unlink)
// before src is relinked under the destination parent.
func (mc *MountContext) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldParent, ok := mc.dentryForInode(op.OldParent)
	if !ok {
		return fuse.ENOENT
	}
	newParent, ok := mc.dentryForInode(op.NewParent)
	if !ok {
		return fuse.ENOENT
	}
	src := mc.Tree.FindChild(oldParent, op.OldName)
	if src == nil {
		return fuse.ENOENT
	}

	archiveName := src.ArchiveName
	if mc.Codec != nil {
		encoded, err := mc.Codec.Encode(op.NewName)
		if err != nil {
			return err
		}
		archiveName = encoded
	}

	existing := mc.Tree.FindChild(newParent, op.NewName)
	if existing != nil && existing != src {
		// Check the type-mismatch condition Tree.Rename itself enforces
		// before touching any refcount: rejecting the rename must leave
		// existing's catalog state untouched (§7 "no state change on
		// failure").
		if existing.IsDirectory != src.IsDirectory {
			if existing.IsDirectory {
				return wimerr.ErrIsDirectory
			}
			return wimerr.ErrNotDirectory
		}
		if existing.IsDirectory {
			if existing.FirstChild != nil {
				return wimerr.ErrNotEmpty
			}
		} else {
			for _, stream := range existing.EffectiveStreams() {
				mc.decRefStream(existing, stream.Hash)
			}
		}
	}

	_, err := mc.Tree.Rename(src, newParent, op.NewName)
	if err != nil {
		return err
	}
	src.ArchiveName = archiveName
	src.StampModified(mc.Clock)
	return nil
}

// MkNode creates an empty regular file, or — in ADS-addressed mode, on
// an existing regular-file dentry — a new alternate data stream
// (§4.6).
func (mc *MountContext) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	base, streamName := mc.splitStreamName(op.Name)
	if streamName != "" {
		existing := mc.Tree.FindChild(parent, base)
		if existing == nil || existing.IsDirectory {
			return fuse.ENOENT
		}
		for _, ads := range existing.ADS {
			if ads.Name == streamName {
				return fuse.EEXIST
			}
		}
		existing.ADS = append(existing.ADS, dentry.ADSEntry{Name: streamName})
		op.Entry.Child = mc.inodeID(existing)
		mc.incLookup(existing)
		op.Entry.Attributes = mc.attributesFor(existing)
		return nil
	}

	if mc.Tree.FindChild(parent, base) != nil {
		return fuse.EEXIST
	}
	child := &dentry.Dentry{Name: base}
	child.LinkGroup = mc.Tree.NewSoloLinkGroup(child)
	child.StampAll(mc.Clock)
	mc.Tree.AddChild(parent, child)

	op.Entry.Child = mc.inodeID(child)
	mc.incLookup(child)
	op.Entry.Attributes = mc.attributesFor(child)
	return nil
}

// CreateSymlink creates a reparse-point dentry whose link target is
// serialized into the primary stream via the reparse-point codec
// (external collaborator, out of scope — here the target string itself
// is staged as the stream content) (§4.6).
func (mc *MountContext) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	if mc.Tree.FindChild(parent, op.Name) != nil {
		return fuse.EEXIST
	}

	child := &dentry.Dentry{Name: op.Name, IsSymlink: true}
	child.LinkGroup = mc.Tree.NewSoloLinkGroup(child)
	child.StampAll(mc.Clock)
	mc.Tree.AddChild(parent, child)

	if mc.Config.ReadWrite {
		h, err := mc.openForWrite(child, -1, 0)
		if err != nil {
			return err
		}
		defer mc.Catalog.ReleaseFD(h.Entry, h.Index)
		if err := writeWholeFile(h.Entry.StagingPath(), []byte(op.Target)); err != nil {
			return err
		}
		h.Entry.OriginalSize = int64(len(op.Target))
	}

	op.Entry.Child = mc.inodeID(child)
	mc.incLookup(child)
	op.Entry.Attributes = mc.attributesFor(child)
	return nil
}

// ReadSymlink returns the target stashed in the symlink's primary
// stream.
func (mc *MountContext) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	d, ok := mc.dentryForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if !d.IsSymlink {
		return wimerr.ErrInvalidArgument
	}
	entry, ok := mc.primaryEntry(d)
	if !ok {
		op.Target = ""
		return nil
	}
	if entry.IsStaged() {
		data, err := readWholeFile(entry.StagingPath())
		if err != nil {
			return wrapStagingIO(err)
		}
		op.Target = string(data)
		return nil
	}
	buf := make([]byte, entry.OriginalSize)
	n, err := mc.Reader.ReadResource(ctx, entry.ArchiveResource(), 0, buf)
	if err != nil {
		return wrapArchiveIO(err)
	}
	op.Target = string(buf[:n])
	return nil
}
