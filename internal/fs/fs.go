package fs

import (
	"context"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/wimfuse/wimfuse/internal/wimerr"
)

// Init is called once, before the mount loop begins serving requests.
func (mc *MountContext) Init(ctx context.Context, op *fuseops.InitOp) error {
	op.Library = "wimfuse"
	mc.Logger.Info("mounting", "read_write", mc.Config.ReadWrite)
	return nil
}

// Destroy is called once the kernel has unmounted the filesystem. It
// sets Destroying, then either runs the daemon side of the unmount
// handshake (read-write mounts, see EnableUnmountHandshake) or simply
// removes the staging directory.
func (mc *MountContext) Destroy() {
	mc.Destroying = true
	if mc.handshakeEnabled {
		mc.runUnmountHandshake()
	} else {
		mc.tearDownStaging()
	}
}

// LookUpInode resolves op.Name under op.Parent and hands the kernel a
// fresh lookup-count reference to the resulting dentry.
func (mc *MountContext) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return wimerr.ErrNotFound
	}
	child := mc.Tree.FindChild(parent, op.Name)
	if child == nil {
		return fuse.ENOENT
	}

	id := mc.inodeID(child)
	mc.incLookup(child)

	op.Entry.Child = id
	op.Entry.Attributes = mc.attributesFor(child)
	op.Entry.AttributesExpiration = time.Now().Add(time.Minute)
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration
	return nil
}

// GetInodeAttributes returns the current attributes for op.Inode.
func (mc *MountContext) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	d, ok := mc.dentryForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes = mc.attributesFor(d)
	op.AttributesExpiration = time.Now().Add(time.Minute)
	return nil
}

// SetInodeAttributes updates only the timestamp/size fields named in the
// request, per the attribute policy (SPEC_FULL.md §4.8).
func (mc *MountContext) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	d, ok := mc.dentryForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	if op.Mtime != nil {
		d.Modified = *op.Mtime
	}
	if op.Atime != nil {
		d.Accessed = *op.Atime
	}
	if op.Size != nil {
		if err := mc.truncateByPath(d, int64(*op.Size)); err != nil {
			return err
		}
	}
	d.Metadata = mc.Clock.Now()

	op.Attributes = mc.attributesFor(d)
	op.AttributesExpiration = time.Now().Add(time.Minute)
	return nil
}

// ForgetInode balances an earlier lookup-count grant (LookUpInode,
// MkDir, CreateFile, CreateSymlink, CreateLink).
func (mc *MountContext) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	mc.decLookup(op.Inode, uint64(op.N))
	return nil
}
