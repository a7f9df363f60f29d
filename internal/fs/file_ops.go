package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/staging"
	"github.com/wimfuse/wimfuse/internal/wimerr"
)

// wantsWrite reports whether the kernel-supplied open flags request
// write access, triggering eager divergence per the opening rules.
func wantsWrite(flags uint32) bool {
	accessMode := int(flags) & (syscall.O_RDONLY | syscall.O_WRONLY | syscall.O_RDWR)
	return accessMode == syscall.O_WRONLY || accessMode == syscall.O_RDWR
}

// CreateFile creates a new regular file under op.Parent.
func (mc *MountContext) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	parent, ok := mc.dentryForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	if mc.Tree.FindChild(parent, op.Name) != nil {
		return fuse.EEXIST
	}

	child := &dentry.Dentry{Name: op.Name}
	child.LinkGroup = mc.Tree.NewSoloLinkGroup(child)
	child.StampAll(mc.Clock)
	mc.Tree.AddChild(parent, child)

	id := mc.inodeID(child)
	mc.incLookup(child)
	op.Entry.Child = id
	op.Entry.Attributes = mc.attributesFor(child)

	h, err := mc.openForWrite(child, -1, 0)
	if err != nil {
		return err
	}
	op.Handle = mc.Handles.OpenFile(h)
	return nil
}

// OpenFile opens an existing regular file, diverging it first if the
// open requests write access and it is still archive-backed (§4.2).
func (mc *MountContext) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	d, ok := mc.dentryForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}

	if !d.HasPrimary {
		if !mc.Config.ReadWrite {
			// Read-only mount, empty file: a null handle; reads yield
			// 0 bytes without ever touching the catalog.
			op.Handle = mc.Handles.OpenFile(&catalog.Handle{Dentry: d})
			return nil
		}
		h, err := mc.openForWrite(d, -1, 0)
		if err != nil {
			return err
		}
		op.Handle = mc.Handles.OpenFile(h)
		return nil
	}

	entry, _ := mc.primaryEntry(d)
	if mc.Config.ReadWrite && wantsWrite(op.Flags) && entry != nil && !entry.IsStaged() {
		// Diverging materializes up to this many bytes of the old
		// content; O_TRUNC discards it (size 0), anything else keeps the
		// full original content available (spec.md's "new" vs "original
		// size for full copy" distinction).
		size := entry.OriginalSize
		if int(op.Flags)&syscall.O_TRUNC != 0 {
			size = 0
		}
		h, err := mc.openForWrite(d, -1, size)
		if err != nil {
			return err
		}
		op.Handle = mc.Handles.OpenFile(h)
		return nil
	}

	h := &catalog.Handle{Dentry: d, LinkGroupTag: d.LinkGroup}
	if entry != nil {
		if _, err := entry.AllocFD(h); err != nil {
			return err
		}
		if entry.IsStaged() {
			h.StagingOpen = true
		}
	}
	op.Handle = mc.Handles.OpenFile(h)
	return nil
}

// openForWrite runs the staging-divergence algorithm for the stream of d
// selected by adsIndex (-1 for the primary stream), materializing size
// bytes of its old content
// (archive-backed or none), and returns a fresh handle registered
// against the resulting entry.
func (mc *MountContext) openForWrite(d *dentry.Dentry, adsIndex int, size int64) (*catalog.Handle, error) {
	if !mc.Config.ReadWrite {
		return nil, wimerr.ErrReadOnly
	}

	target := dentry.StreamTarget{Dentry: d, ADSIndex: adsIndex}
	var oldEntry *catalog.LookupEntry
	if hash, ok := target.Hash(); ok {
		oldEntry, _ = mc.Catalog.Lookup(hash)
	}

	entry, err := mc.Staging.Diverge(context.Background(), staging.DivergeInput{
		Target:   target,
		OldEntry: oldEntry,
		Size:     size,
		Reader:   mc.Reader,
		Catalog:  mc.Catalog,
		Names:    staging.UUIDNameSource{},
	})
	if err != nil {
		return nil, err
	}

	h := &catalog.Handle{Dentry: d, LinkGroupTag: d.LinkGroup}
	if _, err := entry.AllocFD(h); err != nil {
		return nil, err
	}
	h.StagingOpen = true
	return h, nil
}

// ReadFile reads from a staged entry's native fd or, for archive-backed
// streams, through the resource reader clamped to [0, original_size).
func (mc *MountContext) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	h, ok := mc.Handles.File(op.Handle)
	if !ok {
		return fuse.EIO
	}
	if h.Entry == nil {
		op.BytesRead = 0
		return nil
	}

	entry := h.Entry
	if entry.IsStaged() {
		f, err := os.Open(entry.StagingPath())
		if err != nil {
			return wrapStagingIO(err)
		}
		defer f.Close()
		n, err := f.ReadAt(op.Dst, op.Offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return wrapStagingIO(err)
		}
		op.BytesRead = n
		return nil
	}

	desc := entry.ArchiveResource()
	if op.Offset > desc.OriginalSize {
		return wimerr.ErrInvalidArgument
	}
	n, err := mc.Reader.ReadResource(ctx, desc, op.Offset, op.Dst)
	if err != nil {
		return wrapArchiveIO(err)
	}
	op.BytesRead = n
	return nil
}

// WriteFile writes to the staging fd at the request's offset. Writes
// are only ever defined on staged entries; any handle that reaches here
// writing must already have been opened for write (and thus diverged).
func (mc *MountContext) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	h, ok := mc.Handles.File(op.Handle)
	if !ok {
		return fuse.EIO
	}
	if h.Entry == nil || !h.Entry.IsStaged() {
		return wimerr.ErrReadOnly
	}

	f, err := os.OpenFile(h.Entry.StagingPath(), os.O_WRONLY, 0o600)
	if err != nil {
		return wrapStagingIO(err)
	}
	n, writeErr := f.WriteAt(op.Data, op.Offset)
	if closeErr := staging.CloseFile(f, writeErr); closeErr != nil {
		return wrapStagingIO(closeErr)
	}

	end := op.Offset + int64(n)
	if end > h.Entry.OriginalSize {
		h.Entry.OriginalSize = end
	}
	if h.Dentry != nil {
		h.Dentry.StampModified(mc.Clock)
	}
	return nil
}

// SyncFile is a no-op: staging files are ordinary files on the host
// filesystem and are durable as soon as WriteFile's write(2) returns.
func (mc *MountContext) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	return nil
}

// FlushFile is a no-op for the same reason as SyncFile.
func (mc *MountContext) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

// ReleaseFileHandle closes a handle's native staging presence (if any)
// and releases its catalog slot, destroying the lookup entry if its
// refcount had already reached zero while this was its last open fd.
func (mc *MountContext) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	h, ok := mc.Handles.ReleaseFile(op.Handle)
	if !ok || h.Entry == nil {
		return nil
	}
	mc.Catalog.ReleaseFD(h.Entry, h.Index)
	return nil
}

func wrapArchiveIO(err error) error {
	if err == nil {
		return nil
	}
	return &wrappedErr{category: wimerr.ErrArchiveIO, err: err}
}

func wrapStagingIO(err error) error {
	if err == nil {
		return nil
	}
	return &wrappedErr{category: wimerr.ErrStagingIO, err: err}
}

type wrappedErr struct {
	category error
	err      error
}

func (w *wrappedErr) Error() string { return w.category.Error() + ": " + w.err.Error() }
func (w *wrappedErr) Unwrap() error { return w.category }
