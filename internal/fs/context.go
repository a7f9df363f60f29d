// Package fs implements the Filesystem Front-End: the full POSIX
// callback surface (SPEC_FULL.md §6) over the dentry tree, resource
// catalog, and staging store, via github.com/jacobsa/fuse. Per §5 the
// mount is configured single-threaded, so MountContext and everything it
// owns needs no internal locking.
package fs

import (
	"log/slog"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/wimfuse/wimfuse/cfg"
	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/clock"
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/handle"
	"github.com/wimfuse/wimfuse/internal/staging"
	"github.com/wimfuse/wimfuse/internal/unmount"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// MountContext bundles every piece of per-mount state and is installed
// as the fuseutil.FileSystem implementation's receiver. The reference
// design kept the mounted image, mount flags, staging directory name,
// and queue descriptors in module-level globals; this struct is the
// idiomatic replacement, threaded explicitly rather than reached for
// through package state (SPEC_FULL.md §3 "Mount context").
type MountContext struct {
	fuseutil.NotImplementedFileSystem

	Config  cfg.Config
	Clock   clock.Clock
	Logger  *slog.Logger
	Tree    *dentry.Tree
	Catalog *catalog.Catalog
	Staging *staging.Store
	Handles *handle.Registry

	Reader ResourceReaderCloser
	Codec  wimfile.NameCodec

	inodes       map[fuseops.InodeID]*dentry.Dentry
	inodeOf      map[*dentry.Dentry]fuseops.InodeID
	nextInodeID  fuseops.InodeID
	lookupCounts map[*dentry.Dentry]uint64

	// Destroying is set once Destroy begins. No callback consults it;
	// callbacks arriving after Destroy are served like any other.
	Destroying bool

	// handshakeEnabled, queues, image, and overwriter are set by
	// EnableUnmountHandshake for read-write mounts; a read-only mount
	// leaves them zero and Destroy skips the commit protocol entirely.
	handshakeEnabled bool
	queues           unmount.Queues
	image            *wimfile.Image
	overwriter       wimfile.Overwriter
}

// ResourceReaderCloser is wimfile.ResourceReader plus lifecycle control
// over the backing archive file descriptor.
type ResourceReaderCloser interface {
	wimfile.ResourceReader
	Close() error
}

// New builds a MountContext for a freshly loaded image.
func New(config cfg.Config, clk clock.Clock, logger *slog.Logger, tree *dentry.Tree, cat *catalog.Catalog, store *staging.Store, reader ResourceReaderCloser, codec wimfile.NameCodec) *MountContext {
	mc := &MountContext{
		Config:      config,
		Clock:       clk,
		Logger:      logger,
		Tree:        tree,
		Catalog:     cat,
		Staging:     store,
		Handles:     handle.NewRegistry(),
		Reader:      reader,
		Codec:       codec,
		inodes:      make(map[fuseops.InodeID]*dentry.Dentry),
		inodeOf:     make(map[*dentry.Dentry]fuseops.InodeID),
		nextInodeID: fuseops.RootInodeID + 1,
	}
	mc.inodes[fuseops.RootInodeID] = tree.Root
	mc.inodeOf[tree.Root] = fuseops.RootInodeID
	return mc
}

// inodeID returns the stable inode ID for d, minting one on first sight.
func (mc *MountContext) inodeID(d *dentry.Dentry) fuseops.InodeID {
	if id, ok := mc.inodeOf[d]; ok {
		return id
	}
	id := mc.nextInodeID
	mc.nextInodeID++
	mc.inodeOf[d] = id
	mc.inodes[id] = d
	return id
}

// dentryForInode resolves a kernel-visible inode ID back to its dentry.
func (mc *MountContext) dentryForInode(id fuseops.InodeID) (*dentry.Dentry, bool) {
	d, ok := mc.inodes[id]
	return d, ok
}

// forgetInode drops the bookkeeping for d's inode ID entirely. Called
// once ForgetInode's lookup count reaches zero, whether or not the
// dentry is still reachable from the tree.
func (mc *MountContext) forgetInode(id fuseops.InodeID) {
	if d, ok := mc.inodes[id]; ok {
		delete(mc.inodeOf, d)
	}
	delete(mc.inodes, id)
}

// streamInterfaceMode is a convenience accessor for dentry.Resolve calls.
func (mc *MountContext) streamInterfaceMode() dentry.StreamInterface {
	return mc.Config.StreamInterface.Value
}
