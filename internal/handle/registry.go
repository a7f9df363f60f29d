// Package handle maps kernel-visible FUSE handle IDs to the internal
// catalog.Handle each one is backed by. The dense per-lookup-entry slot
// array that is the FD Table's core structure lives in internal/catalog
// (it is tightly coupled to LookupEntry); this package is the front
// end's lookup table from fuseops.HandleID to that structure.
package handle

import (
	"github.com/jacobsa/fuse/fuseops"

	"github.com/wimfuse/wimfuse/internal/catalog"
)

// Registry hands out sequential handle IDs and tracks which
// catalog.Handle (file) or DirHandle (directory) each one names. Single-threaded dispatch means no locking is required.
type Registry struct {
	next    fuseops.HandleID
	files   map[fuseops.HandleID]*catalog.Handle
	dirs    map[fuseops.HandleID]*DirHandle
}

// DirHandle is the open-directory-handle analogue of catalog.Handle: it
// has no backing lookup entry (directories have no content stream), but
// still needs a stable identity for readdir continuation and to keep
// NumTimesOpened accounting on its dentry.
type DirHandle struct {
	DentryOpaque any // *dentry.Dentry, kept untyped here to avoid a
	// handle -> dentry package dependency beyond what callers need;
	// internal/fs asserts the concrete type.
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		files: make(map[fuseops.HandleID]*catalog.Handle),
		dirs:  make(map[fuseops.HandleID]*DirHandle),
	}
}

func (r *Registry) allocID() fuseops.HandleID {
	r.next++
	return r.next
}

// OpenFile registers h under a fresh handle ID and returns it.
func (r *Registry) OpenFile(h *catalog.Handle) fuseops.HandleID {
	id := r.allocID()
	r.files[id] = h
	return id
}

// File returns the catalog.Handle registered under id, if any.
func (r *Registry) File(id fuseops.HandleID) (*catalog.Handle, bool) {
	h, ok := r.files[id]
	return h, ok
}

// ReleaseFile forgets id, returning the handle it named so the caller
// can close its staging fd and release its catalog slot.
func (r *Registry) ReleaseFile(id fuseops.HandleID) (*catalog.Handle, bool) {
	h, ok := r.files[id]
	delete(r.files, id)
	return h, ok
}

// OpenDir registers a directory handle under a fresh handle ID.
func (r *Registry) OpenDir(d *DirHandle) fuseops.HandleID {
	id := r.allocID()
	r.dirs[id] = d
	return id
}

// Dir returns the directory handle registered under id, if any.
func (r *Registry) Dir(id fuseops.HandleID) (*DirHandle, bool) {
	d, ok := r.dirs[id]
	return d, ok
}

// ReleaseDir forgets id, returning the directory handle it named.
func (r *Registry) ReleaseDir(id fuseops.HandleID) (*DirHandle, bool) {
	d, ok := r.dirs[id]
	delete(r.dirs, id)
	return d, ok
}
