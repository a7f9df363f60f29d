// Package catalog implements the Resource Catalog and FD Table: the
// hash-indexed mapping from content hash to lookup entry, reference
// counting over effective-stream references, and each entry's dense
// open-handle slot array. The Catalog and its entries carry no locks —
// per SPEC_FULL.md §5 the filesystem dispatches single-threaded.
package catalog

import (
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/wimerr"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// Hash is a content hash, shared with the dentry package so tree and
// catalog agree on the key type without either owning the other.
type Hash = dentry.Hash

const (
	fdSlotGrowth = 8
	maxFDSlots   = 65535
)

// LookupEntry is one catalog record for a unique content stream. Exactly
// one of the archive resource descriptor or the staging path is live at
// any time.
type LookupEntry struct {
	Hash Hash

	refcount uint64

	hasArchive  bool
	archive     wimfile.ResourceDescriptor
	stagingPath string

	OriginalSize int64

	fds       []*Handle
	numOpened int
}

// Refcount returns the entry's current reference count.
func (e *LookupEntry) Refcount() uint64 { return e.refcount }

// NumOpenedFDs returns the number of non-nil slots in the entry's handle
// table.
func (e *LookupEntry) NumOpenedFDs() int { return e.numOpened }

// IsStaged reports whether this entry is currently backed by a staging
// file rather than the archive.
func (e *LookupEntry) IsStaged() bool { return !e.hasArchive }

// StagingPath returns the staging file path, valid only when IsStaged.
func (e *LookupEntry) StagingPath() string { return e.stagingPath }

// ArchiveResource returns the archive resource descriptor, valid only
// when !IsStaged.
func (e *LookupEntry) ArchiveResource() wimfile.ResourceDescriptor { return e.archive }

// SetArchiveBacking clears any staging path and sets the archive
// resource descriptor as the entry's sole backing source.
func (e *LookupEntry) SetArchiveBacking(desc wimfile.ResourceDescriptor) {
	e.hasArchive = true
	e.archive = desc
	e.stagingPath = ""
}

// SetStagingBacking clears the archive resource descriptor and sets path
// as the entry's sole backing source (§4.3 step 5/§9 "exactly one" rule).
func (e *LookupEntry) SetStagingBacking(path string) {
	e.hasArchive = false
	e.archive = wimfile.ResourceDescriptor{}
	e.stagingPath = path
}

// Handle is one open file handle: it points back at its owning lookup
// entry and slot index, at the dentry it was opened through (nullable
// once that dentry is unlinked and fully freed), and carries a staging
// fd when not reading straight from the archive.
type Handle struct {
	Entry  *LookupEntry
	Index  int
	Dentry *dentry.Dentry

	// StagingOpen is set once the handle reads and writes through its
	// entry's staging file; false means reads go through the archive
	// resource reader instead.
	StagingOpen bool

	// LinkGroupTag snapshots the dentry's hard-link group identity at
	// open time, so the divergence split (internal/staging) can test
	// group membership without walking the group's member list.
	LinkGroupTag *dentry.HardLinkGroup
}

// Catalog is the hash-indexed lookup table.
type Catalog struct {
	entries map[Hash]*LookupEntry
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[Hash]*LookupEntry)}
}

// Lookup returns the entry for hash, if any.
func (c *Catalog) Lookup(h Hash) (*LookupEntry, bool) {
	e, ok := c.entries[h]
	return e, ok
}

// Insert adds a freshly constructed entry to the catalog, keyed by its
// own Hash field. It panics if an entry is already present for that
// hash, since that would indicate a caller bug (use Lookup first).
func (c *Catalog) Insert(e *LookupEntry) {
	if _, exists := c.entries[e.Hash]; exists {
		wimerr.Invariant("catalog: duplicate insert for hash already present")
	}
	c.entries[e.Hash] = e
}

// Remove deletes hash from the catalog's index. It does not check
// refcount/open-fd state; callers must only call it once an entry is
// fully quiescent (destroy conditions met) or is being relocated to a
// new hash (staging divergence repurposing an entry in place keeps the
// same Go struct but re-keys it: remove under the old hash, then Insert
// under the new one).
func (c *Catalog) Remove(h Hash) {
	delete(c.entries, h)
}

// Entries returns a snapshot of every entry currently in the catalog, in
// unspecified order. Used by the commit pipeline to find staged entries
// needing rehash without requiring the caller to walk the dentry tree.
func (c *Catalog) Entries() []*LookupEntry {
	out := make([]*LookupEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// IncRef bumps an existing entry's refcount by n.
func (c *Catalog) IncRef(e *LookupEntry, n uint64) {
	e.refcount += n
}

// DecRef decrements an entry's refcount by n and, if both refcount and
// open-fd count have reached zero, removes it from the catalog and
// reports destroyed = true so the caller can also release its staging
// file (if any).
func (c *Catalog) DecRef(e *LookupEntry, n uint64) (destroyed bool) {
	if n > e.refcount {
		wimerr.Invariant("catalog: DecRef below zero")
	}
	e.refcount -= n
	if e.refcount == 0 && e.numOpened == 0 {
		c.Remove(e.Hash)
		return true
	}
	return false
}

// AllocFD allocates the lowest free slot in e's fd array for h, growing
// the array by fdSlotGrowth slots at a time up to maxFDSlots, and stamps
// h.Entry/h.Index to match.
func (e *LookupEntry) AllocFD(h *Handle) (int, error) {
	for i, slot := range e.fds {
		if slot == nil {
			e.fds[i] = h
			e.numOpened++
			h.Entry = e
			h.Index = i
			return i, nil
		}
	}
	if len(e.fds) >= maxFDSlots {
		return 0, wimerr.ErrInvalidArgument
	}
	grow := fdSlotGrowth
	if len(e.fds)+grow > maxFDSlots {
		grow = maxFDSlots - len(e.fds)
	}
	idx := len(e.fds)
	e.fds = append(e.fds, make([]*Handle, grow)...)
	e.fds[idx] = h
	e.numOpened++
	h.Entry = e
	h.Index = idx
	return idx, nil
}

// ReleaseFD clears slot idx in e's fd array. The caller is responsible
// for closing any native staging descriptor first; ReleaseFD only
// updates catalog bookkeeping and reports whether the entry should now
// be destroyed (refcount already zero, and this was the last open fd).
func (c *Catalog) ReleaseFD(e *LookupEntry, idx int) (destroyed bool) {
	if e.fds[idx] == nil {
		wimerr.Invariant("catalog: ReleaseFD on empty slot")
	}
	e.fds[idx] = nil
	e.numOpened--
	if e.refcount == 0 && e.numOpened == 0 {
		c.Remove(e.Hash)
		return true
	}
	return false
}

// TransferFD moves the handle at slot idx in src to a freshly allocated
// slot in dst, nulling the source slot. It is the core primitive the
// staging-divergence split (internal/staging) uses to relocate exactly
// the handles belonging to a diverging hard-link group (§4.3 step 4).
func TransferFD(src, dst *LookupEntry, idx int) {
	h := src.fds[idx]
	if h == nil {
		wimerr.Invariant("catalog: TransferFD on empty slot")
	}
	src.fds[idx] = nil
	src.numOpened--

	if _, err := dst.AllocFD(h); err != nil {
		wimerr.Invariant("catalog: TransferFD exceeded fd slot limit")
	}
}

// ForEachFD iterates over every non-nil handle slot in e, in slot order.
// The callback receives the slot index and handle; it must not mutate
// e's fd array (use TransferFD/ReleaseFD for that from the caller's own
// loop, with a distinct loop variable — see DESIGN.md on the shadowed
// "i" bug carried forward as a thing to avoid).
func (e *LookupEntry) ForEachFD(fn func(slot int, h *Handle)) {
	for slot, h := range e.fds {
		if h != nil {
			fn(slot, h)
		}
	}
}
