// Package dentry implements the in-memory directory tree: hard-link
// groups, alternate-data-stream side entries, path resolution, and the
// structural link/unlink/rename operations. It owns no content — every
// stream is named only by its hash, which is what lets internal/catalog
// deduplicate across the tree.
package dentry

import (
	"time"

	"github.com/wimfuse/wimfuse/internal/clock"
)

// Hash is a content hash as used to key a catalog lookup entry.
type Hash = [20]byte

// HardLinkGroup is the set of dentries that share identity and therefore
// primary-stream content. Exactly one member is the master, whose
// primary hash is authoritative; the rest are slaves created by Link.
type HardLinkGroup struct {
	id      uint64
	Master  *Dentry
	Members []*Dentry
}

// Size returns the number of dentries sharing this link group.
func (g *HardLinkGroup) Size() int {
	return len(g.Members)
}

// ADSEntry is a named side stream attached to a regular-file dentry.
type ADSEntry struct {
	Name string
	Hash Hash
}

// Dentry is one node in the directory tree.
type Dentry struct {
	Name        string // native encoding
	ArchiveName []byte // archive (historically UTF-16LE) encoding

	Parent *Dentry

	// Children of one parent form a circular singly-linked list,
	// anchored at Parent.FirstChild; NextSibling wraps back to the
	// first child after the last one.
	FirstChild  *Dentry
	NextSibling *Dentry

	IsDirectory bool
	IsSymlink   bool
	Attributes  uint32 // Windows file attribute bitmask
	ReparseTag  uint32

	Created  time.Time
	Accessed time.Time
	Modified time.Time
	Metadata time.Time

	HasPrimary  bool
	PrimaryHash Hash
	ADS         []ADSEntry

	LinkGroup *HardLinkGroup

	// NumTimesOpened defers destruction of an unlinked directory while
	// a directory handle on it is still held open.
	NumTimesOpened uint32

	// unlinked is set once this dentry has been removed from the tree
	// but survives because NumTimesOpened > 0 or an open file handle
	// still references it.
	unlinked bool
}

// Unlinked reports whether this dentry has been removed from the tree
// but is being kept alive by an open handle (the "orphan awaiting
// close" state from the data model).
func (d *Dentry) Unlinked() bool {
	return d.unlinked
}

// EffectiveStreams returns every (name, hash) pair this dentry names: the
// primary stream (if present) under the empty stream name, plus every
// ADS entry.
func (d *Dentry) EffectiveStreams() []ADSEntry {
	streams := make([]ADSEntry, 0, len(d.ADS)+1)
	if d.HasPrimary {
		streams = append(streams, ADSEntry{Name: "", Hash: d.PrimaryHash})
	}
	streams = append(streams, d.ADS...)
	return streams
}

// StampAll refreshes all four timestamps from clk, as required after any
// structural or content mutation (§4.5).
func (d *Dentry) StampAll(clk clock.Clock) {
	now := clk.Now()
	d.Created = now
	d.Accessed = now
	d.Modified = now
	d.Metadata = now
}

// StampModified refreshes only the modified+metadata timestamps, as done
// on writes and truncates.
func (d *Dentry) StampModified(clk clock.Clock) {
	now := clk.Now()
	d.Modified = now
	d.Metadata = now
}
