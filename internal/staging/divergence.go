package staging

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/wimerr"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// copyChunkSize bounds how much of the archive resource is held in
// memory at once while materializing it into a staging file.
const copyChunkSize = 64 * 1024

// DivergeInput collects everything the divergence algorithm needs: the
// resolved stream target whose hash slot will be overwritten, the
// current lookup entry backing that stream (nil for a brand-new
// stream), the truncation/materialization size, and the collaborators
// required to copy archive bytes and key the new entry.
type DivergeInput struct {
	Target   dentry.StreamTarget
	OldEntry *catalog.LookupEntry
	Size     int64
	Reader   wimfile.ResourceReader
	Catalog  *catalog.Catalog
	Names    NameSource
}

// Diverge runs the staging-divergence algorithm (§4.3): it materializes
// a staging file (copying up to Size bytes out of the archive if
// OldEntry is archive-backed), decides whether the existing lookup entry
// can be repurposed in place or must split into a new entry so other
// hard-link-group members keep seeing the original content, and
// repoints Target at the resulting entry's placeholder hash.
func (s *Store) Diverge(ctx context.Context, in DivergeInput) (*catalog.LookupEntry, error) {
	f, path, err := s.createFile()
	if err != nil {
		return nil, err
	}

	var writeErr error
	if in.OldEntry != nil && !in.OldEntry.IsStaged() {
		writeErr = copyArchivePrefix(ctx, in.Reader, in.OldEntry.ArchiveResource(), in.Size, f)
	}
	if closeErr := CloseFile(f, writeErr); closeErr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("staging: %w", wrapStagingIO(closeErr))
	}
	// copyArchivePrefix only ever copies up to the old content's length;
	// when Size grows past that (a truncate-extend), the staging file
	// must still be zero-filled out to Size, matching ftruncate(2) grow
	// semantics. The copy never writes more than Size bytes, so
	// os.Truncate only ever leaves the file as is or extends it.
	if err := os.Truncate(path, in.Size); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("staging: %w", wrapStagingIO(err))
	}

	var linkGroupSize int
	if in.OldEntry == nil {
		// A brand-new stream (mknod, or a write-opened empty
		// placeholder) is referenced only by the dentry that created
		// it; there is no existing hash to count link-group members
		// against.
		linkGroupSize = 1
	} else {
		linkGroupSize = effectiveLinkGroupRefs(in.Target)
	}

	var entry *catalog.LookupEntry
	var reusedOldHash catalog.Hash
	reused := false
	if in.OldEntry != nil && uint64(linkGroupSize) == in.OldEntry.Refcount() {
		// The entire refcount belongs to this link group: repurpose the
		// existing entry in place, keeping its fd array intact. Every
		// other link-group member naming this same stream position still
		// points at the hash about to be removed from the catalog, so
		// they need retargeting too, below, once the new hash is known.
		reusedOldHash = in.OldEntry.Hash
		reused = true
		in.Catalog.Remove(in.OldEntry.Hash)
		entry = in.OldEntry
	} else {
		entry = &catalog.LookupEntry{}
		if in.OldEntry != nil {
			// The old entry is shared by link groups about to diverge:
			// transfer only the handles belonging to the diverging
			// group, identified by their snapshotted link-group tag.
			group := in.Target.Dentry.LinkGroup
			var toTransfer []int
			in.OldEntry.ForEachFD(func(slot int, h *catalog.Handle) {
				if h.LinkGroupTag == group {
					toTransfer = append(toTransfer, slot)
				}
			})
			for _, slot := range toTransfer {
				catalog.TransferFD(in.OldEntry, entry, slot)
			}
			in.Catalog.DecRef(in.OldEntry, uint64(linkGroupSize))
		}
	}

	entry.Hash = in.Names.NewPlaceholderHash()
	entry.OriginalSize = in.Size
	entry.SetStagingBacking(path)
	in.Catalog.IncRef(entry, uint64(linkGroupSize)-entry.Refcount())
	in.Catalog.Insert(entry)

	in.Target.SetHash(entry.Hash)
	if reused {
		retargetLinkGroupSiblings(in.Target, reusedOldHash, entry.Hash)
	}
	return entry, nil
}

// retargetLinkGroupSiblings repoints every other member of target's
// hard-link group still naming oldHash at the same stream position
// (primary, or the same-named ADS) to newHash. Needed whenever Diverge
// repurposes a lookup entry in place instead of splitting it: the
// triggering dentry's own slot is already updated via Target.SetHash,
// but siblings that share the same primary/ADS hash would otherwise be
// left pointing at a hash just removed from the catalog (mirrors
// internal/commit.Pipeline.retarget's whole-tree version, scoped here
// to the one link group being repurposed).
func retargetLinkGroupSiblings(target dentry.StreamTarget, oldHash, newHash catalog.Hash) {
	group := target.Dentry.LinkGroup
	if group == nil {
		return
	}
	if target.ADSIndex < 0 {
		for _, member := range group.Members {
			if member.HasPrimary && member.PrimaryHash == oldHash {
				member.PrimaryHash = newHash
			}
		}
		return
	}
	streamName := target.Dentry.ADS[target.ADSIndex].Name
	for _, member := range group.Members {
		for i := range member.ADS {
			if member.ADS[i].Name == streamName && member.ADS[i].Hash == oldHash {
				member.ADS[i].Hash = newHash
			}
		}
	}
}

// effectiveLinkGroupRefs counts how many dentries sharing target's
// hard-link group reference the hash currently named by target, for the
// same stream position (primary or the same-named ADS) — step 3 of the
// algorithm.
func effectiveLinkGroupRefs(target dentry.StreamTarget) int {
	hash, ok := target.Hash()
	if !ok {
		return 0
	}
	group := target.Dentry.LinkGroup
	if group == nil {
		return 1
	}

	count := 0
	for _, member := range group.Members {
		if target.ADSIndex < 0 {
			if member.HasPrimary && member.PrimaryHash == hash {
				count++
			}
			continue
		}
		streamName := target.Dentry.ADS[target.ADSIndex].Name
		for _, ads := range member.ADS {
			if ads.Name == streamName && ads.Hash == hash {
				count++
			}
		}
	}
	return count
}

// copyArchivePrefix streams the first size uncompressed bytes of desc
// into w via reader, clamped to the resource's original size.
func copyArchivePrefix(ctx context.Context, reader wimfile.ResourceReader, desc wimfile.ResourceDescriptor, size int64, w io.Writer) error {
	if size > desc.OriginalSize {
		size = desc.OriginalSize
	}
	buf := make([]byte, copyChunkSize)
	var skip int64
	for skip < size {
		want := int64(len(buf))
		if remaining := size - skip; remaining < want {
			want = remaining
		}
		n, err := reader.ReadResource(ctx, desc, skip, buf[:want])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			skip += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}

func wrapStagingIO(err error) error {
	return fmt.Errorf("%w: %v", wimerr.ErrStagingIO, err)
}
