// Package commit implements the Commit Pipeline: on a successful
// unmount, it rehashes every staged stream, deduplicates the result
// against the rest of the catalog, and invokes the archive overwriter
// (SPEC_FULL.md §4.7 step 3). It does not refresh the image's XML
// metadata; the Image is handed to the overwriter as loaded.
package commit

import (
	"context"
	"fmt"
	"os"

	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/hash"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// Pipeline bundles the state one commit run needs.
type Pipeline struct {
	Tree       *dentry.Tree
	Catalog    *catalog.Catalog
	Image      *wimfile.Image
	Overwriter wimfile.Overwriter
}

// Run rehashes and deduplicates every staged entry, retargets the
// dentry tree's stream hashes accordingly, and invokes the overwriter.
// Callers are responsible for having already closed every open staging
// fd (§4.7 step 3 precondition) before calling Run.
func (p *Pipeline) Run(ctx context.Context, checkIntegrity bool) error {
	if err := p.rehashAndDedupe(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := p.Overwriter.Overwrite(ctx, p.Image, checkIntegrity); err != nil {
		return fmt.Errorf("commit: overwrite archive: %w", err)
	}
	return nil
}

// rehashAndDedupe computes the real content hash of every staged entry
// and, if that hash already exists elsewhere in the catalog, frees the
// staged entry and folds its refcount into the existing one instead
// (commit-time deduplication); otherwise it simply re-keys the entry
// under its real hash. Either way, every dentry stream pointer naming
// the entry's old (placeholder) hash is retargeted at the final hash.
func (p *Pipeline) rehashAndDedupe() error {
	for _, entry := range p.Catalog.Entries() {
		if !entry.IsStaged() {
			continue
		}

		realHash, err := hash.File(entry.StagingPath())
		if err != nil {
			return fmt.Errorf("hash staged stream %s: %w", entry.StagingPath(), err)
		}
		if realHash == entry.Hash {
			continue
		}
		oldHash := entry.Hash

		if existing, ok := p.Catalog.Lookup(realHash); ok && existing != entry {
			p.Catalog.Remove(oldHash)
			p.Catalog.IncRef(existing, entry.Refcount())
			if err := os.Remove(entry.StagingPath()); err != nil {
				return fmt.Errorf("remove superseded staging file: %w", err)
			}
			p.retarget(oldHash, realHash)
			continue
		}

		p.Catalog.Remove(oldHash)
		entry.Hash = realHash
		p.Catalog.Insert(entry)
		p.retarget(oldHash, realHash)
	}
	return nil
}

// retarget rewrites every dentry stream pointer naming oldHash to name
// newHash instead.
func (p *Pipeline) retarget(oldHash, newHash catalog.Hash) {
	p.Tree.Walk(func(d *dentry.Dentry) {
		if d.HasPrimary && d.PrimaryHash == oldHash {
			d.PrimaryHash = newHash
		}
		for i := range d.ADS {
			if d.ADS[i].Hash == oldHash {
				d.ADS[i].Hash = newHash
			}
		}
	})
}
