package cmd

import (
	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/clock"
	"github.com/wimfuse/wimfuse/internal/dentry"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// buildTreeFromImage converts the loader's flattened DentryRecord tree
// into an internal/dentry.Tree, grouping records into hard-link groups
// by the loader's HardLinkGroup id (0 means "no sibling links").
func buildTreeFromImage(image *wimfile.Image, clk clock.Clock) *dentry.Tree {
	tree := dentry.NewTree(clk)
	groups := make(map[uint64]*dentry.HardLinkGroup)

	var convert func(rec *wimfile.DentryRecord, parent *dentry.Dentry)
	convert = func(rec *wimfile.DentryRecord, parent *dentry.Dentry) {
		d := &dentry.Dentry{
			Name:        rec.Name,
			ArchiveName: rec.ArchiveName,
			IsDirectory: rec.IsDirectory,
			IsSymlink:   rec.IsSymlink,
			Attributes:  rec.Attributes,
			HasPrimary:  rec.HasPrimary,
			PrimaryHash: rec.PrimaryHash,
		}
		d.ADS = make([]dentry.ADSEntry, len(rec.ADS))
		for i, a := range rec.ADS {
			d.ADS[i] = dentry.ADSEntry{Name: a.Name, Hash: a.Hash}
		}
		d.StampAll(clk)

		switch g, ok := groups[rec.HardLinkGroup]; {
		case rec.HardLinkGroup == 0:
			d.LinkGroup = tree.NewSoloLinkGroup(d)
		case ok:
			g.Members = append(g.Members, d)
			d.LinkGroup = g
		default:
			g := tree.NewSoloLinkGroup(d)
			groups[rec.HardLinkGroup] = g
			d.LinkGroup = g
		}

		tree.AddChild(parent, d)
		for _, childRec := range rec.Children {
			convert(childRec, d)
		}
	}

	if image.Root != nil {
		for _, childRec := range image.Root.Children {
			convert(childRec, tree.Root)
		}
	}
	return tree
}

// buildCatalogFromImage seeds a catalog from the loader's resource table,
// refcounting each hash by how many effective streams in tree name it.
// Resources nothing in the tree references are left out, since an entry
// with a zero refcount and no open fds is not a valid catalog state.
func buildCatalogFromImage(tree *dentry.Tree, image *wimfile.Image) *catalog.Catalog {
	cat := catalog.New()
	refcounts := make(map[catalog.Hash]uint64)

	tree.Walk(func(d *dentry.Dentry) {
		for _, s := range d.EffectiveStreams() {
			refcounts[s.Hash]++
		}
	})

	for h, desc := range image.Resources {
		n := refcounts[h]
		if n == 0 {
			continue
		}
		entry := &catalog.LookupEntry{Hash: h, OriginalSize: desc.OriginalSize}
		entry.SetArchiveBacking(desc)
		cat.Insert(entry)
		cat.IncRef(entry, n)
	}
	return cat
}
