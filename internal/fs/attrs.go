package fs

import (
	"os"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/wimfuse/wimfuse/internal/catalog"
	"github.com/wimfuse/wimfuse/internal/dentry"
)

const (
	attrFileMode = 0o644
	attrDirMode  = os.ModeDir | 0o755
)

// attributesFor builds the fuseops.InodeAttributes the kernel expects
// for d. st_nlink reports the hard-link group's member count; st_size
// is the primary stream's original size, looked up in the catalog when
// known.
func (mc *MountContext) attributesFor(d *dentry.Dentry) fuseops.InodeAttributes {
	mode := os.FileMode(attrFileMode)
	if d.IsDirectory {
		mode = attrDirMode
	}
	if d.IsSymlink {
		mode = os.ModeSymlink | 0o777
	}

	nlink := uint32(1)
	if d.LinkGroup != nil {
		nlink = uint32(d.LinkGroup.Size())
	}

	var size uint64
	if d.HasPrimary {
		if e, ok := mc.Catalog.Lookup(d.PrimaryHash); ok {
			size = uint64(e.OriginalSize)
		}
	}

	return fuseops.InodeAttributes{
		Size:   size,
		Nlink:  nlink,
		Mode:   mode,
		Atime:  d.Accessed,
		Mtime:  d.Modified,
		Ctime:  d.Metadata,
		Crtime: d.Created,
	}
}

// primaryEntry returns the catalog entry backing d's primary stream, if
// any.
func (mc *MountContext) primaryEntry(d *dentry.Dentry) (*catalog.LookupEntry, bool) {
	if !d.HasPrimary {
		return nil, false
	}
	return mc.Catalog.Lookup(d.PrimaryHash)
}
