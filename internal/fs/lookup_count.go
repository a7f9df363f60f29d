package fs

import (
	"github.com/jacobsa/fuse/fuseops"

	"github.com/wimfuse/wimfuse/internal/dentry"
)

// incLookup bumps the kernel lookup count the VFS holds on d, mirroring
// the lookupCount pattern the teacher uses per-inode: every response
// that hands the kernel a new reference to an inode (LookUpInode,
// MkDir, CreateFile, CreateSymlink, CreateLink, ...) must balance
// against a later ForgetInode.
func (mc *MountContext) incLookup(d *dentry.Dentry) {
	if mc.lookupCounts == nil {
		mc.lookupCounts = make(map[*dentry.Dentry]uint64)
	}
	mc.lookupCounts[d]++
}

// decLookup decrements id's kernel lookup count by n and, if it reaches
// zero, forgets the inode-ID bookkeeping entirely (it will be re-minted
// if looked up again, or freed for good if the dentry is also unlinked).
func (mc *MountContext) decLookup(id fuseops.InodeID, n uint64) {
	d, ok := mc.dentryForInode(id)
	if !ok {
		return
	}
	cur := mc.lookupCounts[d]
	if n > cur {
		panic("wimfuse: ForgetInode count exceeds outstanding lookup count")
	}
	cur -= n
	if cur == 0 {
		delete(mc.lookupCounts, d)
		mc.forgetInode(id)
		return
	}
	mc.lookupCounts[d] = cur
}
