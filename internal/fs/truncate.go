package fs

import (
	"os"

	"github.com/wimfuse/wimfuse/internal/dentry"
)

// truncateByPath implements the path-addressed half of truncate (§4.5):
// a no-op if the stream is already empty at the requested size; an
// ftruncate on the staging file if already staged; otherwise divergence
// with the requested size as the materialization prefix. All four
// dentry timestamps are refreshed in either case.
func (mc *MountContext) truncateByPath(d *dentry.Dentry, size int64) error {
	entry, hasEntry := mc.primaryEntry(d)

	if !hasEntry {
		if size == 0 {
			d.StampAll(mc.Clock)
			return nil // already empty: no staging file produced.
		}
		_, err := mc.openForWrite(d, -1, size)
		if err != nil {
			return err
		}
		d.StampAll(mc.Clock)
		return nil
	}

	if entry.IsStaged() {
		if err := os.Truncate(entry.StagingPath(), size); err != nil {
			return wrapStagingIO(err)
		}
		entry.OriginalSize = size
		d.StampAll(mc.Clock)
		return nil
	}

	if size == entry.OriginalSize {
		d.StampAll(mc.Clock)
		return nil // truncate to current size is a no-op (§8 boundary behaviors).
	}

	if _, err := mc.openForWrite(d, -1, size); err != nil {
		return err
	}
	d.StampAll(mc.Clock)
	return nil
}
