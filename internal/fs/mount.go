package fs

import (
	"log"
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
)

func newStdErrorLogger() *log.Logger {
	return log.New(os.Stderr, "wimfuse: ", log.LstdFlags)
}

// Mount mounts mc at mountPoint. Per SPEC_FULL.md §5 the filesystem
// dispatches single-threaded: jacobsa/fuse serves one op at a time
// unless OpContext concurrency is explicitly raised, so no MountConfig
// option is set here to enable parallel dispatch.
func Mount(mc *MountContext, mountPoint string) (*fuse.MountedFileSystem, error) {
	server := fuseutil.NewFileSystemServer(mc)

	cfg := &fuse.MountConfig{
		FSName:      "wimfuse",
		VolumeName:  "wimfuse",
		ReadOnly:    !mc.Config.ReadWrite,
		DebugLogger: nil,
		ErrorLogger: nil,
	}
	if mc.Config.Debug {
		cfg.ErrorLogger = newStdErrorLogger()
	}

	return fuse.Mount(mountPoint, server, cfg)
}
