// Command wimfuse mounts a WIM archive image as a copy-on-write FUSE
// filesystem and, on a later matching unmount, can commit staged writes
// back into the archive.
package main

import "github.com/wimfuse/wimfuse/cmd"

func main() {
	cmd.Execute()
}
