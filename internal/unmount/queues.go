// Package unmount implements the two-process commit/abort handshake
// between the mount daemon and an out-of-band unmount driver
// (SPEC_FULL.md §4.7). No POSIX message-queue binding exists anywhere in
// the retrieved example corpus, so named queues are modeled as a pair of
// named FIFOs created with golang.org/x/sys/unix.Mkfifo — the closest
// ecosystem-idiomatic substitute (see DESIGN.md).
package unmount

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// DaemonWaitTimeout bounds how long the daemon waits for the
	// driver's commit/discard request before assuming "do not commit".
	DaemonWaitTimeout = 3 * time.Second

	// DriverWaitTimeout bounds how long the driver waits for the
	// daemon's status reply.
	DriverWaitTimeout = 600 * time.Second
)

// Queues names and owns the pair of FIFOs used for one mount's unmount
// handshake.
type Queues struct {
	ToDaemon string
	ToDriver string
}

// New derives the queue paths from mountPoint's basename, placed under
// dir (typically a well-known temp directory both the daemon and the
// driver process can agree on), per the naming scheme in §6: slashes in
// the basename are replaced with underscores and any trailing slash is
// stripped before the suffix is appended.
func New(dir, mountPoint string) Queues {
	base := strings.ReplaceAll(strings.Trim(filepath.Base(mountPoint), "/"), "/", "_")
	return Queues{
		ToDaemon: filepath.Join(dir, base+"wimlib-unmount-to-daemon-mq"),
		ToDriver: filepath.Join(dir, base+"wimlib-daemon-to-unmount-mq"),
	}
}

// Create makes both FIFOs if they do not already exist.
func (q Queues) Create() error {
	for _, path := range []string{q.ToDaemon, q.ToDriver} {
		if err := unix.Mkfifo(path, 0o600); err != nil && err != unix.EEXIST {
			return err
		}
	}
	return nil
}

// Remove unlinks both FIFOs from the namespace. Per §4.7 "whichever
// side closes last" unlinks them; removing an already-removed FIFO is
// not an error.
func (q Queues) Remove() error {
	var firstErr error
	for _, path := range []string{q.ToDaemon, q.ToDriver} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
