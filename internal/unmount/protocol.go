package unmount

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wimfuse/wimfuse/internal/wimerr"
)

// Request is the 2-byte message the driver writes to the to-daemon
// queue (§4.7 step 1).
type Request struct {
	Commit         bool
	CheckIntegrity bool
}

func (r Request) bytes() [2]byte {
	return [2]byte{boolByte(r.Commit), boolByte(r.CheckIntegrity)}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// openNonblockingRead opens path for reading without blocking for a
// writer to appear, so a subsequent SetReadDeadline enforces the
// caller's timeout instead of an indefinite open(2). The FIFO is opened
// read-write so this descriptor itself counts as a writer: read(2) then
// waits for data instead of reporting end-of-file before the other side
// has opened its end.
func openNonblockingRead(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// SendRequest is called by the unmount driver after it has successfully
// invoked the OS-level unmount command, to deliver the commit/discard
// decision to the daemon (§4.7 step 1).
func SendRequest(path string, req Request) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s for write: %v", wimerr.ErrProtocol, path, err)
	}
	defer f.Close()

	b := req.bytes()
	if _, err := f.Write(b[:]); err != nil {
		return fmt.Errorf("%w: write request: %v", wimerr.ErrProtocol, err)
	}
	return nil
}

// AwaitRequest is called by the daemon in its destroy callback. It waits
// up to timeout (DaemonWaitTimeout in production) for the driver's
// request; on timeout it reports ErrProtocol so the caller can log the
// failure and assume "do not commit" per §4.7 step 2.
func AwaitRequest(path string, timeout time.Duration) (Request, error) {
	f, err := openNonblockingRead(path)
	if err != nil {
		return Request{}, fmt.Errorf("%w: open %s for read: %v", wimerr.ErrProtocol, path, err)
	}
	defer f.Close()

	if err := f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Request{}, fmt.Errorf("%w: set read deadline: %v", wimerr.ErrProtocol, err)
	}

	var buf [2]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return Request{}, fmt.Errorf("%w: timed out waiting for unmount request: %v", wimerr.ErrProtocol, err)
	}
	return Request{Commit: buf[0] != 0, CheckIntegrity: buf[1] != 0}, nil
}

// Status is the 1-byte reply the daemon sends back: 0 means success,
// non-zero is an error code (§4.7 step 5).
type Status byte

const StatusSuccess Status = 0

// SendStatus is called by the daemon once the commit pipeline (or its
// abort path) has finished and the staging directory has been removed.
func SendStatus(path string, status Status) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s for write: %v", wimerr.ErrProtocol, path, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{byte(status)}); err != nil {
		return fmt.Errorf("%w: write status: %v", wimerr.ErrProtocol, err)
	}
	return nil
}

// AwaitStatus is called by the unmount driver. It waits up to timeout
// (DriverWaitTimeout in production) for the daemon's status reply; on
// timeout it returns a timeout error without a verdict (§4.7 step 6).
func AwaitStatus(path string, timeout time.Duration) (Status, error) {
	f, err := openNonblockingRead(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s for read: %v", wimerr.ErrProtocol, path, err)
	}
	defer f.Close()

	if err := f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("%w: set read deadline: %v", wimerr.ErrProtocol, err)
	}

	var buf [1]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: timed out waiting for status reply: %v", wimerr.ErrProtocol, err)
	}
	return Status(buf[0]), nil
}
