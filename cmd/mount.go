package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/kardianos/osext"
	"github.com/spf13/cobra"

	"github.com/wimfuse/wimfuse/internal/clock"
	"github.com/wimfuse/wimfuse/internal/fs"
	"github.com/wimfuse/wimfuse/internal/logging"
	"github.com/wimfuse/wimfuse/internal/staging"
	"github.com/wimfuse/wimfuse/internal/unmount"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// daemonizedEnvVar marks a process as the already-spawned mount daemon,
// so it runs the mount loop directly instead of re-forking itself.
const daemonizedEnvVar = "WIMFUSE_DAEMONIZED"

// DefaultLoader is the archive catalog loader (SPEC_FULL.md §6.1). Its
// concrete implementation — the WIM header/XML/integrity-table parser —
// is out of scope for this repository (§1); wiring a real one in is the
// seam a full build provides.
var DefaultLoader wimfile.Loader

// DefaultOverwriter serializes a committed image back to the archive
// (SPEC_FULL.md §4.7 step 3). Like DefaultLoader, its concrete WIM-writer
// implementation is out of scope; a read-write mount with no overwriter
// registered fails fast at mount time instead of silently discarding
// every commit.
var DefaultOverwriter wimfile.Overwriter

// nopCloseReader adapts a bare wimfile.ResourceReader (as produced by a
// loader that keeps its own archive handle lifecycle) to the
// fs.ResourceReaderCloser MountContext requires; closing it is a no-op
// since the loader owns the underlying archive file descriptor.
type nopCloseReader struct {
	wimfile.ResourceReader
}

func (nopCloseReader) Close() error { return nil }

var mountCmd = &cobra.Command{
	Use:   "mount <image> <mountpoint>",
	Short: "Mount a WIM image read-only or read-write",
	Args:  cobra.ExactArgs(2),
	RunE:  runMount,
}

func runMount(cmd *cobra.Command, args []string) error {
	archivePath, mountPoint := args[0], args[1]

	if !config.Debug && os.Getenv(daemonizedEnvVar) == "" {
		return spawnDaemon(args)
	}

	mfs, closer, err := mountAndServe(archivePath, mountPoint)
	if closer != nil {
		defer closer.Close()
	}

	// Signal the parent as soon as the mount itself succeeds or fails,
	// not after the (possibly very long) serving loop below returns —
	// the parent's daemonize.Run call is blocked on exactly this signal.
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		fmt.Fprintf(os.Stderr, "wimfuse: failed to signal mount outcome to parent: %v\n", sigErr)
	}
	if err != nil {
		return err
	}

	registerSIGINTHandler(mountPoint)
	return mfs.Join(context.Background())
}

// spawnDaemon re-execs the current binary in a detached child, waiting
// for it to signal mount success or failure via daemonize.Run, mirroring
// the teacher's legacy_main.go parent/child handshake.
func spawnDaemon(args []string) error {
	exe, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("cmd: resolve executable path: %w", err)
	}
	childArgs := append([]string{"mount"}, args...)
	env := append(os.Environ(), daemonizedEnvVar+"=1")

	crashLog := config.LogFile
	if crashLog == "" {
		crashLog = filepath.Join(os.TempDir(), "wimfuse-crash.log")
	}
	return daemonize.Run(exe, childArgs, env, &CrashWriter{fileName: crashLog})
}

// mountAndServe loads the image and performs the FUSE mount, returning
// as soon as the mount is established. The returned io.Closer flushes
// the logging sink and must be closed by the caller only once serving
// has finished — closing it here would silence every log line the
// mount emits for the rest of its life.
func mountAndServe(archivePath, mountPoint string) (*fuse.MountedFileSystem, io.Closer, error) {
	if DefaultLoader == nil {
		return nil, nil, fmt.Errorf("cmd: no archive loader registered (WIM parsing is out of scope for this repository)")
	}

	logger, closer := logging.New(logging.Config{
		Format:  config.LogFormat.Value,
		Debug:   config.Debug,
		LogFile: config.LogFile,
	})

	ctx := context.Background()
	image, err := DefaultLoader.LoadImage(ctx, archivePath, config.ImageIndex)
	if err != nil {
		return nil, closer, fmt.Errorf("cmd: load image: %w", err)
	}

	clk := clock.New()
	tree := buildTreeFromImage(image, clk)
	cat := buildCatalogFromImage(tree, image)

	store, err := staging.NewStore(config.StagingBaseDir, staging.UUIDNameSource{})
	if err != nil {
		return nil, closer, fmt.Errorf("cmd: create staging store: %w", err)
	}

	mc := fs.New(config, clk, logger, tree, cat, store, nopCloseReader{image.Reader}, image.Codec)

	if config.ReadWrite {
		if DefaultOverwriter == nil {
			_ = store.Close()
			return nil, closer, fmt.Errorf("cmd: no archive overwriter registered for a read-write mount")
		}
		queues := unmount.New(os.TempDir(), mountPoint)
		if err := queues.Create(); err != nil {
			_ = store.Close()
			return nil, closer, fmt.Errorf("cmd: create unmount queues: %w", err)
		}
		mc.EnableUnmountHandshake(queues, image, DefaultOverwriter)
	}

	mfs, err := fs.Mount(mc, mountPoint)
	if err != nil {
		_ = store.Close()
		return nil, closer, fmt.Errorf("cmd: mount: %w", err)
	}

	return mfs, closer, nil
}

// registerSIGINTHandler arranges for SIGINT to trigger a clean unmount,
// following the teacher's pattern in cmd/legacy_main.go.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			if err := fuse.Unmount(mountPoint); err != nil {
				fmt.Fprintf(os.Stderr, "wimfuse: failed to unmount in response to SIGINT: %v\n", err)
			}
		}
	}()
}
