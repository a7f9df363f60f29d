package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/wimfuse/wimfuse/internal/unmount"
)

var (
	unmountCommit  bool
	unmountDiscard bool
)

var unmountCmd = &cobra.Command{
	Use:   "unmount <mountpoint>",
	Short: "Unmount a wimfuse mount, optionally committing staged changes back to the archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnmount,
}

func init() {
	unmountCmd.Flags().BoolVar(&unmountCommit, "commit", false,
		"Commit staged changes back to the archive before finishing the unmount.")
	unmountCmd.Flags().BoolVar(&unmountDiscard, "discard", false,
		"Discard staged changes (default behavior; included for symmetry with --commit).")
}

func runUnmount(cmd *cobra.Command, args []string) error {
	mountPoint := args[0]
	if unmountCommit && unmountDiscard {
		return fmt.Errorf("cmd: --commit and --discard are mutually exclusive")
	}

	if err := unmountSyscall(mountPoint); err != nil {
		return fmt.Errorf("cmd: unmount %s: %w", mountPoint, err)
	}

	queues := unmount.New(os.TempDir(), mountPoint)
	if err := unmount.SendRequest(queues.ToDaemon, unmount.Request{
		Commit:         unmountCommit,
		CheckIntegrity: config.CheckIntegrityOnCommit,
	}); err != nil {
		return fmt.Errorf("cmd: send unmount request: %w", err)
	}

	status, err := unmount.AwaitStatus(queues.ToDriver, unmount.DriverWaitTimeout)
	if err != nil {
		return fmt.Errorf("cmd: await daemon status: %w", err)
	}
	if status != unmount.StatusSuccess {
		return fmt.Errorf("cmd: daemon reported commit failure (status %d)", status)
	}
	return nil
}

// unmountSyscall invokes the platform unmount command, mirroring the
// teacher's approach of shelling out to fusermount rather than calling
// the unmount(2) syscall directly (unprivileged FUSE unmounts require
// the setuid helper on Linux).
func unmountSyscall(mountPoint string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("fusermount", "-u", mountPoint)
	default:
		cmd = exec.Command("umount", mountPoint)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
