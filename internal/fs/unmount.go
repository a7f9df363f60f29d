package fs

import (
	"context"

	"github.com/wimfuse/wimfuse/internal/commit"
	"github.com/wimfuse/wimfuse/internal/unmount"
	"github.com/wimfuse/wimfuse/internal/wimfile"
)

// EnableUnmountHandshake wires the two-process commit/abort protocol
// (SPEC_FULL.md §4.7) into Destroy. Only read-write mounts call this;
// a read-only mount has nothing to commit and Destroy just tears down
// the staging store.
func (mc *MountContext) EnableUnmountHandshake(queues unmount.Queues, image *wimfile.Image, overwriter wimfile.Overwriter) {
	mc.handshakeEnabled = true
	mc.queues = queues
	mc.image = image
	mc.overwriter = overwriter
}

// runUnmountHandshake is the daemon side of §4.7: wait for the driver's
// commit/discard request, run the commit pipeline if asked, always tear
// down the staging store, then report status back and remove the queues.
// If no request arrives within the timeout, it tears down the staging
// store and returns without sending a status reply and without removing
// the queues.
func (mc *MountContext) runUnmountHandshake() {
	req, err := unmount.AwaitRequest(mc.queues.ToDaemon, unmount.DaemonWaitTimeout)
	if err != nil {
		mc.Logger.Error("unmount: no request from driver within timeout, discarding", "error", err)
		mc.tearDownStaging()
		return
	}

	status := unmount.StatusSuccess
	if req.Commit {
		pipeline := &commit.Pipeline{
			Tree:       mc.Tree,
			Catalog:    mc.Catalog,
			Image:      mc.image,
			Overwriter: mc.overwriter,
		}
		if err := pipeline.Run(context.Background(), req.CheckIntegrity); err != nil {
			mc.Logger.Error("unmount: commit failed", "error", err)
			status = 1
		}
	}

	mc.tearDownStaging()

	if err := unmount.SendStatus(mc.queues.ToDriver, status); err != nil {
		mc.Logger.Error("unmount: failed to send status reply", "error", err)
	}
	if err := mc.queues.Remove(); err != nil {
		mc.Logger.Error("unmount: failed to remove queue FIFOs", "error", err)
	}
}

func (mc *MountContext) tearDownStaging() {
	if err := mc.Staging.Close(); err != nil {
		mc.Logger.Error("unmount: failed to remove staging directory", "error", err)
	}
}
