package shmif

import (
	"fmt"

	"github.com/aleph-shmif/shmif/descriptor"
	"github.com/aleph-shmif/shmif/event"
)

// SignalHandle pushes handle as ancillary data over the event socket, then
// enqueues an EXTERNAL/BUFFERSTREAM event describing it (pitch/format), and
// finally commits via Signal(mask) -- a single call that combines a
// descriptor transfer with its announcing event, grounded on
// arcan_shmif_signalhandle.
func (ep *Endpoint) SignalHandle(mask Sigmask, handle int, stride int, format int) (uint, error) {
	if err := descriptor.Send(ep.Conn, handle); err != nil {
		return 0, fmt.Errorf("shmif: signal handle: %w", err)
	}

	ev := event.Event{Category: event.CategoryExternal, Kind: uint8(event.ExternalBufferStream)}
	ev.IOEvs[0].I = int32(stride)
	ev.IOEvs[1].I = int32(format)
	if _, err := ep.Enqueue(ev); err != nil {
		return 0, fmt.Errorf("shmif: signal handle: enqueue: %w", err)
	}

	return uint(ep.Signal(mask).Milliseconds()), nil
}

// SignalHook swaps in hook as the pre-commit callback for the domain named
// by mask (SigVid or SigAud exactly; a combined mask is a no-op, matching
// arcan_shmif_signalhook's silent ignore of SIGVID|SIGAUD) and returns the
// previously registered hook, or nil.
func (ep *Endpoint) SignalHook(mask Sigmask, hook Hook) Hook {
	switch mask {
	case SigVid:
		prev := ep.videoHook
		ep.videoHook = hook
		return prev
	case SigAud:
		prev := ep.audioHook
		ep.audioHook = hook
		return prev
	default:
		return nil
	}
}
