package shmif

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/aleph-shmif/shmif/segment"
)

// Resize negotiates a geometry/buffer-count change with the server (§4.7).
// Passing a negative vidc or audc keeps the current count for that domain.
// Width/height are floored to 1. Returns false with no error if the
// endpoint or its peer is dead, before or during the negotiation; returns
// false with an error if the geometry exceeds MaxWidth/MaxHeight or the
// remap or buffer rebind fails.
func (ep *Endpoint) Resize(width, height uint32, vidc, audc int) (bool, error) {
	p := ep.Mapping.Page
	if !ep.alive.Load() || atomic.LoadUint8(&p.DMS) == 0 {
		return false, nil
	}
	if width > segment.MaxWidth || height > segment.MaxHeight {
		return false, fmt.Errorf("shmif: resize %dx%d exceeds platform maxima", width, height)
	}

	// wait out any frame still in flight before publishing new geometry.
	for atomic.LoadUint8(&p.VReady) != 0 && atomic.LoadUint8(&p.DMS) != 0 {
		if ep.Mapping.VSem != nil {
			ep.Mapping.VSem.Wait()
		}
	}

	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if vidc < 0 {
		vidc = ep.vbufCnt
	}
	if audc < 0 {
		audc = ep.abufCnt
	}

	if width == p.W && height == p.H && vidc == ep.vbufCnt && audc == ep.abufCnt {
		return true, nil
	}

	p.W, p.H = width, height
	p.APending, p.VPending = uint32(audc), uint32(vidc)
	atomic.StoreUint8(&p.Resized, 1)

	if ep.Mapping.VSem != nil {
		ep.Mapping.VSem.Wait()
	}

	for atomic.LoadUint8(&p.Resized) == 1 && atomic.LoadUint8(&p.DMS) != 0 {
		runtime.Gosched()
	}

	if atomic.LoadUint8(&p.DMS) == 0 {
		return false, nil
	}

	if grown := p.SegmentSize; grown != 0 && int(grown) != ep.Mapping.Size {
		if ep.watcher != nil {
			ep.watcher.Synch.Lock()
		}
		if err := ep.Mapping.Remap(int(grown)); err != nil {
			if ep.watcher != nil {
				ep.watcher.Synch.Unlock()
			}
			return false, fmt.Errorf("shmif: resize remap: %w", err)
		}
		if ep.watcher != nil {
			ep.watcher.DMS = ep.Mapping.Page
			ep.watcher.Synch.Unlock()
		}
	}

	if err := ep.rebindBuffers(); err != nil {
		return false, err
	}
	return true, nil
}
