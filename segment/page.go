// Package segment maps the shared-memory page a SHMIF endpoint speaks
// through, and derives/opens the three semaphores that accompany it (§4.2).
package segment

import (
	"sync/atomic"
	"unsafe"

	"github.com/aleph-shmif/shmif/event"
)

// ABI version stamped into every page; bump on breaking Page/Event layout
// changes.
const (
	VersionMajor uint16 = 0
	VersionMinor uint16 = 16
)

// StartSize is the initial mmap length used before the server's advertised
// SegmentSize is known (§4.2).
const StartSize = 1 << 18 // 256 KiB

// MaxWidth/MaxHeight bound resize negotiation (§4.7, PP_SHMPAGE_MAXW/H).
const (
	MaxWidth  = 8192
	MaxHeight = 8192
)

// VChannels is the number of bytes per video pixel in the shared buffers.
const VChannels = 4

// Page is the fixed prefix of every SHMIF segment, shared between both
// peers. Everything after the Page struct in the mapped region is the
// versioned payload (audio/video backbuffers), laid out by
// ComputeBuffers.
type Page struct {
	Cookie      uint64
	Major       uint16
	Minor       uint16
	DMS         uint8 // dead-man's switch: nonzero while the link is alive
	Resized     uint8 // child requested geometry change, parent acks by clearing
	VReady      uint8
	AReady      uint8
	_pad0       [4]byte

	W, H        uint32
	SegmentSize uint64

	VPending uint32
	APending uint32

	ABufUsed uint32
	ABufSize uint32

	ChildEVQ  event.Ring
	ParentEVQ event.Ring

	Parent int32
	_pad1  [4]byte
}

// Cookie computes the ABI fingerprint described in §6: the offsets of
// Cookie, Resized, AReady, ABufUsed, ChildEVQ.Front, ChildEVQ.Back and
// ParentEVQ.Front are each shifted into a distinct byte position (8, 16,
// 24, 32, 40, 48, 56) and added to sizeof(Event)+sizeof(Page).
func Cookie() uint64 {
	base := uint64(unsafe.Sizeof(event.Event{})) + uint64(unsafe.Sizeof(Page{}))
	base += uint64(unsafe.Offsetof(Page{}.Cookie)) << 8
	base += uint64(unsafe.Offsetof(Page{}.Resized)) << 16
	base += uint64(unsafe.Offsetof(Page{}.AReady)) << 24
	base += uint64(unsafe.Offsetof(Page{}.ABufUsed)) << 32
	base += uint64(unsafe.Offsetof(Page{}.ChildEVQ)+unsafe.Offsetof(event.Ring{}.Front)) << 40
	base += uint64(unsafe.Offsetof(Page{}.ChildEVQ)+unsafe.Offsetof(event.Ring{}.Back)) << 48
	base += uint64(unsafe.Offsetof(Page{}.ParentEVQ)+unsafe.Offsetof(event.Ring{}.Front)) << 56
	return base
}

// ClearDMS zeroes the dead-man's switch, signalling to the peer mapping the
// same page that this endpoint is gone. It satisfies guard.DMS.
func (p *Page) ClearDMS() { atomic.StoreUint8(&p.DMS, 0) }

// SetDMS raises the dead-man's switch; called once right after a
// successful map, mirroring guard_thread's *(gstr->guard.dms) = true before
// entering its poll loop.
func (p *Page) SetDMS() { atomic.StoreUint8(&p.DMS, 1) }

// pageFromBytes reinterprets the head of a mapped region as a *Page. The
// caller owns keeping data alive for as long as the returned pointer is in
// use -- it aliases data's backing array.
func pageFromBytes(data []byte) *Page {
	return (*Page)(unsafe.Pointer(&data[0]))
}
