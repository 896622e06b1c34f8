// Package shmif is the client-facing façade: it ties together a mapped
// segment, its event rings, the descriptor channel, and the guard watcher
// into one Endpoint, and implements the dequeue/enqueue/signal/resize state
// machine described for the event rings in event/ and segment/.
package shmif

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"github.com/aleph-shmif/shmif/descriptor"
	"github.com/aleph-shmif/shmif/event"
	"github.com/aleph-shmif/shmif/guard"
	"github.com/aleph-shmif/shmif/internal/possem"
	"github.com/aleph-shmif/shmif/rendezvous"
	"github.com/aleph-shmif/shmif/segment"
)

// Sigmask selects which domain(s) Signal commits and how it blocks.
type Sigmask uint8

const (
	SigVid Sigmask = 1 << iota
	SigAud
	SigBlkNone
	SigBlkOnce
)

// Hook rewrites a signal mask before the commit, letting a caller intercept
// and mutate the bits that will actually be applied (§4.8).
type Hook func(ep *Endpoint) Sigmask

// pendingDescriptor is the single-entry mailbox described in §3: at most
// one descriptor-bearing event is ever outstanding.
type pendingDescriptor struct {
	gotev    bool
	consumed bool
	fd       int
}

// pendingSubsegment stashes a NEWSEGMENT's socket and key until the next
// Acquire call with no explicit key claims them.
type pendingSubsegment struct {
	epipe net.Conn
	key   string
}

// Endpoint is one process's view of a mapped SHMIF segment: the page, the
// event socket, the three semaphores, buffer pointers, and the bits of
// hidden state the dequeue/enqueue state machine needs across calls.
type Endpoint struct {
	Mapping *segment.Mapping
	Conn    *net.UnixConn

	flags  Flags
	alive  atomic.Bool
	paused atomic.Bool
	output bool

	videoHook Hook
	audioHook Hook

	pev          pendingDescriptor
	pseg         pendingSubsegment
	pendingEvent event.Event // event popped at step D, awaiting its fd at step C

	// hint-pending bitmask: bit 0 = buffered displayhint, bit 1 = buffered
	// fonthint, mirroring priv->ph.
	hintPending uint8
	dhBuf       event.Event
	fhBuf       event.Event

	watcher *guard.Watcher
	exitFn  func(code int)

	buffers segment.BufferLayout
	vbufCnt int
	abufCnt int
}

// Connect resolves a rendezvous path (rendezvous.ResolvePath's rules, with
// rendezvousPath as the prefix), performs the handshake, and Acquires
// the resulting key into a new Endpoint (§4.1 + §4.2 combined, mirroring
// arcan_shmif_connect followed immediately by arcan_shmif_acquire).
func Connect(rendezvousPath, connKey string, flags Flags) (*Endpoint, error) {
	var conn net.Conn
	var key string
	var err error

	path, err := rendezvous.ResolvePath(rendezvousPath, "")
	if err != nil {
		return nil, fmt.Errorf("shmif: rendezvous: %w", err)
	}

	if flags.has(ConnectLoop) {
		conn, key, err = rendezvous.ConnectLoop(path, connKey, func(int) bool { return true })
	} else {
		conn, key, err = rendezvous.Connect(path, connKey)
	}
	if err != nil {
		if flags.has(AcquireFatalFail) {
			return nil, fmt.Errorf("shmif: fatal: rendezvous: %w", err)
		}
		return nil, fmt.Errorf("shmif: rendezvous: %w", err)
	}

	ep, err := acquireKey(key, flags, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	ep.Conn = conn.(*net.UnixConn)
	ep.startGuard(flags)
	return ep, nil
}

// AcquireSubsegment claims the pending NEWSEGMENT stashed on parent, the Go
// analogue of arcan_shmif_acquire(parent, NULL, ...). It clears parent's
// stash regardless of outcome, matching consume()'s "don't leak" rule.
func AcquireSubsegment(parent *Endpoint, flags Flags) (*Endpoint, error) {
	if parent.pseg.epipe == nil || parent.pseg.key == "" {
		return nil, errors.New("shmif: no pending sub-segment")
	}
	key := parent.pseg.key
	conn := parent.pseg.epipe
	parent.pseg = pendingSubsegment{}

	ep, err := acquireKey(key, flags, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	ep.Conn = conn.(*net.UnixConn)
	ep.startGuard(flags)
	return ep, nil
}

func acquireKey(key string, flags Flags, exitFn func(code int)) (*Endpoint, error) {
	m, err := segment.Map(key, !flags.has(DontUnlink))
	if err != nil {
		if flags.has(AcquireFatalFail) {
			if exitFn == nil {
				exitFn = func(code int) { panic(fmt.Sprintf("shmif: fatal acquire failure (code %d): %v", code, err)) }
			}
			exitFn(1)
		}
		return nil, fmt.Errorf("shmif: acquire %s: %w", key, err)
	}

	ep := &Endpoint{Mapping: m, exitFn: exitFn, flags: flags}
	ep.alive.Store(true)
	ep.pev.fd = event.NoFD
	ep.fhBuf.IOEvs[0].I = event.NoFD
	m.Page.SetDMS()

	if err := ep.rebindBuffers(); err != nil {
		m.Close()
		return nil, err
	}

	return ep, nil
}

func (ep *Endpoint) startGuard(flags Flags) {
	if flags.has(DisableGuard) {
		return
	}
	sems := []*possem.Sem{ep.Mapping.VSem, ep.Mapping.ASem, ep.Mapping.ESem}
	ep.watcher = guard.New(int(ep.Mapping.Page.Parent), ep.Mapping.Page, sems, ep.exitFn)
	go ep.watcher.Run()
}

func (ep *Endpoint) rebindBuffers() error {
	p := ep.Mapping.Page
	ep.vbufCnt = int(p.VPending)
	ep.abufCnt = int(p.APending)
	if ep.vbufCnt == 0 {
		ep.vbufCnt = 1
	}
	if ep.abufCnt == 0 {
		ep.abufCnt = 1
	}
	p.VPending, p.APending = 0, 0

	layout, err := segment.ComputeBuffers(ep.Mapping.Data(), p.W, p.H, ep.vbufCnt, ep.abufCnt)
	if err != nil {
		return fmt.Errorf("shmif: rebind buffers: %w", err)
	}
	ep.buffers = layout
	return nil
}

// Alive reports whether the endpoint still considers itself connected.
func (ep *Endpoint) Alive() bool { return ep.alive.Load() }

// Paused reports whether inbound PAUSE has suspended normal delivery.
func (ep *Endpoint) Paused() bool { return ep.paused.Load() }

// Buffers returns the currently bound audio/video back-buffer views.
func (ep *Endpoint) Buffers() segment.BufferLayout { return ep.buffers }

// Drop tears the endpoint down: clears the dead-man switch, stops the
// guard, closes the socket and mapping. Synchronous, matching
// arcan_shmif_drop.
func (ep *Endpoint) Drop() error {
	if !ep.alive.Load() {
		return nil
	}
	ep.alive.Store(false)
	ep.Mapping.Page.ClearDMS()

	if ep.watcher != nil {
		ep.watcher.Stop()
	}
	if ep.Conn != nil {
		ep.Conn.Close()
	}
	return ep.Mapping.Close()
}

// killswitchClear reports whether the page's dead-man switch has been
// cleared by either peer or the local guard watcher.
func (ep *Endpoint) killswitchClear() bool {
	return atomic.LoadUint8(&ep.Mapping.Page.DMS) == 0
}

// ErrDead is returned by Dequeue/Enqueue once the endpoint is no longer
// alive, whether from a local Drop, a peer-issued EXIT, or the guard
// watcher tripping the dead-man's switch.
var ErrDead = errors.New("shmif: endpoint not alive")

var errDead = ErrDead

// Dequeue implements the §4.5 state machine. blocking selects whether step
// C/the socket poll and the dms re-check loop suspend; upret is the
// "enqueue waiting to publish while paused" special case that returns
// (false, nil) the instant UNPAUSE is observed instead of delivering it.
//
// Returns (event, delivered, error): delivered=false/err=nil means "no
// event available right now" (non-blocking, empty ring); err is ErrDead
// once the endpoint is dead, or wraps a descriptor-channel failure.
func (ep *Endpoint) Dequeue(blocking, upret bool) (event.Event, bool, error) {
	for {
		if !ep.alive.Load() {
			return event.Event{}, false, errDead
		}

		ring := &ep.Mapping.Page.ChildEVQ
		ks := !ep.killswitchClear()
		noks := false

		// Step A -- deferred hints.
		if !ep.paused.Load() && ep.hintPending != 0 {
			if ep.hintPending&1 != 0 {
				ep.hintPending &^= 1
				return ep.dhBuf, true, nil
			}
			if ep.hintPending&2 != 0 {
				ep.hintPending &^= 2
				ev := ep.fhBuf
				if ev.IOEvs[0].I != event.NoFD {
					ep.pev.consumed = true
					ep.pev.fd = int(ev.IOEvs[0].I)
				}
				return ev, true, nil
			}
		}

		// Step B -- garbage-collect previous descriptor.
		ep.consumePrevious()

		// Step C -- outstanding descriptor wait.
		if ep.pev.gotev {
			fd, err := descriptor.Receive(ep.Conn, blocking)
			if err != nil {
				if errors.Is(err, descriptor.ErrWouldBlock) {
					return event.Event{}, false, nil
				}
				return event.Event{}, false, fmt.Errorf("shmif: descriptor channel: %w", err)
			}
			ep.pev.fd = fd
			return ep.deliverFD(), true, nil
		}

		// Step D -- pop from ring.
		if !ring.Empty() {
			ev := ring.Pop()

			if ep.paused.Load() {
				if upret && ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetUnpause {
					ep.paused.Store(false)
					return event.Event{}, false, nil
				}
				if !ep.pauseFilter(&ev) {
					continue
				}
				if ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetExit {
					noks = true
				}
				return ev, true, boolErr(ks || noks)
			}

			switch {
			case ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetDisplayHint:
				if idx, found := ring.ScanFor(event.CategoryTarget, uint8(event.TargetDisplayHint)); found {
					ring.MergeInto(idx, ev)
					continue
				}
			case ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetPause:
				if !ep.flags.has(ManualPause) {
					ep.paused.Store(true)
					continue
				}
			case ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetUnpause:
				if !ep.flags.has(ManualPause) {
					if upret {
						return event.Event{}, false, nil
					}
					ep.paused.Store(false)
					continue
				}
			case ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetExit:
				ep.alive.Store(false)
				noks = true
			case ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetFontHint:
				if ev.IOEvs[1].I == 1 {
					ep.pev.gotev = true
					ep.pendingEvent = ev
					continue
				}
				ev.IOEvs[0].I = event.NoFD
			case event.IsDescriptorBearing(&ev):
				ep.pev.gotev = true
				ep.pendingEvent = ev
				continue
			}

			return ev, true, boolErr(ks || noks)
		}

		if !ks {
			return event.Event{}, false, errDead
		}
		if blocking {
			continue
		}
		return event.Event{}, false, nil
	}
}

func boolErr(ok bool) error {
	if ok {
		return nil
	}
	return errDead
}

// consumePrevious mirrors consume(): if the last delivered descriptor-
// bearing event was never claimed, close its fd (and any stashed
// sub-segment pipe) before the new dequeue cycle starts.
func (ep *Endpoint) consumePrevious() {
	if !ep.pev.consumed {
		return
	}
	if ep.pev.fd != event.NoFD {
		descriptor.CloseQuiet(ep.pev.fd)
	}
	if ep.pseg.epipe != nil {
		ep.pseg.epipe.Close()
		ep.pseg = pendingSubsegment{}
	}
	ep.pev = pendingDescriptor{fd: event.NoFD}
}

// deliverFD attaches the descriptor now sitting in ep.pev.fd to the event
// that requested it, or -- for NEWSEGMENT -- stashes it as a pending
// sub-segment instead (fd_event).
func (ep *Endpoint) deliverFD() event.Event {
	ev := ep.pendingEvent
	if ev.Category == event.CategoryTarget && ev.TargetKind() == event.TargetNewSegment {
		ep.pseg.epipe = newConnFromFD(ep.pev.fd)
		ep.pseg.key = ev.MessageString()
		ep.pev.fd = event.NoFD
	} else {
		ev.IOEvs[0].I = int32(ep.pev.fd)
	}
	ep.pev.consumed = true
	ep.pendingEvent = event.Event{}
	return ev
}

// pauseFilter implements pause_evh: returns true if ev should be forwarded
// to the caller as-is (only EXIT qualifies); false means it was either
// swallowed into buffered state or dropped outright, and the caller should
// restart the dequeue loop. Per §4.5 Step D, all categories other than
// TARGET are dropped while paused.
func (ep *Endpoint) pauseFilter(ev *event.Event) bool {
	if ev.Category != event.CategoryTarget {
		return false
	}
	switch ev.TargetKind() {
	case event.TargetUnpause:
		ep.paused.Store(false)
		return false
	case event.TargetExit:
		ep.alive.Store(false)
		return true
	case event.TargetDisplayHint:
		event.MergeDisplayHint(ev, &ep.dhBuf)
		ep.dhBuf = *ev
		ep.hintPending |= 1
		return false
	case event.TargetFontHint:
		ep.fhBuf.Category = event.CategoryTarget
		ep.fhBuf.Kind = ev.Kind
		if ev.IOEvs[1].I != 0 {
			if ep.fhBuf.IOEvs[0].I != event.NoFD {
				descriptor.CloseQuiet(int(ep.fhBuf.IOEvs[0].I))
			}
			fd, err := descriptor.Receive(ep.Conn, true)
			if err == nil {
				ep.fhBuf.IOEvs[0].I = int32(fd)
			}
		}
		if ev.IOEvs[2].F > 0 {
			ep.fhBuf.IOEvs[2].F = ev.IOEvs[2].F
		}
		if ev.IOEvs[3].I > -1 {
			ep.fhBuf.IOEvs[3].I = ev.IOEvs[3].I
		}
		ep.hintPending |= 2
		return false
	default:
		return false
	}
}

// newConnFromFD wraps a raw descriptor received over the event socket (a
// NEWSEGMENT's accompanying epipe) as a net.Conn.
func newConnFromFD(fd int) net.Conn {
	f := os.NewFile(uintptr(fd), "shmif-subsegment")
	c, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil
	}
	return c
}
