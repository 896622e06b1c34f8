// Package guard runs the background watcher thread that polls for a dead
// parent process, clears the dead-man's switch, and kicks every blocked
// semaphore loose so the calling endpoint unwinds instead of hanging on a
// peer that will never show up again (§4.6).
package guard

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aleph-shmif/shmif/internal/possem"
)

// PollInterval is how often the watcher checks parent liveness, matching
// the upstream guard thread's sleep(5) cadence. It is a var rather than a
// const so a caller can tune it once at startup before the first Connect.
var PollInterval = 5 * time.Second

// GraceAfterTrip is how long the watcher waits after tripping the DMS and
// posting the semaphore set before invoking ExitFunc, giving the main
// goroutine a window to notice and shut down on its own.
const GraceAfterTrip = 5 * time.Second

// DMS is the subset of a mapped page the watcher needs: a byte it clears to
// signal teardown. Segment.Page satisfies this with its DMS field address.
type DMS interface {
	ClearDMS()
}

// Watcher polls a parent pid for liveness and, on its death, clears the
// dead-man's switch and posts every semaphore in Semset so any goroutine
// blocked in Wait() is released. Resize (§4.7) shares Synch with the
// watcher since Resize remaps the page and swaps DMS for the new one, which
// must not happen while trip is clearing it.
type Watcher struct {
	Parent  int
	DMS     DMS
	Semset  []*possem.Sem
	ExitFunc func(code int)

	Synch sync.Mutex

	stop chan struct{}
	once sync.Once
}

// New constructs a Watcher. semset may contain nil entries (a segment with
// fewer than three semaphores mid-setup); trip skips them when posting.
func New(parent int, dms DMS, semset []*possem.Sem, exitFunc func(code int)) *Watcher {
	return &Watcher{
		Parent:   parent,
		DMS:      dms,
		Semset:   semset,
		ExitFunc: exitFunc,
		stop:     make(chan struct{}),
	}
}

// Run starts the poll loop and blocks until Stop is called or the parent is
// found dead, mirroring spawn_guardthread's detached pthread -- callers run
// it in a goroutine.
func (w *Watcher) Run() {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if parentAlive(w.Parent) {
				continue
			}
			w.trip()
			return
		}
	}
}

// trip runs the sequence the original guard_thread follows once
// parent_alive returns false: lock, clear the DMS, post every semaphore,
// unlock, wait out the grace period, then call the exit function.
func (w *Watcher) trip() {
	w.Synch.Lock()
	if w.DMS != nil {
		w.DMS.ClearDMS()
	}
	for _, s := range w.Semset {
		if s != nil {
			s.Post()
		}
	}
	w.Synch.Unlock()

	time.Sleep(GraceAfterTrip)

	if w.ExitFunc != nil {
		w.ExitFunc(1)
	}
}

// Stop deactivates the watcher before its next poll tick, the Go analogue
// of clearing guard.active under no concurrent writer.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
}

// parentAlive follows the original's documented caveat: this only detects
// the common orphaned-by-init case, not a double-forked hijack target. A
// signal-0 kill probes existence without actually delivering a signal.
func parentAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
