package guard

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aleph-shmif/shmif/internal/possem"
)

type fakeDMS struct {
	cleared atomic.Bool
}

func (f *fakeDMS) ClearDMS() { f.cleared.Store(true) }

func TestParentAliveSelf(t *testing.T) {
	if !parentAlive(os.Getpid()) {
		t.Fatal("parentAlive(self) should be true")
	}
}

func TestParentAliveDeadPid(t *testing.T) {
	// PID 1 is always init/systemd and alive in any real environment this
	// runs in, so probe an implausibly large pid instead: kill(pid, 0)
	// returns ESRCH for a pid that doesn't exist.
	if parentAlive(1 << 30) {
		t.Fatal("parentAlive(implausible pid) should be false")
	}
}

func TestWatcherTripClearsDMS(t *testing.T) {
	dms := &fakeDMS{}
	w := New(1<<30, dms, nil, nil)
	w.trip()

	if !dms.cleared.Load() {
		t.Fatal("trip() did not clear the DMS")
	}
}

func TestWatcherStopPreventsTrip(t *testing.T) {
	dms := &fakeDMS{}
	w := New(os.Getpid(), dms, nil, nil)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	w.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if dms.cleared.Load() {
		t.Fatal("DMS should not have been cleared when parent stayed alive")
	}
}

func TestWatcherSkipsNilSemaphores(t *testing.T) {
	var sems []*possem.Sem
	sems = append(sems, nil, nil, nil)

	dms := &fakeDMS{}
	w := New(1<<30, dms, sems, nil)
	w.trip() // must not panic dereferencing a nil *possem.Sem
}
