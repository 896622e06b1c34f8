package shmif

// Flags configures how Connect/Acquire set up an endpoint. It mirrors the
// ARCAN_FLAGS bitmask, typed here instead of left as opaque ints.
type Flags uint32

const (
	// ConnectLoop retries rendezvous connection on failure instead of
	// failing fast, backing off 2^min(attempt,4) seconds between tries.
	ConnectLoop Flags = 1 << iota
	// AcquireFatalFail terminates the process if segment acquisition
	// fails, via the configured exit function.
	AcquireFatalFail
	// DisableGuard skips spawning the background guard watcher -- only
	// sensible for short-lived test harnesses.
	DisableGuard
	// DontUnlink keeps the three semaphore names registered in the
	// filesystem/namespace after opening instead of unlinking them.
	DontUnlink
	// ManualPause disables automatic PAUSE/UNPAUSE handling in the
	// dequeue state machine; PAUSE and UNPAUSE are delivered to the
	// caller like any other TARGET event instead of being swallowed.
	ManualPause
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }
