package shmif

import "sync"

// primary holds the process-wide primary input/output endpoint slots (§5,
// §9 "Global primary-segment registry"). The runtime itself never reads
// these; they exist purely as a convenience for callers that want a single
// well-known place to stash "the" input or output segment.
var primary struct {
	mu            sync.Mutex
	input, output *Endpoint
}

// SetPrimary registers ep as the primary endpoint for the given role.
// Passing nil clears the slot.
func SetPrimary(input bool, ep *Endpoint) {
	primary.mu.Lock()
	defer primary.mu.Unlock()
	if input {
		primary.input = ep
	} else {
		primary.output = ep
	}
}

// Primary returns the currently registered primary endpoint for the given
// role, or nil if none has been set.
func Primary(input bool) *Endpoint {
	primary.mu.Lock()
	defer primary.mu.Unlock()
	if input {
		return primary.input
	}
	return primary.output
}
