package shmif

import "github.com/aleph-shmif/shmif/event"

// Enqueue publishes ev on the outbound ring, blocking while the ring is
// full (§4.3). If the endpoint is paused, it first runs a blocking dequeue
// with upret=true so nothing is published while suspended -- mirroring
// arcan_shmif_enqueue's own recursive call into process_events.
func (ep *Endpoint) Enqueue(ev event.Event) (bool, error) {
	p := ep.Mapping.Page
	if p.DMS == 0 || !ep.alive.Load() {
		return false, nil
	}

	if ep.paused.Load() {
		if _, _, err := ep.Dequeue(true, true); err != nil {
			return false, err
		}
	}

	ring := &p.ParentEVQ
	for ring.Full() {
		if ep.Mapping.ESem != nil {
			ep.Mapping.ESem.Wait()
		}
	}
	ring.Push(ev)
	return true, nil
}

// TryEnqueue is the non-blocking counterpart: it returns false immediately
// if the ring is full or the endpoint is paused, instead of waiting.
func (ep *Endpoint) TryEnqueue(ev event.Event) (bool, error) {
	p := ep.Mapping.Page
	if p.DMS == 0 || !ep.alive.Load() {
		return false, nil
	}
	if ep.paused.Load() {
		return false, nil
	}
	if ep.Mapping.Page.ParentEVQ.Full() {
		return false, nil
	}
	return ep.Enqueue(ev)
}
