package busclient

import "sync"

// pendingCall is the slot a waiting caller blocks on. reply carries the
// raw reply body exactly once; the channel is always buffered by one so
// the consumer goroutine never blocks handing off a late, already-
// cancelled reply.
type pendingCall struct {
	reply chan []byte
}

// correlationTable is the shared structure spec §4.4/§5 calls out as
// needing mutex protection: register before publish, remove on either a
// correlated reply or a cancellation, whichever comes first.
type correlationTable struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
}

func newCorrelationTable() *correlationTable {
	return &correlationTable{pending: make(map[string]*pendingCall)}
}

func (t *correlationTable) register(id string) *pendingCall {
	call := &pendingCall{reply: make(chan []byte, 1)}
	t.mu.Lock()
	t.pending[id] = call
	t.mu.Unlock()
	return call
}

// deliver hands body to the waiter registered under id, if any is still
// pending. A reply whose correlation id was already removed (cancelled,
// or a duplicate delivery) is dropped here.
func (t *correlationTable) deliver(id string, body []byte) {
	t.mu.Lock()
	call, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ok {
		call.reply <- body
	}
}

// remove drops id from the table unconditionally; used on cancellation
// so a subsequent late reply finds no waiter and is silently discarded.
func (t *correlationTable) remove(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *correlationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
