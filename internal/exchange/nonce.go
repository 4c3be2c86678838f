package exchange

import (
	"sync/atomic"
	"time"
)

// Nonce is an adapter-owned replay counter. It starts at the UNIX time in
// seconds when the adapter is built and advances by one per authenticated
// call; it never goes backwards while the process runs.
//
// An adapter is driven by a single goroutine, so the atomic only keeps the
// race detector quiet; it does not make concurrent ordering meaningful.
type Nonce struct {
	value atomic.Int64
}

// NewNonce seeds a counter from the wall clock.
func NewNonce() *Nonce {
	return newNonceAt(time.Now())
}

func newNonceAt(now time.Time) *Nonce {
	n := &Nonce{}
	n.value.Store(now.Unix())
	return n
}

// Next returns the current value and advances the counter.
func (n *Nonce) Next() int64 {
	return n.value.Add(1) - 1
}

// Peek returns the value the next call will use.
func (n *Nonce) Peek() int64 {
	return n.value.Load()
}
