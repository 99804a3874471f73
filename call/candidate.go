package call

import (
	"context"
	"sync"
	"time"

	"github.com/webrtc-peercall/peercall/call/transport"
	"github.com/webrtc-peercall/peercall/call/wire"
)

// candidateQueueDelay returns the trickle batching delay for a
// direction: 500ms for an inbound call, 2000ms for an outbound one.
func candidateQueueDelay(dir Direction) time.Duration {
	if dir == Inbound {
		return 500 * time.Millisecond
	}
	return 2000 * time.Millisecond
}

// candidateQueue batches outbound local ICE candidates behind a
// trickle delay. It owns its own mutex rather than relying on the
// PeerCall's, because the send callback performs signalling I/O and
// must not be made while the call holds its state lock. direction()
// and suppressed() lock the call's own mutex in turn, so every method
// below is careful to call them with q.mu released — calling back into
// the call's lock while holding q.mu would invert the lock order
// against terminateLocked, which holds the call's lock and calls
// Discard.
type candidateQueue struct {
	mu      sync.Mutex
	pending []wire.Candidate
	timer   transport.TimeoutHandle

	timeouts   transport.TimeoutCreator
	direction  func() Direction
	suppressed func() bool
	send       func(ctx context.Context, candidates []wire.Candidate) error
	onFailure  func(err error)
}

func newCandidateQueue(
	timeouts transport.TimeoutCreator,
	direction func() Direction,
	suppressed func() bool,
	send func(ctx context.Context, candidates []wire.Candidate) error,
	onFailure func(err error),
) *candidateQueue {
	return &candidateQueue{
		timeouts:   timeouts,
		direction:  direction,
		suppressed: suppressed,
		send:       send,
		onFailure:  onFailure,
	}
}

// Enqueue appends a freshly-emitted local candidate and arms the batch
// timer if one isn't already running and sending isn't suppressed.
func (q *candidateQueue) Enqueue(ctx context.Context, c wire.Candidate) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	hasTimer := q.timer != nil
	q.mu.Unlock()

	if hasTimer || q.suppressed() {
		return
	}
	q.arm(ctx)
}

// Resume is called whenever the call leaves Ringing; if candidates
// piled up while suppressed and no timer is running, it arms one.
func (q *candidateQueue) Resume(ctx context.Context) {
	q.mu.Lock()
	hasWork := len(q.pending) > 0
	armed := q.timer != nil
	q.mu.Unlock()

	if hasWork && !armed {
		q.arm(ctx)
	}
}

func (q *candidateQueue) arm(ctx context.Context) {
	q.mu.Lock()
	if q.timer != nil {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	delay := candidateQueueDelay(q.direction())
	handle := q.timeouts.CreateTimeout(delay)

	q.mu.Lock()
	if q.timer != nil {
		// Lost the race to another arm() call; the handle just created
		// is unneeded.
		q.mu.Unlock()
		handle.Abort()
		return
	}
	q.timer = handle
	q.mu.Unlock()

	go func() {
		select {
		case <-handle.Elapsed():
			q.flush(ctx)
		case <-ctx.Done():
		}
	}()
}

func (q *candidateQueue) flush(ctx context.Context) {
	q.mu.Lock()
	q.timer = nil
	q.mu.Unlock()

	if q.suppressed() {
		return
	}

	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := q.send(ctx, batch); err != nil {
		q.onFailure(err)
		return
	}

	// Tail recursion: re-check for candidates that arrived during the
	// send and, if any, batch them behind another trickle delay.
	q.mu.Lock()
	more := len(q.pending) > 0
	q.mu.Unlock()
	if more {
		q.arm(ctx)
	}
}

// Discard drops every queued candidate and cancels the batch timer.
// Used when a fresh local description is generated: the candidates
// gathered so far are already contained in the new SDP.
func (q *candidateQueue) Discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	if q.timer != nil {
		q.timer.Abort()
		q.timer = nil
	}
}
