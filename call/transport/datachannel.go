package transport

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/datachannel"
	"github.com/pion/webrtc/v3"
)

// DataChannelConn wraps a detached pion data channel as a net.Conn.
// Adapted from the teacher's datachannel-conn.go: the engine itself
// only needs Label()/Close() (see PionDataChannel), but whatever
// application uses the data channel the engine opens per
// PeerConnection.CreateDataChannel wants a plain ReadWriteCloser, which
// is what this type provides once the channel is open.
type DataChannelConn struct {
	*datachannel.DataChannel

	r bufio.Reader

	wMu             sync.Mutex
	wBuffMax        uint64
	wBuffLow        uint64
	wBuffWaiter     int32
	wBuffWaiterChan chan struct{}
	wDeadline       *deadlineExec
}

var _ net.Conn = &DataChannelConn{}

type dataChannelAddr struct{ label string }

func (a dataChannelAddr) Network() string { return "sctp" }
func (a dataChannelAddr) String() string  { return a.label }

// OpenDataChannelConn waits for wdc to open (or fails/closes first) and
// returns it detached and wrapped as a net.Conn.
func OpenDataChannelConn(ctx context.Context, wdc *webrtc.DataChannel) (*DataChannelConn, error) {
	dc, err := detachDataChannel(ctx, wdc)
	if err != nil {
		return nil, fmt.Errorf("detach data channel failed: %w", err)
	}

	conn := &DataChannelConn{
		DataChannel:     dc,
		r:               *bufio.NewReaderSize(dc, math.MaxUint16),
		wBuffMax:        1024 * 1024,
		wBuffLow:        512 * 1024,
		wBuffWaiterChan: make(chan struct{}),
		wDeadline:       newDeadlineExec(),
	}

	conn.SetBufferedAmountLowThreshold(conn.wBuffLow)
	conn.OnBufferedAmountLow(func() {
		for atomic.LoadInt32(&conn.wBuffWaiter) > 0 {
			conn.wBuffWaiterChan <- struct{}{}
			atomic.AddInt32(&conn.wBuffWaiter, -1)
		}
	})

	return conn, nil
}

func detachDataChannel(ctx context.Context, wdc *webrtc.DataChannel) (*datachannel.DataChannel, error) {
	if wdc.ReadyState() != webrtc.DataChannelStateOpen {
		errc := make(chan error, 1)
		once := sync.Once{}
		wdc.OnOpen(func() { once.Do(func() { errc <- nil }) })
		wdc.OnError(func(err error) { once.Do(func() { errc <- err }) })
		wdc.OnClose(func() { once.Do(func() { errc <- fmt.Errorf("closed before opened") }) })

		select {
		case err := <-errc:
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			wdc.Close()
			return nil, ctx.Err()
		}
	}

	rwc, err := wdc.Detach()
	if err != nil {
		return nil, err
	}
	dc, ok := rwc.(*datachannel.DataChannel)
	if !ok {
		return nil, fmt.Errorf("unexpected data channel concrete type: %T", rwc)
	}
	return dc, nil
}

func (c *DataChannelConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}

func (c *DataChannelConn) Write(b []byte) (n int, err error) {
	execErr := c.wDeadline.run(func() {
		c.wMu.Lock()
		defer c.wMu.Unlock()

		if c.BufferedAmount() > c.wBuffMax {
			atomic.AddInt32(&c.wBuffWaiter, 1)
			<-c.wBuffWaiterChan
		}
		n, err = c.DataChannel.Write(b)
	})
	if execErr != nil {
		return n, execErr
	}
	return n, err
}

func (c *DataChannelConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// SetWriteDeadline is implemented here rather than promoted from the
// embedded *datachannel.DataChannel, which has none: an SCTP stream has
// no native write deadline, only the read deadline pion exposes. Write
// runs through deadlineExec so a pending write (most likely blocked on
// backpressure, see wBuffWaiterChan above) unblocks once the deadline
// passes.
func (c *DataChannelConn) SetWriteDeadline(t time.Time) error {
	return c.wDeadline.setDeadline(t)
}

func (c *DataChannelConn) LocalAddr() net.Addr  { return dataChannelAddr{label: "local"} }
func (c *DataChannelConn) RemoteAddr() net.Addr { return dataChannelAddr{label: "remote"} }

// deadlineExec runs a function, returning early with the current
// deadline's error if it elapses before the function finishes. Adapted
// from the teacher's contextExec in datachannel-conn.go.
type deadlineExec struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func newDeadlineExec() *deadlineExec {
	return &deadlineExec{ctx: context.Background(), cancel: func() {}}
}

func (d *deadlineExec) setDeadline(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel()
	if t.IsZero() {
		d.ctx, d.cancel = context.Background(), func() {}
		return nil
	}
	d.ctx, d.cancel = context.WithDeadline(context.Background(), t)
	return nil
}

func (d *deadlineExec) run(fn func()) error {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
