package transport

import (
	"sync"
	"time"
)

// RealTimeoutCreator backs TimeoutCreator with the wall clock, via
// time.AfterFunc the same way the teacher schedules work relative to a
// context deadline in datachannel-conn.go's contextExec.
type RealTimeoutCreator struct{}

func NewRealTimeoutCreator() RealTimeoutCreator { return RealTimeoutCreator{} }

func (RealTimeoutCreator) CreateTimeout(d time.Duration) TimeoutHandle {
	h := &realTimeoutHandle{elapsed: make(chan struct{})}
	h.timer = time.AfterFunc(d, func() {
		h.once.Do(func() { close(h.elapsed) })
	})
	return h
}

type realTimeoutHandle struct {
	timer   *time.Timer
	elapsed chan struct{}
	once    sync.Once
}

func (h *realTimeoutHandle) Elapsed() <-chan struct{} { return h.elapsed }

func (h *realTimeoutHandle) Abort() {
	h.timer.Stop()
}
