package pipeline

import (
	"sync"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/metrics"
)

// Dispatcher fans accepted frames out to the writer, state and alert
// workers. A full channel drops the frame for that consumer only.
type Dispatcher struct {
	FrameChan chan *domain.RawFrame
	StateChan chan *domain.RawFrame
	AlertChan chan *domain.RawFrame

	mu      sync.RWMutex
	closed  bool
	metrics *metrics.Metrics
}

func NewDispatcher(frameSize, stateSize, alertSize int, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		FrameChan: make(chan *domain.RawFrame, frameSize),
		StateChan: make(chan *domain.RawFrame, stateSize),
		AlertChan: make(chan *domain.RawFrame, alertSize),
		metrics:   m,
	}
}

// Dispatch hands f to every consumer. After Close it only counts the drop.
func (d *Dispatcher) Dispatch(f *domain.RawFrame) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	d.metrics.FrameReceived(1)
	if d.closed {
		d.metrics.Dropped("closed")
		return
	}

	select {
	case d.FrameChan <- f:
	default:
		d.metrics.Dropped("frame")
	}

	select {
	case d.StateChan <- f:
	default:
		d.metrics.Dropped("state")
	}

	select {
	case d.AlertChan <- f:
	default:
		d.metrics.Dropped("alert")
	}
}

// Close stops intake; workers drain what is buffered and exit. It is safe
// to call more than once and concurrently with Dispatch.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.FrameChan)
	close(d.StateChan)
	close(d.AlertChan)
}
