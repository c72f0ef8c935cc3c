package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ProgressMonitor relays progress snapshots from the sampler to subscribers.
// It remembers the latest snapshot per download so a new subscriber sees
// every running download at once instead of waiting for the next tick.
// Sends never block: a full subscriber channel drops the snapshot.
type ProgressMonitor struct {
	in chan Progress

	mu     sync.Mutex
	subs   map[string]chan<- Progress
	latest map[uuid.UUID]Progress
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewProgressMonitor returns a monitor that queues up to buffer snapshots
// between Publish and Run.
func NewProgressMonitor(buffer int) *ProgressMonitor {
	return &ProgressMonitor{
		in:     make(chan Progress, buffer),
		subs:   make(map[string]chan<- Progress),
		latest: make(map[uuid.UUID]Progress),
		done:   make(chan struct{}),
	}
}

// Publish queues p for delivery. It reports false when the monitor is
// closed or its queue is full.
func (pm *ProgressMonitor) Publish(p Progress) bool {
	select {
	case <-pm.done:
		return false
	default:
	}

	select {
	case pm.in <- p:
		return true
	default:
		return false
	}
}

// Run delivers published snapshots until ctx ends or Close is called.
func (pm *ProgressMonitor) Run(ctx context.Context) {
	for {
		select {
		case p := <-pm.in:
			pm.deliver(p)
		case <-pm.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe adds ch under name, replacing any channel already registered
// under it, and replays the latest snapshot of every known download.
// Subscribing to a closed monitor closes ch.
func (pm *ProgressMonitor) Subscribe(name string, ch chan<- Progress) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		close(ch)
		return
	}

	pm.subs[name] = ch

	for _, p := range pm.latest {
		select {
		case ch <- p:
		default:
		}
	}
}

// Unsubscribe removes the channel registered under name. The channel is
// left open.
func (pm *ProgressMonitor) Unsubscribe(name string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	delete(pm.subs, name)
}

// Forget drops the remembered snapshot of id.
func (pm *ProgressMonitor) Forget(id uuid.UUID) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	delete(pm.latest, id)
}

// Close stops Run and closes every subscribed channel. It is safe to call
// more than once.
func (pm *ProgressMonitor) Close() {
	pm.closeOnce.Do(func() {
		close(pm.done)

		pm.mu.Lock()
		defer pm.mu.Unlock()

		pm.closed = true
		for name, ch := range pm.subs {
			close(ch)
			delete(pm.subs, name)
		}
	})
}

func (pm *ProgressMonitor) deliver(p Progress) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return
	}

	pm.latest[p.DownloadID] = p

	for _, ch := range pm.subs {
		select {
		case ch <- p:
		default:
		}
	}
}
