package engine

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// prioritizedDownload is a queued download with its priority.
type prioritizedDownload struct {
	id       uuid.UUID
	priority int
}

// QueueProcessor starts queued downloads, highest priority first, with at
// most maxConcurrent running at once. Equal priorities run in FIFO order.
type QueueProcessor struct {
	sem     *semaphore.Weighted
	startFn func(id uuid.UUID) error
	group   errgroup.Group
	log     zerolog.Logger

	mu      sync.Mutex
	queued  []prioritizedDownload
	active  map[uuid.UUID]struct{}
	requeue map[uuid.UUID]int
}

// NewQueueProcessor creates a new queue processor. startFn blocks for the
// lifetime of the download.
func NewQueueProcessor(maxConcurrent int, startFn func(id uuid.UUID) error) *QueueProcessor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &QueueProcessor{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		startFn: startFn,
		log:     zerolog.Nop(),
		active:  make(map[uuid.UUID]struct{}),
		requeue: make(map[uuid.UUID]int),
	}
}

// SetLogger replaces the no-op logger.
func (q *QueueProcessor) SetLogger(l zerolog.Logger) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.log = l
}

// Enqueue adds a download and starts it if a slot is free. It reports false
// when the download is already queued or running.
func (q *QueueProcessor) Enqueue(id uuid.UUID, priority int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[id]; ok || q.indexOf(id) >= 0 {
		return false
	}

	q.queued = append(q.queued, prioritizedDownload{id: id, priority: priority})
	q.sortQueue()
	q.fillAvailableSlots()

	return true
}

// Requeue is Enqueue for a download whose previous run may still be
// winding down; it is queued again as soon as that run returns.
func (q *QueueProcessor) Requeue(id uuid.UUID, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[id]; ok {
		q.requeue[id] = priority
		return
	}

	if q.indexOf(id) < 0 {
		q.queued = append(q.queued, prioritizedDownload{id: id, priority: priority})
		q.sortQueue()
		q.fillAvailableSlots()
	}
}

// Remove drops a download that has not started yet.
func (q *QueueProcessor) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.requeue, id)

	i := q.indexOf(id)
	if i < 0 {
		return false
	}

	q.queued = append(q.queued[:i], q.queued[i+1:]...)

	return true
}

// IsPending reports whether id is queued or running.
func (q *QueueProcessor) IsPending(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.active[id]

	return ok || q.indexOf(id) >= 0
}

// Len returns the number of queued and running downloads.
func (q *QueueProcessor) Len() (queued, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.queued), len(q.active)
}

// Wait blocks until the queue is drained and returns the first error
// reported by startFn.
func (q *QueueProcessor) Wait() error {
	return q.group.Wait()
}

func (q *QueueProcessor) indexOf(id uuid.UUID) int {
	for i, pd := range q.queued {
		if pd.id == id {
			return i
		}
	}

	return -1
}

// sortQueue sorts the queue by priority (higher first)
func (q *QueueProcessor) sortQueue() {
	sort.SliceStable(q.queued, func(i, j int) bool {
		return q.queued[i].priority > q.queued[j].priority
	})
}

// fillAvailableSlots starts downloads while slots are available. Callers
// hold q.mu.
func (q *QueueProcessor) fillAvailableSlots() {
	for len(q.queued) > 0 && q.sem.TryAcquire(1) {
		pd := q.queued[0]
		q.queued = q.queued[1:]
		q.active[pd.id] = struct{}{}
		log := q.log

		q.group.Go(func() error {
			defer q.complete(pd.id)

			err := q.startFn(pd.id)
			if err != nil {
				log.Warn().Err(err).Str("download", pd.id.String()).Msg("download did not run")
			}

			return err
		})
	}
}

func (q *QueueProcessor) complete(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, id)
	q.sem.Release(1)

	if priority, ok := q.requeue[id]; ok {
		delete(q.requeue, id)
		q.queued = append(q.queued, prioritizedDownload{id: id, priority: priority})
		q.sortQueue()
	}

	q.fillAvailableSlots()
}
