package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type blockingStarter struct {
	startCh chan uuid.UUID

	mu      sync.Mutex
	signals map[uuid.UUID]chan struct{}
}

func newBlockingStarter() *blockingStarter {
	return &blockingStarter{
		startCh: make(chan uuid.UUID, 10),
		signals: make(map[uuid.UUID]chan struct{}),
	}
}

func (b *blockingStarter) start(id uuid.UUID) error {
	done := make(chan struct{})

	b.mu.Lock()
	b.signals[id] = done
	b.mu.Unlock()

	b.startCh <- id
	<-done

	return nil
}

func (b *blockingStarter) finish(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.signals[id]; ok {
		close(ch)
		delete(b.signals, id)
	}
}

func (b *blockingStarter) finishAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.signals {
		close(ch)
		delete(b.signals, id)
	}
}

func (b *blockingStarter) expectStart(t *testing.T, want uuid.UUID) {
	t.Helper()
	select {
	case got := <-b.startCh:
		if got != want {
			t.Fatalf("Expected %v to start, got %v", want, got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("%v didn't start in time", want)
	}
}

func (b *blockingStarter) expectNoStart(t *testing.T) {
	t.Helper()
	select {
	case id := <-b.startCh:
		t.Fatalf("Unexpected download started: %v", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueProcessor_PriorityAndBlocking(t *testing.T) {
	b := newBlockingStarter()
	qp := NewQueueProcessor(1, b.start)

	idLow := uuid.New()
	qp.Enqueue(idLow, 1)
	b.expectStart(t, idLow)

	idHigh := uuid.New()
	qp.Enqueue(idHigh, 2)
	b.expectNoStart(t)

	b.finish(idLow)
	b.expectStart(t, idHigh)

	b.finishAll()
	if err := qp.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestQueueProcessor_MultipleConcurrent(t *testing.T) {
	b := newBlockingStarter()
	qp := NewQueueProcessor(2, b.start)

	first, second := uuid.New(), uuid.New()
	qp.Enqueue(first, 0)
	b.expectStart(t, first)
	qp.Enqueue(second, 0)
	b.expectStart(t, second)

	idLow, idMed, idHigh := uuid.New(), uuid.New(), uuid.New()
	qp.Enqueue(idLow, 1)
	qp.Enqueue(idHigh, 3)
	qp.Enqueue(idMed, 2)
	b.expectNoStart(t)

	b.finish(first)
	b.expectStart(t, idHigh)

	b.finish(second)
	b.expectStart(t, idMed)
	b.expectNoStart(t)

	b.finish(idHigh)
	b.expectStart(t, idLow)

	b.finishAll()
	if err := qp.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestQueueProcessor_EqualPriorityIsFIFO(t *testing.T) {
	b := newBlockingStarter()
	qp := NewQueueProcessor(1, b.start)

	first, second, third := uuid.New(), uuid.New(), uuid.New()
	qp.Enqueue(first, 0)
	b.expectStart(t, first)

	qp.Enqueue(second, 0)
	qp.Enqueue(third, 0)

	b.finish(first)
	b.expectStart(t, second)
	b.finish(second)
	b.expectStart(t, third)
	b.finishAll()
}

func TestQueueProcessor_DuplicateAndRemove(t *testing.T) {
	b := newBlockingStarter()
	qp := NewQueueProcessor(1, b.start)

	running, waiting := uuid.New(), uuid.New()
	if !qp.Enqueue(running, 0) {
		t.Fatal("Enqueue() = false for a new download")
	}
	b.expectStart(t, running)

	if qp.Enqueue(running, 0) {
		t.Error("Enqueue() accepted a running download")
	}

	qp.Enqueue(waiting, 0)
	if !qp.IsPending(waiting) {
		t.Error("IsPending() = false for a queued download")
	}
	if queued, active := qp.Len(); queued != 1 || active != 1 {
		t.Errorf("Len() = %d, %d; want 1, 1", queued, active)
	}

	if !qp.Remove(waiting) {
		t.Error("Remove() = false for a queued download")
	}
	if qp.Remove(running) {
		t.Error("Remove() = true for a running download")
	}

	b.finish(running)
	b.expectNoStart(t)

	if err := qp.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if qp.IsPending(running) {
		t.Error("IsPending() = true after completion")
	}
}

func TestQueueProcessor_WaitReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	qp := NewQueueProcessor(2, func(uuid.UUID) error { return boom })

	qp.Enqueue(uuid.New(), 0)
	qp.Enqueue(uuid.New(), 0)

	if err := qp.Wait(); !errors.Is(err, boom) {
		t.Errorf("Wait() error = %v, want boom", err)
	}
}

func TestQueueProcessor_RequeueAfterActiveRun(t *testing.T) {
	b := newBlockingStarter()
	qp := NewQueueProcessor(1, b.start)

	id := uuid.New()
	qp.Enqueue(id, 0)
	b.expectStart(t, id)

	qp.Requeue(id, 0)
	b.expectNoStart(t)

	b.finish(id)
	b.expectStart(t, id)

	b.finishAll()
	if err := qp.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}
