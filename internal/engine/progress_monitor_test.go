package engine_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/mmsdl/internal/engine"
	"github.com/NamanBalaji/mmsdl/internal/status"
)

func fixedUUID(s string) uuid.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func snapshot(id string, packets int64) engine.Progress {
	return engine.Progress{
		DownloadID: fixedUUID(id),
		Title:      "news",
		Status:     status.Downloading,
		Percent:    int(packets * 100 / 1000),
		Packets:    packets,
		Total:      1000,
		Speed:      float64(packets) / 2,
		Timestamp:  time.Unix(0, 0),
	}
}

func runMonitor(t *testing.T, buffer int) *engine.ProgressMonitor {
	t.Helper()

	pm := engine.NewProgressMonitor(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	go func() {
		pm.Run(ctx)
		close(stopped)
	}()

	t.Cleanup(func() {
		cancel()
		<-stopped
		pm.Close()
	})

	return pm
}

func receive(t *testing.T, ch <-chan engine.Progress) engine.Progress {
	t.Helper()

	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for progress")
		return engine.Progress{}
	}
}

func expectNothing(t *testing.T, ch <-chan engine.Progress) {
	t.Helper()

	select {
	case p := <-ch:
		t.Errorf("unexpected progress %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProgressMonitorDelivers(t *testing.T) {
	pm := runMonitor(t, 10)

	l1 := make(chan engine.Progress, 4)
	l2 := make(chan engine.Progress, 4)
	pm.Subscribe("l1", l1)
	pm.Subscribe("l2", l2)

	update := snapshot("00000000-0000-0000-0000-000000000001", 100)
	if !pm.Publish(update) {
		t.Fatal("Publish() = false")
	}

	for name, ch := range map[string]chan engine.Progress{"l1": l1, "l2": l2} {
		if got := receive(t, ch); !reflect.DeepEqual(got, update) {
			t.Errorf("%s got %+v, want %+v", name, got, update)
		}
	}

	pm.Unsubscribe("l2")
	pm.Publish(snapshot("00000000-0000-0000-0000-000000000001", 200))

	if got := receive(t, l1); got.Packets != 200 {
		t.Errorf("l1 packets = %d, want 200", got.Packets)
	}
	expectNothing(t, l2)
}

func TestProgressMonitorReplaysLatest(t *testing.T) {
	pm := runMonitor(t, 10)

	first := make(chan engine.Progress, 8)
	pm.Subscribe("first", first)

	a := "00000000-0000-0000-0000-00000000000a"
	b := "00000000-0000-0000-0000-00000000000b"
	pm.Publish(snapshot(a, 100))
	pm.Publish(snapshot(a, 300))
	pm.Publish(snapshot(b, 50))

	for i := 0; i < 3; i++ {
		receive(t, first)
	}

	late := make(chan engine.Progress, 8)
	pm.Subscribe("late", late)

	got := map[uuid.UUID]int64{}
	for i := 0; i < 2; i++ {
		p := receive(t, late)
		got[p.DownloadID] = p.Packets
	}

	want := map[uuid.UUID]int64{fixedUUID(a): 300, fixedUUID(b): 50}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("replayed %v, want %v", got, want)
	}
	expectNothing(t, late)

	pm.Forget(fixedUUID(a))

	again := make(chan engine.Progress, 8)
	pm.Subscribe("again", again)

	if p := receive(t, again); p.DownloadID != fixedUUID(b) {
		t.Errorf("replayed %s after Forget, want %s", p.DownloadID, b)
	}
	expectNothing(t, again)
}

func TestProgressMonitorSlowSubscriberDropsUpdates(t *testing.T) {
	pm := runMonitor(t, 10)

	listener := make(chan engine.Progress, 1)
	pm.Subscribe("slow", listener)

	initial := snapshot("00000000-0000-0000-0000-00000000000c", 600)
	listener <- initial

	pm.Publish(snapshot("00000000-0000-0000-0000-00000000000d", 700))
	time.Sleep(50 * time.Millisecond)

	if got := receive(t, listener); !reflect.DeepEqual(got, initial) {
		t.Errorf("got %+v, want the initial snapshot", got)
	}
	expectNothing(t, listener)
}

func TestProgressMonitorPublishFull(t *testing.T) {
	pm := engine.NewProgressMonitor(1)

	if !pm.Publish(snapshot("00000000-0000-0000-0000-000000000001", 1)) {
		t.Fatal("first Publish() = false")
	}

	if pm.Publish(snapshot("00000000-0000-0000-0000-000000000001", 2)) {
		t.Error("Publish() on a full queue = true")
	}

	pm.Close()
}

func TestProgressMonitorClose(t *testing.T) {
	pm := engine.NewProgressMonitor(4)

	listener := make(chan engine.Progress, 1)
	pm.Subscribe("l", listener)

	done := make(chan struct{})
	go func() {
		pm.Run(context.Background())
		close(done)
	}()

	pm.Close()
	pm.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	if _, ok := <-listener; ok {
		t.Error("listener not closed by Close")
	}

	if pm.Publish(snapshot("00000000-0000-0000-0000-000000000001", 1)) {
		t.Error("Publish() after Close = true")
	}

	late := make(chan engine.Progress)
	pm.Subscribe("late", late)
	if _, ok := <-late; ok {
		t.Error("Subscribe after Close left the channel open")
	}
}
