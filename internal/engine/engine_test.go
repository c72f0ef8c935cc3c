package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/mmsdl/internal/config"
	"github.com/NamanBalaji/mmsdl/internal/engine"
	"github.com/NamanBalaji/mmsdl/internal/errors"
	"github.com/NamanBalaji/mmsdl/internal/mms"
	"github.com/NamanBalaji/mmsdl/internal/repository"
	"github.com/NamanBalaji/mmsdl/internal/status"
	"github.com/NamanBalaji/mmsdl/pkg/asf"
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
)

var mediaPacket = []byte("media-packet")

// fakeTransport streams packets media units; with hang set it sends one
// and then waits for Disconnect.
type fakeTransport struct {
	h       mmsPkg.Handlers
	packets int
	hang    bool
	stop    chan struct{}
	once    sync.Once
}

func fakeFactory(packets int, hang bool) mmsPkg.TransportFactory {
	return func(_ string, h mmsPkg.Handlers) (mmsPkg.Transport, error) {
		return &fakeTransport{h: h, packets: packets, hang: hang, stop: make(chan struct{})}, nil
	}
}

func (f *fakeTransport) Connect(context.Context) error {
	header := asf.EncodeHeader(asf.EncodeFileProperties(asf.FileProperties{DataPacketCount: uint64(f.packets)}))

	go func() {
		f.h.Data.HandleUnit(mmsPkg.DataUnit{Kind: mmsPkg.UnitHeader, Data: header})
		f.h.Control.HandleMessage(mmsPkg.ControlMessage{Kind: mmsPkg.MessageStreamSwitch})
	}()

	return nil
}

func (f *fakeTransport) StartStreaming(packet int64) error {
	go func() {
		n := f.packets - int(packet)
		if f.hang {
			n = 1
		}

		for i := 0; i < n; i++ {
			f.h.Data.HandleUnit(mmsPkg.DataUnit{Kind: mmsPkg.UnitMedia, Data: mediaPacket})
		}

		if f.hang {
			<-f.stop
			return
		}

		f.h.Control.HandleMessage(mmsPkg.ControlMessage{Kind: mmsPkg.MessageEndOfStream})
		f.h.Lifecycle.SessionClosed()
	}()

	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.once.Do(func() { close(f.stop) })
	return nil
}

func (f *fakeTransport) PauseSupported() bool { return true }

func (f *fakeTransport) Speed() float64 { return 512 }

type testEngine struct {
	*engine.Engine
	dbPath string
	outDir string
}

func newTestEngine(t *testing.T, factory mmsPkg.TransportFactory, maxConcurrent int) *testEngine {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("NewBboltRepository() error = %v", err)
	}

	return startEngine(t, repo, dbPath, filepath.Join(dir, "out"), factory, maxConcurrent)
}

func startEngine(t *testing.T, repo repository.Repository, dbPath, outDir string, factory mmsPkg.TransportFactory, maxConcurrent int) *testEngine {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.MaxConcurrentDownloads = maxConcurrent
	cfg.MMS.DownloadDir = outDir
	cfg.MMS.SaveInterval = time.Hour

	e, err := engine.New(engine.Options{
		Config:           &cfg,
		Repository:       repo,
		Transport:        factory,
		ProgressInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}

	if err := e.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	t.Cleanup(func() { _ = e.Shutdown() })

	return &testEngine{Engine: e, dbPath: dbPath, outDir: outDir}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitStatus(t *testing.T, e *testEngine, id uuid.UUID, want status.Status) {
	t.Helper()
	waitFor(t, status.Name(want), func() bool {
		w, err := e.GetDownload(id)
		return err == nil && w.Status() == want
	})
}

func TestNewRequiresRepository(t *testing.T) {
	if _, err := engine.New(engine.Options{}); err == nil {
		t.Error("engine.New() without repository succeeded")
	}
}

func TestAddDownloadBeforeInit(t *testing.T) {
	repo, err := repository.NewBboltRepository(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewBboltRepository() error = %v", err)
	}
	defer repo.Close()

	e, err := engine.New(engine.Options{Repository: repo})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}

	if _, err := e.AddDownload("mms://host/a.wmv", engine.DownloadOptions{}); !errors.Is(err, engine.ErrEngineNotRunning) {
		t.Errorf("AddDownload() error = %v, want ErrEngineNotRunning", err)
	}
}

func TestAddDownloadRunsToCompletion(t *testing.T) {
	e := newTestEngine(t, fakeFactory(3, false), 2)

	id, err := e.AddDownload("mms://media.example.com/live/news.wmv", engine.DownloadOptions{Title: "News"})
	if err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}

	if err := e.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	w, err := e.GetDownload(id)
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if w.Status() != status.Finished {
		t.Fatalf("status = %s, want finished", status.Name(w.Status()))
	}
	if w.Progress() != 100 {
		t.Errorf("progress = %d, want 100", w.Progress())
	}

	path := filepath.Join(e.outDir, "News_news.wmv")
	if got := w.Download().GetPath(); got != path {
		t.Errorf("path = %q, want %q", got, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Size() <= int64(3*len(mediaPacket)) {
		t.Errorf("output size = %d, want header plus 3 packets", info.Size())
	}
}

func TestAddDownloadRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, fakeFactory(1, true), 1)

	if _, err := e.AddDownload("http://media.example.com/a.wmv", engine.DownloadOptions{}); !errors.Is(err, errors.ErrUnsupportedProtocol) {
		t.Errorf("AddDownload(http) error = %v, want ErrUnsupportedProtocol", err)
	}

	url := "mms://media.example.com/live/show.wmv"
	if _, err := e.AddDownload(url, engine.DownloadOptions{}); err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}
	if _, err := e.AddDownload(url, engine.DownloadOptions{}); !errors.Is(err, engine.ErrDownloadExists) {
		t.Errorf("duplicate AddDownload() error = %v, want ErrDownloadExists", err)
	}
}

func TestStopResumeCancel(t *testing.T) {
	e := newTestEngine(t, fakeFactory(10, true), 1)

	id, err := e.AddDownload("mms://media.example.com/live/show.wmv", engine.DownloadOptions{Title: "show"})
	if err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}

	w, _ := e.GetDownload(id)
	waitFor(t, "first packet", func() bool {
		consumed, _ := w.Download().GetPackets()
		return consumed == 1
	})

	if err := e.ResumeDownload(id); err != nil {
		t.Errorf("ResumeDownload() on running download error = %v", err)
	}

	if err := e.StopDownload(id); err != nil {
		t.Fatalf("StopDownload() error = %v", err)
	}
	if w.Status() != status.Stopped {
		t.Fatalf("status = %s, want stopped", status.Name(w.Status()))
	}

	if err := e.ResumeDownload(id); err != nil {
		t.Fatalf("ResumeDownload() error = %v", err)
	}
	waitFor(t, "resumed packet", func() bool {
		consumed, _ := w.Download().GetPackets()
		return consumed == 2
	})

	if err := e.CancelDownload(id); err != nil {
		t.Fatalf("CancelDownload() error = %v", err)
	}
	if w.Status() != status.Canceled {
		t.Fatalf("status = %s, want canceled", status.Name(w.Status()))
	}
	if _, err := os.Stat(w.Download().GetPath()); !os.IsNotExist(err) {
		t.Errorf("partial file still present: %v", err)
	}

	if err := e.ResumeDownload(id); !errors.Is(err, engine.ErrNotResumable) {
		t.Errorf("ResumeDownload() on canceled error = %v, want ErrNotResumable", err)
	}
}

func TestMaxConcurrentDownloads(t *testing.T) {
	e := newTestEngine(t, fakeFactory(10, true), 1)

	first, err := e.AddDownload("mms://media.example.com/one.wmv", engine.DownloadOptions{})
	if err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}
	second, err := e.AddDownload("mms://media.example.com/two.wmv", engine.DownloadOptions{})
	if err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}

	waitStatus(t, e, first, status.Downloading)

	time.Sleep(50 * time.Millisecond)
	w2, _ := e.GetDownload(second)
	if w2.Status() != status.Starting {
		t.Fatalf("second status = %s, want starting while queued", status.Name(w2.Status()))
	}
	if consumed, _ := w2.Download().GetPackets(); consumed != 0 {
		t.Errorf("queued download consumed %d packets", consumed)
	}

	if err := e.StopDownload(first); err != nil {
		t.Fatalf("StopDownload() error = %v", err)
	}
	waitStatus(t, e, second, status.Downloading)
}

func TestRemoveDownload(t *testing.T) {
	e := newTestEngine(t, fakeFactory(2, false), 1)

	id, err := e.AddDownload("mms://media.example.com/live/news.wmv", engine.DownloadOptions{})
	if err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	w, _ := e.GetDownload(id)
	path := w.Download().GetPath()

	if err := e.RemoveDownload(id, true); err != nil {
		t.Fatalf("RemoveDownload() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("output file still present: %v", err)
	}
	if _, err := e.GetDownload(id); !errors.Is(err, engine.ErrDownloadNotFound) {
		t.Errorf("GetDownload() error = %v, want ErrDownloadNotFound", err)
	}
	if len(e.ListDownloads()) != 0 {
		t.Errorf("ListDownloads() = %d items, want 0", len(e.ListDownloads()))
	}
	if err := e.RemoveDownload(id, false); !errors.Is(err, engine.ErrDownloadNotFound) {
		t.Errorf("second RemoveDownload() error = %v", err)
	}
}

func TestInitRestoresDownloads(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	outDir := filepath.Join(dir, "out")

	repo, err := repository.NewBboltRepository(dbPath)
	if err != nil {
		t.Fatalf("NewBboltRepository() error = %v", err)
	}

	interrupted, _ := mms.NewDownload("mms://media.example.com/interrupted.wmv", "", outDir)
	interrupted.Status = status.Downloading
	interrupted.ConsumedPackets = 3
	interrupted.CreatedAt = time.Now().Add(-3 * time.Minute)

	finished, _ := mms.NewDownload("mms://media.example.com/finished.wmv", "", outDir)
	finished.Status = status.Finished
	finished.CreatedAt = time.Now().Add(-2 * time.Minute)

	pending, _ := mms.NewDownload("mms://media.example.com/pending.wmv", "", outDir)
	pending.CreatedAt = time.Now().Add(-time.Minute)

	for _, d := range []*mms.Download{interrupted, finished, pending} {
		if err := repo.Save(d); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	e := startEngine(t, repo, dbPath, outDir, fakeFactory(2, false), 2)
	if err := e.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	list := e.ListDownloads()
	if len(list) != 3 {
		t.Fatalf("ListDownloads() = %d items, want 3", len(list))
	}

	want := []status.Status{status.Stopped, status.Finished, status.Finished}
	for i, w := range list {
		if w.Status() != want[i] {
			t.Errorf("download %d status = %s, want %s", i, status.Name(w.Status()), status.Name(want[i]))
		}
	}
}

func TestInitHoldPending(t *testing.T) {
	dir := t.TempDir()

	repo, err := repository.NewBboltRepository(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("NewBboltRepository() error = %v", err)
	}

	pending, _ := mms.NewDownload("mms://media.example.com/pending.wmv", "", filepath.Join(dir, "out"))
	if err := repo.Save(pending); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	e, err := engine.New(engine.Options{
		Repository:       repo,
		Transport:        fakeFactory(2, false),
		ProgressInterval: 10 * time.Millisecond,
		HoldPending:      true,
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })

	if err := e.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	w, err := e.GetDownload(pending.ID)
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if w.Status() != status.Starting {
		t.Fatalf("held download status = %s, want starting", status.Name(w.Status()))
	}

	if err := e.ResumeDownload(pending.ID); err != nil {
		t.Fatalf("ResumeDownload() error = %v", err)
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if w.Status() != status.Finished {
		t.Errorf("status = %s, want finished", status.Name(w.Status()))
	}
}

func TestShutdownStopsRunningDownloads(t *testing.T) {
	e := newTestEngine(t, fakeFactory(10, true), 1)

	id, err := e.AddDownload("mms://media.example.com/live/show.wmv", engine.DownloadOptions{})
	if err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}
	waitStatus(t, e, id, status.Downloading)

	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	repo, err := repository.NewBboltRepository(e.dbPath)
	if err != nil {
		t.Fatalf("reopen repository: %v", err)
	}
	defer repo.Close()

	stored, err := repo.Find(id)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if stored.GetStatus() != status.Stopped {
		t.Errorf("stored status = %s, want stopped", status.Name(stored.GetStatus()))
	}
	if consumed, _ := stored.GetPackets(); consumed != 1 {
		t.Errorf("stored packets = %d, want 1", consumed)
	}
}

func TestSubscribeProgress(t *testing.T) {
	e := newTestEngine(t, fakeFactory(10, true), 1)

	updates := make(chan engine.Progress, 10)
	e.Subscribe("test", updates)
	defer e.Unsubscribe("test")

	id, err := e.AddDownload("mms://media.example.com/live/show.wmv", engine.DownloadOptions{Title: "show"})
	if err != nil {
		t.Fatalf("AddDownload() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-updates:
			if p.DownloadID != id || p.Status != status.Downloading {
				continue
			}
			if p.Title != "show" || p.Total != 10 || p.Speed != 512 {
				t.Errorf("unexpected snapshot %+v", p)
			}
			return
		case <-deadline:
			t.Fatal("no progress snapshot received")
		}
	}
}
