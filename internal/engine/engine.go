package engine

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NamanBalaji/mmsdl/internal/config"
	"github.com/NamanBalaji/mmsdl/internal/errors"
	"github.com/NamanBalaji/mmsdl/internal/mms"
	"github.com/NamanBalaji/mmsdl/internal/repository"
	"github.com/NamanBalaji/mmsdl/internal/status"
	"github.com/NamanBalaji/mmsdl/internal/worker"
)

// Engine owns every known download, persists them and schedules their
// sessions through a bounded priority queue.
type Engine struct {
	mu sync.RWMutex

	workers    map[uuid.UUID]worker.Worker
	priorities map[uuid.UUID]int
	cfg        *config.Config
	repository repository.Repository
	deps       worker.Deps
	log        zerolog.Logger

	queue            *QueueProcessor
	progressMonitor  *ProgressMonitor
	progressInterval time.Duration
	holdPending      bool

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	running bool
}

// New creates a new Engine instance
func New(opts Options) (*Engine, error) {
	if opts.Repository == nil {
		return nil, errors.New("repository is required")
	}

	cfg := opts.Config
	if cfg == nil {
		def := config.DefaultConfig()
		cfg = &def
	}

	if cfg.MMS == nil {
		cfg.MMS = config.DefaultConfig().MMS
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	e := &Engine{
		workers:    make(map[uuid.UUID]worker.Worker),
		priorities: make(map[uuid.UUID]int),
		cfg:        cfg,
		repository: opts.Repository,
		deps: worker.Deps{
			Config:    cfg.MMS,
			Store:     opts.Repository,
			Metrics:   opts.Metrics,
			Logger:    opts.Logger,
			Transport: opts.Transport,
		},
		log:              log.With().Str("component", "engine").Logger(),
		progressInterval: interval,
		holdPending:      opts.HoldPending,
		ctx:              ctx,
		cancelFunc:       cancelFunc,
	}

	e.queue = NewQueueProcessor(cfg.MaxConcurrentDownloads, e.runDownload)
	e.queue.SetLogger(e.log)
	e.progressMonitor = NewProgressMonitor(100)

	return e, nil
}

// Init loads stored downloads and queues those that never finished
// starting. Interrupted downloads come back stopped.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	downloads, err := e.repository.FindAll()
	if err != nil {
		return fmt.Errorf("failed to load downloads: %w", err)
	}

	var pending []uuid.UUID
	for _, download := range downloads {
		w, err := worker.GetWorker(download, e.deps)
		if err != nil {
			e.log.Warn().Err(err).Str("url", download.URL).Msg("skipping stored download")
			continue
		}

		e.workers[w.ID()] = w
		if w.Status() == status.Starting && !e.holdPending {
			pending = append(pending, w.ID())
		}
	}

	e.log.Info().Int("downloads", len(e.workers)).Msg("loaded downloads from repository")

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.progressMonitor.Run(e.ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.sampleProgress(e.ctx)
	}()

	e.running = true

	for _, id := range pending {
		e.queue.Enqueue(id, 0)
	}

	return nil
}

// AddDownload registers a new download and queues it.
func (e *Engine) AddDownload(url string, opts DownloadOptions) (uuid.UUID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return uuid.Nil, ErrEngineNotRunning
	}

	for _, w := range e.workers {
		if w.Download().GetURL() == url && !status.IsTerminal(w.Status()) {
			return uuid.Nil, ErrDownloadExists
		}
	}

	dir := opts.Dir
	if dir == "" {
		dir = e.cfg.MMS.DownloadDir
	}

	download, err := mms.NewDownload(url, opts.Title, dir)
	if err != nil {
		return uuid.Nil, err
	}

	w, err := worker.GetWorker(download, e.deps)
	if err != nil {
		return uuid.Nil, err
	}

	if err := e.repository.Save(download); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save download: %w", err)
	}

	e.workers[download.ID] = w
	e.priorities[download.ID] = opts.Priority
	e.queue.Enqueue(download.ID, opts.Priority)

	e.log.Info().Str("download", download.ID.String()).Str("path", download.Path).Msg("download added")

	return download.ID, nil
}

// GetDownload retrieves a download by ID
func (e *Engine) GetDownload(id uuid.UUID) (worker.Worker, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	w, ok := e.workers[id]
	if !ok {
		return nil, ErrDownloadNotFound
	}

	return w, nil
}

// ListDownloads returns all downloads, oldest first.
func (e *Engine) ListDownloads() []worker.Worker {
	e.mu.RLock()
	defer e.mu.RUnlock()

	workers := make([]worker.Worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}

	slices.SortFunc(workers, func(a, b worker.Worker) int {
		return a.Download().GetCreatedAt().Compare(b.Download().GetCreatedAt())
	})

	return workers
}

// StopDownload stops a running or queued download, keeping its output.
func (e *Engine) StopDownload(id uuid.UUID) error {
	w, err := e.GetDownload(id)
	if err != nil {
		return err
	}

	e.queue.Remove(id)

	return w.Stop()
}

// ResumeDownload queues a stopped download again.
func (e *Engine) ResumeDownload(id uuid.UUID) error {
	w, err := e.GetDownload(id)
	if err != nil {
		return err
	}

	st := w.Status()
	if status.IsRunning(st) && e.queue.IsPending(id) {
		return nil
	}

	if st != status.Stopped && st != status.Starting {
		return fmt.Errorf("%w: %s", ErrNotResumable, status.Name(st))
	}

	e.mu.RLock()
	priority := e.priorities[id]
	e.mu.RUnlock()

	e.queue.Requeue(id, priority)

	return nil
}

// CancelDownload cancels a download and deletes its partial output.
func (e *Engine) CancelDownload(id uuid.UUID) error {
	w, err := e.GetDownload(id)
	if err != nil {
		return err
	}

	e.queue.Remove(id)

	return w.Cancel()
}

// RemoveDownload forgets a download. Unfinished downloads are canceled
// first; removeFile also deletes a finished or failed output file.
func (e *Engine) RemoveDownload(id uuid.UUID, removeFile bool) error {
	w, err := e.GetDownload(id)
	if err != nil {
		return err
	}

	if !status.IsTerminal(w.Status()) {
		if err := e.CancelDownload(id); err != nil {
			return fmt.Errorf("failed to cancel download: %w", err)
		}
	}

	if path := w.Download().GetPath(); removeFile && path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.log.Warn().Err(err).Str("path", path).Msg("failed to remove output file")
		}
	}

	if err := e.repository.Delete(id); err != nil && !errors.Is(err, repository.ErrDownloadNotFound) {
		return fmt.Errorf("failed to delete download from repository: %w", err)
	}

	e.mu.Lock()
	delete(e.workers, id)
	delete(e.priorities, id)
	e.mu.Unlock()

	e.progressMonitor.Forget(id)

	return nil
}

// Subscribe registers a listener for progress snapshots of running
// downloads. The channel is closed on Shutdown.
func (e *Engine) Subscribe(name string, ch chan<- Progress) {
	e.progressMonitor.Subscribe(name, ch)
}

func (e *Engine) Unsubscribe(name string) {
	e.progressMonitor.Unsubscribe(name)
}

// Wait blocks until no download is queued or running.
func (e *Engine) Wait() error {
	return e.queue.Wait()
}

// Shutdown stops running downloads, waits for them and closes the
// repository. Stopped downloads resume on the next start.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.cancelFunc()

	if err := e.queue.Wait(); err != nil {
		e.log.Debug().Err(err).Msg("queue drained with error")
	}

	e.wg.Wait()
	e.progressMonitor.Close()

	return e.repository.Close()
}

// runDownload runs one session to completion; it is the queue's start
// function.
func (e *Engine) runDownload(id uuid.UUID) error {
	w, err := e.GetDownload(id)
	if err != nil {
		return err
	}

	if e.ctx.Err() != nil {
		return nil
	}

	if err := w.Run(e.ctx); err != nil {
		return NewDownloadError(err, w.Download().GetURL())
	}

	l := e.log.Info()
	if err := w.Err(); err != nil {
		l = e.log.Error().Err(err)
	}

	e.progressMonitor.Forget(id)
	l.Str("download", id.String()).Str("status", status.Name(w.Status())).Msg("session ended")

	return nil
}

func (e *Engine) sampleProgress(ctx context.Context) {
	ticker := time.NewTicker(e.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, w := range e.ListDownloads() {
				if !status.IsRunning(w.Status()) || !e.queue.IsPending(w.ID()) {
					continue
				}

				e.progressMonitor.Publish(snapshotOf(w, now))
			}
		}
	}
}

func snapshotOf(w worker.Worker, now time.Time) Progress {
	consumed, total := w.Download().GetPackets()

	return Progress{
		DownloadID: w.ID(),
		Title:      w.Download().GetTitle(),
		Status:     w.Status(),
		Percent:    w.Progress(),
		Packets:    consumed,
		Total:      total,
		Speed:      w.Speed(),
		Timestamp:  now,
	}
}
