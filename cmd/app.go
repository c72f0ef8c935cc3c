package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/NamanBalaji/mmsdl/internal/config"
	"github.com/NamanBalaji/mmsdl/internal/engine"
	"github.com/NamanBalaji/mmsdl/internal/errors"
	"github.com/NamanBalaji/mmsdl/internal/logger"
	"github.com/NamanBalaji/mmsdl/internal/metrics"
	"github.com/NamanBalaji/mmsdl/internal/repository"
	"github.com/NamanBalaji/mmsdl/internal/status"
)

const progressListener = "cli"

// app is one CLI invocation's engine and its surroundings.
type app struct {
	cfg *config.Config
	eng *engine.Engine
	srv *http.Server
}

// openApp starts an engine over the persisted downloads. With hold set,
// restored downloads stay idle.
func openApp(hold bool) (*app, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if workers > 0 {
		cfg.MaxConcurrentDownloads = workers
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := logger.InitLogging(debug, filepath.Join(cfg.StateDir, "mmsdl.log")); err != nil {
		return nil, err
	}

	logger.Debugf("state in %s, output in %s, %d workers", cfg.StateDir, cfg.MMS.DownloadDir, cfg.MaxConcurrentDownloads)

	repo, err := repository.NewBboltRepository(filepath.Join(cfg.StateDir, "mmsdl.db"))
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	eng, err := engine.New(engine.Options{
		Config:      cfg,
		Repository:  repo,
		Metrics:     metrics.New(reg),
		Logger:      &log.Logger,
		HoldPending: hold,
	})
	if err != nil {
		_ = repo.Close()
		logger.Close()
		return nil, err
	}

	if err := eng.Init(); err != nil {
		_ = repo.Close()
		logger.Close()
		return nil, err
	}

	logger.Infof("engine ready, %d downloads restored", len(eng.ListDownloads()))

	a := &app{cfg: cfg, eng: eng}

	if metricsAddr != "" {
		a.srv = &http.Server{
			Addr:              metricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}

		clog := logger.Component("cli")
		clog.Info().Str("addr", metricsAddr).Msg("serving metrics")

		go func() {
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				clog.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	return a, nil
}

func (a *app) Close() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.srv.Shutdown(ctx)
		cancel()
	}

	if err := a.eng.Shutdown(); err != nil {
		logger.Errorf("engine shutdown: %v", err)
	}

	logger.Close()
}

// wait shows progress until every queued download has ended. SIGINT and
// SIGTERM stop the downloads so a later resume continues them.
func (a *app) wait(ids []uuid.UUID) error {
	progress := make(chan engine.Progress, 16)
	a.eng.Subscribe(progressListener, progress)
	defer a.eng.Unsubscribe(progressListener)

	done := make(chan error, 1)
	go func() { done <- a.eng.Wait() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	last := make(map[uuid.UUID]int)

	for {
		select {
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}

			if prev, seen := last[p.DownloadID]; seen && prev == p.Percent {
				continue
			}

			last[p.DownloadID] = p.Percent
			fmt.Println(formatProgress(p))

		case <-sig:
			PrintWarning("interrupted, stopping downloads")
			logger.Warnf("interrupted, stopping %d downloads", len(ids))
			if err := a.eng.Shutdown(); err != nil {
				logger.Errorf("engine shutdown: %v", err)
			}

			<-done

			return a.summarize(ids)

		case err := <-done:
			if err != nil {
				logger.Errorf("queue: %v", err)
			}

			return a.summarize(ids)
		}
	}
}

// summarize prints the final state of ids and fails when any failed.
func (a *app) summarize(ids []uuid.UUID) error {
	failed := 0

	for _, id := range ids {
		w, err := a.eng.GetDownload(id)
		if err != nil {
			continue
		}

		name := w.Download().GetTitle()

		switch w.Status() {
		case status.Finished:
			PrintSuccess(fmt.Sprintf("%s saved to %s", name, w.Download().GetPath()))
		case status.Failed:
			failed++
			PrintError(fmt.Sprintf("%s failed: %v", name, w.Err()))
			if hint := failureHint(w.Err()); hint != "" {
				PrintPending(hint)
			}
			if errors.IsRetryable(w.Err()) {
				PrintPending("run mmsdl get again to retry")
			}
		case status.Stopped:
			PrintWarning(fmt.Sprintf("%s stopped, resume with: mmsdl resume %s", name, id))
		default:
			PrintPending(fmt.Sprintf("%s is %s", name, status.Name(w.Status())))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(ids))
	}

	return nil
}
