package worker

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NamanBalaji/mmsdl/internal/config"
	"github.com/NamanBalaji/mmsdl/internal/metrics"
	"github.com/NamanBalaji/mmsdl/internal/mms"
	"github.com/NamanBalaji/mmsdl/internal/status"
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
	"github.com/NamanBalaji/mmsdl/pkg/mmsh"
)

var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Worker defines the interface for a worker that can perform downloads.
type Worker interface {
	Run(ctx context.Context) error
	Stop() error
	Cancel() error
	ID() uuid.UUID
	Status() status.Status
	Progress() int
	Speed() float64
	Err() error
	Download() *mms.Download
}

var _ Worker = (*mms.Session)(nil)

// Deps carries what every worker shares.
type Deps struct {
	Config  *config.MMSConfig
	Store   mms.Store
	Metrics *metrics.Collector
	Logger  *zerolog.Logger
	// Transport replaces the MMSH transport, mainly for tests.
	Transport mmsPkg.TransportFactory
}

// GetWorker returns the worker able to run download.
func GetWorker(download *mms.Download, deps Deps) (Worker, error) {
	u, err := url.Parse(download.URL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case mmsPkg.Scheme:
		session, err := mms.New(download, mms.Options{
			Transport:    deps.transport(),
			Logger:       deps.Logger,
			Store:        deps.Store,
			Metrics:      deps.Metrics,
			SaveInterval: deps.mmsConfig().SaveInterval,
		})
		if err != nil {
			return nil, err
		}

		return session, nil
	}

	return nil, ErrUnsupportedScheme
}

func (d Deps) mmsConfig() config.MMSConfig {
	if d.Config == nil {
		return *config.DefaultConfig().MMS
	}

	return *d.Config
}

func (d Deps) transport() mmsPkg.TransportFactory {
	if d.Transport != nil {
		return d.Transport
	}

	cfg := d.mmsConfig()

	return mmsh.Factory(mmsh.Options{
		Port:        cfg.Port,
		HTTPPort:    cfg.HTTPPort,
		UserAgent:   cfg.UserAgent,
		DialTimeout: cfg.DialTimeout,
		Logger:      d.Logger,
	})
}
