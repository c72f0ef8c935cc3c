package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NamanBalaji/mmsdl/internal/config"
	"github.com/NamanBalaji/mmsdl/internal/metrics"
	"github.com/NamanBalaji/mmsdl/internal/repository"
	"github.com/NamanBalaji/mmsdl/internal/status"
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
)

const defaultProgressInterval = 500 * time.Millisecond

// Options wires the engine to its collaborators. Repository is required.
type Options struct {
	Config     *config.Config
	Repository repository.Repository
	Metrics    *metrics.Collector
	Logger     *zerolog.Logger
	// Transport replaces the MMSH transport for every session.
	Transport mmsPkg.TransportFactory
	// ProgressInterval is how often running downloads are sampled.
	ProgressInterval time.Duration
	// HoldPending leaves restored downloads that never started out of the
	// queue until they are resumed.
	HoldPending bool
}

// DownloadOptions are the per-download settings of AddDownload.
type DownloadOptions struct {
	Title string
	// Dir defaults to the configured download directory.
	Dir      string
	Priority int
}

// Progress is a snapshot of one download.
type Progress struct {
	DownloadID uuid.UUID
	Title      string
	Status     status.Status
	Percent    int
	Packets    int64
	Total      int64
	Speed      float64
	Timestamp  time.Time
}
