package mms

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/mmsdl/internal/status"
)

const (
	unknownCount    int64 = -1
	unknownProgress int32 = -1
)

// Download is the persisted record of an MMS session. Status, progress and
// packet counters are written by the owning session and read atomically by
// observers.
type Download struct {
	mu sync.RWMutex

	ID    uuid.UUID `json:"id"`
	URL   string    `json:"url"`
	Title string    `json:"title"`
	Dir   string    `json:"dir"`
	Path  string    `json:"path"`

	Status          status.Status `json:"status"`
	Progress        int32         `json:"progress"`
	TotalPackets    int64         `json:"totalPackets"`
	ConsumedPackets int64         `json:"consumedPackets"`
	Error           string        `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDownload validates rawURL and creates a record whose output goes to
// dir/{title}_{file}.
func NewDownload(rawURL, title, dir string) (*Download, error) {
	info, err := ParseConnectInfo(rawURL)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	return &Download{
		ID:           uuid.New(),
		URL:          rawURL,
		Title:        title,
		Dir:          dir,
		Path:         LocalPath(dir, title, info.File),
		Status:       status.Starting,
		TotalPackets: unknownCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// MarshalJSON implements json.Marshaler ensuring atomic fields are captured safely.
func (d *Download) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	type Alias Download

	return json.Marshal(&struct {
		*Alias

		Status          int32 `json:"status"`
		Progress        int32 `json:"progress"`
		TotalPackets    int64 `json:"totalPackets"`
		ConsumedPackets int64 `json:"consumedPackets"`
	}{
		Alias:           (*Alias)(d),
		Status:          d.getStatus(),
		Progress:        d.getProgress(),
		TotalPackets:    d.getTotal(),
		ConsumedPackets: d.getConsumed(),
	})
}

// GetID returns the download identifier.
func (d *Download) GetID() uuid.UUID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.ID
}

func (d *Download) GetStatus() status.Status {
	return d.getStatus()
}

func (d *Download) GetProgress() int {
	return int(d.getProgress())
}

func (d *Download) GetTitle() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.Title
}

func (d *Download) GetPath() string {
	return d.getPath()
}

func (d *Download) GetCreatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.CreatedAt
}

// GetPackets returns the consumed and declared packet counts. total is -1
// when unknown.
func (d *Download) GetPackets() (consumed, total int64) {
	return d.getConsumed(), d.getTotal()
}

// GetError returns the message of the last failure.
func (d *Download) GetError() string {
	return d.getError()
}

func (d *Download) GetURL() string {
	return d.getURL()
}

func (d *Download) getURL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.URL
}

func (d *Download) getPath() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.Path
}

func (d *Download) setStatus(s status.Status) {
	atomic.StoreInt32(&d.Status, s)
	d.touch()
}

func (d *Download) getStatus() status.Status {
	return atomic.LoadInt32(&d.Status)
}

func (d *Download) setProgress(p int32) {
	atomic.StoreInt32(&d.Progress, p)
}

func (d *Download) getProgress() int32 {
	return atomic.LoadInt32(&d.Progress)
}

func (d *Download) setTotal(n int64) {
	atomic.StoreInt64(&d.TotalPackets, n)
}

func (d *Download) getTotal() int64 {
	return atomic.LoadInt64(&d.TotalPackets)
}

func (d *Download) addConsumed() int64 {
	return atomic.AddInt64(&d.ConsumedPackets, 1)
}

func (d *Download) resetConsumed() {
	atomic.StoreInt64(&d.ConsumedPackets, 0)
}

func (d *Download) getConsumed() int64 {
	return atomic.LoadInt64(&d.ConsumedPackets)
}

func (d *Download) setError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Error = ""
	if err != nil {
		d.Error = err.Error()
	}

	d.touchLocked()
}

func (d *Download) getError() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.Error
}

func (d *Download) touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.touchLocked()
}

func (d *Download) touchLocked() {
	d.UpdatedAt = time.Now()
}
