// Package mms drives a single MMS download: it reacts to transport events,
// writes the stream to a sink and exposes a blocking Run for the queue that
// schedules it.
//
// All session state is owned by one goroutine per Run. Transport callbacks
// and Stop/Cancel calls reach it as messages; observers read status and
// progress from the atomically updated Download record.
package mms

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NamanBalaji/mmsdl/internal/errors"
	"github.com/NamanBalaji/mmsdl/internal/metrics"
	"github.com/NamanBalaji/mmsdl/internal/status"
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
)

const (
	eventBuffer         = 64
	defaultSaveInterval = 10 * time.Second
)

var (
	// ErrAlreadyRunning is returned when Run is called while a run is active.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrNotRestartable is returned when Run is called on a terminal session.
	ErrNotRestartable = errors.New("session cannot be restarted")
)

// Store persists download records.
type Store interface {
	Save(download *Download) error
}

// Options configures a Session. Transport is required.
type Options struct {
	Transport mmsPkg.TransportFactory
	Logger    *zerolog.Logger
	// Sink overrides the file sink derived from Download.Path.
	Sink         Sink
	Store        Store
	Metrics      *metrics.Collector
	SaveInterval time.Duration
}

// Session is one logical MMS download. Run may be called again after Stop
// to resume.
type Session struct {
	download     *Download
	newTransport mmsPkg.TransportFactory
	sink         Sink
	store        Store
	metrics      *metrics.Collector
	log          zerolog.Logger
	saveInterval time.Duration

	machine  *stateMachine
	failures connectFailures

	errMu sync.RWMutex
	err   error

	// mu serializes Run setup and the Stop/Cancel paths taken while no
	// loop is alive.
	mu  sync.Mutex
	run *run
}

type commandKind int

const (
	cmdStop commandKind = iota
	cmdCancel
)

type command struct {
	kind  commandKind
	reply chan error
}

// run is the state of one physical connection attempt.
type run struct {
	ctx       context.Context
	transport mmsPkg.Transport
	events    chan event
	cmds      chan command
	done      chan struct{}

	headerSeen bool
	tolerated  error
}

func newRun(ctx context.Context) *run {
	return &run{
		ctx:    ctx,
		events: make(chan event, eventBuffer),
		cmds:   make(chan command),
		done:   make(chan struct{}),
	}
}

// post hands an event to the loop, or drops it once the loop has exited.
func (r *run) post(ev event) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// call runs a command on the loop and waits for the loop to exit. delivered
// is false when the loop was already gone.
func (r *run) call(kind commandKind) (delivered bool, err error) {
	reply := make(chan error, 1)

	select {
	case r.cmds <- command{kind: kind, reply: reply}:
	case <-r.done:
		return false, nil
	}

	err = <-reply
	<-r.done

	return true, err
}

// New creates a session for download.
func New(download *Download, opts Options) (*Session, error) {
	if download == nil {
		return nil, errors.New("download is required")
	}

	if opts.Transport == nil {
		return nil, errors.New("transport factory is required")
	}

	// a record saved mid-run belongs to a process that is gone
	switch st := download.getStatus(); {
	case st == status.Downloading, st == status.Starting && download.getConsumed() > 0:
		download.setStatus(status.Stopped)
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	sink := opts.Sink
	if sink == nil {
		if path := download.getPath(); path != "" {
			sink = NewFileSink(path)
		} else {
			sink = DiscardSink()
		}
	}

	interval := opts.SaveInterval
	if interval <= 0 {
		interval = defaultSaveInterval
	}

	return &Session{
		download:     download,
		newTransport: opts.Transport,
		sink:         sink,
		store:        opts.Store,
		metrics:      opts.Metrics,
		log:          log.With().Str("download", download.GetID().String()).Logger(),
		saveInterval: interval,
		machine:      newStateMachine(download),
	}, nil
}

func (s *Session) ID() uuid.UUID {
	return s.download.GetID()
}

// Download returns the record backing the session.
func (s *Session) Download() *Download {
	return s.download
}

func (s *Session) Status() status.Status {
	return s.download.getStatus()
}

// Progress returns 0-100, or -1 after the server closed the session early.
func (s *Session) Progress() int {
	return int(s.download.getProgress())
}

// Err returns the cause of the last failure, if any.
func (s *Session) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()

	return s.err
}

func (s *Session) IsRunning() bool {
	return status.IsRunning(s.Status())
}

// PauseSupported reports whether the server can resume at a packet offset.
// It is false until the transport has connected.
func (s *Session) PauseSupported() bool {
	t := s.currentTransport()
	return t != nil && t.PauseSupported()
}

// Speed returns bytes per second while downloading and -1 otherwise.
func (s *Session) Speed() float64 {
	if s.Status() != status.Downloading {
		return -1
	}

	t := s.currentTransport()
	if t == nil {
		return -1
	}

	return t.Speed()
}

// Run connects and blocks until the session leaves STARTING/DOWNLOADING.
// Cancelling ctx stops the session. Failures are reported through Status
// and Err; the returned error only covers misuse.
func (s *Session) Run(ctx context.Context) error {
	r, err := s.start(ctx)
	if err != nil {
		return err
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
	}

	if err := s.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("stop after cancellation")
	}

	<-r.done

	return nil
}

// Stop disconnects and keeps the partial output for a later Run.
func (s *Session) Stop() error {
	return s.do(cmdStop)
}

// Cancel stops the session and deletes the partial output file. It is a
// no-op on finished or failed sessions.
func (s *Session) Cancel() error {
	return s.do(cmdCancel)
}

func (s *Session) do(kind commandKind) error {
	for {
		s.mu.Lock()
		r := s.run
		if r == nil || r.finished() {
			err := s.execute(r, kind)
			s.mu.Unlock()

			return err
		}
		s.mu.Unlock()

		if delivered, err := r.call(kind); delivered {
			return err
		}
	}
}

func (s *Session) start(ctx context.Context) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil && !s.run.finished() {
		return nil, ErrAlreadyRunning
	}

	switch st := s.Status(); st {
	case status.Starting:
	case status.Stopped:
		if !s.transition(eventRestart) {
			return nil, fmt.Errorf("%w: restart rejected", ErrNotRestartable)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotRestartable, status.Name(st))
	}

	s.setErr(nil)
	s.failures.reset()
	s.logConnectInfo()

	r := newRun(context.WithoutCancel(ctx))
	s.run = r
	s.metrics.SessionStarted()

	if err := s.sink.Open(s.download.getConsumed() > 0); err != nil {
		s.fail(r, errors.NewIOError(err, s.sink.Path()))
		s.endRun(r)

		return r, nil
	}

	t, err := s.newTransport(s.download.getURL(), r.handlers())
	if err != nil {
		s.fail(r, errors.NewMMSError(err, s.download.getURL(), false))
		s.endRun(r)

		return r, nil
	}

	r.transport = t

	go s.loop(r)

	return r, nil
}

func (s *Session) loop(r *run) {
	defer s.endRun(r)

	if err := r.transport.Connect(r.ctx); err != nil {
		s.fail(r, errors.NewMMSError(err, s.download.getURL(), true))
		return
	}

	ticker := time.NewTicker(s.saveInterval)
	defer ticker.Stop()

	for s.IsRunning() {
		select {
		case ev := <-r.events:
			s.dispatch(r, ev)
		case cmd := <-r.cmds:
			cmd.reply <- s.execute(r, cmd.kind)
		case <-ticker.C:
			if err := s.save(); err != nil {
				s.fail(r, err)
			}
		}
	}
}

func (s *Session) endRun(r *run) {
	s.metrics.SessionEnded(status.Name(s.Status()))
	close(r.done)
}

func (s *Session) execute(r *run, kind commandKind) error {
	switch kind {
	case cmdStop:
		return s.stop(r)
	case cmdCancel:
		return s.cancel(r)
	default:
		return fmt.Errorf("unknown command %d", kind)
	}
}

func (s *Session) dispatch(r *run, ev event) {
	switch ev.kind {
	case evMessage:
		s.onMessage(r, ev.msg)
	case evUnit:
		if classify(ev.unit) == mmsPkg.UnitHeader {
			s.onHeader(r, ev.unit.Data)
		} else {
			s.onMedia(r, ev.unit.Data)
		}
	case evFailure:
		s.onFailure(r, ev.err)
	case evClosed:
		s.onClosed(r)
	}
}

func (s *Session) onMessage(r *run, msg mmsPkg.ControlMessage) {
	switch msg.Kind {
	case mmsPkg.MessageStreamSwitch:
		if s.Status() != status.Starting {
			s.log.Debug().Str("message", msg.Name).Msg("stream switch while streaming")
			return
		}

		offset := decideStart(r.transport.PauseSupported(), s.download.getConsumed())
		s.log.Debug().Int64("packet", offset).Msg("starting stream")

		if err := r.transport.StartStreaming(offset); err != nil {
			s.fail(r, errors.NewMMSError(err, s.download.getURL(), false))
		}
	case mmsPkg.MessageEndOfStream:
		s.finish(r)
	default:
		s.log.Debug().Str("message", msg.Name).Msg("ignoring control message")
	}
}

func (s *Session) onHeader(r *run, data []byte) {
	if r.headerSeen {
		s.log.Debug().Int("bytes", len(data)).Msg("ignoring repeated header")
		return
	}

	r.headerSeen = true

	consumed := s.download.getConsumed()

	action, err := onHeaderReceived(r.transport.PauseSupported(), consumed, s.sink)
	if err != nil {
		s.fail(r, err)
		return
	}

	switch action {
	case appendAfterHeader:
		s.log.Info().Int64("packet", consumed).Msg("resuming, header discarded")
		return
	case restartFromScratch:
		s.log.Info().Int64("discarded", consumed).Msg("server cannot resume, restarting from the first packet")
		s.download.resetConsumed()
		s.download.setProgress(0)
	}

	info := inspectHeader(data)
	switch {
	case errors.IsParseError(info.err):
		s.log.Warn().Err(info.err).Msg("ignoring unreadable ASF header")
	case info.props != nil:
		s.log.Debug().Stringer("properties", info.props).Msg("ASF header")
	}

	s.download.setTotal(info.totalPackets)

	if _, err := s.sink.Write(data); err != nil {
		s.fail(r, errors.NewIOError(err, s.sink.Path()))
	}
}

func (s *Session) onMedia(r *run, data []byte) {
	if s.Status() == status.Starting {
		s.transition(eventStreamMedia)
	}

	if _, err := s.sink.Write(data); err != nil {
		s.fail(r, errors.NewIOError(err, s.sink.Path()))
		return
	}

	consumed := s.download.addConsumed()
	if pct, ok := computeProgress(consumed, s.download.getTotal()); ok {
		s.download.setProgress(pct)
	}

	s.metrics.MediaPacket(len(data))
}

func (s *Session) onFailure(r *run, err error) {
	connect := mmsPkg.IsConnectError(err)

	if s.failures.classify(err) == tolerate {
		r.tolerated = err
		s.metrics.ConnectFailure(true)
		s.log.Info().Err(err).Msg("connection failed, waiting for fallback")

		return
	}

	if connect {
		s.metrics.ConnectFailure(false)
	}

	s.fail(r, errors.NewMMSError(err, s.download.getURL(), connect))
}

func (s *Session) onClosed(r *run) {
	if s.download.getProgress() >= 100 {
		s.finish(r)
		return
	}

	cause := errors.ErrClosedByRemote
	if r.tolerated != nil {
		cause = fmt.Errorf("%w: %w", errors.ErrClosedByRemote, r.tolerated)
	}

	err := errors.WithDetails(errors.NewMMSError(cause, s.download.getURL(), false), map[string]interface{}{
		"packets":  s.download.getConsumed(),
		"declared": s.download.getTotal(),
	})

	s.download.setProgress(unknownProgress)
	s.fail(r, err)
}

func (s *Session) finish(r *run) {
	if !s.machine.can(eventEndOfStream) {
		return
	}

	s.disconnect(r)

	if err := s.sink.Close(); err != nil {
		s.fail(r, errors.NewIOError(err, s.sink.Path()))
		return
	}

	if s.transition(eventEndOfStream) {
		s.log.Info().
			Int64("packets", s.download.getConsumed()).
			Int64("declared", s.download.getTotal()).
			Msg("download finished")
	}
}

func (s *Session) fail(r *run, cause error) {
	if !s.machine.can(eventFail) {
		return
	}

	s.setErr(cause)
	s.disconnect(r)
	s.transition(eventFail)

	if err := s.sink.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing sink after failure")
	}

	s.log.Error().Err(cause).Msg("download failed")
}

func (s *Session) stop(r *run) error {
	if !s.machine.can(eventStop) {
		return nil
	}

	s.disconnect(r)

	// a partial file that lost its tail cannot be resumed
	if err := s.sink.Close(); err != nil {
		ioErr := errors.NewIOError(err, s.sink.Path())
		s.fail(r, ioErr)

		return ioErr
	}

	s.transition(eventStop)
	s.log.Info().Int64("packets", s.download.getConsumed()).Msg("download stopped")

	return nil
}

func (s *Session) cancel(r *run) error {
	var stopErr error
	if s.machine.can(eventStop) {
		stopErr = s.stop(r)
	}

	if !s.transition(eventCancel) {
		// a failed download stays failed but loses its partial output
		if s.Status() == status.Failed {
			s.removePartial()
		}

		return stopErr
	}

	s.removePartial()

	return stopErr
}

func (s *Session) removePartial() {
	path := s.sink.Path()
	if path == "" {
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("path", path).Msg("could not delete partial file")
	}
}

func (s *Session) disconnect(r *run) {
	if r == nil || r.transport == nil {
		return
	}

	if err := r.transport.Disconnect(); err != nil {
		s.log.Debug().Err(err).Msg("disconnect")
	}
}

// transition fires event and persists the record when the state changed.
func (s *Session) transition(event string) bool {
	from := s.machine.current()

	ok, err := s.machine.fire(event)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("state transition failed")
		return false
	}

	if !ok {
		s.log.Debug().Str("event", event).Str("state", from).Msg("event ignored")
		return false
	}

	s.log.Debug().Str("from", from).Str("to", s.machine.current()).Msg("state changed")

	if err := s.save(); err != nil {
		s.log.Warn().Err(err).Msg("download not persisted")
	}

	return true
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()

	s.download.setError(err)
}

// save persists the record. The sink is flushed first so the stored packet
// count never runs ahead of the bytes on disk.
func (s *Session) save() error {
	if s.store == nil {
		return nil
	}

	// terminal records are never resumed, so they are kept even when the
	// flush fails
	if err := s.sink.Flush(); err != nil && !status.IsTerminal(s.Status()) {
		return errors.NewIOError(err, s.sink.Path())
	}

	if err := s.store.Save(s.download); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist download")
	}

	return nil
}

func (s *Session) currentTransport() mmsPkg.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return nil
	}

	return s.run.transport
}

func (s *Session) logConnectInfo() {
	info, err := ParseConnectInfo(s.download.getURL())
	if err != nil {
		s.log.Debug().Err(err).Msg("connect info unavailable")
		return
	}

	s.log.Debug().
		Str("host", info.Host).
		Int("port", info.Port).
		Str("path", info.Path).
		Str("file", info.File).
		Msg("connect info")
}
