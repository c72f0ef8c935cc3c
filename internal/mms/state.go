package mms

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/NamanBalaji/mmsdl/internal/errors"
	"github.com/NamanBalaji/mmsdl/internal/status"
)

const (
	eventStreamMedia = "stream_media"
	eventEndOfStream = "end_of_stream"
	eventFail        = "fail"
	eventStop        = "stop"
	eventCancel      = "cancel"
	eventRestart     = "restart"
)

// stateMachine wraps looplab/fsm over the status names. Every entered state
// is mirrored into the download record.
type stateMachine struct {
	fsm *fsm.FSM
}

func newStateMachine(download *Download) *stateMachine {
	var (
		starting    = status.Name(status.Starting)
		downloading = status.Name(status.Downloading)
		finished    = status.Name(status.Finished)
		failed      = status.Name(status.Failed)
		stopped     = status.Name(status.Stopped)
		canceled    = status.Name(status.Canceled)
		running     = []string{starting, downloading}
	)

	return &stateMachine{
		fsm: fsm.NewFSM(
			status.Name(download.getStatus()),
			fsm.Events{
				{Name: eventStreamMedia, Src: []string{starting}, Dst: downloading},
				{Name: eventEndOfStream, Src: running, Dst: finished},
				{Name: eventFail, Src: running, Dst: failed},
				{Name: eventStop, Src: running, Dst: stopped},
				{Name: eventCancel, Src: []string{stopped}, Dst: canceled},
				{Name: eventRestart, Src: []string{stopped}, Dst: starting},
			},
			fsm.Callbacks{
				"enter_state": func(_ context.Context, e *fsm.Event) {
					if s, ok := status.FromName(e.Dst); ok {
						download.setStatus(s)
					}
				},
			},
		),
	}
}

// fire applies event. It reports false without error when the event is not
// valid in the current state, which is how late events are absorbed by
// terminal states.
func (m *stateMachine) fire(event string) (bool, error) {
	err := m.fsm.Event(context.Background(), event)
	if err == nil {
		return true, nil
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return false, nil
	}

	return false, err
}

func (m *stateMachine) can(event string) bool {
	return m.fsm.Can(event)
}

func (m *stateMachine) current() string {
	return m.fsm.Current()
}
