package mms

import (
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
)

type eventKind int

const (
	evMessage eventKind = iota
	evUnit
	evFailure
	evClosed
)

// event is one transport callback, queued for the session loop.
type event struct {
	kind eventKind
	msg  mmsPkg.ControlMessage
	unit mmsPkg.DataUnit
	err  error
}

// The transport talks to three independent handlers. Each only forwards
// into the owning run; the session loop does all the work.

type controlHandler struct{ r *run }

func (h controlHandler) HandleMessage(msg mmsPkg.ControlMessage) {
	h.r.post(event{kind: evMessage, msg: msg})
}

type dataHandler struct{ r *run }

func (h dataHandler) HandleUnit(unit mmsPkg.DataUnit) {
	h.r.post(event{kind: evUnit, unit: unit})
}

type lifecycleHandler struct{ r *run }

func (h lifecycleHandler) TransportFailed(err error) {
	h.r.post(event{kind: evFailure, err: err})
}

func (h lifecycleHandler) SessionClosed() {
	h.r.post(event{kind: evClosed})
}

func (r *run) handlers() mmsPkg.Handlers {
	return mmsPkg.Handlers{
		Control:   controlHandler{r: r},
		Data:      dataHandler{r: r},
		Lifecycle: lifecycleHandler{r: r},
	}
}
