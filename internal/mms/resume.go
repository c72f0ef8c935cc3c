package mms

import (
	"github.com/NamanBalaji/mmsdl/internal/errors"
)

type headerAction int

const (
	// writeHeader is a fresh start: the header goes to the sink first.
	writeHeader headerAction = iota
	// appendAfterHeader resumes: the header is dropped and the sink is
	// reopened for append.
	appendAfterHeader
	// restartFromScratch means packets were consumed earlier but the server
	// cannot resume, so the sink is truncated and the header written again.
	restartFromScratch
)

func (a headerAction) String() string {
	switch a {
	case writeHeader:
		return "write-header"
	case appendAfterHeader:
		return "append"
	case restartFromScratch:
		return "restart"
	default:
		return "unknown"
	}
}

// decideStart returns the packet at which streaming should begin.
func decideStart(pauseSupported bool, consumed int64) int64 {
	if pauseSupported && consumed > 0 {
		return consumed
	}

	return 0
}

// onHeaderReceived picks what to do with a header unit and reopens the sink
// when the action requires it. The reopen happens before any further write.
//
// Resuming reopens in append mode, which continues after whatever the sink
// already holds rather than after the last complete packet.
func onHeaderReceived(pauseSupported bool, consumed int64, sink Sink) (headerAction, error) {
	switch {
	case decideStart(pauseSupported, consumed) > 0:
		if err := reopen(sink, true); err != nil {
			return appendAfterHeader, err
		}

		return appendAfterHeader, nil
	case consumed > 0:
		if err := reopen(sink, false); err != nil {
			return restartFromScratch, err
		}

		return restartFromScratch, nil
	default:
		return writeHeader, nil
	}
}

func reopen(sink Sink, appendMode bool) error {
	if err := sink.Close(); err != nil {
		return errors.NewIOError(err, sink.Path())
	}

	if err := sink.Open(appendMode); err != nil {
		return errors.NewIOError(err, sink.Path())
	}

	return nil
}
