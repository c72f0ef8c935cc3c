package mms

import (
	mmsPkg "github.com/NamanBalaji/mmsdl/pkg/mms"
)

type verdict int

const (
	tolerate verdict = iota
	fatal
)

// connectFailures tolerates the first connection failure of a run. The
// transport answers that failure by retrying over its fallback framing, so
// only a second one means the server is unreachable.
type connectFailures struct {
	count int
}

func (c *connectFailures) classify(err error) verdict {
	if !mmsPkg.IsConnectError(err) {
		return fatal
	}

	c.count++
	if c.count < 2 {
		return tolerate
	}

	return fatal
}

func (c *connectFailures) reset() {
	c.count = 0
}
