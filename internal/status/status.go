package status

type Status = int32

const (
	Starting Status = iota
	Downloading
	Finished
	Failed
	Stopped
	Canceled
)

var names = map[Status]string{
	Starting:    "starting",
	Downloading: "downloading",
	Finished:    "finished",
	Failed:      "failed",
	Stopped:     "stopped",
	Canceled:    "canceled",
}

// Name returns the lower-case label of s, also used as the state machine
// state name.
func Name(s Status) string {
	if n, ok := names[s]; ok {
		return n
	}

	return "unknown"
}

// FromName is the inverse of Name.
func FromName(name string) (Status, bool) {
	for s, n := range names {
		if n == name {
			return s, true
		}
	}

	return 0, false
}

// IsRunning reports whether a session in state s holds a transport.
func IsRunning(s Status) bool {
	return s == Starting || s == Downloading
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s Status) bool {
	return s == Finished || s == Failed || s == Canceled
}
