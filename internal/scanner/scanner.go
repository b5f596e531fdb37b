//go:build linux

// Package scanner implements PidScanner: the sample loop's view of "which
// pids exist right now, and which ones are new since the last tick." Two
// backends satisfy the same interface — a netlink connector listener
// (preferred, event-driven) and a procfs walker (fallback, polling).
package scanner

import "github.com/ja7ad/bootcollect/internal/pidmap"

// Event is a process-lifecycle notification a Scanner may emit between
// Restart calls: a newly observed pid (with its parent, for paternity
// records) or a pid that just exec'd (for a cmdline re-dump).
type Event struct {
	Type   EventType
	Pid    int
	Parent int // valid for EventCreated
}

type EventType int

const (
	// EventCreated fires the first time a pid is seen; the sample loop
	// responds by emitting a paternity record and dumping its cmdline.
	EventCreated EventType = iota
	// EventExec fires when a known pid calls execve; the sample loop
	// responds by re-dumping its cmdline (the old one is now stale).
	EventExec
)

// Scanner enumerates the pids to sample on a tick, and optionally reports
// lifecycle events discovered between ticks. Implementations are not
// required to support live events (the procfs backend discovers
// "new since last tick" purely by diffing against the PidMap), but both
// backends satisfy this one interface so the sample loop never branches on
// which one it got.
type Scanner interface {
	// Restart begins a new enumeration pass, resetting iteration state.
	// The procfs backend also discards events not yet taken by Events; the
	// netlink backend keeps them. Call it once per tick before Next.
	Restart()

	// Next advances to the next pid in this pass, returning false when
	// exhausted.
	Next() bool

	// Pid and Ppid describe the pid Next most recently advanced to.
	Pid() int
	Ppid() int

	// Events drains lifecycle notifications discovered since the last
	// Restart. The procfs backend synthesizes EventCreated directly from
	// the PidMap; the netlink backend also reports EventExec.
	Events() []Event

	// Tasks enumerates the thread ids under the current pid (from Next),
	// for taskstats aggregation across threads of one tgid.
	Tasks() ([]int, error)

	// Close releases any backend resources (sockets, listener goroutines).
	Close() error
}

// New picks the netlink backend, falling back to the procfs backend if the
// connector socket can't be set up (missing privilege, kernel without
// CONFIG_PROC_EVENTS, etc). This mirrors the original collector's startup
// fallback exactly: netlink is strictly an optimization, procfs polling is
// always correct on its own.
func New(known *pidmap.Map) (Scanner, error) {
	if nl, err := newNetlinkScanner(known); err == nil {
		return nl, nil
	}
	return newProcfsScanner(known)
}
