// Package diag provides the collector and dumper's structured logging,
// following the same log/slog idiom the teacher repo uses for its own
// diagnostics (see pkg/system/proc's error handling style), routed to
// /dev/kmsg during a real boot or to stderr when --console is requested or
// /dev/kmsg can't be opened.
package diag

import (
	"log/slog"
	"os"
)

// New returns a slog.Logger writing text-handler output to /dev/kmsg when
// console is false (matching the original collector's
// freopen(stderr, "/dev/kmsg") during a real boot), or to stderr when
// console is true or /dev/kmsg can't be opened — e.g. outside of a real
// boot environment, or without privilege to write the kernel log.
func New(console bool) *slog.Logger {
	w := os.Stderr
	if !console {
		if kmsg, err := os.OpenFile("/dev/kmsg", os.O_WRONLY, 0); err == nil {
			w = kmsg
		}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h)
}
