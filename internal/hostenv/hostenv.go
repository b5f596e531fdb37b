//go:build linux

// Package hostenv recovers the original collector's scratch-filesystem
// bring-up: a private tmpfs mounted under a fixed path, independent of
// whatever filesystems are already mounted this early in boot. The log
// chunks themselves stay in memory and the dumper writes to its own output
// path; nothing in this module writes into the tmpfs. This is peripheral to
// the sampling/dumping core and is skipped when Setup is not called (the
// collector's --no-hostenv flag) for tests, CI, and non-boot invocations
// that can't or don't need to mount anything.
package hostenv

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// TmpfsPath is where the collector's scratch tmpfs is mounted, matching the
// original's PKGLIBDIR-relative TMPFS_PATH layout, rebased under /run since
// this module doesn't carry the original's autoconf-time PKGLIBDIR.
const TmpfsPath = "/run/bootcollect/tmpfs"

// Setup mounts a private tmpfs at TmpfsPath (creating it if necessary) and
// registers a SIGTERM handler that unmounts it before the process exits,
// matching the original's term_handler/setup_sigaction pairing. It returns
// a cleanup func the caller should invoke on normal exit as well.
func Setup() (cleanup func(), err error) {
	if err := os.MkdirAll(TmpfsPath, 0o755); err != nil {
		return nil, fmt.Errorf("hostenv: mkdir %s: %w", TmpfsPath, err)
	}
	if err := unix.Mount("tmpfs", TmpfsPath, "tmpfs", 0, "size=64m"); err != nil {
		return nil, fmt.Errorf("hostenv: mount tmpfs at %s: %w", TmpfsPath, err)
	}

	unmount := func() {
		_ = unix.Unmount(TmpfsPath, 0)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigc; ok {
			unmount()
			os.Exit(0)
		}
	}()

	return func() {
		signal.Stop(sigc)
		close(sigc)
		unmount()
	}, nil
}

// AmInInitrd reports whether this process is running inside an initramfs,
// recovering am_in_initrd's heuristic: /proc/1/comm naming the init program
// while /dev lacks the real root's persistent device nodes is a reasonable
// enough signal pre-switch_root; this simplified check instead looks for
// the kernel command line's "root=" pointing at a ram-disk-style source
// ("root=/dev/ram") or an "rdinit=" option,
// which is the detail the original actually cared about (whether it's safe
// to assume devtmpfs is already present).
func AmInInitrd() bool {
	b, err := os.ReadFile("/proc/cmdline")
	if err != nil {
		return false
	}
	return containsToken(string(b), "root=/dev/ram") || containsToken(string(b), "rdinit=")
}

func containsToken(s, tok string) bool {
	for i := 0; i+len(tok) <= len(s); i++ {
		if s[i:i+len(tok)] == tok {
			return true
		}
	}
	return false
}
