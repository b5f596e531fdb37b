//go:build linux

// Package header recovers the original dumper's peripheral host-identity
// and kernel-log formatters (dump_header/dump_dmsg). Neither participates
// in the core ring/scanner/taskstats data path; both are invoked once,
// after extraction, to drop two small auxiliary files next to the streams
// the dumper wrote.
package header

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// WriteHostHeader writes a "header" file under outputPath describing the
// host the collection ran on: uname fields, cpuinfo, and kernel cmdline,
// matching dump_header's field selection.
func WriteHostHeader(outputPath string) error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return fmt.Errorf("header: uname: %w", err)
	}

	cpuinfo, _ := os.ReadFile("/proc/cpuinfo")
	cmdline, _ := os.ReadFile("/proc/cmdline")

	f, err := os.Create(filepath.Join(outputPath, "header"))
	if err != nil {
		return fmt.Errorf("header: create: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "version = bootcollect\n")
	fmt.Fprintf(f, "title = Boot chart for %s (%s)\n", cstr(uts.Nodename[:]), time.Now().Format(time.RFC1123))
	fmt.Fprintf(f, "system.uname = %s %s %s\n", cstr(uts.Sysname[:]), cstr(uts.Release[:]), cstr(uts.Machine[:]))
	fmt.Fprintf(f, "system.kernel.options = %s\n", string(cmdline))
	fmt.Fprintf(f, "system.cpu =\n%s\n", string(cpuinfo))
	return nil
}

// WriteDmesg snapshots the kernel ring buffer via syslog(2) into a "dmesg"
// file under outputPath, matching dump_dmsg.
func WriteDmesg(outputPath string) error {
	n, err := unix.Klogctl(10 /* SYSLOG_ACTION_SIZE_BUFFER */, nil)
	if err != nil {
		return fmt.Errorf("header: klogctl size: %w", err)
	}
	buf := make([]byte, n)
	n, err = unix.Klogctl(3 /* SYSLOG_ACTION_READ_ALL */, buf)
	if err != nil {
		return fmt.Errorf("header: klogctl read: %w", err)
	}
	return os.WriteFile(filepath.Join(outputPath, "dmesg"), buf[:n], 0o644)
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
