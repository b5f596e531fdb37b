//go:build linux

package dumper

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// handle holds the ptrace attachment and the open /proc/<pid>/mem fd used
// for positional reads of the target's memory, matching open_pid's
// "attach, then open mem" ordering: opening /proc/pid/mem before attaching
// is refused by the kernel on a process this one doesn't otherwise own.
type handle struct {
	pid int
	mem *os.File
}

func attach(pid int) (*handle, error) {
	if err := unix.PtraceAttach(pid); err != nil {
		return nil, fmt.Errorf("dumper: ptrace attach %d: %w", pid, err)
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		unix.PtraceDetach(pid)
		return nil, fmt.Errorf("dumper: wait4 %d: %w", pid, err)
	}

	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDONLY, 0)
	if err != nil {
		unix.PtraceDetach(pid)
		return nil, fmt.Errorf("dumper: open /proc/%d/mem: %w", pid, err)
	}

	return &handle{pid: pid, mem: mem}, nil
}

func (h *handle) detach() {
	h.mem.Close()
	unix.PtraceDetach(h.pid)
}

// terminate sends SIGTERM, detaches, and polls for the process to actually
// be gone before returning, matching close_wait_pid's up-to-100-attempts,
// 10ms-apart poll of /proc/<pid>/cmdline's accessibility.
func (h *handle) terminate() {
	unix.Kill(h.pid, unix.SIGTERM)
	unix.PtraceDetach(h.pid)
	h.mem.Close()

	for i := 0; i < 100; i++ {
		if _, err := os.Stat(fmt.Sprintf("/proc/%d/cmdline", h.pid)); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// readRemote performs a positional read of the target's memory at addr
// into buf, retrying on EINTR/EAGAIN and accumulating partial reads the way
// find_chunks does.
func (h *handle) readRemote(addr uint64, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := h.mem.ReadAt(buf[total:], int64(addr)+int64(total))
		if n > 0 {
			total += n
			continue
		}
		if err == nil {
			return fmt.Errorf("dumper: short read at 0x%x (%d/%d bytes)", addr, total, len(buf))
		}
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			continue
		}
		return fmt.Errorf("dumper: read at 0x%x: %w", addr, err)
	}
	return nil
}
