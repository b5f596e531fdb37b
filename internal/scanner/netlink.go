//go:build linux

package scanner

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/bootcollect/internal/pidmap"
)

// Connector netlink (NETLINK_CONNECTOR / CN_IDX_PROC) constants, from
// <linux/connector.h> and <linux/cn_proc.h>.
const (
	cnIdxProc = 0x1
	cnValProc = 0x1

	procCNMcastListen = 1

	procEventFork = 0x00000001
	procEventExec = 0x00000002
	procEventExit = 0x80000000

	cnMsgHdrLen   = 20 // struct cn_msg up to and including the data[] start
	procEventHdrLen = 16 // what/cpu/timestamp prologue of proc_event
)

// process tracks one observed pid's parent and thread set, mirroring the
// original NetLinkPidScanner's Process table.
type process struct {
	pid     int
	parent  int
	threads []int
}

type netlinkScanner struct {
	fd int

	mu      sync.Mutex
	procs   []process // sorted by pid
	events  []Event
	closing chan struct{}

	known *pidmap.Map

	entries []process
	idx     int
	curPid  int
	curPpid int
}

func newNetlinkScanner(known *pidmap.Map) (Scanner, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, fmt.Errorf("scanner: netlink socket: %w", err)
	}
	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: cnIdxProc, Pid: uint32(os.Getpid())}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("scanner: netlink bind: %w", err)
	}

	s := &netlinkScanner{fd: fd, closing: make(chan struct{}), known: known}
	if known == nil {
		s.known = pidmap.New(0)
	}

	if err := s.subscribe(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if err := s.bootstrap(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	go s.listen()
	return s, nil
}

// subscribe sends PROC_CN_MCAST_LISTEN and waits briefly for the kernel's
// loopback ack, matching the original's bounded poll-for-ack handshake.
func (s *netlinkScanner) subscribe() error {
	op := make([]byte, 4)
	binary.LittleEndian.PutUint32(op, procCNMcastListen)
	msg := wrapConnector(cnValProc, cnIdxProc, 0, 0, op)

	if err := unix.Sendto(s.fd, msg, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return fmt.Errorf("scanner: netlink subscribe: %w", err)
	}

	deadline := time.Now().Add(50 * time.Millisecond)
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		unix.SetNonblock(s.fd, true)
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		const evOff = 16 + cnMsgHdrLen // nlmsghdr + cn_msg
		if err == nil && n >= evOff+procEventHdrLen+4 {
			ev := buf[evOff:n]
			if binary.LittleEndian.Uint32(ev[0:4]) == 0 { // PROC_EVENT_NONE
				if code := binary.LittleEndian.Uint32(ev[procEventHdrLen : procEventHdrLen+4]); code != 0 {
					return fmt.Errorf("scanner: netlink subscribe: ack error %d", code)
				}
				return nil
			}
			continue
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("scanner: netlink subscribe: no ack within deadline")
}

// bootstrap walks /proc once up front so the scanner has a complete process
// table before the first tick, since connector events only report changes
// from the moment of subscription onward.
func (s *netlinkScanner) bootstrap() error {
	dir, err := os.Open("/proc")
	if err != nil {
		return fmt.Errorf("scanner: bootstrap: %w", err)
	}
	defer dir.Close()
	names, err := dir.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("scanner: bootstrap: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		pid, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		ppid, err := readPpid(pid)
		if err != nil {
			continue
		}
		tasks, _ := readTasks(pid)
		s.insertLocked(process{pid: pid, parent: ppid, threads: tasks})
	}
	return nil
}

func (s *netlinkScanner) insertLocked(p process) {
	i := sort.Search(len(s.procs), func(i int) bool { return s.procs[i].pid >= p.pid })
	if i < len(s.procs) && s.procs[i].pid == p.pid {
		s.procs[i] = p
		return
	}
	s.procs = append(s.procs, process{})
	copy(s.procs[i+1:], s.procs[i:])
	s.procs[i] = p
}

func (s *netlinkScanner) removeLocked(pid int) {
	i := sort.Search(len(s.procs), func(i int) bool { return s.procs[i].pid >= pid })
	if i < len(s.procs) && s.procs[i].pid == pid {
		s.procs = append(s.procs[:i], s.procs[i+1:]...)
	}
}

// listen blocks on Recvfrom and dispatches FORK/EXIT/EXEC notifications.
// FORK updates the process table and queues an EventCreated for a pid not
// yet seen; EXIT removes the pid; EXEC queues an EventExec so the sample
// loop re-dumps that pid's cmdline. The sample loop observes queued events
// at its own pace via Events.
func (s *netlinkScanner) listen() {
	unix.SetNonblock(s.fd, false)
	buf := make([]byte, 16*1024)
	for {
		select {
		case <-s.closing:
			return
		default:
		}
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return
		}
		s.handle(buf[:n])
	}
}

func (s *netlinkScanner) handle(b []byte) {
	what, pid, ppid, ok := parseProcEvent(b)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch what {
	case procEventFork:
		s.insertLocked(process{pid: pid, parent: ppid})
		if !s.known.Contains(pid) {
			s.events = append(s.events, Event{Type: EventCreated, Pid: pid, Parent: ppid})
		}
	case procEventExit:
		s.removeLocked(pid)
		s.known.Clear(pid)
	case procEventExec:
		s.events = append(s.events, Event{Type: EventExec, Pid: pid})
	}
}

func (s *netlinkScanner) Restart() {
	s.mu.Lock()
	s.entries = append(s.entries[:0], s.procs...)
	s.mu.Unlock()
	s.idx = -1
}

func (s *netlinkScanner) Next() bool {
	s.idx++
	if s.idx >= len(s.entries) {
		return false
	}
	p := s.entries[s.idx]
	s.curPid, s.curPpid = p.pid, p.parent
	s.known.Set(p.pid)
	return true
}

func (s *netlinkScanner) Pid() int  { return s.curPid }
func (s *netlinkScanner) Ppid() int { return s.curPpid }

func (s *netlinkScanner) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func (s *netlinkScanner) Tasks() ([]int, error) {
	return readTasks(s.curPid)
}

func (s *netlinkScanner) Close() error {
	close(s.closing)
	return unix.Close(s.fd)
}

// wrapConnector builds a full nlmsghdr + cn_msg + payload packet.
func wrapConnector(idx, val uint32, seq, ack uint32, data []byte) []byte {
	cnMsg := make([]byte, cnMsgHdrLen+len(data))
	binary.LittleEndian.PutUint32(cnMsg[0:4], idx)
	binary.LittleEndian.PutUint32(cnMsg[4:8], val)
	binary.LittleEndian.PutUint32(cnMsg[8:12], seq)
	binary.LittleEndian.PutUint32(cnMsg[12:16], ack)
	binary.LittleEndian.PutUint16(cnMsg[16:18], uint16(len(data)))
	// cnMsg[18:20] flags left zero
	copy(cnMsg[cnMsgHdrLen:], data)

	const nlmsgHdrLen = 16
	total := nlmsgHdrLen + len(cnMsg)
	out := make([]byte, (total+3)&^3)
	binary.LittleEndian.PutUint32(out[0:4], uint32(total))
	binary.LittleEndian.PutUint16(out[4:6], unix.NLMSG_DONE)
	binary.LittleEndian.PutUint16(out[6:8], 0) // flags
	binary.LittleEndian.PutUint32(out[8:12], seq)
	binary.LittleEndian.PutUint32(out[12:16], uint32(unix.Getpid()))
	copy(out[16:], cnMsg)
	return out
}

// parseProcEvent strips the nlmsghdr+cn_msg prologue and decodes a
// proc_event's "what" discriminant plus the pid/ppid pair relevant to
// FORK/EXIT/EXEC, ignoring the fields this scanner doesn't use (uid/gid,
// timestamps, exit code).
func parseProcEvent(b []byte) (what uint32, pid, ppid int, ok bool) {
	const nlmsgHdrLen = 16
	if len(b) < nlmsgHdrLen+cnMsgHdrLen+procEventHdrLen {
		return 0, 0, 0, false
	}
	body := b[nlmsgHdrLen+cnMsgHdrLen:]
	what = binary.LittleEndian.Uint32(body[0:4])
	rest := body[procEventHdrLen:]

	switch what {
	case procEventFork:
		if len(rest) < 16 {
			return 0, 0, 0, false
		}
		ppid = int(binary.LittleEndian.Uint32(rest[0:4]))
		pid = int(binary.LittleEndian.Uint32(rest[8:12]))
		return what, pid, ppid, true
	case procEventExec:
		if len(rest) < 8 {
			return 0, 0, 0, false
		}
		pid = int(binary.LittleEndian.Uint32(rest[0:4]))
		return what, pid, 0, true
	case procEventExit:
		if len(rest) < 8 {
			return 0, 0, 0, false
		}
		pid = int(binary.LittleEndian.Uint32(rest[0:4]))
		return what, pid, 0, true
	default:
		return what, 0, 0, false
	}
}

// FindRunningPid scans /proc/*/exe for a process named progName, skipping
// this process and any other instance invoked with --usleep (a helper
// sibling, not the real collector). This recovers
// bootchart_find_running_pid from the original implementation for the
// dumper's --probe-running contract.
func FindRunningPid(progName string) (int, error) {
	self := os.Getpid()
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self {
			continue
		}
		exe, err := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))
		if err != nil {
			continue
		}
		if filepath.Base(exe) != progName {
			continue
		}
		cmdline, err := os.ReadFile(filepath.Join("/proc", e.Name(), "cmdline"))
		if err != nil {
			continue
		}
		if hasUsleepArg(cmdline) {
			continue
		}
		return pid, nil
	}
	return 0, fmt.Errorf("scanner: no running %s found", progName)
}

func hasUsleepArg(cmdline []byte) bool {
	args := splitNulArgs(cmdline)
	for _, a := range args {
		if a == "--usleep" {
			return true
		}
	}
	return false
}

func splitNulArgs(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	return out
}
