//go:build linux

// Package sampler implements the collector's per-tick sampling loop: it
// drives a scanner.Scanner and taskstats.Client, and writes everything into
// ring.BufferFile streams.
package sampler

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ja7ad/bootcollect/internal/pidmap"
	"github.com/ja7ad/bootcollect/internal/ring"
	"github.com/ja7ad/bootcollect/internal/scanner"
	"github.com/ja7ad/bootcollect/internal/taskstats"
	"github.com/ja7ad/bootcollect/pkg/system/proc"
)

// Config holds the knobs from the CLI contract that shape the loop's
// cadence and behavior.
type Config struct {
	HZ           int    // samples per second; if both HZ and USleepMicros are 0, the interval is 100ms
	USleepMicros int    // explicit inter-sample delay in microseconds, overrides HZ if > 0
	RelativeTime bool   // frame records with time-since-start instead of raw uptime
	OutputPath   string // where the collector's stack resides; informational only
}

func (c Config) interval() time.Duration {
	if c.USleepMicros > 0 {
		return time.Duration(c.USleepMicros) * time.Microsecond
	}
	if c.HZ > 0 {
		return time.Second / time.Duration(c.HZ)
	}
	return 100 * time.Millisecond
}

// Loop is the running sample loop: it owns a StackMap/Store pair, every
// stream BufferFile, the scanner, and the taskstats client.
type Loop struct {
	cfg Config
	log *slog.Logger

	store *ring.Store
	known *pidmap.Map

	sysStat  *ring.BufferFile
	sysDisk  *ring.BufferFile
	sysMem   *ring.BufferFile
	taskLog  *ring.BufferFile // "taskstats.log" if ts != nil, else "proc_ps.log"
	paternal *ring.BufferFile

	sysStatFile *os.File
	sysDiskFile *os.File
	sysMemFile  *os.File

	scan scanner.Scanner
	ts   *taskstats.Client

	perPid     map[int]*ring.BufferFile // "<pid>.cmdline" stream per discovered pid
	dedupTable map[int]pidEntry

	startUptime uint64
}

// New constructs a Loop against sm's chunk store, opening the taskstats
// client and a scanner (netlink preferred, procfs fallback), and opening the
// three whole-system procfs fds once up front — the sample loop reuses and
// rewinds them every tick rather than reopening per tick.
func New(cfg Config, sm *ring.StackMap, log *slog.Logger) (*Loop, error) {
	store := sm.NewStore()
	known := pidmap.New(4096)

	sc, err := scanner.New(known)
	if err != nil {
		return nil, fmt.Errorf("sampler: scanner: %w", err)
	}

	ts, err := taskstats.Open()
	if err != nil {
		log.Warn("taskstats unavailable, per-pid stats will be a verbatim /proc/<pid>/stat dump", "err", err)
	}

	statFile, err := proc.OpenProcStat()
	if err != nil {
		return nil, fmt.Errorf("sampler: open /proc/stat: %w", err)
	}
	diskFile, err := proc.OpenDiskstats()
	if err != nil {
		return nil, fmt.Errorf("sampler: open /proc/diskstats: %w", err)
	}
	memFile, err := proc.OpenMeminfo()
	if err != nil {
		return nil, fmt.Errorf("sampler: open /proc/meminfo: %w", err)
	}

	taskLogName := "proc_ps.log"
	if ts != nil {
		taskLogName = "taskstats.log"
	}

	l := &Loop{
		cfg:         cfg,
		log:         log,
		store:       store,
		known:       known,
		sysStat:     ring.NewBufferFile(store, "proc_stat.log"),
		sysDisk:     ring.NewBufferFile(store, "proc_diskstats.log"),
		sysMem:      ring.NewBufferFile(store, "proc_meminfo.log"),
		taskLog:     ring.NewBufferFile(store, taskLogName),
		paternal:    ring.NewBufferFile(store, "paternity.log"),
		sysStatFile: statFile,
		sysDiskFile: diskFile,
		sysMemFile:  memFile,
		scan:        sc,
		ts:          ts,
		perPid:      make(map[int]*ring.BufferFile),
	}

	if up, err := proc.ReadUptime(); err == nil {
		l.startUptime = up
	}
	return l, nil
}

// Close releases the scanner, taskstats client, and the open procfs fds.
func (l *Loop) Close() {
	l.scan.Close()
	if l.ts != nil {
		l.ts.Close()
	}
	l.sysStatFile.Close()
	l.sysDiskFile.Close()
	l.sysMemFile.Close()
}

// Run ticks forever (or until stop is closed), sampling the system and
// every known pid once per tick.
func (l *Loop) Run(stop <-chan struct{}) {
	interval := l.cfg.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick performs exactly one sampling pass: snapshot the three whole-system
// procfs files with an uptime-framed header, then walk the scanner's pid
// set, dumping taskstats (or a /proc/<pid>/stat fallback) per pid, emitting
// paternity and cmdline records for anything newly observed.
func (l *Loop) tick() {
	uptime, err := proc.ReadUptime()
	if err != nil {
		l.log.Warn("read uptime failed", "err", err)
		return
	}
	ts := l.formatUptime(uptime)

	l.snapshotSystem(ts)

	l.taskLog.Append([]byte(ts))
	l.scan.Restart()
	for l.scan.Next() {
		pid := l.scan.Pid()
		ppid := l.scan.Ppid()
		l.sampleTask(pid, ppid)
	}
	l.taskLog.Append([]byte("\n"))

	for _, ev := range l.scan.Events() {
		switch ev.Type {
		case scanner.EventCreated:
			l.onCreated(ev.Pid, ev.Parent)
		case scanner.EventExec:
			l.onExec(ev.Pid)
		}
	}
}

func (l *Loop) formatUptime(centiseconds uint64) string {
	if l.cfg.RelativeTime {
		if centiseconds >= l.startUptime {
			centiseconds -= l.startUptime
		} else {
			centiseconds = 0
		}
	}
	return fmt.Sprintf("%d.%02d\n", centiseconds/100, centiseconds%100)
}

func (l *Loop) snapshotSystem(ts string) {
	l.sysStat.DumpFrameWithTimestamp(l.sysStatFile, ts)
	l.sysDisk.DumpFrameWithTimestamp(l.sysDiskFile, ts)
	l.sysMem.DumpFrameWithTimestamp(l.sysMemFile, ts)
}

// sampleTask records one pid's taskstats (falling back to a verbatim
// /proc/<pid>/stat dump when the netlink client is unavailable or the
// process has already exited), deduplicating against the last emitted
// (ppid, time_total) pair the way dump_taskstat does, so an unchanged
// process doesn't produce a fresh line every tick. time_total is the sum of
// the three delay-accounting fields the taskstats path reports; the procfs
// fallback dumps verbatim and is not deduplicated, matching dump_proc_stat.
func (l *Loop) sampleTask(pid, ppid int) {
	if l.ts == nil {
		l.dumpProcStatVerbatim(pid)
		return
	}
	st, err := l.ts.GetTgid(pid, l.scan)
	if err != nil {
		l.dumpProcStatVerbatim(pid)
		return
	}
	reportPpid := ppid
	if reportPpid == 0 {
		reportPpid = int(st.AcPpid)
	}
	if l.dedup(pid, reportPpid, st.TimeTotal()) {
		return
	}
	l.taskLog.Appendf("%d %d %s %d %d %d\n",
		pid, reportPpid, st.Comm, st.CpuRunRealTotal, st.BlkioDelayTotal, st.SwapinDelayTotal)
}

// dumpProcStatVerbatim copies /proc/<pid>/stat's raw contents into the
// task stream (taskLog), matching dump_proc_stat: no parsing, no dedup, just the
// file's bytes as they stand right now.
func (l *Loop) dumpProcStatVerbatim(pid int) {
	f, err := proc.OpenPidStat(pid)
	if err != nil {
		return
	}
	defer f.Close()
	l.taskLog.Dump(f)
}

type pidEntry struct {
	ppid      int
	timeTotal uint64
}

func (l *Loop) dedup(pid, ppid int, timeTotal uint64) (skip bool) {
	if l.dedupTable == nil {
		l.dedupTable = make(map[int]pidEntry)
	}
	prev, ok := l.dedupTable[pid]
	l.dedupTable[pid] = pidEntry{ppid: ppid, timeTotal: timeTotal}
	return ok && prev.ppid == ppid && prev.timeTotal == timeTotal
}

func (l *Loop) onCreated(pid, ppid int) {
	l.paternal.Appendf("%d %d\n", pid, ppid)
	l.dumpCmdline(pid)
}

func (l *Loop) onExec(pid int) {
	l.dumpCmdline(pid)
}

// dumpCmdline appends a record for pid to that pid's own "<pid>.cmdline"
// stream: "<pid>\n:<pid>.cmdline\n:", then each NUL-separated argv element
// of /proc/<pid>/cmdline followed by a newline, then "\n\n". The record does
// not carry the /proc/<pid>/exe path (the second field repeats the stream
// name), and no shared cmdline2.log stream is written.
func (l *Loop) dumpCmdline(pid int) {
	f, err := proc.OpenCmdline(pid)
	if err != nil {
		return
	}
	defer f.Close()

	buf := make([]byte, 4096)
	n, _ := f.Read(buf)
	args := splitArgv(buf[:n])

	streamName := fmt.Sprintf("%d.cmdline", pid)
	bf, ok := l.perPid[pid]
	if !ok {
		bf = ring.NewBufferFile(l.store, streamName)
		l.perPid[pid] = bf
	}

	bf.Appendf("%d\n:%s\n:", pid, streamName)
	for _, a := range args {
		bf.Append([]byte(a))
		bf.Append([]byte{'\n'})
	}
	bf.Append([]byte("\n\n"))
}

func splitArgv(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			if i > start {
				arg := string(b[start:i])
				out = append(out, replaceNewlines(arg))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, replaceNewlines(string(b[start:])))
	}
	return out
}

// replaceNewlines rewrites any embedded newline in an argv element to a NUL
// byte, matching dump_cmdline's escaping: the on-disk format uses bare
// newlines as the argv separator, so a literal newline inside an argument
// has to be neutralized first.
func replaceNewlines(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c == '\n' {
			out[i] = 0
		}
	}
	return string(out)
}
