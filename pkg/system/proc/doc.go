// Package proc provides lightweight, zero-dependency readers over Linux
// procfs, used by the sample loop.
//
// Per-PID readers
//
//	ReadProcStat(pid)     -> utime, stime, minflt, majflt jiffies
//	ReadProcIO(pid)       -> read_bytes, write_bytes
//	ReadProcRSS(pid)      -> resident set size in bytes
//	ReadProcChildren(pid) -> direct child pids, via /proc/<pid>/task/*/children
//
// System-level readers
//
//	ReadSystemCPU() -> aggregate active/total CPU jiffies from /proc/stat
//	ReadUptime()    -> centiseconds since boot from /proc/uptime
//	OpenProcStat/OpenDiskstats/OpenMeminfo -> fds opened once at loop
//	construction and re-read from offset 0 every tick
//	OpenPidStat/OpenCmdline -> single-shot per-pid fd opens
//
// Helpers
//
//	ClockTicks() -> jiffies per second (CLK_TCK), with a CLK_TCK env override for tests
//	PageSize()   -> system page size, with a PAGE_SIZE env override for tests
//	Exists(pid)  -> whether /proc/<pid> exists
//
// None of these readers retain state between calls; callers needing deltas
// keep their own previous-value tables.
//
// Package import path: github.com/ja7ad/bootcollect/pkg/system/proc
package proc
