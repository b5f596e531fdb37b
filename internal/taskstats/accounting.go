//go:build linux

package taskstats

import (
	"bytes"
	"encoding/binary"
)

// taskstatsLayout mirrors the field order of struct taskstats from
// <linux/taskstats.h> closely enough to compute byte offsets for the
// fields this client reads. It exists purely as a compile-time offset
// generator — see computeOffsets() — not as a struct cast onto wire bytes,
// since alignment/padding rules for a C struct don't reliably match Go's.
type taskstatsLayout struct {
	version uint16
	_       [2]byte // implicit padding before ac_exitcode
	acExit  uint32
	acFlag  uint8
	acNice  uint8
	_       [6]byte // padding to the next 8-byte field

	cpuCount, cpuDelayTotal          uint64
	blkioCount, blkioDelayTotal      uint64
	swapinCount, swapinDelayTotal    uint64
	cpuRunRealTotal, cpuRunVirtTotal uint64

	acComm  [32]byte
	acSched uint8
	_       [3]byte
	acUID, acGID  uint32
	acPID, acPPID uint32
	acBtime       uint32
	acEtime       uint64

	acUtime, acStime     uint64
	acMinflt, acMajflt   uint64
	coremem, virtmem     uint64
	hiwaterRSS, hiwaterVM uint64

	readChar, writeChar         uint64
	readSyscalls, writeSyscalls uint64
	readBytes, writeBytes       uint64
}

// fieldOffsets caches the byte offset of each field this client reads,
// computed once via the arithmetic walk in computeOffsets.
type fieldOffsets struct {
	acComm                                              int
	acPID, acPPID                                       int
	cpuRunRealTotal, blkioDelayTotal, swapinDelayTotal int
}

var offsets = computeOffsets()

func computeOffsets() fieldOffsets {
	off := 0
	adv := func(n int) int { o := off; off += n; return o }

	adv(2) // version
	adv(2) // padding
	adv(4) // ac_exitcode
	adv(1) // ac_flag
	adv(1) // ac_nice
	adv(6) // padding to 8-byte boundary

	adv(8)                     // cpu_count
	adv(8)                     // cpu_delay_total
	adv(8)                     // blkio_count
	blkioDelayOff := adv(8)    // blkio_delay_total
	adv(8)                     // swapin_count
	swapinDelayOff := adv(8)   // swapin_delay_total
	cpuRunRealOff := adv(8)    // cpu_run_real_total
	adv(8)                     // cpu_run_virtual_total

	commOff := adv(32) // ac_comm
	adv(1)              // ac_sched
	adv(3)              // padding
	adv(4)              // ac_uid
	adv(4)              // ac_gid
	pidOff := adv(4)
	ppidOff := adv(4)
	adv(4) // ac_btime
	adv(8) // ac_etime
	adv(8) // ac_utime
	adv(8) // ac_stime
	adv(8) // ac_minflt
	adv(8) // ac_majflt
	adv(8) // coremem
	adv(8) // virtmem
	adv(8) // hiwater_rss
	adv(8) // hiwater_vm
	adv(8) // read_char
	adv(8) // write_char
	adv(8) // read_syscalls
	adv(8) // write_syscalls
	adv(8) // read_bytes
	adv(8) // write_bytes

	return fieldOffsets{
		acComm:           commOff,
		acPID:            pidOff,
		acPPID:           ppidOff,
		cpuRunRealTotal:  cpuRunRealOff,
		blkioDelayTotal:  blkioDelayOff,
		swapinDelayTotal: swapinDelayOff,
	}
}

// accounting holds the per-thread delay-accounting fields get_tgid_taskstats
// aggregates across a process's threads: the real-clock CPU time the task
// spent running, and the time it spent blocked on block I/O and swap-in,
// per <linux/taskstats.h>'s delay accounting fields.
type accounting struct {
	comm             string
	cpuRunRealTotal  uint64
	blkioDelayTotal  uint64
	swapinDelayTotal uint64
}

// readAccounting decodes the accounting fields this client needs from a raw
// TASKSTATS_TYPE_STATS payload using the precomputed field offsets. ac_comm
// is read here too since it sits before the pid/ppid fields this package
// also reads, and dump_taskstat's output line needs it regardless.
func readAccounting(b []byte) (accounting, error) {
	need := offsets.acComm + 32
	if len(b) < need {
		return accounting{}, errShortPayload
	}
	return accounting{
		comm:             cString(b[offsets.acComm : offsets.acComm+32]),
		cpuRunRealTotal:  binary.LittleEndian.Uint64(b[offsets.cpuRunRealTotal : offsets.cpuRunRealTotal+8]),
		blkioDelayTotal:  binary.LittleEndian.Uint64(b[offsets.blkioDelayTotal : offsets.blkioDelayTotal+8]),
		swapinDelayTotal: binary.LittleEndian.Uint64(b[offsets.swapinDelayTotal : offsets.swapinDelayTotal+8]),
	}, nil
}

// cString trims a fixed-width NUL-padded C string field down to its
// content, the way ac_comm arrives off the wire.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
