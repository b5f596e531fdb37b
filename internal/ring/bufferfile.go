//go:build linux

package ring

import (
	"fmt"
	"io"
	"os"
)

// BufferFile is a single logical append-only stream (e.g. "proc_stat.log",
// "1234.cmdline") multiplexed onto a shared Store's chunks. Writers
// never see chunk boundaries; BufferFile splits writes transparently.
type BufferFile struct {
	store *Store
	dest  string
	cur   *Chunk
}

// NewBufferFile opens a stream named dest against store, allocating its
// first chunk immediately so Append never has to special-case an empty
// file.
func NewBufferFile(store *Store, dest string) *BufferFile {
	return &BufferFile{
		store: store,
		dest:  dest,
		cur:   store.Alloc(dest),
	}
}

// Append writes p to the stream, splitting across chunk boundaries as
// needed. It never fails: once the chunk store itself has overflowed,
// writes continue to land in the reused final chunk per Store.Alloc.
func (f *BufferFile) Append(p []byte) {
	for len(p) > 0 {
		free := f.cur.free()
		if free <= 0 {
			f.cur = f.store.Alloc(f.dest)
			free = f.cur.free()
		}
		n := free
		if n > len(p) {
			n = len(p)
		}
		off := int(f.cur.length())
		copy(f.cur.payload()[off:off+n], p[:n])
		f.cur.setLength(uint64(off + n))
		p = p[n:]
	}
}

// Appendf is a convenience wrapper around Append+fmt.Sprintf, matching the
// printf-heavy framing the original dump routines use for system streams.
func (f *BufferFile) Appendf(format string, args ...any) {
	f.Append([]byte(fmt.Sprintf(format, args...)))
}

// Dump copies the entirety of r into the stream. Short reads are treated as
// end of input; a read error simply stops the copy, matching the
// best-effort nature of a boot-time sampler whose job is to never abort the
// tick on one bad /proc read.
func (f *BufferFile) Dump(r io.Reader) {
	buf := make([]byte, ChunkPayload)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			f.Append(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// DumpFrameWithTimestamp emits an uptime-prefixed frame: the timestamp
// string, a dump of r's full contents from offset 0, and a trailing blank
// line. This is the framing the sample loop uses for the three whole-system
// streams (proc_stat.log, proc_diskstats.log, proc_meminfo.log) so the
// dumper's consumer can split the stream back into per-tick records. r is
// opened once at loop construction and reused every tick, so this rewinds it
// before each dump, matching dump_frame_with_timestamp's lseek(fd, SEEK_SET,
// 0) before every read.
func (f *BufferFile) DumpFrameWithTimestamp(r *os.File, uptime string) {
	f.Append([]byte(uptime))
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return
	}
	f.Dump(r)
	f.Append([]byte("\n"))
}
