//go:build linux

package ring

import (
	"runtime"
)

// Magic is the byte sequence a Dumper looks for inside this process's
// [stack] VMA. It must be unique within the process's address space: the
// dumper does not disambiguate multiple matches, it takes the first one it
// finds scanning the stack from its base.
const Magic = "really-unique-stack-pointer-for-xp-detection-goodness"

const (
	magicFieldLen = 64 // padded field width; Magic (53 bytes) + NUL fits easily
	chunksLen     = maxChunks * 8
	stackMapLen   = magicFieldLen + chunksLen + 4 + 4 // + max_chunk + padding
)

// StackMap is the rendezvous record a Dumper locates by scanning this
// process's own stack memory. It must live on the stack (not the heap) for
// the scan to work, and its address must not move once published — see
// Pin and GrowStack below for how this package works around Go's moving
// goroutine stacks.
type StackMap struct {
	magic    [magicFieldLen]byte
	chunks   [maxChunks]uint64
	maxChunk int32
	_pad     int32
}

// NewStackMap initializes a StackMap in place. Call this only after the
// goroutine's stack has been pinned (see GrowStack/Pin below); the
// returned pointer must not be copied to a new location afterward.
func NewStackMap() *StackMap {
	sm := &StackMap{}
	copy(sm.magic[:], Magic)
	return sm
}

func (sm *StackMap) count() int { return int(sm.maxChunk) }

func (sm *StackMap) append(addr uint64) int {
	idx := int(sm.maxChunk)
	sm.chunks[idx] = addr
	sm.maxChunk++
	return idx
}

func (sm *StackMap) setAt(idx int, addr uint64) {
	sm.chunks[idx] = addr
}

// NewStore returns a chunk allocator backed by this StackMap.
func (sm *StackMap) NewStore() *Store {
	return newStore(sm)
}

// Pin is a deliberately non-inlined, opaque reference to sm. Calling it
// after NewStackMap discourages the compiler from proving the StackMap
// pointer dead before the dumper has a chance to read it; real liveness is
// still guaranteed by the constructors that thread *StackMap through
// BufferFile and the sampler, this just keeps the address from being an
// obviously escape-analyzable temporary.
//
//go:noinline
func Pin(sm *StackMap) uintptr {
	return uintptr(addrOfStackMap(sm))
}

func addrOfStackMap(sm *StackMap) uintptr {
	return uintptr(ptrOf(sm))
}

// GrowStack recurses to the given depth before returning, forcing the Go
// runtime to commit a stack segment large enough to cover it. The caller
// should invoke this once, to a depth comfortably beyond the sample loop's
// expected call depth, before constructing the StackMap — any stack growth
// that happens *after* the StackMap is published would relocate it and
// break the dumper's scan. This is a best-effort mitigation, not a proof:
// Go's stacks can still grow under sufficiently deep recursion or a large
// stack frame the probe didn't anticipate.
func GrowStack(depth int) {
	if depth <= 0 {
		runtime.KeepAlive(depth)
		return
	}
	var pad [256]byte // widen the frame so fewer recursive calls are needed
	pad[0] = byte(depth)
	GrowStack(depth - 1)
	runtime.KeepAlive(pad)
}
