//go:build linux

// Package ring implements the collector's in-memory log: fixed-size chunks
// threaded onto a StackMap that a separate, ptrace-attached process can find
// by scanning this process's own stack and walking the chunk pointers it
// records there.
package ring

import (
	"fmt"
	"sync"

	"github.com/ja7ad/bootcollect/pkg/types"
)

const (
	// ChunkSize is the total size of one allocation unit, header included.
	// 128KiB gives ~128MB of total log space across the 1024-slot StackMap,
	// which comfortably covers a boot.
	ChunkSize = 128 * 1024

	// destStreamLen is the fixed width of the dest_stream field in the
	// on-disk/in-memory chunk header.
	destStreamLen = 60

	// headerLen is destStreamLen (60) + an 8 byte little-endian length field.
	headerLen = destStreamLen + 8

	// ChunkPayload is the usable byte count after the header.
	ChunkPayload = ChunkSize - headerLen

	// maxChunks bounds the StackMap's address table, same ceiling the
	// original format uses.
	maxChunks = 1024
)

// Chunk is one fixed-size page of the collector's log. The first headerLen
// bytes are the wire header (dest stream name + length); the remainder is
// payload. Memory here is ordinary Go heap, stable in address once
// allocated, but its address is *also* recorded as a raw uint64 in the
// enclosing StackMap so an external reader can find it without cooperation.
// That means this Chunk must be kept reachable from Go's perspective for as
// long as its address lives in the StackMap — see Store.keepAlive.
type Chunk struct {
	buf []byte // len == ChunkSize, header followed by payload
}

func newChunk(destStream string) *Chunk {
	c := &Chunk{buf: make([]byte, ChunkSize)}
	n := copy(c.buf[:destStreamLen], destStream)
	for i := n; i < destStreamLen; i++ {
		c.buf[i] = 0
	}
	return c
}

func (c *Chunk) length() uint64 {
	return leUint64(c.buf[destStreamLen:headerLen])
}

func (c *Chunk) setLength(n uint64) {
	putLEUint64(c.buf[destStreamLen:headerLen], n)
}

func (c *Chunk) free() int {
	return ChunkPayload - int(c.length())
}

func (c *Chunk) payload() []byte {
	return c.buf[headerLen:]
}

// addr returns the Go-heap address of the chunk's backing array as a raw
// integer, the form the StackMap wire format requires.
func (c *Chunk) addr() uint64 {
	return addrOf(c.buf)
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLEUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// Store owns chunk allocation for one StackMap: it appends new Chunks,
// reuses the final slot on overflow exactly as the original implementation
// does, and keeps every allocated Chunk reachable so the garbage collector
// never reclaims memory whose only remaining reference is the raw address
// recorded in the StackMap.
type Store struct {
	mu         sync.Mutex
	sm         *StackMap
	keepAlive  []*Chunk // parallel to sm.chunks; index i keeps sm.chunks[i] alive
	overflowed bool
}

func newStore(sm *StackMap) *Store {
	return &Store{sm: sm}
}

// Alloc returns a fresh Chunk for destStream, or — once the StackMap's chunk
// table is full — reuses the final slot, truncating it and logging once.
// This mirrors chunk_alloc in the original implementation exactly: overflow
// is lossy by design, not an error condition the caller must handle.
func (s *Store) Alloc(destStream string) *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := newChunk(destStream)

	if s.sm.count() < maxChunks {
		idx := s.sm.append(c.addr())
		s.keepAlive = append(s.keepAlive, c)
		_ = idx
		return c
	}

	if !s.overflowed {
		s.overflowed = true
		fmt.Printf("bootcollect: chunk store overflowed at %d chunks (%s); reusing final slot\n",
			maxChunks, types.Bytes(maxChunks*ChunkSize).Humanized())
	}
	last := maxChunks - 1
	s.keepAlive[last] = c
	s.sm.setAt(last, c.addr())
	return c
}
