//go:build linux

package ring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferFileAppendSplitsAcrossChunks(t *testing.T) {
	sm := NewStackMap()
	store := sm.NewStore()
	bf := NewBufferFile(store, "test.log")

	big := strings.Repeat("x", ChunkPayload+100)
	bf.Append([]byte(big))

	assert.Equal(t, 2, sm.count(), "payload larger than one chunk should allocate a second")
}

func TestBufferFileDumpFrameWithTimestamp(t *testing.T) {
	sm := NewStackMap()
	store := sm.NewStore()
	bf := NewBufferFile(store, "sys.log")

	path := filepath.Join(t.TempDir(), "stat")
	require.NoError(t, os.WriteFile(path, []byte("cpu 1 2 3\n"), 0o644))
	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()

	bf.DumpFrameWithTimestamp(r, "12.34\n")

	got := string(bf.cur.payload()[:bf.cur.length()])
	assert.Equal(t, "12.34\ncpu 1 2 3\n\n", got)
}

func TestChunkStoreOverflowReusesFinalSlot(t *testing.T) {
	sm := NewStackMap()
	store := sm.NewStore()

	for i := 0; i < maxChunks+5; i++ {
		store.Alloc("overflow.log")
	}

	assert.Equal(t, maxChunks, sm.count(), "chunk table should saturate at maxChunks")
	assert.True(t, store.overflowed)
}

func TestStackMapMagicIsWellFormed(t *testing.T) {
	sm := NewStackMap()
	require.True(t, strings.HasPrefix(string(sm.magic[:]), Magic))
	assert.Less(t, len(Magic), magicFieldLen)
}

func TestChunkAddrMatchesStackMapEntry(t *testing.T) {
	sm := NewStackMap()
	store := sm.NewStore()
	c := store.Alloc("addr.log")

	assert.Equal(t, c.addr(), sm.chunks[0])
}
