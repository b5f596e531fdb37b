//go:build linux

package dumper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeDest(t *testing.T) {
	assert.Equal(t, "unknown", sanitizeDest(""))
	assert.Equal(t, "proc_stat.log", sanitizeDest("proc_stat.log"))
	assert.Equal(t, "usr/bin/foo/123", sanitizeDest("/usr/bin/foo/123"))
}

func TestCstrTrim(t *testing.T) {
	b := make([]byte, destStreamLen)
	copy(b, "proc_stat.log")
	assert.Equal(t, "proc_stat.log", cstrTrim(b))
}

func TestLeUint64RoundTrip(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	got := leUint64(b)
	assert.Equal(t, uint64(0x0807060504030201), got)
}

func TestIndexOf(t *testing.T) {
	hay := []byte("xxxxmarkerxxxx")
	assert.Equal(t, 4, indexOf(hay, []byte("marker")))
	assert.Equal(t, -1, indexOf(hay, []byte("absent")))
	assert.Equal(t, -1, indexOf([]byte("short"), []byte("longerthanhay")))
}

func TestAppendToFileCreatesNestedDest(t *testing.T) {
	dir := t.TempDir()
	err := appendToFile(dir, "/usr/bin/foo/123", []byte("hello"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "usr/bin/foo/123"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	// appends, doesn't overwrite
	require.NoError(t, appendToFile(dir, "/usr/bin/foo/123", []byte(" world")))
	b, err = os.ReadFile(filepath.Join(dir, "usr/bin/foo/123"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(b))
}
