//go:build linux

package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitNulArgs(t *testing.T) {
	raw := []byte("foo\x00--usleep\x00100000\x00")
	assert.Equal(t, []string{"foo", "--usleep", "100000"}, splitNulArgs(raw))
}

func TestHasUsleepArg(t *testing.T) {
	assert.True(t, hasUsleepArg([]byte("bootcollect\x00--usleep\x00100000\x00")))
	assert.False(t, hasUsleepArg([]byte("bootcollect\x0010\x00")))
}

func TestInsertAndRemoveLockedKeepSortedOrder(t *testing.T) {
	s := &netlinkScanner{}
	s.insertLocked(process{pid: 10})
	s.insertLocked(process{pid: 5})
	s.insertLocked(process{pid: 20})
	s.insertLocked(process{pid: 10}) // update, not duplicate

	var pids []int
	for _, p := range s.procs {
		pids = append(pids, p.pid)
	}
	assert.Equal(t, []int{5, 10, 20}, pids)

	s.removeLocked(10)
	pids = pids[:0]
	for _, p := range s.procs {
		pids = append(pids, p.pid)
	}
	assert.Equal(t, []int{5, 20}, pids)
}
