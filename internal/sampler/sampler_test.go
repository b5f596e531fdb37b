//go:build linux

package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupSkipsUnchangedTimeTotal(t *testing.T) {
	l := &Loop{}

	assert.False(t, l.dedup(100, 1, 500), "first sighting always emits")
	assert.True(t, l.dedup(100, 1, 500), "identical (ppid, time_total) should be skipped")
	assert.False(t, l.dedup(100, 1, 600), "time_total changed, should emit")
	assert.False(t, l.dedup(100, 2, 600), "ppid changed even with same time_total, should emit")
}

func TestSplitArgvHandlesEmbeddedNewline(t *testing.T) {
	raw := append([]byte("arg\nwith-newline\x00"), []byte("plain\x00")...)
	got := splitArgv(raw)
	assert.Equal(t, []string{"arg\x00with-newline", "plain"}, got)
}

func TestSplitArgvTrailingArgWithoutNUL(t *testing.T) {
	raw := []byte("first\x00second")
	got := splitArgv(raw)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestFormatUptimeAbsoluteAndRelative(t *testing.T) {
	l := &Loop{}
	assert.Equal(t, "12.34\n", l.formatUptime(1234))

	l.cfg.RelativeTime = true
	l.startUptime = 1000
	assert.Equal(t, "2.34\n", l.formatUptime(1234))
	assert.Equal(t, "0.00\n", l.formatUptime(500), "pre-start reading clamps to zero")
}
