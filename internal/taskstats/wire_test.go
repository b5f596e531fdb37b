//go:build linux

package taskstats

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGetFamilyRequestEncodesName(t *testing.T) {
	msg := buildGetFamilyRequest(1, "TASKSTATS")
	require.GreaterOrEqual(t, len(msg), nlmsgHdrLen+genlHdrLen)

	msgLen := binary.LittleEndian.Uint32(msg[0:4])
	assert.LessOrEqual(t, int(msgLen), len(msg))

	attrs, err := parseAttrs(msg[nlmsgHdrLen+genlHdrLen : msgLen])
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	assert.Equal(t, uint16(ctrlAttrFamilyName), attrs[0].typ)
	assert.Equal(t, "TASKSTATS\x00", string(attrs[0].val))
}

func TestParseAttrsRoundTrip(t *testing.T) {
	a := putAttr(7, []byte{1, 2, 3})
	b := putAttr(8, []byte{4, 5})
	blob := append(append([]byte{}, a...), b...)

	attrs, err := parseAttrs(blob)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, uint16(7), attrs[0].typ)
	assert.Equal(t, []byte{1, 2, 3}, attrs[0].val)
	assert.Equal(t, uint16(8), attrs[1].typ)
	assert.Equal(t, []byte{4, 5}, attrs[1].val)
}

func TestAlign4(t *testing.T) {
	assert.Equal(t, 4, align4(1))
	assert.Equal(t, 8, align4(5))
	assert.Equal(t, 0, align4(0))
	assert.Equal(t, 4, align4(4))
}

func TestDecodeStatsExtractsPidFields(t *testing.T) {
	b := make([]byte, offsets.acPPID+8)
	binary.LittleEndian.PutUint32(b[offsets.acPID:], 4242)
	binary.LittleEndian.PutUint32(b[offsets.acPPID:], 1)
	copy(b[offsets.acComm:], []byte("init\x00\x00\x00"))
	binary.LittleEndian.PutUint64(b[offsets.cpuRunRealTotal:], 100)
	binary.LittleEndian.PutUint64(b[offsets.blkioDelayTotal:], 200)
	binary.LittleEndian.PutUint64(b[offsets.swapinDelayTotal:], 300)

	s, err := decodeStats(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), s.AcPid)
	assert.Equal(t, uint32(1), s.AcPpid)
	assert.Equal(t, "init", s.Comm)
	assert.Equal(t, uint64(100), s.CpuRunRealTotal)
	assert.Equal(t, uint64(200), s.BlkioDelayTotal)
	assert.Equal(t, uint64(300), s.SwapinDelayTotal)
	assert.Equal(t, uint64(600), s.TimeTotal())
}

func TestDecodeStatsRejectsShortPayload(t *testing.T) {
	_, err := decodeStats(make([]byte, 4))
	assert.Error(t, err)
}
