//go:build linux

package taskstats

import (
	"encoding/binary"
	"fmt"
)

// attr is one decoded netlink attribute (TLV): a 16-bit length, a 16-bit
// type, and len-4 bytes of value, padded to a 4-byte boundary on the wire.
type attr struct {
	typ uint16
	val []byte
}

// nlmsg wraps a netlink + generic-netlink header around a payload. Both
// request builders in this file share it.
func nlmsg(msgType uint16, flags uint16, seq uint32, genlCmd byte, payload []byte) []byte {
	genlHdr := make([]byte, genlHdrLen)
	genlHdr[0] = genlCmd
	genlHdr[1] = 1 // version

	body := append(genlHdr, payload...)
	total := nlmsgHdrLen + len(body)

	out := make([]byte, align4(total))
	binary.LittleEndian.PutUint32(out[0:4], uint32(total))
	binary.LittleEndian.PutUint16(out[4:6], msgType)
	binary.LittleEndian.PutUint16(out[6:8], flags)
	binary.LittleEndian.PutUint32(out[8:12], seq)
	// out[12:16] pid left as 0; kernel fills in the sender's port on most
	// paths, and the collector doesn't rely on this field in replies.
	copy(out[16:], body)
	return out
}

func putAttr(typ uint16, val []byte) []byte {
	l := nlaHdrLen + len(val)
	out := make([]byte, align4(l))
	binary.LittleEndian.PutUint16(out[0:2], uint16(l))
	binary.LittleEndian.PutUint16(out[2:4], typ)
	copy(out[4:], val)
	return out
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func buildGetFamilyRequest(seq uint32, name string) []byte {
	nameBytes := append([]byte(name), 0)
	payload := putAttr(ctrlAttrFamilyName, nameBytes)
	return nlmsg(genlIDCtrl, unix_NLM_F_REQUEST, seq, ctrlCmdGetFamily, payload)
}

func buildPidStatsRequest(familyID uint16, seq uint32, pid uint32) []byte {
	val := make([]byte, 4)
	binary.LittleEndian.PutUint32(val, pid)
	payload := putAttr(taskstatsCmdAttrPid, val)
	return nlmsg(familyID, unix_NLM_F_REQUEST, seq, taskstatsCmdGet, payload)
}

// unix_NLM_F_REQUEST mirrors unix.NLM_F_REQUEST; spelled out locally to
// keep this file's only dependency the encoding/binary package, since the
// constant never changes across kernel versions.
const unix_NLM_F_REQUEST = 1

// genlAttrs strips the leading nlmsghdr+genlmsghdr from a reply and parses
// the remaining bytes as a flat attribute list.
func genlAttrs(reply []byte) ([]attr, error) {
	if len(reply) < nlmsgHdrLen+genlHdrLen {
		return nil, fmt.Errorf("taskstats: short reply (%d bytes)", len(reply))
	}
	msgLen := int(binary.LittleEndian.Uint32(reply[0:4]))
	if msgLen > len(reply) {
		msgLen = len(reply)
	}
	msgType := binary.LittleEndian.Uint16(reply[4:6])
	if msgType == 2 { // NLMSG_ERROR
		errno := int32(binary.LittleEndian.Uint32(reply[nlmsgHdrLen : nlmsgHdrLen+4]))
		if errno != 0 {
			return nil, fmt.Errorf("taskstats: netlink error %d", errno)
		}
	}
	return parseAttrs(reply[nlmsgHdrLen+genlHdrLen : msgLen])
}

// parseAttrs walks a flat, 4-byte-aligned TLV attribute stream.
func parseAttrs(b []byte) ([]attr, error) {
	var out []attr
	for len(b) >= nlaHdrLen {
		l := int(binary.LittleEndian.Uint16(b[0:2]))
		typ := binary.LittleEndian.Uint16(b[2:4])
		if l < nlaHdrLen || l > len(b) {
			return out, fmt.Errorf("taskstats: malformed attribute (len=%d)", l)
		}
		out = append(out, attr{typ: typ & 0x3fff, val: b[nlaHdrLen:l]})
		b = b[align4(l):]
	}
	return out, nil
}

var errShortPayload = fmt.Errorf("taskstats: stats payload too short")

// decodeStats reads the fields this client needs out of a raw
// TASKSTATS_TYPE_STATS payload, using the offset table computed in
// accounting.go from struct taskstats's field order.
func decodeStats(b []byte) (Stats, error) {
	if len(b) < offsets.acPPID+4 {
		return Stats{}, errShortPayload
	}
	s := Stats{
		AcPid:  binary.LittleEndian.Uint32(b[offsets.acPID : offsets.acPID+4]),
		AcPpid: binary.LittleEndian.Uint32(b[offsets.acPPID : offsets.acPPID+4]),
	}
	if acc, err := readAccounting(b); err == nil {
		s.Comm = acc.comm
		s.CpuRunRealTotal = acc.cpuRunRealTotal
		s.BlkioDelayTotal = acc.blkioDelayTotal
		s.SwapinDelayTotal = acc.swapinDelayTotal
	}
	return s, nil
}
