//go:build linux

package dumper

import (
	"fmt"
	"os"
	"path/filepath"
)

// dumpBuffers walks every chunk the StackMap recorded, except the final
// slot, and appends each chunk's payload to a local file named after its
// dest_stream field. Excluding the final chunk mirrors dump_buffers
// exactly: the chunk store may have reused that slot mid-write, so its
// contents are not trustworthy as a complete record.
func (h *handle) dumpBuffers(sm *remoteStackMap, outputPath string) ([]string, error) {
	max := sm.maxChunk
	if max > 0 {
		max-- // exclude the final, possibly-still-being-written chunk
	}

	written := map[string]bool{}
	var order []string

	buf := make([]byte, chunkSize)
	for i := 0; i < max; i++ {
		addr := sm.chunkAddrs[i]
		if addr == 0 {
			continue
		}
		if err := h.readRemote(addr, buf); err != nil {
			return order, fmt.Errorf("dumper: read chunk %d at 0x%x: %w", i, addr, err)
		}

		dest := cstrTrim(buf[:destStreamLen])
		length := leUint64(buf[destStreamLen:headerLen])
		if length > uint64(chunkPayload) {
			length = uint64(chunkPayload)
		}
		payload := buf[headerLen : uint64(headerLen)+length]

		if err := appendToFile(outputPath, dest, payload); err != nil {
			return order, err
		}
		if !written[dest] {
			written[dest] = true
			order = append(order, dest)
		}
	}
	return order, nil
}

func appendToFile(outputPath, dest string, payload []byte) error {
	path := filepath.Join(outputPath, sanitizeDest(dest))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dumper: mkdir for %s: %w", dest, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("dumper: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("dumper: write %s: %w", path, err)
	}
	return nil
}

// sanitizeDest maps a dest_stream value that happens to look like an
// absolute path (e.g. "/usr/bin/foo/123") into a relative path under
// outputPath, instead of escaping outputPath entirely.
func sanitizeDest(dest string) string {
	for len(dest) > 0 && dest[0] == '/' {
		dest = dest[1:]
	}
	if dest == "" {
		dest = "unknown"
	}
	return dest
}

func cstrTrim(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
