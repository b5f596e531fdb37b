//go:build linux

// Package dumper implements the external extraction half of the collector:
// ptrace-attach to a running (or just-terminated) collector process, locate
// its StackMap by scanning the [stack] VMA for the magic marker, walk the
// chunk pointers it records, and write each stream's bytes out to its own
// file on disk.
package dumper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/bootcollect/internal/header"
	"github.com/ja7ad/bootcollect/pkg/types"
)

// maxAttachRetries bounds buffers_extract_and_dump's retry loop for the
// inherently racy "find a pid, attach to it" sequence: the target can exit
// between the scan and the attach.
const maxAttachRetries = 8

// ExtractAndDump attaches to pid, locates its StackMap, writes every
// stream's chunks to individual files under outputPath, and then sends the
// collector SIGTERM and detaches.
// Retries the whole sequence up to maxAttachRetries times if the target
// disappears mid-attempt (ESRCH), matching buffers_extract_and_dump's
// behavior in the original implementation.
func ExtractAndDump(pid int, outputPath string) error {
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return fmt.Errorf("dumper: mkdir %s: %w", outputPath, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttachRetries; attempt++ {
		err := extractOnce(pid, outputPath)
		if err == nil {
			return nil
		}
		if !isRace(err) {
			return err
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("dumper: giving up after %d attempts: %w", maxAttachRetries, lastErr)
}

func isRace(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

func extractOnce(pid int, outputPath string) error {
	h, err := attach(pid)
	if err != nil {
		return err
	}
	defer h.detach()

	sm, err := h.findStackMap()
	if err != nil {
		return fmt.Errorf("dumper: find stack map in pid %d: %w", pid, err)
	}

	dests, err := h.dumpBuffers(sm, outputPath)
	if err != nil {
		return fmt.Errorf("dumper: dump buffers: %w", err)
	}

	for _, d := range dests {
		fi, err := os.Stat(filepath.Join(outputPath, d))
		if err != nil {
			continue
		}
		fmt.Printf("bootcollect: wrote %s (%s)\n", d, types.Bytes(fi.Size()).Humanized())
	}

	if err := header.WriteHostHeader(outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "bootcollect: %v\n", err)
	}
	if err := header.WriteDmesg(outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "bootcollect: %v\n", err)
	}

	h.terminate()
	return nil
}
