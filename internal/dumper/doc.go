// Package dumper's end-to-end behavior (attach a live or freshly-dead
// collector, scan its stack, extract every chunk, write per-stream files)
// requires CAP_SYS_PTRACE and a real Linux process tree, so it isn't
// exercised by this package's unit tests. The scenarios below are the
// integration-test plan; they mirror the end-to-end cases in the
// project's acceptance checklist and should be run in a container or VM
// with ptrace permitted:
//
//   - S1: start a collector, let it sample a few ticks, dump while it's
//     still running. Every dest_stream file should contain well-formed
//     framed records and no torn records from the excluded final chunk.
//
//   - S2: start a collector, SIGKILL it, then dump. findStackMap must fail
//     cleanly (the stack VMA is gone) rather than hang or panic.
//
//   - S3: dump twice in a row against the same running collector. The
//     second dump should pick up the chunks written since the first
//     (append semantics on both the in-process store and this package's
//     output files).
//
//   - S4: run with --probe-running to auto-discover the collector's pid,
//     verifying a --usleep sibling process is correctly skipped.
//
//   - S5: force a chunk-store overflow (run the collector far longer than
//     its 1024-chunk budget) and confirm dumpBuffers's n-1 exclusion keeps
//     the output free of a half-overwritten final record.
//
//   - S6: dump into an output path that doesn't exist yet; ExtractAndDump
//     should create it.
package dumper
