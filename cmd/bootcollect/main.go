//go:build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/bootcollect/internal/diag"
	"github.com/ja7ad/bootcollect/internal/dumper"
	"github.com/ja7ad/bootcollect/internal/hostenv"
	"github.com/ja7ad/bootcollect/internal/ring"
	"github.com/ja7ad/bootcollect/internal/sampler"
	"github.com/ja7ad/bootcollect/internal/scanner"
	"github.com/ja7ad/bootcollect/pkg/system/cgroup"
)

// progName is what --probe-running and the dumper's sibling-skip logic look
// for in /proc/<pid>/exe.
const progName = "bootcollect"

// stackGrowthDepth is how deeply GrowStack recurses before the collector
// installs its StackMap. It only needs to exceed the sample loop's actual
// call depth; this is a generous multiple of it.
const stackGrowthDepth = 4096

type flags struct {
	usleepUsecs  int
	probeRunning bool
	dumpPath     string
	relativeTime bool
	console      bool
	noHostenv    bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "bootcollect [hz]",
		Short: "Boot-time system and process telemetry collector",
		Long: `bootcollect samples system and per-process resource usage during early
boot into an in-memory log recoverable by ptrace, and can itself act as the
extraction tool for a sibling collector's log via --dump.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f, args)
		},
	}

	root.Flags().IntVar(&f.usleepUsecs, "usleep", 0, "sleep the given microseconds and exit 0 (used by init scripts)")
	root.Flags().BoolVar(&f.probeRunning, "probe-running", false, "exit 0 if another collector is running, non-zero otherwise")
	root.Flags().StringVarP(&f.dumpPath, "dump", "d", "", "switch to dumper role: find a running collector and write its buffers under path")
	root.Flags().BoolVarP(&f.relativeTime, "relative", "r", false, "record timestamps relative to the first tick rather than absolute uptime")
	root.Flags().BoolVarP(&f.console, "console", "c", false, "emit diagnostics to stderr rather than to the kernel message buffer")
	root.Flags().BoolVar(&f.noHostenv, "no-hostenv", false, "skip mounting the scratch tmpfs (for test/CI environments that can't mount filesystems)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(f flags, args []string) error {
	switch {
	case f.usleepUsecs > 0:
		time.Sleep(time.Duration(f.usleepUsecs) * time.Microsecond)
		return nil

	case f.probeRunning:
		if _, err := scanner.FindRunningPid(progName); err != nil {
			os.Exit(1)
		}
		return nil

	case f.dumpPath != "":
		return runDumper(f.dumpPath)

	default:
		hz := 50
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("bootcollect: invalid hz %q", args[0])
			}
			hz = v
		}
		return runCollector(f, hz)
	}
}

func runDumper(path string) error {
	pid, err := scanner.FindRunningPid(progName)
	if err != nil {
		os.Exit(1)
	}
	if err := dumper.ExtractAndDump(pid, path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return nil
}

// runCollector is the heart of the collector role. It must pin its own
// goroutine to an OS thread and pre-grow the stack before constructing the
// StackMap, since the dumper's entire rendezvous mechanism depends on the
// StackMap's address never moving once published — see
// internal/ring/stackmap.go for the reasoning.
func runCollector(f flags, hz int) error {
	runtime.LockOSThread()

	log := diag.New(f.console)

	if ver, detail, err := cgroup.Detect(); err != nil {
		log.Warn("cgroup detection failed", "err", err)
	} else {
		log.Info("cgroup layout", "version", ver.String(), "detail", detail)
	}

	var cleanup func()
	if !f.noHostenv {
		c, err := hostenv.Setup()
		if err != nil {
			log.Warn("hostenv setup failed, continuing without scratch tmpfs", "err", err)
		} else {
			cleanup = c
		}
	}
	if cleanup != nil {
		defer cleanup()
	}

	ring.GrowStack(stackGrowthDepth)
	sm := ring.NewStackMap()
	ring.Pin(sm)

	cfg := sampler.Config{HZ: hz, RelativeTime: f.relativeTime}
	loop, err := sampler.New(cfg, sm, log)
	if err != nil {
		return fmt.Errorf("bootcollect: %w", err)
	}
	defer loop.Close()

	ctx, stop := signalStop()
	defer stop()

	log.Info("collector started", "hz", hz, "pid", os.Getpid())
	loop.Run(ctx.Done())
	return nil
}

type doneCtx struct{ c <-chan struct{} }

func (d doneCtx) Done() <-chan struct{} { return d.c }

func signalStop() (doneCtx, func()) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sigc
		close(done)
	}()
	return doneCtx{c: done}, func() { signal.Stop(sigc) }
}
