package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	kaio "github.com/ehrlich-b/go-kaio"
	"github.com/ehrlich-b/go-kaio/backend"
	"github.com/ehrlich-b/go-kaio/internal/config"
	"github.com/ehrlich-b/go-kaio/internal/harness"
	"github.com/ehrlich-b/go-kaio/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaio-bench: %v\n", err)
		os.Exit(2)
	}

	var (
		file      = flag.String("file", "", "Target file or block device (empty: in-memory simulated target)")
		sizeStr   = flag.String("size", "64M", "Bytes to address (e.g., 64M, 1G)")
		ops       = flag.Int("ops", 100000, "Reads and writes to issue (0: until -duration or Ctrl+C)")
		duration  = flag.Duration("duration", 0, "Stop after this long")
		writes    = flag.Int("write", 0, "Percentage of writes")
		seq       = flag.Bool("seq", false, "Sequential offsets")
		verify    = flag.Bool("verify", false, "Write every block, read it back and compare")
		syncEvery = flag.Int("sync-every", 0, "Issue a sync after this many writes")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random offset seed")
		report    = flag.String("report", "", "Write a binary run report to this path")
		show      = flag.String("show", "", "Print a saved run report and exit")
		verbose   = flag.Bool("v", false, "Verbose output")
	)
	flag.IntVar(&cfg.Depth, "depth", cfg.Depth, "Ring depth")
	flag.IntVar(&cfg.BlockSize, "bs", cfg.BlockSize, "Block size in bytes")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Context backend: libaio or io_uring")
	flag.BoolVar(&cfg.UserspaceReap, "userspace-reap", cfg.UserspaceReap, "Reap from the shared completion ring")
	flag.BoolVar(&cfg.HighPriority, "hipri", cfg.HighPriority, "Polled completions")
	flag.BoolVar(&cfg.UserIOCBs, "user-iocbs", cfg.UserIOCBs, "User-owned descriptors")
	flag.BoolVar(&cfg.FixedBuffers, "fixed-bufs", cfg.FixedBuffers, "Pre-mapped fixed buffers")
	flag.IntVar(&cfg.BatchCompleteMin, "batch-min", cfg.BatchCompleteMin, "Minimum completions per reap")
	flag.BoolVar(&cfg.BackgroundTeardown, "background-teardown", cfg.BackgroundTeardown, "Destroy the context on a goroutine")
	flag.BoolVar(&cfg.Direct, "direct", cfg.Direct, "Open the target with O_DIRECT")
	flag.Parse()

	if *show != "" {
		rep, err := loadReport(*show)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kaio-bench: %v\n", err)
			os.Exit(1)
		}
		rep.print(os.Stdout)
		return
	}

	if *verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "kaio-bench: %v\n", err)
		os.Exit(2)
	}
	logger := logging.NewLogger(cfg.Logging())
	logging.SetDefault(logger)

	size, err := parseSize(*sizeStr)
	if err != nil {
		logger.Error("invalid size", "size", *sizeStr, "error", err)
		os.Exit(2)
	}

	opts := cfg.Options()
	opts.Logger = logger

	var target kaio.File
	if *file == "" {
		mem := backend.NewMemory(size)
		defer mem.Close()
		sim := kaio.NewSimContext(kaio.SimOptions{SharedRing: true, SupportedFlags: ^uint32(0)})
		sim.Attach(mem)
		sim.Apply(&opts)
		target = mem
		logger.Info("using simulated context", "size", formatSize(size))
	} else {
		f, err := openTarget(*file, size, cfg.Direct)
		if err != nil {
			logger.Error("failed to open target", "file", *file, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		target = f
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := harness.NewRunner(ctx, harness.Config{
		Engine: opts,
		Workload: harness.Workload{
			Target:       target,
			Size:         size,
			Block:        cfg.BlockSize,
			WritePercent: *writes,
			Ops:          *ops,
			Sequential:   *seq,
			SyncEvery:    *syncEvery,
			Verify:       *verify,
			Seed:         *seed,
		},
		Aligned: cfg.Direct || cfg.FixedBuffers,
		Logger:  logger,
	})
	if err != nil {
		if errors.Is(err, kaio.ErrUnsupported) {
			logger.Error("the kernel context does not support the requested features", "error", err)
		} else {
			logger.Error("failed to start engine", "error", err)
		}
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, draining")
		runner.Stop()
	}()
	if *duration > 0 {
		time.AfterFunc(*duration, runner.Stop)
	}

	runErr := runner.Run()
	st := runner.Stats()
	snap := runner.Engine().Metrics().Snapshot()
	info := runner.Engine().Info()
	if err := runner.Close(); err != nil {
		logger.Warn("cleanup failed", "error", err)
	}

	rep := newReport(info, cfg.BlockSize, st, snap)
	rep.print(os.Stdout)
	if *report != "" {
		if err := rep.save(*report); err != nil {
			logger.Error("failed to write report", "path", *report, "error", err)
		}
	}

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		os.Exit(1)
	}
}

func openTarget(path string, size int64, direct bool) (*os.File, error) {
	flags := os.O_RDWR | os.O_CREATE
	if direct {
		flags |= unix.O_DIRECT
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Mode().IsRegular() && fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size %s: %w", path, err)
		}
	}
	return f, nil
}
