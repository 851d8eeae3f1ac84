package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelindar/binary"

	kaio "github.com/ehrlich-b/go-kaio"
	"github.com/ehrlich-b/go-kaio/internal/harness"
)

// runReport is the persisted summary of one run
type runReport struct {
	Finished      int64
	Backend       string
	Depth         int
	Block         int
	UserspaceReap bool
	Flags         uint32

	Reads      uint64
	Writes     uint64
	Syncs      uint64
	Bytes      uint64
	Errors     uint64
	Short      uint64
	Busy       uint64
	Mismatches uint64
	ElapsedNs  int64

	SubmitCalls   uint64
	Submitted     uint64
	ZeroSubmits   uint64
	WouldBlock    uint64
	RingReaped    uint64
	SyscallReaped uint64
	AvgBatch      float64
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
}

func newReport(info kaio.EngineInfo, block int, st harness.Stats, snap kaio.MetricsSnapshot) *runReport {
	return &runReport{
		Finished:      time.Now().Unix(),
		Backend:       string(info.Backend),
		Depth:         info.Depth,
		Block:         block,
		UserspaceReap: info.UserspaceReap,
		Flags:         info.Flags,
		Reads:         st.Reads,
		Writes:        st.Writes,
		Syncs:         st.Syncs,
		Bytes:         st.Bytes,
		Errors:        st.Errors,
		Short:         st.Short,
		Busy:          st.Busy,
		Mismatches:    st.Mismatches,
		ElapsedNs:     int64(st.Elapsed),
		SubmitCalls:   snap.SubmitCalls,
		Submitted:     snap.Submitted,
		ZeroSubmits:   snap.ZeroSubmits,
		WouldBlock:    snap.WouldBlock,
		RingReaped:    snap.RingReaped,
		SyscallReaped: snap.SyscallReaped,
		AvgBatch:      snap.AvgBatch,
		LatencyP50Ns:  snap.LatencyP50Ns,
		LatencyP99Ns:  snap.LatencyP99Ns,
	}
}

func (r *runReport) save(path string) error {
	b, err := binary.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func loadReport(path string) (*runReport, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r runReport
	if err := binary.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &r, nil
}

func (r *runReport) print(w io.Writer) {
	elapsed := time.Duration(r.ElapsedNs)
	secs := elapsed.Seconds()
	ops := r.Reads + r.Writes

	fmt.Fprintf(w, "backend:     %s depth=%d bs=%s flags=%#x userspace_reap=%t\n",
		r.Backend, r.Depth, formatSize(int64(r.Block)), r.Flags, r.UserspaceReap)
	fmt.Fprintf(w, "ops:         %d reads, %d writes, %d syncs in %s\n", r.Reads, r.Writes, r.Syncs, elapsed.Round(time.Millisecond))
	if secs > 0 {
		fmt.Fprintf(w, "throughput:  %.0f IOPS, %s/s\n", float64(ops)/secs, formatSize(int64(float64(r.Bytes)/secs)))
	}
	fmt.Fprintf(w, "latency:     p50=%s p99=%s\n", time.Duration(r.LatencyP50Ns), time.Duration(r.LatencyP99Ns))
	fmt.Fprintf(w, "submission:  %d calls, %d submitted, avg batch %.1f, %d zero-progress, %d would-block, %d busy\n",
		r.SubmitCalls, r.Submitted, r.AvgBatch, r.ZeroSubmits, r.WouldBlock, r.Busy)
	fmt.Fprintf(w, "completion:  %d from ring, %d from io_getevents\n", r.RingReaped, r.SyscallReaped)
	fmt.Fprintf(w, "problems:    %d errors, %d short, %d mismatched\n", r.Errors, r.Short, r.Mismatches)
}

// parseSize parses a size string like "64M", "1G", "512K"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if num <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
