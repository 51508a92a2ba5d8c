// Command mans_bench times compress/decompress over a file, reporting the minimum latency
// observed across repeated runs (warmup discarded), per the benchmarking contract: 5
// warmup iterations, 10 measured iterations, report the min.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ha1tch/mans/pkg/mans"
)

const (
	warmupIters  = 5
	measureIters = 10
)

var (
	dtype     = pflag.StringP("type", "t", "u2", "element type: u2 or u4")
	threshold = pflag.Uint64P("threshold", "T", mans.DefaultADMThreshold, "ADM block-range threshold")
	help      = pflag.BoolP("help", "h", false, "display this help")
)

func main() {
	pflag.Usage = usage
	pflag.Parse()

	if *help || pflag.NArg() < 1 {
		usage()
		if *help {
			os.Exit(0)
		}
		os.Exit(1)
	}

	elementType := mans.U16
	if *dtype == "u4" || *dtype == "-u4" {
		elementType = mans.U32
	}

	raw, err := os.ReadFile(pflag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mans_bench: cannot read %q: %v\n", pflag.Arg(0), err)
		os.Exit(1)
	}

	params := mans.Params{Backend: mans.BackendCPU, ElementType: elementType, ADMThreshold: *threshold}

	compressMin, compressed, err := timeMin(warmupIters, measureIters, func() (int, error) {
		out, err := mans.Compress(params, raw)
		return len(out), err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mans_bench: compress failed: %v\n", err)
		os.Exit(1)
	}

	out, err := mans.Compress(params, raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mans_bench: compress failed: %v\n", err)
		os.Exit(1)
	}
	decompressMin, _, err := timeMin(warmupIters, measureIters, func() (int, error) {
		d, err := mans.Decompress(params, out)
		return len(d), err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mans_bench: decompress failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-12s %10s %10s %10s\n", "operation", "input_B", "output_B", "min_time")
	fmt.Printf("%-12s %10d %10d %10s\n", "compress", len(raw), compressed, compressMin.Round(time.Microsecond))
	fmt.Printf("%-12s %10d %10d %10s\n", "decompress", len(out), len(raw), decompressMin.Round(time.Microsecond))
}

// timeMin runs fn warmup+measure times, discards the warmup runs, and returns the minimum
// duration across the measured runs plus the last observed result size.
func timeMin(warmup, measure int, fn func() (int, error)) (time.Duration, int, error) {
	for i := 0; i < warmup; i++ {
		if _, err := fn(); err != nil {
			return 0, 0, err
		}
	}

	var min time.Duration
	var size int
	for i := 0; i < measure; i++ {
		start := time.Now()
		n, err := fn()
		elapsed := time.Since(start)
		if err != nil {
			return 0, 0, err
		}
		size = n
		if i == 0 || elapsed < min {
			min = elapsed
		}
	}
	return min, size, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mans_bench <input> [flags]

Time MANS compress/decompress over a file: %d warmup iterations discarded,
%d measured iterations, minimum latency reported.

Flags:
`, warmupIters, measureIters)
	pflag.PrintDefaults()
}
