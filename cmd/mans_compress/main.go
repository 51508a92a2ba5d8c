// Command mans_compress compresses a dense u16/u32 array with the MANS codec.
//
// Usage:
//
//	mans_compress <u2|u4> <input> <output> <save_adm:0|1> [threshold]
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/ha1tch/mans/pkg/adm"
	"github.com/ha1tch/mans/pkg/mans"
)

var (
	saveADM   = pflag.BoolP("save-adm", "s", false, "write the intermediate ADM container to <output>.adm when codec=1")
	threshold = pflag.Uint64P("threshold", "t", mans.DefaultADMThreshold, "ADM block-range threshold")
	help      = pflag.BoolP("help", "h", false, "display this help")
)

func main() {
	pflag.Usage = usage
	pflag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if pflag.NArg() < 3 {
		fatal("missing arguments\nTry 'mans_compress -h' for more information.")
	}

	dtype := pflag.Arg(0)
	inputPath := pflag.Arg(1)
	outputPath := pflag.Arg(2)
	if pflag.NArg() >= 4 && pflag.Arg(3) != "0" {
		if pflag.Arg(3) != "1" {
			fatal("save_adm must be 0 or 1, got %q", pflag.Arg(3))
		}
		*saveADM = true
	}
	if pflag.NArg() >= 5 {
		t, err := strconv.ParseUint(pflag.Arg(4), 10, 64)
		if err != nil {
			fatal("invalid threshold %q: %v", pflag.Arg(4), err)
		}
		*threshold = t
	}

	var elementType mans.ElementType
	switch dtype {
	case "u2", "-u2":
		elementType = mans.U16
	case "u4", "-u4":
		elementType = mans.U32
	default:
		fatal("unknown data type flag %q (use u2 or u4)", dtype)
	}

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		fatal("cannot read %q: %v", inputPath, err)
	}
	if len(raw) == 0 {
		fatal("input file is empty")
	}

	params := mans.Params{
		Backend:      mans.BackendCPU,
		ElementType:  elementType,
		ADMThreshold: *threshold,
	}

	logBlockRange(elementType, raw, *threshold)

	if *saveADM {
		writeADMIfApplicable(params, raw, outputPath)
	}

	out, err := mans.Compress(params, raw)
	if err != nil {
		fatal("compression failed: %v", err)
	}

	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		fatal("cannot write %q: %v", outputPath, err)
	}

	codec := byte(0)
	if len(out) > 0 {
		codec = out[0]
	}
	if *saveADM && codec == 1 {
		writeADMIfApplicable(params, raw, outputPath)
	}
	slog.Info("mans compress finished", "output", outputPath, "codec", codec)
}

// logBlockRange reproduces the original tool's block-range diagnostic ahead of dispatch.
func logBlockRange(elementType mans.ElementType, raw []byte, threshold uint64) {
	var maxDiff uint64
	switch elementType {
	case mans.U32:
		for i := 0; i+4 <= len(raw); i += 4 * 512 {
			end := i + 4*512
			if end > len(raw) {
				end = len(raw)
			}
			if d := windowDiff32(raw[i:end]); d > maxDiff {
				maxDiff = d
			}
		}
	default:
		for i := 0; i+2 <= len(raw); i += 2 * 512 {
			end := i + 2*512
			if end > len(raw) {
				end = len(raw)
			}
			if d := windowDiff16(raw[i:end]); d > maxDiff {
				maxDiff = d
			}
		}
	}
	slog.Info("block range", "block_size", 512, "max_diff", maxDiff, "threshold", threshold)
}

func windowDiff16(raw []byte) uint64 {
	var mn, mx uint16 = 0xFFFF, 0
	for i := 0; i+2 <= len(raw); i += 2 {
		v := uint16(raw[i]) | uint16(raw[i+1])<<8
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return uint64(mx) - uint64(mn)
}

func windowDiff32(raw []byte) uint64 {
	var mn, mx uint32 = 0xFFFFFFFF, 0
	for i := 0; i+4 <= len(raw); i += 4 {
		v := uint32(raw[i]) | uint32(raw[i+1])<<8 | uint32(raw[i+2])<<16 | uint32(raw[i+3])<<24
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return uint64(mx) - uint64(mn)
}

// writeADMIfApplicable saves the intermediate ADM container alongside the final output,
// matching the original CLI's save_adm flag. It is a diagnostic aid, not part of the
// decompress path, so a failure here is reported but not fatal.
func writeADMIfApplicable(params mans.Params, raw []byte, outputPath string) {
	var b []byte
	var err error
	if params.ElementType == mans.U32 {
		elements, derr := bytesAsU32(raw)
		if derr != nil {
			slog.Error("save-adm skipped", "error", derr)
			return
		}
		var c *adm.Container[uint32]
		c, err = adm.Encode(elements)
		if c != nil {
			b = c.Marshal()
		}
	} else {
		elements, derr := bytesAsU16(raw)
		if derr != nil {
			slog.Error("save-adm skipped", "error", derr)
			return
		}
		var c *adm.Container[uint16]
		c, err = adm.Encode(elements)
		if c != nil {
			b = c.Marshal()
		}
	}
	if err != nil {
		slog.Error("save-adm failed", "error", err)
		return
	}
	if err := os.WriteFile(outputPath+".adm", b, 0o644); err != nil {
		slog.Error("save-adm write failed", "error", err)
	}
}

func bytesAsU16(raw []byte) ([]uint16, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("input length %d not a multiple of 2", len(raw))
	}
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return out, nil
}

func bytesAsU32(raw []byte) ([]uint32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("input length %d not a multiple of 4", len(raw))
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = uint32(raw[4*i]) | uint32(raw[4*i+1])<<8 | uint32(raw[4*i+2])<<16 | uint32(raw[4*i+3])<<24
	}
	return out, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mans_compress <u2|u4> <input> <output> [save_adm:0|1] [threshold] [flags]

Compress a dense array of u16 or u32 elements with the MANS codec.

Flags:
`)
	pflag.PrintDefaults()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "mans_compress: "+format+"\n", args...)
	os.Exit(1)
}
