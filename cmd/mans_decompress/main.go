// Command mans_decompress reverses mans_compress.
//
// Usage:
//
//	mans_decompress <u2|u4> <input> <output>
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ha1tch/mans/pkg/mans"
)

var help = pflag.BoolP("help", "h", false, "display this help")

func main() {
	pflag.Usage = usage
	pflag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if pflag.NArg() < 3 {
		fatal("missing arguments\nTry 'mans_decompress -h' for more information.")
	}

	dtype := pflag.Arg(0)
	inputPath := pflag.Arg(1)
	outputPath := pflag.Arg(2)

	var elementType mans.ElementType
	switch dtype {
	case "u2", "-u2":
		elementType = mans.U16
	case "u4", "-u4":
		elementType = mans.U32
	default:
		fatal("unknown data type flag %q (use u2 or u4)", dtype)
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fatal("cannot read %q: %v", inputPath, err)
	}

	params := mans.DefaultParams(elementType)
	out, err := mans.Decompress(params, data)
	if err != nil {
		fatal("decompression failed: %v", err)
	}

	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		fatal("cannot write %q: %v", outputPath, err)
	}

	slog.Info("mans decompress finished", "output", outputPath, "bytes", len(out))
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mans_decompress <u2|u4> <input> <output> [flags]

Decompress a MANS container back into its dense u16 or u32 element array.

Flags:
`)
	pflag.PrintDefaults()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "mans_decompress: "+format+"\n", args...)
	os.Exit(1)
}
