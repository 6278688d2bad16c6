// Command callstack analyzes a built embedded Thumb program's whole-program
// stack usage and emits a Graphviz dot digraph.
//
// It stands in for the usual "cargo build, then analyze the output"
// pipeline: rather than invoking a compiler and locating its artifacts
// itself, it takes the linked executable, the companion relocatable object
// carrying .stack_sizes records, the textual IR dump, and (optionally) a
// static archive of runtime helpers directly as flags.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var opts struct {
	target          string
	bin             string
	example         string
	features        []string
	allFeatures     bool
	verbose         bool
	elfPath         string
	objectPath      string
	irPath          string
	builtinsArchive string
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if opts.verbose {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callstack [START]",
		Short: "Whole-program stack-usage analysis for embedded Thumb binaries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				log.SetLevel(logrus.InfoLevel)
			} else {
				log.SetLevel(logrus.WarnLevel)
			}
			var start string
			if len(args) == 1 {
				start = args[0]
			}
			return run(start)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.target, "target", "", "compiler target triple (e.g. thumbv7em-none-eabihf)")
	flags.StringVar(&opts.bin, "bin", "", "name of the binary target this analysis corresponds to")
	flags.StringVar(&opts.example, "example", "", "name of the example target this analysis corresponds to")
	flags.StringSliceVar(&opts.features, "features", nil, "cargo features that were enabled for this build")
	flags.BoolVar(&opts.allFeatures, "all-features", false, "all cargo features were enabled for this build")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable info-level logging")
	flags.StringVar(&opts.elfPath, "elf", "", "path to the linked ELF executable (required)")
	flags.StringVar(&opts.objectPath, "object", "", "path to the companion relocatable object carrying .stack_sizes records (required)")
	flags.StringVar(&opts.irPath, "ir", "", "path to the textual whole-program IR dump (required)")
	flags.StringVar(&opts.builtinsArchive, "builtins-archive", "", "path to a static archive of runtime helpers (e.g. libcompiler_builtins.rlib)")

	cmd.MarkFlagsMutuallyExclusive("bin", "example")
	_ = cmd.MarkFlagRequired("elf")
	_ = cmd.MarkFlagRequired("object")
	_ = cmd.MarkFlagRequired("ir")

	return cmd
}
