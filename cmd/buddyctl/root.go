package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"gopherkern/internal/hostmem"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/kmain"
	"gopherkern/kernel/mem"
)

var (
	// Global flags
	verbose    bool
	jsonOut    bool
	memMB      uint64
	kernelEnd  uint64
	logModules []string
)

var rootCmd = &cobra.Command{
	Use:   "buddyctl",
	Short: "Boot the kernel memory and thread core on host memory",
	Long: `buddyctl maps a block of host memory, treats it as physical RAM and
boots the buddy page allocator, kernel heap, kernel stacks and thread factory
on top of it. Subcommands exercise the allocator and report its state.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print kernel diagnostics to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().Uint64Var(&memMB, "mem-mb", 16, "Size of the emulated physical memory in MiB")
	rootCmd.PersistentFlags().Uint64Var(&kernelEnd, "kernel-end", 0x100000, "Physical address of the end of the kernel image")
	rootCmd.PersistentFlags().StringSliceVar(&logModules, "log-modules", nil, "Only print diagnostics of these kernel modules (e.g. buddy,thread)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootSystem maps host memory and boots the kernel core on it. The returned
// function releases the mapping.
func bootSystem(cpus uint32) (*kmain.System, func(), error) {
	var sink *kfmt.PrefixWriter
	if verbose {
		sink = newKernelSink(os.Stderr)
		kfmt.SetOutputSink(sink)
	} else {
		kfmt.SetOutputSink(io.Discard)
	}

	region, err := hostmem.Map(0, memMB*uint64(mem.Mb))
	if err != nil {
		return nil, nil, err
	}

	sys, kerr := kmain.Boot(region, uintptr(kernelEnd), cpus)
	if kerr != nil {
		_ = region.Close()
		return nil, nil, fmt.Errorf("boot failed: %w", kerr)
	}

	return sys, func() {
		if sink != nil {
			_ = sink.Flush()
		}
		_ = region.Close()
	}, nil
}

// newKernelSink returns the writer that receives kernel diagnostics when
// --verbose is set, filtered by --log-modules.
func newKernelSink(w io.Writer) *kfmt.PrefixWriter {
	sink := &kfmt.PrefixWriter{Sink: w, Prefix: []byte("kernel: ")}
	if len(logModules) != 0 {
		sink.Modules = make(map[string]bool, len(logModules))
		for _, module := range logModules {
			sink.Modules[module] = true
		}
	}
	return sink
}

// printInfo prints a message to stdout
func printInfo(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
