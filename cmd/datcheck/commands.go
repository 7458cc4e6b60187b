/*
 * S390 - DAT scenario checker commands
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"

	"github.com/rcornwell/S390/emu/scenario"
	"github.com/rcornwell/S390/util/hex"
)

// runCmd checks scenario files.
type runCmd struct {
	out     io.Writer
	verbose bool
}

// Name implements subcommands.Command.Name.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*runCmd) Synopsis() string {
	return "run scenario files and report failed checks"
}

// Usage implements subcommands.Command.Usage.
func (*runCmd) Usage() string {
	return `run [-v] <file.toml>... - run each scenario and report mismatches.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.verbose, "v", false, "report checks that pass")
}

// Execute implements subcommands.Command.Execute.
func (r *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	status := subcommands.ExitSuccess
	for _, file := range f.Args() {
		s, err := scenario.Load(file)
		if err != nil {
			fmt.Fprintf(r.out, "%s: %v\n", file, err)
			status = subcommands.ExitFailure
			continue
		}
		c, results, err := s.Run()
		if err != nil {
			fmt.Fprintf(r.out, "%s: %v\n", file, err)
			status = subcommands.ExitFailure
			continue
		}
		failed := 0
		for _, res := range results {
			switch {
			case res.Err != nil:
				failed++
				fmt.Fprintf(r.out, "FAIL %s: %s: %v\n", s.Name, res.Name, res.Err)
			case r.verbose:
				fmt.Fprintf(r.out, "ok   %s: %s\n", s.Name, res.Name)
			}
		}
		_ = c.Storage().Close()
		fmt.Fprintf(r.out, "%s: %d checks, %d failed\n", file, len(results), failed)
		if failed != 0 {
			status = subcommands.ExitFailure
		}
	}
	return status
}

// tlbCmd shows the TLB after a scenario has run.
type tlbCmd struct {
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*tlbCmd) Name() string {
	return "tlb"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*tlbCmd) Synopsis() string {
	return "run a scenario and print the TLB contents"
}

// Usage implements subcommands.Command.Usage.
func (*tlbCmd) Usage() string {
	return `tlb <file.toml> - run scenario, then print every valid TLB entry.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*tlbCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (t *tlbCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	s, err := scenario.Load(f.Arg(0))
	if err != nil {
		fmt.Fprintf(t.out, "%v\n", err)
		return subcommands.ExitFailure
	}
	c, _, err := s.Run()
	if err != nil {
		fmt.Fprintf(t.out, "%v\n", err)
		return subcommands.ExitFailure
	}
	defer c.Storage().Close()
	for _, line := range hex.FormatTLB(c.TLBEntries()) {
		fmt.Fprintln(t.out, line)
	}
	return subcommands.ExitSuccess
}
