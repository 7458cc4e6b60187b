/*
 * S390 - DAT scenario checker test cases
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
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"
)

const testdata = "../../emu/scenario/testdata"

func execute(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cmd.Execute(context.Background(), f)
}

func TestRunScenarios(t *testing.T) {
	var out bytes.Buffer
	files, _ := filepath.Glob(filepath.Join(testdata, "*.toml"))
	status := execute(t, &runCmd{out: &out}, append([]string{"-v"}, files...)...)
	if status != subcommands.ExitSuccess {
		t.Errorf("run status got: %v expected: %v\n%s", status, subcommands.ExitSuccess, out.String())
	}
	if !strings.Contains(out.String(), "ok   ESA/390 primary space: mapped page") {
		t.Errorf("run verbose output missing:\n%s", out.String())
	}
}

func TestRunFailure(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bad.toml")
	text := "arch = \"S370\"\nmainsize = \"64K\"\n[[check]]\nname = \"wrong\"\nvaddr = 0x10\nabs = 0x20\n"
	if err := os.WriteFile(name, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if status := execute(t, &runCmd{out: &out}, name); status != subcommands.ExitFailure {
		t.Errorf("run status got: %v expected: %v", status, subcommands.ExitFailure)
	}
	if !strings.Contains(out.String(), "FAIL") || !strings.Contains(out.String(), "1 failed") {
		t.Errorf("run output got:\n%s", out.String())
	}
	out.Reset()
	if status := execute(t, &runCmd{out: &out}, name+".missing"); status != subcommands.ExitFailure {
		t.Errorf("run missing file status got: %v expected: %v", status, subcommands.ExitFailure)
	}
}

func TestTLB(t *testing.T) {
	var out bytes.Buffer
	status := execute(t, &tlbCmd{out: &out}, filepath.Join(testdata, "s370.toml"))
	if status != subcommands.ExitSuccess {
		t.Fatalf("tlb status got: %v expected: %v", status, subcommands.ExitSuccess)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "045 0000000000045000") {
		t.Errorf("tlb output got:\n%s", out.String())
	}
}
