/*
 * S390 - Debug log test cases.
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

package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDebugf(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	Debugf("CPU", 0x3, 0x2, "%x tlb %x", 1, 0x45000)
	Debugf("CPU", 0x1, 0x2, "not shown")
	if buf.String() != "CPU: 1 tlb 45000\n" {
		t.Errorf("Debugf got: %q expected: %q", buf.String(), "CPU: 1 tlb 45000\n")
	}
}

func TestDebugFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "debug.log")
	if err := create(0, name, nil); err != nil {
		t.Fatal(err)
	}
	if err := create(0, name, nil); err == nil {
		t.Error("second debug file did not fail")
	}
	Debugf("SIE", 1, 1, "guest %x", 0x100000)
	if err := Close(); err != nil {
		t.Fatal(err)
	}
	if err := Close(); err != nil {
		t.Errorf("second close got: %v expected: nil", err)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "SIE: guest 100000\n" {
		t.Errorf("debug file got: %q expected: %q", string(data), "SIE: guest 100000\n")
	}
	if err := create(0, filepath.Join(name, "missing", "x"), nil); err == nil {
		t.Error("create in missing directory did not fail")
	}
}
