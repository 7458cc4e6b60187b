package scenario

/*
 * S390  - Translation scenario test cases
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

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/rcornwell/S390/emu/cpu"
)

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, file := range files {
		s, err := Load(file)
		if err != nil {
			t.Errorf("Load %s: %v", file, err)
			continue
		}
		c, results, err := s.Run()
		if err != nil {
			t.Errorf("Run %s: %v", file, err)
			continue
		}
		for _, r := range results {
			if r.Err != nil {
				t.Errorf("%s: %s: %v", s.Name, r.Name, r.Err)
			}
		}
		_ = c.Storage().Close()
	}
}

func TestParse(t *testing.T) {
	text := `
arch = "esa390"
mainsize = "1M"

[cpu]
dat = true
asc = "home"
key = 3

[cpu.cr]
0 = 0x00b00000
13 = 0x10000

[[check]]
op = "lra"
vaddr = 0x1000
cc = 0
`
	s, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cc := uint8(0)
	want := &Scenario{
		Arch:     "esa390",
		MainSize: "1M",
		CPU: CPUState{
			DAT: true,
			ASC: "home",
			Key: 3,
			CR:  map[string]uint64{"0": 0x00b00000, "13": 0x10000},
		},
		Checks: []Check{{Name: "check 1", Op: "lra", Vaddr: 0x1000, CC: &cc}},
		arch:   cpu.ArchESA390,
		size:   1024 * 1024,
	}
	if diff := cmp.Diff(want, s, cmp.AllowUnexported(Scenario{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}

	c, err := s.Setup()
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer c.Storage().Close()
	if c.ASC() != cpu.ASCHome || c.Key() != 0x30 || !c.DAT() || c.CR(13) != 0x10000 {
		t.Errorf("Setup registers got: asc %d key %x dat %v cr13 %x", c.ASC(), c.Key(), c.DAT(), c.CR(13))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"arch", `arch = "360"`},
		{"unknown key", "arch = \"Z\"\nspeed = 3"},
		{"size", "arch = \"Z\"\nmainsize = \"lots\""},
		{"width", "arch = \"Z\"\n[[storage]]\naddr = 0\nwidth = 3\nvalues = [1]"},
		{"op", "arch = \"Z\"\n[[check]]\nop = \"jump\""},
		{"space", "arch = \"Z\"\n[[check]]\nspace = \"far\""},
		{"asc", "arch = \"Z\"\n[cpu]\nasc = \"none\""},
		{"syntax", "arch = "},
	}
	for _, test := range tests {
		if _, err := Parse(test.text); err == nil {
			t.Errorf("Parse %s did not fail", test.name)
		}
	}
}

func TestSetupErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"facility", "arch = \"ESA390\"\nfacilities = [\"EDAT1\"]"},
		{"storage", "arch = \"Z\"\nmainsize = \"64K\"\n[[storage]]\naddr = 0x10000\nwidth = 4\nvalues = [1]"},
		{"register", "arch = \"Z\"\n[cpu.cr]\n16 = 1"},
		{"amode", "arch = \"S370\"\n[cpu]\namode = 31"},
		{"prefix", "arch = \"Z\"\nmainsize = \"64K\"\n[cpu]\nprefix = 0x100000"},
	}
	for _, test := range tests {
		s, err := Parse(test.text)
		if err != nil {
			t.Errorf("Parse %s failed: %v", test.name, err)
			continue
		}
		if c, err := s.Setup(); err == nil {
			_ = c.Storage().Close()
			t.Errorf("Setup %s did not fail", test.name)
		}
	}
}

func TestCheckMismatch(t *testing.T) {
	text := `
arch = "S370"
mainsize = "64K"

[[check]]
name = "wrong address"
vaddr = 0x100
abs = 0x200

[[check]]
name = "wrong code"
vaddr = 0x100
code = 0x11

[[check]]
name = "right"
vaddr = 0x100
abs = 0x100
`
	s, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	c, results, err := s.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer c.Storage().Close()
	want := []bool{true, true, false}
	for i, r := range results {
		if (r.Err != nil) != want[i] {
			t.Errorf("%s error got: %v", r.Name, r.Err)
		}
	}
}
