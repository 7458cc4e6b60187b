/*
 * S390 CPU test cases.
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

package cpu

import (
	"testing"
)

func TestReset(t *testing.T) {
	for _, arch := range []ArchMode{ArchS370, ArchESA390, ArchZ} {
		c := New(1, arch, newStorage(t))
		if c.Addr() != 1 || c.Arch() != arch {
			t.Errorf("%v CPU got: %d %v expected: 1 %v", arch, c.Addr(), c.Arch(), arch)
		}
		if c.CR(0) != 0xe0 {
			t.Errorf("%v CR0 got: %x expected: %x", arch, c.CR(0), 0xe0)
		}
		if c.CR(14) != 0xc2000000 {
			t.Errorf("%v CR14 got: %x expected: %x", arch, c.CR(14), 0xc2000000)
		}
		cr2 := uint64(0)
		if arch == ArchS370 {
			cr2 = 0xffffffff
		}
		if c.CR(2) != cr2 {
			t.Errorf("%v CR2 got: %x expected: %x", arch, c.CR(2), cr2)
		}
		if c.DAT() || c.ASC() != ASCPrimary || c.Prefix() != 0 {
			t.Errorf("%v PSW not reset", arch)
		}
		if len(c.TLBEntries()) != 0 {
			t.Errorf("%v TLB not empty", arch)
		}
	}
}

// Reset must drop everything loaded.
func TestResetClears(t *testing.T) {
	c, tb := setup(t, ArchESA390)
	tb.mapPage(0x345000, 0x200000)
	_, _ = c.LogicalToMain(0x345000, 0, AccTypeRead, 0)
	c.SetGPR(3, 0x1234)
	c.SetAR(3, 2)
	_ = c.SetPrefix(0x20000)
	c.Reset()
	if c.GPR(3) != 0 || c.AR(3) != 0 || c.Prefix() != 0 {
		t.Errorf("Reset registers got: %x %x %x expected: 0", c.GPR(3), c.AR(3), c.Prefix())
	}
	if len(c.TLBEntries()) != 0 {
		t.Errorf("Reset left TLB entries: %d", len(c.TLBEntries()))
	}
}

func TestParseArch(t *testing.T) {
	tests := []struct {
		name string
		arch ArchMode
		ok   bool
	}{
		{"s370", ArchS370, true},
		{"S/370", ArchS370, true},
		{"esa390", ArchESA390, true},
		{"390", ArchESA390, true},
		{"z", ArchZ, true},
		{"zarch", ArchZ, true},
		{"360", ArchS370, false},
	}
	for _, test := range tests {
		arch, err := ParseArch(test.name)
		if (err == nil) != test.ok {
			t.Errorf("ParseArch %s error got: %v", test.name, err)
			continue
		}
		if test.ok && arch != test.arch {
			t.Errorf("ParseArch %s got: %v expected: %v", test.name, arch, test.arch)
		}
	}
	if ArchESA390.String() != "ESA/390" {
		t.Errorf("Arch name got: %s expected: ESA/390", ArchESA390.String())
	}
}

func TestSetFacility(t *testing.T) {
	tests := []struct {
		arch ArchMode
		name string
		on   bool
		ok   bool
	}{
		{ArchZ, "EDAT1", true, true},
		{ArchZ, "edat", false, true},
		{ArchESA390, "EDAT1", true, false},
		{ArchS370, "ASF", true, false},
		{ArchESA390, "ASF", false, true},
		{ArchZ, "ASF", false, false},
		{ArchZ, "VECTOR", true, false},
	}
	for _, test := range tests {
		c := New(0, test.arch, newStorage(t))
		err := c.SetFacility(test.name, test.on)
		if (err == nil) != test.ok {
			t.Errorf("%v facility %s %v got: %v", test.arch, test.name, test.on, err)
		}
	}
}

func TestSetASC(t *testing.T) {
	c := New(0, ArchS370, newStorage(t))
	c.SetASC(ASCAR)
	if c.ASC() != ASCPrimary {
		t.Errorf("S/370 AR mode got: %d expected: %d", c.ASC(), ASCPrimary)
	}
	c.SetASC(ASCSecondary)
	if c.ASC() != ASCSecondary {
		t.Errorf("S/370 secondary mode got: %d expected: %d", c.ASC(), ASCSecondary)
	}
	c = New(0, ArchESA390, newStorage(t))
	c.SetASC(ASCAR)
	if c.ASC() != ASCAR {
		t.Errorf("ESA/390 AR mode got: %d expected: %d", c.ASC(), ASCAR)
	}
}

func TestSetAddressingMode(t *testing.T) {
	tests := []struct {
		arch ArchMode
		bits int
		ok   bool
	}{
		{ArchS370, 24, true},
		{ArchS370, 31, false},
		{ArchESA390, 31, true},
		{ArchESA390, 64, false},
		{ArchZ, 64, true},
		{ArchZ, 32, false},
	}
	for _, test := range tests {
		c := New(0, test.arch, newStorage(t))
		if err := c.SetAddressingMode(test.bits); (err == nil) != test.ok {
			t.Errorf("%v amode %d got: %v", test.arch, test.bits, err)
		}
	}
}

func TestLoadControl(t *testing.T) {
	c, tb := setup(t, ArchESA390)
	tb.mapPage(0x345000, 0x200000)
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeWrite, 0); irc != 0 {
		t.Fatalf("Store failed got: %x", irc)
	}

	// Low address protection forces store checks.
	c.LoadControl(0, c.CR(0)|cr0LowProt)
	list := c.TLBEntries()
	if len(list) != 1 || list[0].Acc != AccRead {
		t.Errorf("CR0 change TLB got: %v expected: one entry with read access", list)
	}

	c.LoadControl(1, 0xffffffff00010000)
	if c.CR(1) != 0x00010000 {
		t.Errorf("ESA/390 CR1 got: %x expected: %x", c.CR(1), 0x00010000)
	}

	// Translation format change purges, walk then reports the bad format.
	_, _ = c.LogicalToMain(0x345000, 0, AccTypeRead, 0)
	c.LoadControl(0, c.CR(0)&^cr0TranFmt)
	if len(c.TLBEntries()) != 0 {
		t.Errorf("ESA/390 translation format change left TLB entries")
	}
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeRead, 0); irc != IrcTrans {
		t.Errorf("Read with bad format got: %x expected: %x", irc, IrcTrans)
	}

	// S/370 purges when segment table changes.
	c, tb = setup(t, ArchS370)
	tb.mapPage(0x045000, 0x200000)
	_, _ = c.LogicalToMain(0x045000, 0, AccTypeRead, 0)
	c.LoadControl(1, c.CR(1))
	if len(c.TLBEntries()) != 0 {
		t.Errorf("S/370 CR1 load left TLB entries")
	}

	// Page size change purges.
	_, _ = c.LogicalToMain(0x045000, 0, AccTypeRead, 0)
	c.LoadControl(0, 0x00400000)
	if len(c.TLBEntries()) != 0 {
		t.Errorf("S/370 page size change left TLB entries")
	}
}

func TestDebugOption(t *testing.T) {
	defer func() { debugMsk = 0 }()
	if err := Debug("TLB"); err != nil {
		t.Errorf("Debug TLB got: %v", err)
	}
	if debugMsk&debugTLB == 0 {
		t.Errorf("Debug TLB not set")
	}
	if err := Debug("CHANNEL"); err == nil {
		t.Errorf("Debug CHANNEL did not fail")
	}
}
