package cpu

/*
 * S390  - TLB test cases
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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Second translation comes from TLB without walking tables.
func TestTLBIdempotent(t *testing.T) {
	for _, arch := range []ArchMode{ArchS370, ArchESA390, ArchZ} {
		c, tb := setup(t, arch)
		vaddr := uint64(0x045678)
		tb.mapPage(vaddr, 0x200000)

		first, irc := c.LogicalToMain(vaddr, 0, AccTypeRead, 0)
		if irc != 0 {
			t.Fatalf("%v first translate got: %x", arch, irc)
		}
		second, irc := c.LogicalToMain(vaddr, 0, AccTypeRead, 0)
		if irc != 0 || second != first {
			t.Errorf("%v second translate got: %x irc %x expected: %x", arch, second, irc, first)
		}

		// Tables change without purge, TLB still used.
		tb.invalidPage(vaddr)
		third, irc := c.LogicalToMain(vaddr, 0, AccTypeRead, 0)
		if irc != 0 || third != first {
			t.Errorf("%v cached translate got: %x irc %x expected: %x", arch, third, irc, first)
		}

		c.PurgeTLB()
		_, irc = c.LogicalToMain(vaddr, 0, AccTypeRead, 0)
		if irc != IrcPage {
			t.Errorf("%v after purge got: %x expected: %x", arch, irc, IrcPage)
		}
	}
}

func TestTLBEntries(t *testing.T) {
	c, tb := setup(t, ArchESA390)
	tb.mapPage(0x345000, 0x200000)
	if _, irc := c.LogicalToMain(0x345010, 0, AccTypeRead, 0); irc != 0 {
		t.Fatalf("Translate failed got: %x", irc)
	}
	want := []TLBEntry{{
		Index: 0x345,
		ASD:   testSTO,
		Vaddr: 0x345000,
		Frame: 0x200000,
		Main:  0x200000,
		Acc:   AccRead,
	}}
	if diff := cmp.Diff(want, c.TLBEntries()); diff != "" {
		t.Errorf("TLB mismatch (-want +got):\n%s", diff)
	}

	// Store adds to existing entry.
	if _, irc := c.LogicalToMain(0x345010, 0, AccTypeWrite, 0); irc != 0 {
		t.Fatalf("Store failed got: %x", irc)
	}
	want[0].Acc = AccRead | AccWrite | AccCheck
	if diff := cmp.Diff(want, c.TLBEntries()); diff != "" {
		t.Errorf("TLB after store mismatch (-want +got):\n%s", diff)
	}
}

// Generation wrap clears every entry.
func TestTLBGenerationWrap(t *testing.T) {
	c, tb := setup(t, ArchZ)
	tb.mapPage(0x345000, 0x200000)
	c.tlb.gen = tlbMaxGen
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeRead, 0); irc != 0 {
		t.Fatalf("Translate failed got: %x", irc)
	}
	if len(c.TLBEntries()) != 1 {
		t.Fatalf("TLB entries got: %d expected: 1", len(c.TLBEntries()))
	}
	c.PurgeTLB()
	if c.tlb.gen != 1 {
		t.Errorf("Generation after wrap got: %x expected: 1", c.tlb.gen)
	}
	if c.tlb.entry[0x345].gen != 0 {
		t.Errorf("Entry not cleared on wrap gen: %x", c.tlb.entry[0x345].gen)
	}
	tb.invalidPage(0x345000)
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeRead, 0); irc != IrcPage {
		t.Errorf("Stale entry after wrap got: %x expected: %x", irc, IrcPage)
	}
}

// Access mask removes permissions, mappings stay.
func TestTLBInvalidateAccess(t *testing.T) {
	c, tb := setup(t, ArchESA390)
	tb.mapPage(0x345000, 0x200000)
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeWrite, 0); irc != 0 {
		t.Fatalf("Store failed got: %x", irc)
	}
	c.InvalidateTLB(^(AccWrite | AccCheck))
	list := c.TLBEntries()
	if len(list) != 1 || list[0].Acc != AccRead {
		t.Fatalf("TLB after mask got: %v expected read only", list)
	}
	c.InvalidateTLB(0)
	if list = c.TLBEntries(); list[0].Acc != 0 {
		t.Errorf("TLB access after clear got: %x expected: 0", list[0].Acc)
	}
}

// Frame invalidation removes only entries for that frame.
func TestTLBInvalidateFrame(t *testing.T) {
	c, tb := setup(t, ArchESA390)
	tb.mapPage(0x345000, 0x200000)
	tb.mapPage(0x346000, 0x201000)
	for _, v := range []uint64{0x345000, 0x346000} {
		if _, irc := c.LogicalToMain(v, 0, AccTypeRead, 0); irc != 0 {
			t.Fatalf("Translate %x failed got: %x", v, irc)
		}
	}
	c.InvalidateTLBEntry(0x200000)
	list := c.TLBEntries()
	if len(list) != 1 || list[0].Frame != 0x201000 {
		t.Errorf("TLB after frame invalidate got: %v expected frame 201000", list)
	}
}

// Low pages never cache store permission.
func TestTLBLowAddress(t *testing.T) {
	c, _ := setup(t, ArchESA390)
	c.SetDAT(false)
	if _, irc := c.LogicalToMain(0x100, 0, AccTypeWrite, 0); irc != 0 {
		t.Fatalf("Store low failed got: %x", irc)
	}
	if _, irc := c.LogicalToMain(0x1100, 0, AccTypeWrite, 0); irc != 0 {
		t.Fatalf("Store failed got: %x", irc)
	}
	for _, e := range c.TLBEntries() {
		if !e.Real {
			t.Errorf("Real entry not marked real: %v", e)
		}
		want := AccRead | AccWrite | AccCheck
		if e.Vaddr == 0 {
			want = AccRead
		}
		if e.Acc != want {
			t.Errorf("TLB page %x access got: %x expected: %x", e.Vaddr, e.Acc, want)
		}
	}
}

// Entry loaded under one key is not used for another.
func TestTLBKeyMismatch(t *testing.T) {
	c, tb := setup(t, ArchESA390)
	tb.mapPage(0x345000, 0x200000)
	c.mem.PutKey(0x200000, 0x18)
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeRead, 0x10); irc != 0 {
		t.Fatalf("Fetch with matching key got: %x", irc)
	}
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeRead, 0x20); irc != IrcProt {
		t.Errorf("Fetch with wrong key got: %x expected: %x", irc, IrcProt)
	}
	if _, irc := c.LogicalToMain(0x345000, 0, AccTypeRead, 0); irc != 0 {
		t.Errorf("Fetch with key zero got: %x expected: 0", irc)
	}
}

// Common segments are shared between spaces, private spaces excluded.
func TestTLBCommonSegment(t *testing.T) {
	c, tb := setup(t, ArchESA390)
	tb.mapPage(0x345000, 0x200000)
	tb.segmentBits(0x345000, uint64(ste390Common))
	tb.mapPage(0x445000, 0x201000)

	other := uint64(0x18000)
	for i := range uint64(64) {
		tb.put32(other+i*4, ste390Invalid)
	}

	for _, v := range []uint64{0x345000, 0x445000} {
		if _, irc := c.LogicalToMain(v, 0, AccTypeRead, 0); irc != 0 {
			t.Fatalf("Translate %x failed got: %x", v, irc)
		}
	}

	c.LoadControl(1, other)
	abs, irc := c.LogicalToMain(0x345000, 0, AccTypeRead, 0)
	if irc != 0 || abs != 0x200000 {
		t.Errorf("Common segment got: %x irc %x expected: %x", abs, irc, 0x200000)
	}
	if _, irc = c.LogicalToMain(0x445000, 0, AccTypeRead, 0); irc != IrcSeg {
		t.Errorf("Non common segment got: %x expected: %x", irc, IrcSeg)
	}

	c.LoadControl(1, other|stdPrivate)
	if _, irc = c.LogicalToMain(0x345000, 0, AccTypeRead, 0); irc != IrcSeg {
		t.Errorf("Common in private space got: %x expected: %x", irc, IrcSeg)
	}
}
