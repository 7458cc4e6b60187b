package cpu

/*
 * S390  - Translation table builder for test cases
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

	"github.com/rcornwell/S390/emu/memory"
)

const testMemSize = 4 * 1024 * 1024

// Interlock for tests, all CPUs are always stopped.
type testSystem struct {
	cpus []*CPU
}

func (s *testSystem) SynchronizeCPUs(_ *CPU, fn func(cpus []*CPU)) {
	fn(s.cpus)
}

// Segment and page tables in storage. Entries hold real addresses,
// storage is written at base plus the real address.
type tables struct {
	t    *testing.T
	mem  *memory.Storage
	arch ArchMode
	base uint64
}

const (
	testSTO = 0x10000 // Segment table origin
	testPTO = 0x20000 // First page table
)

func newStorage(t *testing.T) *memory.Storage {
	t.Helper()
	mem, err := memory.New(testMemSize)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mem.Close() })
	return mem
}

// Create empty tables, every segment invalid.
func newTables(t *testing.T, mem *memory.Storage, arch ArchMode, base uint64) *tables {
	t.Helper()
	tb := &tables{t: t, mem: mem, arch: arch, base: base}
	switch arch {
	case ArchS370:
		for i := range uint64(256) {
			tb.put32(testSTO+i*4, ste370Invalid)
		}
	case ArchESA390:
		for i := range uint64(64) {
			tb.put32(testSTO+i*4, ste390Invalid)
		}
	case ArchZ:
		for i := range uint64(2048) {
			tb.put64(testSTO+i*8, zsegI)
		}
	}
	return tb
}

// Create CPU with primary, secondary and home space using one set of tables.
func setup(t *testing.T, arch ArchMode) (*CPU, *tables) {
	t.Helper()
	mem := newStorage(t)
	tb := newTables(t, mem, arch, 0)
	return setupCPU(t, 0, mem, tb), tb
}

func setupCPU(t *testing.T, addr uint16, mem *memory.Storage, tb *tables) *CPU {
	t.Helper()
	c := New(addr, tb.arch, mem)
	switch tb.arch {
	case ArchS370:
		c.LoadControl(0, 0x00800000) // 4K pages, 64K segments
	case ArchESA390:
		c.LoadControl(0, cr0TranESA)
		_ = c.SetAddressingMode(31)
	case ArchZ:
		_ = c.SetAddressingMode(64)
	}
	c.LoadControl(1, tb.asd())
	c.LoadControl(7, tb.asd())
	c.LoadControl(13, tb.asd())
	c.SetDAT(true)
	return c
}

func (tb *tables) put16(addr uint64, v uint16) {
	if tb.mem.PutHalf(addr+tb.base, v) {
		tb.t.Fatalf("table address %x out of storage", addr)
	}
}

func (tb *tables) put32(addr uint64, v uint32) {
	if tb.mem.PutWord(addr+tb.base, v) {
		tb.t.Fatalf("table address %x out of storage", addr)
	}
}

func (tb *tables) put64(addr uint64, v uint64) {
	if tb.mem.PutDouble(addr+tb.base, v) {
		tb.t.Fatalf("table address %x out of storage", addr)
	}
}

func (tb *tables) get32(addr uint64) uint32 {
	v, _ := tb.mem.GetWord(addr + tb.base)
	return v
}

func (tb *tables) get64(addr uint64) uint64 {
	v, _ := tb.mem.GetDouble(addr + tb.base)
	return v
}

// Space designator of tables.
func (tb *tables) asd() uint64 {
	switch tb.arch {
	case ArchS370:
		return 0x0f000000 | testSTO
	case ArchESA390:
		return testSTO
	}
	return testSTO | 3
}

func (tb *tables) segIndex(vaddr uint64) uint64 {
	if tb.arch == ArchS370 {
		return (vaddr >> 16) & 0xff
	}
	return (vaddr >> 20) & 0x7ff
}

// Real address of segment table entry for vaddr.
func (tb *tables) steAddr(vaddr uint64) uint64 {
	switch tb.arch {
	case ArchS370, ArchESA390:
		return testSTO + tb.segIndex(vaddr)*4
	}
	return testSTO + tb.segIndex(vaddr)*8
}

// Real address of page table for vaddr.
func (tb *tables) ptoAddr(vaddr uint64) uint64 {
	seg := tb.segIndex(vaddr)
	switch tb.arch {
	case ArchS370:
		return testPTO + seg*0x20
	case ArchESA390:
		return testPTO + (seg&0x3f)*0x400
	}
	return testPTO + (seg&0x3f)*0x800
}

// Real address of page table entry for vaddr.
func (tb *tables) pteAddr(vaddr uint64) uint64 {
	switch tb.arch {
	case ArchS370:
		return tb.ptoAddr(vaddr) + ((vaddr>>12)&0xf)*2
	case ArchESA390:
		return tb.ptoAddr(vaddr) + ((vaddr>>12)&0xff)*4
	}
	return tb.ptoAddr(vaddr) + ((vaddr>>12)&0xff)*8
}

// Make segment of vaddr valid with a page table of invalid pages.
func (tb *tables) validSegment(vaddr uint64) {
	ste := tb.steAddr(vaddr)
	pto := tb.ptoAddr(vaddr)
	switch tb.arch {
	case ArchS370:
		if tb.get32(ste)&ste370Invalid == 0 {
			return
		}
		for i := range uint64(16) {
			tb.put16(pto+i*2, 0x0008)
		}
		tb.put32(ste, 0xf0000000|uint32(pto))
	case ArchESA390:
		if tb.get32(ste)&ste390Invalid == 0 {
			return
		}
		for i := range uint64(256) {
			tb.put32(pto+i*4, pte390Invalid)
		}
		tb.put32(ste, uint32(pto)|ste390PTL)
	case ArchZ:
		if tb.get64(ste)&zsegI == 0 {
			return
		}
		for i := range uint64(256) {
			tb.put64(pto+i*8, zpteI)
		}
		tb.put64(ste, pto)
	}
}

// Map page vaddr to frame, bits are added to page table entry.
func (tb *tables) mapPageBits(vaddr, frame, bits uint64) {
	tb.validSegment(vaddr)
	pte := tb.pteAddr(vaddr)
	switch tb.arch {
	case ArchS370:
		tb.put16(pte, uint16(frame>>8)|uint16(bits))
	case ArchESA390:
		tb.put32(pte, uint32(frame)|uint32(bits))
	case ArchZ:
		tb.put64(pte, frame|bits)
	}
}

func (tb *tables) mapPage(vaddr, frame uint64) {
	tb.mapPageBits(vaddr, frame, 0)
}

// Mark page of vaddr invalid.
func (tb *tables) invalidPage(vaddr uint64) {
	tb.validSegment(vaddr)
	switch tb.arch {
	case ArchS370:
		tb.put16(tb.pteAddr(vaddr), 0x0008)
	case ArchESA390:
		tb.put32(tb.pteAddr(vaddr), pte390Invalid)
	case ArchZ:
		tb.put64(tb.pteAddr(vaddr), zpteI)
	}
}

// Or bits into segment table entry of vaddr.
func (tb *tables) segmentBits(vaddr, bits uint64) {
	ste := tb.steAddr(vaddr)
	if tb.arch == ArchZ {
		tb.put64(ste, tb.get64(ste)|bits)
		return
	}
	tb.put32(ste, tb.get32(ste)|uint32(bits))
}
