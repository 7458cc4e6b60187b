package cpu

/*
 * S390  - Translation lookaside buffer
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
	"github.com/rcornwell/S390/emu/memory"
	"github.com/rcornwell/S390/util/debug"
)

const (
	tlbSize   = 1024
	tlbMask   = tlbSize - 1
	tlbMaxGen = 0x000fffff // Generation wraps after this

	tlbAcc = AccRead | AccWrite | AccCheck // Access bits kept in TLB
)

type tlbEntry struct {
	asd       uint64      // Address space designator
	vaddr     uint64      // Virtual page address
	gen       uint32      // Generation entry was loaded in, 0 invalid
	real      bool        // Entry maps a real address
	common    bool        // Common segment
	protect   uint8       // DAT protection
	frame     uint64      // Real page frame
	skey      uint8       // Access control bits of storage key
	acc       AccType     // Accesses allowed without checks
	key       *memory.Key // Storage key of page
	main      uint64      // Absolute page address
	hostFrame uint64      // Host real frame when running as guest
}

type tlb struct {
	gen   uint32
	entry [tlbSize]tlbEntry
}

// Clear every entry and restart generation.
func (t *tlb) reset() {
	t.gen = 1
	clear(t.entry[:])
}

// TLB slot for a virtual address.
func tlbIndex(vaddr uint64) uint64 {
	return (vaddr >> memory.FrameShift) & tlbMask
}

// Mask of offset bits within a page.
func (cpu *CPU) pageOffset() uint64 {
	if cpu.arch == ArchS370 && cpu.format.valid {
		return cpu.format.pageMask
	}
	return 0xfff
}

// Return entry if it holds the mapping of vaddr in asd.
func (cpu *CPU) tlbMapping(vaddr, asd uint64, real bool) *tlbEntry {
	e := &cpu.tlb.entry[tlbIndex(vaddr)]
	if e.gen != cpu.tlb.gen || e.vaddr != vaddr&^cpu.pageOffset() || e.real != real {
		return nil
	}
	if e.asd != asd && (!e.common || cpu.asdPrivate(asd)) {
		return nil
	}
	return e
}

// Return entry if translation can be done without any checks.
func (cpu *CPU) tlbLookup(vaddr, asd uint64, real bool, akey uint8, acc AccType) *tlbEntry {
	e := cpu.tlbMapping(vaddr, asd, real)
	if e == nil {
		return nil
	}
	if akey != 0 && akey != e.skey {
		return nil
	}
	if e.acc&acc != acc {
		return nil
	}
	return e
}

// Load a TLB entry after a translation passed all checks.
func (cpu *CPU) tlbFill(vaddr uint64, tr *Translation, real bool, acc AccType, main, hostFrame uint64, key *memory.Key) {
	off := cpu.pageOffset()
	page := vaddr &^ off
	e := &cpu.tlb.entry[tlbIndex(vaddr)]

	acc &= tlbAcc
	if acc&(AccWrite|AccCheck) != 0 {
		acc |= AccRead | AccCheck
	}

	// Low addresses are always checked for stores.
	if page < cpu.prefixSize() && !tr.Private {
		acc &= AccRead
	}
	skey := key.Get() & memory.KeyAccess
	frame := tr.Real &^ off
	if e.gen == cpu.tlb.gen && e.vaddr == page && e.asd == tr.ASD && e.real == real &&
		e.frame == frame && e.skey == skey {
		acc |= e.acc
	}
	*e = tlbEntry{
		asd:       tr.ASD,
		vaddr:     page,
		gen:       cpu.tlb.gen,
		real:      real,
		common:    tr.Common,
		protect:   tr.Protect,
		frame:     frame,
		skey:      skey,
		acc:       acc,
		key:       key,
		main:      main &^ off,
		hostFrame: hostFrame &^ off,
	}
	if debugMsk&debugTLB != 0 {
		debug.Debugf("CPU", debugMsk, debugTLB, "%x fill %03x va=%x asd=%x frame=%x abs=%x acc=%x",
			cpu.addr, tlbIndex(vaddr), page, tr.ASD, frame, e.main, acc)
	}
}

// PurgeTLB invalidates all TLB entries of this CPU and of its nested partner.
func (cpu *CPU) PurgeTLB() {
	cpu.purgeTLB()
	if cpu.guest != nil {
		cpu.guest.purgeTLB()
	} else if cpu.host != nil {
		cpu.host.purgeTLB()
	}
}

func (cpu *CPU) purgeTLB() {
	cpu.tlb.gen++
	if cpu.tlb.gen > tlbMaxGen {
		cpu.tlb.reset()
	}
	debug.Debugf("CPU", debugMsk, debugPurge, "%x purge tlb gen=%x", cpu.addr, cpu.tlb.gen)
}

// InvalidateTLBEntry removes entries that map the real page frame.
func (cpu *CPU) InvalidateTLBEntry(frame uint64) {
	cpu.invalidateFrame(frame, false)
	if cpu.guest != nil {
		cpu.guest.invalidateFrame(frame, true)
	} else if cpu.host != nil {
		cpu.host.invalidateFrame(frame+cpu.mso, false)
	}
}

func (cpu *CPU) invalidateFrame(frame uint64, host bool) {
	frame &^= memory.FrameMask
	for i := range cpu.tlb.entry {
		e := &cpu.tlb.entry[i]
		if e.gen != cpu.tlb.gen {
			continue
		}
		f := e.frame
		if host {
			f = e.hostFrame
		}
		if f&^memory.FrameMask == frame {
			e.gen = 0
		}
	}
	debug.Debugf("CPU", debugMsk, debugPurge, "%x invalidate frame %x host=%v", cpu.addr, frame, host)
}

// InvalidateTLB keeps only the access bits in mask for every entry.
// Mappings stay valid, protection must be checked again.
func (cpu *CPU) InvalidateTLB(mask AccType) {
	cpu.invalidateAcc(mask)
	if cpu.guest != nil {
		cpu.guest.invalidateAcc(mask)
	} else if cpu.host != nil {
		cpu.host.invalidateAcc(mask)
	}
}

func (cpu *CPU) invalidateAcc(mask AccType) {
	for i := range cpu.tlb.entry {
		cpu.tlb.entry[i].acc &= mask
	}
	debug.Debugf("CPU", debugMsk, debugPurge, "%x invalidate acc %x", cpu.addr, mask)
}

// TLBEntry is a copy of one valid TLB entry.
type TLBEntry struct {
	Index   int
	ASD     uint64
	Vaddr   uint64
	Frame   uint64
	Main    uint64
	Real    bool
	Common  bool
	Protect bool
	Key     uint8
	Acc     AccType
}

// TLBEntries returns the current TLB entries.
func (cpu *CPU) TLBEntries() []TLBEntry {
	list := []TLBEntry{}
	for i := range cpu.tlb.entry {
		e := &cpu.tlb.entry[i]
		if e.gen != cpu.tlb.gen {
			continue
		}
		list = append(list, TLBEntry{
			Index:   i,
			ASD:     e.asd,
			Vaddr:   e.vaddr,
			Frame:   e.frame,
			Main:    e.main,
			Real:    e.real,
			Common:  e.common,
			Protect: e.protect != 0,
			Key:     e.skey,
			Acc:     e.acc,
		})
	}
	return list
}
