package cpu

/*
 * S390  - Logical to absolute address translation
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

// TEA bits for protection exceptions.
const (
	teaALEProt uint64 = 0x8
	teaDATProt uint64 = 0x4
)

// LogicalToMain translates a logical address to an absolute storage address.
// akey is the access key in storage key format.
func (cpu *CPU) LogicalToMain(vaddr uint64, arn int, acc AccType, akey uint8) (uint64, uint16) {
	vaddr &= cpu.addrMask()
	real := !cpu.psw.dat || arn == UseRealAddr
	tacc := acc & tlbAcc

	// Quick check if TLB correct
	if acc&AccNoTLB == 0 {
		asd := uint64(0)
		ok := true
		if !real {
			asd, ok = cpu.fastASD(arn, acc)
		}
		if ok {
			if e := cpu.tlbLookup(vaddr, asd, real, akey, tacc); e != nil {
				switch {
				case tacc&AccWrite != 0:
					e.key.Or(memory.KeyRef | memory.KeyChange)
				case tacc != 0:
					e.key.Or(memory.KeyRef)
				}
				return e.main | (vaddr & cpu.pageOffset()), 0
			}
		}
	}
	return cpu.logicalToMain(vaddr, arn, acc, akey)
}

// MainAddr returns storage for a reference of length bytes, limited to one page.
func (cpu *CPU) MainAddr(vaddr uint64, arn int, acc AccType, akey uint8, length uint64) ([]byte, uint16) {
	main, irc := cpu.LogicalToMain(vaddr, arn, acc, akey)
	if irc != 0 {
		return nil, irc
	}
	off := cpu.pageOffset()
	room := off + 1 - (vaddr & off)
	return cpu.mem.Slice(main, min(length, room)), 0
}

// Translate a logical address to real without touching the TLB or keys.
func (cpu *CPU) Translate(vaddr uint64, arn int, acc AccType) (Translation, Fault) {
	vaddr &= cpu.addrMask()
	if !cpu.psw.dat || arn == UseRealAddr {
		tr := Translation{Real: vaddr, STID: StidReal}
		tr.Abs = cpu.realToAbs(vaddr)
		return tr, Fault{}
	}
	tr, f := cpu.translate(vaddr, arn, acc|AccNoTLB)
	if f.Code == 0 {
		tr.Abs = cpu.realToAbs(tr.Real)
	}
	return tr, f
}

// Resolve the ASD then walk tables.
func (cpu *CPU) translate(vaddr uint64, arn int, acc AccType) (Translation, Fault) {
	asd, stid, prot, f := cpu.loadASD(arn, acc)
	if f.Code != 0 {
		return Translation{STID: stid}, f
	}

	var tr Translation
	e := (*tlbEntry)(nil)
	if acc&(AccNoTLB|AccPTE|AccLPTEA) == 0 {
		e = cpu.tlbMapping(vaddr, asd, false)
	}
	if e != nil {
		// Mapping still valid, only protection needs checking.
		tr = Translation{
			Real:    e.frame | (vaddr & cpu.pageOffset()),
			Protect: e.protect,
			Common:  e.common,
			Private: cpu.asdPrivate(asd),
		}
	} else {
		tr, f = cpu.walk(asd, vaddr, acc)
	}
	tr.Protect |= prot
	tr.STID = stid
	tr.ASD = asd
	return tr, f
}

// Translation failed, record exception information.
func (cpu *CPU) translationFault(vaddr uint64, stid int, f Fault) {
	cpu.entry = f.Entry
	switch f.Code {
	case IrcSeg, IrcPage, IrcRegion1, IrcRegion2, IrcRegion3, IrcASCEType, IrcProt:
		cpu.tea = cpu.teaFor(vaddr, stid)
	}
	debug.Debugf("CPU", debugMsk, debugDAT, "%x va=%x exception %02x tea=%x", cpu.addr, vaddr, f.Code, cpu.tea)
}

// Translation exception address for vaddr.
func (cpu *CPU) teaFor(vaddr uint64, stid int) uint64 {
	switch cpu.arch {
	case ArchS370:
		return vaddr & 0x00ffffff
	case ArchESA390:
		return (vaddr & 0x7ffff000) | uint64(stid&3)
	}
	return (vaddr &^ 0xfff) | uint64(stid&3)
}

func (cpu *CPU) logicalToMain(vaddr uint64, arn int, acc AccType, akey uint8) (uint64, uint16) {
	var tr Translation
	real := !cpu.psw.dat || arn == UseRealAddr
	if real {
		tr = Translation{Real: vaddr, STID: StidReal}
	} else {
		var f Fault
		tr, f = cpu.translate(vaddr, arn, acc)
		if f.Code != 0 {
			cpu.translationFault(vaddr, tr.STID, f)
			return 0, f.Code
		}
	}

	abs := cpu.realToAbs(tr.Real)
	main := abs
	hostFrame := abs
	hostProt := false
	if cpu.host != nil {
		var f Fault
		main, hostFrame, hostProt, f = cpu.sieTranslate(abs, acc)
		if f.Code != 0 {
			return 0, f.Code
		}
	} else if !cpu.mem.CheckAddr(abs) {
		return 0, IrcAddr
	}

	tacc := acc & tlbAcc
	if tacc == 0 {
		return main, 0
	}

	key := cpu.mem.KeyOf(main)
	k := key.Get()
	if irc := cpu.checkProtect(vaddr, &tr, k, akey, acc, hostProt); irc != 0 {
		return 0, irc
	}

	if acc&AccNoTLB == 0 {
		if real {
			tr.ASD = 0
		}
		cpu.tlbFill(vaddr, &tr, real, tacc, main, hostFrame, key)
	}
	if tacc&AccWrite != 0 {
		key.Or(memory.KeyRef | memory.KeyChange)
	} else {
		key.Or(memory.KeyRef)
	}
	return main, 0
}

// Apply protection rules. Returns program interrupt code.
func (cpu *CPU) checkProtect(vaddr uint64, tr *Translation, k, akey uint8, acc AccType, hostProt bool) uint16 {
	if acc&AccRead != 0 && cpu.fetchProtected(vaddr, k, akey) {
		cpu.tea = cpu.teaFor(vaddr, tr.STID)
		return IrcProt
	}
	if acc&(AccWrite|AccCheck) == 0 {
		return 0
	}
	if cpu.lowAddrProtected(vaddr, tr.Private) {
		cpu.tea = cpu.teaFor(vaddr, tr.STID)
		return IrcProt
	}
	if hostProt {
		cpu.sieIntercept = true
		cpu.tea = cpu.teaFor(vaddr, tr.STID)
		return IrcProt
	}
	if tr.Protect&1 != 0 {
		cpu.tea = cpu.teaFor(vaddr, tr.STID) | teaDATProt
		return IrcProt
	}
	if tr.Protect&2 != 0 {
		cpu.tea = cpu.teaFor(vaddr, tr.STID) | teaALEProt
		return IrcProt
	}
	if cpu.storeProtected(k, akey) {
		cpu.tea = cpu.teaFor(vaddr, tr.STID)
		return IrcProt
	}
	return 0
}

// Key controlled protection for fetch.
func (cpu *CPU) fetchProtected(vaddr uint64, k, akey uint8) bool {
	if akey == 0 || k&memory.KeyFetch == 0 || k&memory.KeyAccess == akey {
		return false
	}
	if cpu.arch != ArchS370 {
		if cpu.cr[0]&cr0FetchOver != 0 && vaddr < fetchOverEnd {
			return false
		}
		if cpu.cr[0]&cr0StoreOver != 0 && k&memory.KeyAccess == 0x90 {
			return false
		}
	}
	return true
}

// Key controlled protection for store.
func (cpu *CPU) storeProtected(k, akey uint8) bool {
	if akey == 0 || k&memory.KeyAccess == akey {
		return false
	}
	if cpu.arch != ArchS370 && cpu.cr[0]&cr0StoreOver != 0 && k&memory.KeyAccess == 0x90 {
		return false
	}
	return true
}

// Low address protection covers 0-511, and 4096-4607 in z/Architecture.
func (cpu *CPU) lowAddrProtected(vaddr uint64, private bool) bool {
	if cpu.cr[0]&cr0LowProt == 0 || private {
		return false
	}
	if vaddr < lowProtEnd {
		return true
	}
	return cpu.arch == ArchZ && vaddr >= 4096 && vaddr < 4096+lowProtEnd
}
