package cpu

/*
 * S390  - System control instructions using translation
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

// Run fn with every other CPU quiesced. A guest uses its host's interlock.
func (cpu *CPU) synchronize(fn func(cpus []*CPU)) {
	owner := cpu
	if cpu.host != nil {
		owner = cpu.host
	}
	if owner.sys == nil {
		fn([]*CPU{owner})
		return
	}
	owner.sys.SynchronizeCPUs(owner, fn)
}

// Load real address. Returns condition code and value for R1.
func (cpu *CPU) LoadRealAddress(vaddr uint64, arn int) (uint8, uint64, uint16) {
	if cpu.psw.problem {
		return 0, 0, IrcPriv
	}
	vaddr &= cpu.addrMask()
	tr, f := cpu.translate(vaddr, arn, AccTypeLRA)
	if f.Code != 0 {
		if f.Trap || f.CC == 0 {
			cpu.translationFault(vaddr, tr.STID, f)
			return 0, 0, f.Code
		}
		cpu.entry = f.Entry
		if f.CC == 3 && cpu.arch == ArchZ {
			return 3, uint64(f.Code), 0
		}
		return f.CC, f.Entry, 0
	}
	return 0, tr.Real, 0
}

// Load page table entry address. Condition code 1 gives a large frame
// segment table entry, 3 the exception code.
func (cpu *CPU) LoadPageTableEntryAddress(vaddr uint64, arn int) (uint8, uint64, uint16) {
	if cpu.arch != ArchZ {
		return 0, 0, IrcOper
	}
	if cpu.psw.problem {
		return 0, 0, IrcPriv
	}
	vaddr &= cpu.addrMask()
	tr, f := cpu.translate(vaddr, arn, AccTypeLPTEA)
	if f.Code != 0 {
		if f.Trap || f.CC == 0 {
			cpu.translationFault(vaddr, tr.STID, f)
			return 0, 0, f.Code
		}
		cpu.entry = f.Entry
		return 3, uint64(f.Code), 0
	}
	if tr.Large {
		return 1, tr.Real, 0
	}
	return 0, tr.Real, 0
}

// Test protection. akey is in storage key format.
// Condition code 0 fetch and store allowed, 1 fetch only, 2 neither,
// 3 translation not available.
func (cpu *CPU) TestProtection(vaddr uint64, arn int, akey uint8) (uint8, uint16) {
	if cpu.psw.problem {
		return 0, IrcPriv
	}
	vaddr &= cpu.addrMask()
	tr := Translation{Real: vaddr}
	if cpu.psw.dat && arn != UseRealAddr {
		var f Fault
		tr, f = cpu.translate(vaddr, arn, AccTypeTPROT|AccCheck)
		if f.Code != 0 {
			if f.Trap || f.CC == 0 {
				cpu.translationFault(vaddr, tr.STID, f)
				return 0, f.Code
			}
			return 3, 0
		}
	}

	abs := cpu.realToAbs(tr.Real)
	main := abs
	hostProt := false
	if cpu.host != nil {
		var f Fault
		main, _, hostProt, f = cpu.sieTranslate(abs, AccTypeTPROT)
		if f.Code != 0 {
			if f.Trap {
				return 0, f.Code
			}
			return 3, 0
		}
	} else if !cpu.mem.CheckAddr(abs) {
		return 0, IrcAddr
	}

	k := cpu.mem.GetKey(main)
	if cpu.fetchProtected(vaddr, k, akey) {
		return 2, 0
	}
	if tr.Protect != 0 || hostProt || cpu.storeProtected(k, akey) {
		return 1, 0
	}
	return 0, 0
}

// Test access of an ALET. Condition code 0 ALET zero, 1 dispatchable
// unit access list, 2 primary space access list, 3 not available.
func (cpu *CPU) TestAccess(alet uint32) (uint8, uint16) {
	if cpu.arch == ArchS370 {
		return 0, IrcOper
	}
	switch alet {
	case 0:
		return 0, 0
	case 1:
		return 3, 0
	}
	_, f := cpu.TranslateALET(alet, cpu.eax(), AccRead)
	if f.Code != 0 {
		if f.Trap {
			return 0, f.Code
		}
		return 3, 0
	}
	if alet&aletPri != 0 {
		return 2, 0
	}
	return 1, 0
}

// Invalidate page table entry. All CPUs are quiesced while the entry
// is marked invalid and TLB entries for the page are removed.
func (cpu *CPU) InvalidatePageTableEntry(pto, vaddr uint64) uint16 {
	if cpu.psw.problem {
		return IrcPriv
	}

	var raddr uint64
	switch cpu.arch {
	case ArchS370:
		f := &cpu.format
		if !f.valid {
			return IrcTrans
		}
		page := ((vaddr & 0x00ffffff) >> f.pageShift) & f.pageIndex
		raddr = ((pto & uint64(ste370PTO)) + page*2) & 0x00ffffff
	case ArchESA390:
		raddr = ((pto & uint64(ste390PTO)) + ((vaddr & 0x000ff000) >> 10)) & 0x7fffffff
	default:
		raddr = (pto & zsegPTO) + ((vaddr >> 9) & 0x7f8)
	}

	main, f := cpu.realToMain(raddr, AccWrite)
	if f.Code != 0 {
		return f.Code
	}

	cpu.synchronize(func(cpus []*CPU) {
		var frame uint64
		switch cpu.arch {
		case ArchS370:
			pte, _ := cpu.mem.GetHalf(main)
			frame = uint64(pte&cpu.format.pfraMask) << 8
			cpu.mem.PutHalf(main, pte|cpu.format.pteInvalid)
		case ArchESA390:
			pte, _ := cpu.mem.GetWord(main)
			frame = uint64(pte & pte390PFRA)
			cpu.mem.PutWord(main, pte|pte390Invalid)
		default:
			pte, _ := cpu.mem.GetDouble(main)
			frame = pte & zptePFRA
			cpu.mem.PutDouble(main, pte|zpteI)
		}
		if cpu.host == nil {
			for _, c := range cpus {
				c.InvalidateTLBEntry(frame)
			}
		} else {
			// Guest frames are guest real, only guests placed at the
			// same origin can hold them.
			cpu.invalidateFrame(frame, false)
			for _, c := range cpus {
				g := c.guest
				if g != nil && g != cpu && g.mso == cpu.mso && g.preferred == cpu.preferred {
					g.invalidateFrame(frame, false)
				}
			}
		}
		debug.Debugf("CPU", debugMsk, debugPurge, "%x ipte pte=%x frame=%x", cpu.addr, raddr, frame)
	})
	return 0
}

// Compare and swap and purge. Returns condition code and the word found
// when the compare fails.
func (cpu *CPU) CompareAndSwapAndPurge(raddr uint64, old, data uint32, purgeTLB, purgeALB bool) (uint8, uint32, uint16) {
	if cpu.psw.problem {
		return 0, 0, IrcPriv
	}
	if raddr&3 != 0 {
		return 0, 0, IrcSpec
	}
	main, f := cpu.realToMain(raddr, AccWrite)
	if f.Code != 0 {
		return 0, 0, f.Code
	}

	var cc uint8
	var cur uint32
	cpu.synchronize(func(cpus []*CPU) {
		v, ok, _ := cpu.mem.CompareAndSwapWord(main, old, data)
		if !ok {
			cc = 1
			cur = v
			cpu.mem.KeyOf(main).Or(memory.KeyRef)
			return
		}
		cpu.mem.KeyOf(main).Or(memory.KeyRef | memory.KeyChange)
		for _, c := range cpus {
			if purgeTLB {
				c.PurgeTLB()
			}
			if purgeALB {
				c.PurgeALB()
			}
		}
	})
	return cc, cur, 0
}

// Set storage key extended. TLB entries must revalidate access when
// the access control or fetch bits change.
func (cpu *CPU) SetStorageKeyExtended(raddr uint64, key uint8) uint16 {
	if cpu.psw.problem {
		return IrcPriv
	}
	main, f := cpu.realToMain(raddr, AccTypeHW)
	if f.Code != 0 {
		return f.Code
	}
	k := cpu.mem.KeyOf(main)
	old := k.Get()
	if (old^key)&(memory.KeyAccess|memory.KeyFetch) == 0 {
		k.Set(key)
		return 0
	}
	cpu.synchronize(func(cpus []*CPU) {
		k.Set(key)
		for _, c := range cpus {
			c.InvalidateTLB(0)
		}
	})
	return 0
}

// Insert storage key extended.
func (cpu *CPU) InsertStorageKeyExtended(raddr uint64) (uint8, uint16) {
	if cpu.psw.problem {
		return 0, IrcPriv
	}
	main, f := cpu.realToMain(raddr, AccTypeHW)
	if f.Code != 0 {
		return 0, f.Code
	}
	return cpu.mem.GetKey(main) & memory.KeyMask, 0
}

// Reset reference bit extended. Condition code is old reference and change bits.
func (cpu *CPU) ResetReferenceBitExtended(raddr uint64) (uint8, uint16) {
	if cpu.psw.problem {
		return 0, IrcPriv
	}
	main, f := cpu.realToMain(raddr, AccTypeHW)
	if f.Code != 0 {
		return 0, f.Code
	}
	old := cpu.mem.KeyOf(main).And(^memory.KeyRef)
	return (old & (memory.KeyRef | memory.KeyChange)) >> 1, 0
}

// Set prefix. The new prefix area must be in storage.
func (cpu *CPU) SetPrefix(p uint64) uint16 {
	if cpu.psw.problem {
		return IrcPriv
	}
	p &= cpu.prefixMask()
	last := p + cpu.prefixSize() - 1
	if cpu.host != nil {
		if last > cpu.mse {
			return IrcAddr
		}
	} else if !cpu.mem.CheckAddr(last) {
		return IrcAddr
	}
	cpu.prefix = p
	cpu.PurgeTLB()
	cpu.PurgeALB()
	return 0
}

// Set secondary ASN. The secondary ASTE must authorize the current AX.
func (cpu *CPU) SetSecondaryASN(sasn uint16) uint16 {
	if !cpu.psw.dat {
		return IrcSpecOp
	}

	pasn := uint16(cpu.cr[4])
	if sasn == pasn {
		cpu.cr[3] = (cpu.cr[3] &^ 0xffff) | uint64(sasn)
		cpu.cr[7] = cpu.cr[1]
		return 0
	}

	_, aste, f := cpu.TranslateASN(sasn)
	if f.Code != 0 {
		return f.Code
	}

	ax := uint16(cpu.cr[4] >> 16)
	fail, f := cpu.AuthorizeASN(ax, &aste, ateSecondary)
	if f.Code != 0 {
		return f.Code
	}
	if fail {
		return IrcSecAuth
	}
	cpu.cr[3] = (cpu.cr[3] &^ 0xffff) | uint64(sasn)
	cpu.cr[7] = aste.ASD(cpu.arch)
	debug.Debugf("CPU", debugMsk, debugASN, "%x ssar %04x asd=%x", cpu.addr, sasn, cpu.cr[7])
	return 0
}
