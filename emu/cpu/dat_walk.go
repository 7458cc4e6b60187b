package cpu

/*
 * S390  - Segment, page and region table walk
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
	"github.com/rcornwell/S390/util/debug"
)

/* S/370 tables

   CR1:  | STL (8) |        STO (bits 8-25)        | 000000 |
   STE:  | PTL | 0000 |      PTO (bits 8-28)       | P C I |
   PTE:  4K pages | PFRA (12) | I | 00 | x |
         2K pages | PFRA (13) | I | 0 | x  |
*/

const (
	sto370        uint64 = 0x00ffffc0
	ste370PTL     uint32 = 0xf0000000
	ste370PTO     uint32 = 0x00fffff8
	ste370Prot    uint32 = 0x00000004
	ste370Common  uint32 = 0x00000002
	ste370Invalid uint32 = 0x00000001
)

/* ESA/390 tables

   STD:  |P|       STO (bits 1-19)      |x|S|P| .. | STL (7) |
   STE:  |0|         PTO (bits 1-25)        |I|C| PTL |
   PTE:  |0|     PFRA (bits 1-19)    |0|I|P|0| .... |
*/

const (
	stdSTO        uint64 = 0x7ffff000
	stdPrivate    uint64 = 0x00000100
	stdSTL        uint64 = 0x0000007f
	ste390PTO     uint32 = 0x7fffffc0
	ste390Invalid uint32 = 0x00000020
	ste390Common  uint32 = 0x00000010
	ste390PTL     uint32 = 0x0000000f
	ste390Resv    uint32 = 0x80000000
	pte390PFRA    uint32 = 0x7ffff000
	pte390Invalid uint32 = 0x00000400
	pte390Prot    uint32 = 0x00000200
	pte390Resv    uint32 = 0x80000900
)

/* z/Architecture tables

   ASCE: |      Table origin (bits 0-51)      |..|G|P|S|X|R|.|DT|TL|
   RTE:  |      Next table origin             |..|P|..|TF|I|.|TT|TL|
   STE:  |  PTO (bits 0-52), SFAA if FC = 1   |FC|P|..|I|C|TT|..|
   PTE:  |      PFRA (bits 0-51)              |0|I|P|....|
*/

const (
	asceTO uint64 = 0xfffffffffffff000
	asceP  uint64 = 0x0000000000000100
	asceR  uint64 = 0x0000000000000020
	asceDT uint64 = 0x000000000000000c
	asceTL uint64 = 0x0000000000000003

	regTO uint64 = 0xfffffffffffff000
	regP  uint64 = 0x0000000000000200
	regTF uint64 = 0x00000000000000c0
	regI  uint64 = 0x0000000000000020
	regTT uint64 = 0x000000000000000c
	regTL uint64 = 0x0000000000000003

	zsegPTO  uint64 = 0xfffffffffffff800
	zsegSFAA uint64 = 0xfffffffffff00000
	zsegFC   uint64 = 0x0000000000000400
	zsegP    uint64 = 0x0000000000000200
	zsegI    uint64 = 0x0000000000000020
	zsegC    uint64 = 0x0000000000000010
	zsegTT   uint64 = 0x000000000000000c

	zptePFRA uint64 = 0xfffffffffffff000
	zpteI    uint64 = 0x0000000000000400
	zpteP    uint64 = 0x0000000000000200
	zpteResv uint64 = 0x0000000000000800

	// Table types, in DT of ASCE and TT of entries.
	ttRegion1 uint64 = 0x0c
	ttRegion2 uint64 = 0x08
	ttRegion3 uint64 = 0x04
	ttSegment uint64 = 0x00
)

// Table levels above page table. Each index is 11 bits.
var zLevels = [4]struct {
	shift uint
	tt    uint64
	irc   uint16
}{
	{53, ttRegion1, IrcRegion1},
	{42, ttRegion2, IrcRegion2},
	{31, ttRegion3, IrcRegion3},
	{20, ttSegment, IrcSeg},
}

// Convert real address of a table reference to its location in storage.
func (cpu *CPU) realToMain(raddr uint64, acc AccType) (uint64, Fault) {
	abs := cpu.realToAbs(raddr)
	if cpu.host != nil {
		main, _, _, f := cpu.sieTranslate(abs, acc)
		return main, f
	}
	if !cpu.mem.CheckAddr(abs) {
		return 0, trap(IrcAddr)
	}
	return abs, Fault{}
}

func (cpu *CPU) realByte(raddr uint64) (uint8, Fault) {
	main, f := cpu.realToMain(raddr, AccRead)
	if f.Code != 0 {
		return 0, f
	}
	w, err := cpu.mem.GetWord(main)
	if err {
		return 0, trap(IrcAddr)
	}
	return uint8(w >> ((3 - (main & 3)) * 8)), Fault{}
}

func (cpu *CPU) realHalf(raddr uint64) (uint16, Fault) {
	main, f := cpu.realToMain(raddr, AccRead)
	if f.Code != 0 {
		return 0, f
	}
	v, err := cpu.mem.GetHalf(main)
	if err {
		return 0, trap(IrcAddr)
	}
	return v, Fault{}
}

func (cpu *CPU) realWord(raddr uint64) (uint32, Fault) {
	main, f := cpu.realToMain(raddr, AccRead)
	if f.Code != 0 {
		return 0, f
	}
	v, err := cpu.mem.GetWord(main)
	if err {
		return 0, trap(IrcAddr)
	}
	return v, Fault{}
}

func (cpu *CPU) realDouble(raddr uint64) (uint64, Fault) {
	main, f := cpu.realToMain(raddr, AccRead)
	if f.Code != 0 {
		return 0, f
	}
	v, err := cpu.mem.GetDouble(main)
	if err {
		return 0, trap(IrcAddr)
	}
	return v, Fault{}
}

// Return true if large frames are in use.
func (cpu *CPU) edatActive() bool {
	return cpu.edat1 && cpu.cr[0]&cr0EDAT != 0
}

// Walk translation tables designated by asd.
func (cpu *CPU) walk(asd, vaddr uint64, acc AccType) (Translation, Fault) {
	var tr Translation
	var f Fault
	switch cpu.arch {
	case ArchS370:
		tr, f = cpu.walk370(asd, vaddr, acc)
	case ArchESA390:
		tr, f = cpu.walk390(asd, vaddr, acc)
	default:
		tr, f = cpu.walkZ(asd, vaddr, acc)
	}
	if debugMsk&debugDAT != 0 {
		if f.Code != 0 {
			debug.Debugf("CPU", debugMsk, debugDAT, "%x walk asd=%x va=%x exception %02x entry=%x",
				cpu.addr, asd, vaddr, f.Code, f.Entry)
		} else {
			debug.Debugf("CPU", debugMsk, debugDAT, "%x walk asd=%x va=%x real=%x prot=%d",
				cpu.addr, asd, vaddr, tr.Real, tr.Protect)
		}
	}
	return tr, f
}

// Two level walk with 2K or 4K pages and 64K or 1M segments.
func (cpu *CPU) walk370(std, vaddr uint64, acc AccType) (Translation, Fault) {
	var tr Translation
	f := &cpu.format
	if !f.valid {
		return tr, trap(IrcTrans)
	}

	vaddr &= 0x00ffffff
	seg := (vaddr >> f.segShift) & f.segMask
	page := (vaddr >> f.pageShift) & f.pageIndex

	// Segment table length is in units of 16 entries.
	steAddr := ((std & sto370) + seg*4) & 0x00ffffff
	if seg>>4 > (std>>24)&0xff {
		return tr, Fault{Code: IrcSeg, CC: 3, Entry: steAddr}
	}

	ste, flt := cpu.realWord(steAddr)
	if flt.Code != 0 {
		return tr, flt
	}
	if ste&ste370Invalid != 0 {
		return tr, Fault{Code: IrcSeg, CC: 1, Entry: steAddr}
	}

	pteAddr := (uint64(ste&ste370PTO) + page*2) & 0x00ffffff
	if page>>f.pteLenShift > uint64(ste&ste370PTL)>>28 {
		return tr, Fault{Code: IrcPage, CC: 3, Entry: pteAddr}
	}
	if ste&ste370Prot != 0 {
		tr.Protect = 1
	}
	tr.Common = ste&ste370Common != 0

	if acc&(AccPTE|AccLPTEA) != 0 {
		tr.Real = pteAddr
		return tr, Fault{}
	}

	pte, flt := cpu.realHalf(pteAddr)
	if flt.Code != 0 {
		return tr, flt
	}
	if pte&f.pteInvalid != 0 {
		return tr, Fault{Code: IrcPage, CC: 2, Entry: pteAddr}
	}
	if pte&f.pteMBZ != 0 {
		return tr, trap(IrcTrans)
	}
	tr.Real = uint64(pte&f.pfraMask)<<8 | (vaddr & f.pageMask)
	return tr, Fault{}
}

// Two level walk with 4K pages and 1M segments.
func (cpu *CPU) walk390(std, vaddr uint64, acc AccType) (Translation, Fault) {
	tr := Translation{Private: std&stdPrivate != 0}
	if cpu.cr[0]&cr0TranFmt != cr0TranESA {
		return tr, trap(IrcTrans)
	}

	vaddr &= 0x7fffffff
	sx := vaddr & 0x7ff00000
	px := vaddr & 0x000ff000

	// Segment table length is in units of 16 entries.
	steAddr := ((std & stdSTO) + (sx >> 18)) & 0x7fffffff
	if sx>>24 > std&stdSTL {
		return tr, Fault{Code: IrcSeg, CC: 3, Entry: steAddr}
	}

	ste, flt := cpu.realWord(steAddr)
	if flt.Code != 0 {
		return tr, flt
	}
	if ste&ste390Invalid != 0 {
		return tr, Fault{Code: IrcSeg, CC: 1, Entry: steAddr}
	}
	if ste&ste390Resv != 0 {
		return tr, trap(IrcTrans)
	}
	if ste&ste390Common != 0 && tr.Private {
		return tr, trap(IrcTrans)
	}
	tr.Common = ste&ste390Common != 0

	// Page table length is in units of 16 entries.
	pteAddr := (uint64(ste&ste390PTO) + (px >> 10)) & 0x7fffffff
	if px>>16 > uint64(ste&ste390PTL) {
		return tr, Fault{Code: IrcPage, CC: 3, Entry: pteAddr}
	}

	if acc&(AccPTE|AccLPTEA) != 0 {
		tr.Real = pteAddr
		return tr, Fault{}
	}

	pte, flt := cpu.realWord(pteAddr)
	if flt.Code != 0 {
		return tr, flt
	}
	if pte&pte390Invalid != 0 {
		return tr, Fault{Code: IrcPage, CC: 2, Entry: pteAddr}
	}
	if pte&pte390Resv != 0 {
		return tr, trap(IrcTrans)
	}
	if pte&pte390Prot != 0 {
		tr.Protect = 1
	}
	tr.Real = uint64(pte&pte390PFRA) | (vaddr & 0xfff)
	return tr, Fault{}
}

// Up to five level walk, region first to page.
func (cpu *CPU) walkZ(asce, vaddr uint64, acc AccType) (Translation, Fault) {
	tr := Translation{Private: asce&asceP != 0}

	// Real space designation maps every address to itself.
	if asce&asceR != 0 {
		if acc&AccPTE != 0 {
			return tr, trap(IrcSpecOp)
		}
		if acc&AccLPTEA != 0 {
			return tr, trap(IrcSpec)
		}
		tr.Real = vaddr
		return tr, Fault{}
	}

	level := 3 - int((asce&asceDT)>>2)

	// Address must fit in the levels the ASCE provides.
	if level > 0 && vaddr>>(zLevels[level].shift+11) != 0 {
		return tr, Fault{Code: IrcASCEType, CC: 3}
	}

	origin := asce & asceTO
	tf, tl := uint64(0), asce&asceTL
	for ; level < 3; level++ {
		lv := &zLevels[level]
		rteAddr := origin + ((vaddr>>lv.shift)&0x7ff)*8

		// Top two bits of index must be within offset and length.
		top := (vaddr >> (lv.shift + 9)) & 3
		if top < tf || top > tl {
			return tr, Fault{Code: lv.irc, CC: 3, Entry: rteAddr}
		}
		rte, flt := cpu.realDouble(rteAddr)
		if flt.Code != 0 {
			return tr, flt
		}
		if rte&regI != 0 {
			return tr, Fault{Code: lv.irc, CC: 1, Entry: rteAddr}
		}
		if rte&regTT != lv.tt {
			return tr, trap(IrcTrans)
		}
		if rte&regP != 0 {
			tr.Protect = 1
		}
		origin = rte & regTO
		tf, tl = (rte&regTF)>>6, rte&regTL
	}

	steAddr := origin + ((vaddr>>20)&0x7ff)*8
	top := (vaddr >> 29) & 3
	if top < tf || top > tl {
		return tr, Fault{Code: IrcSeg, CC: 3, Entry: steAddr}
	}
	ste, flt := cpu.realDouble(steAddr)
	if flt.Code != 0 {
		return tr, flt
	}
	if ste&zsegI != 0 {
		return tr, Fault{Code: IrcSeg, CC: 1, Entry: steAddr}
	}
	if ste&zsegTT != ttSegment {
		return tr, trap(IrcTrans)
	}
	if ste&zsegC != 0 && tr.Private {
		return tr, trap(IrcTrans)
	}
	tr.Common = ste&zsegC != 0
	if ste&zsegP != 0 {
		tr.Protect = 1
	}

	// Large frame ends walk at segment table.
	if ste&zsegFC != 0 && cpu.edatActive() {
		if acc&(AccPTE|AccLPTEA) != 0 {
			tr.Real = steAddr
			tr.Large = true
			return tr, Fault{}
		}
		tr.Real = (ste & zsegSFAA) | (vaddr & 0xfffff)
		tr.Large = true
		return tr, Fault{}
	}

	pteAddr := (ste & zsegPTO) + ((vaddr>>12)&0xff)*8
	if acc&(AccPTE|AccLPTEA) != 0 {
		tr.Real = pteAddr
		return tr, Fault{}
	}

	pte, flt := cpu.realDouble(pteAddr)
	if flt.Code != 0 {
		return tr, flt
	}
	if pte&zpteI != 0 {
		return tr, Fault{Code: IrcPage, CC: 2, Entry: pteAddr}
	}
	if pte&zpteResv != 0 {
		return tr, trap(IrcTrans)
	}
	if pte&zpteP != 0 {
		tr.Protect = 1
	}
	tr.Real = (pte & zptePFRA) | (vaddr & 0xfff)
	return tr, Fault{}
}
