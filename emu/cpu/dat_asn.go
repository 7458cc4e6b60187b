package cpu

/*
 * S390  - Address space number translation
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

/*  ASN translation

    ASN:       |  AFX (10 bits)  | ASX (6) |

    CR14 bits 13-31 give AFT origin, in 4K units.

    AFTE:      |I|          ASTE origin            | resv |
                0 1                                26     31   ASF
                0 1                                  28   31   no ASF

    ASTE word 0: |I|         Authority table origin      |B|
    ASTE word 1: |      AX       |     ATL      | resv  |
    ASTE word 2: STD, or high half of ASCE
    ASTE word 3: low half of ASCE
    ASTE word 4: Access list designation
    ASTE word 5: ASTE sequence number
*/

const (
	afteInvalid uint32 = 0x80000000
	afteASTOasf uint32 = 0x7fffffc0
	afteASTO    uint32 = 0x7ffffff0
	afteResvASF uint32 = 0x0000003f
	afteResv    uint32 = 0x0000000f

	asteInvalid uint32 = 0x80000000 // Word 0
	asteATO     uint32 = 0x7ffffffc
	asteResv0   uint32 = 0x00000002
	asteBase    uint32 = 0x00000001
	asteATL     uint32 = 0x0000fff0 // Word 1
	asteResv1   uint32 = 0x0000000f

	cr14AFTO uint64 = 0x0007ffff

	// Authority table entry bits, for AX zero.
	atePrimary   uint8 = 0x80
	ateSecondary uint8 = 0x40
)

// ASTE is an ASN second table entry. Without ASF only four words are used.
type ASTE [16]uint32

// ASD returns the space designator held in the ASTE.
func (a *ASTE) ASD(arch ArchMode) uint64 {
	if arch == ArchZ {
		return uint64(a[2])<<32 | uint64(a[3])
	}
	return uint64(a[2])
}

// Return true if ASN second table entries are 64 bytes.
func (cpu *CPU) asfActive() bool {
	switch cpu.arch {
	case ArchZ:
		return true
	case ArchESA390:
		return cpu.asf && cpu.cr[0]&cr0ASF != 0
	}
	return false
}

// TranslateASN converts an address space number to its ASTE.
// AFX and ASX failures are returned for caller to report.
func (cpu *CPU) TranslateASN(asn uint16) (uint64, ASTE, Fault) {
	var aste ASTE

	afto := (cpu.cr[14] & cr14AFTO) << 12
	afteAddr := (afto + uint64(asn>>6)*4) & 0x7fffffff
	afte, f := cpu.realWord(afteAddr)
	if f.Code != 0 {
		return 0, aste, f
	}

	if afte&afteInvalid != 0 {
		cpu.tea = uint64(asn)
		debug.Debugf("CPU", debugMsk, debugASN, "%x asn %04x afte %08x invalid", cpu.addr, asn, afte)
		return 0, aste, Fault{Code: IrcAFX, Entry: afteAddr}
	}

	asf := cpu.asfActive()
	var asteAddr uint64
	words := 4
	if asf {
		if afte&afteResvASF != 0 {
			return 0, aste, trap(IrcASNTrans)
		}
		asteAddr = uint64(afte&afteASTOasf) + uint64(asn&0x3f)*64
		words = 16
	} else {
		if afte&afteResv != 0 {
			return 0, aste, trap(IrcASNTrans)
		}
		asteAddr = uint64(afte&afteASTO) + uint64(asn&0x3f)*16
	}
	asteAddr &= 0x7fffffff

	for i := range words {
		aste[i], f = cpu.realWord(asteAddr + uint64(i)*4)
		if f.Code != 0 {
			return 0, aste, f
		}
	}

	if aste[0]&asteInvalid != 0 {
		cpu.tea = uint64(asn)
		debug.Debugf("CPU", debugMsk, debugASN, "%x asn %04x aste %08x invalid", cpu.addr, asn, aste[0])
		return 0, aste, Fault{Code: IrcASX, Entry: asteAddr}
	}

	if aste[0]&asteResv0 != 0 || aste[1]&asteResv1 != 0 || (!asf && aste[0]&asteBase != 0) {
		return 0, aste, trap(IrcASNTrans)
	}
	debug.Debugf("CPU", debugMsk, debugASN, "%x asn %04x aste %x", cpu.addr, asn, asteAddr)
	return asteAddr, aste, Fault{}
}

// AuthorizeASN checks the authority table entry for ax.
// Returns true if the authorization index is not authorized.
func (cpu *CPU) AuthorizeASN(ax uint16, aste *ASTE, bit uint8) (bool, Fault) {
	ato := uint64(aste[0] & asteATO)
	atl := (aste[1] & asteATL) >> 4

	// Authority table length is in units of 16 entries.
	if uint32(ax>>4) > atl {
		return true, Fault{}
	}

	b, f := cpu.realByte(ato + uint64(ax>>2))
	if f.Code != 0 {
		return false, f
	}
	return (b<<((ax&3)*2))&bit == 0, Fault{}
}
