package cpu

/*
 * S390  - Access register translation
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

/*  Access register translation

    ALET:   | resv (7) |P| ALESN (8) |      ALEN (16)      |

    P = 0 uses dispatchable unit access list, DUCT from CR2.
    P = 1 uses primary space access list, primary ASTE from CR5.
    The access list designation is word 4 of either.

    ALD:    |0|        ALO                  |  ALL  |
    ALE word 0: |I|..|F|P| ALESN |     ALEAX      |
    ALE word 2: ASTE address
    ALE word 3: ASTE sequence number
*/

const (
	aletResv  uint32 = 0xfe000000
	aletPri   uint32 = 0x01000000
	aletALESN uint32 = 0x00ff0000
	aletALEN  uint32 = 0x0000ffff

	aldALO uint32 = 0x7fffff80
	aldALL uint32 = 0x0000007f

	ale0Invalid   uint32 = 0x80000000
	ale0FetchOnly uint32 = 0x02000000
	ale0Private   uint32 = 0x01000000
	ale0ALESN     uint32 = 0x00ff0000
	ale0ALEAX     uint32 = 0x0000ffff
	ale2ASTE      uint32 = 0x7fffffc0

	cr2DUCTO  uint64 = 0x7fffffc0
	cr5PASTEO uint64 = 0x7fffffc0
	aldOffset uint64 = 16 // Offset of ALD in DUCT and ASTE
)

// ARTResult is the outcome of a successful ALET translation.
type ARTResult struct {
	ASTEAddr  uint64 // Real address of ASTE
	ASTE      ASTE   // Copy of ASTE
	ASD       uint64 // Space designator of ASTE
	FetchOnly bool   // ALE fetch only bit
	Protect   uint8  // 2 if fetch only applies to this access
}

// TranslateALET resolves an ALET through the access list to an ASTE.
// All failures are returned, caller decides on program interrupt.
func (cpu *CPU) TranslateALET(alet uint32, eax uint16, acc AccType) (ARTResult, Fault) {
	var res ARTResult
	special := acc&AccSpecialART != 0

	if alet&aletResv != 0 {
		return res, cpu.artFault(alet, IrcALETSpec, 0)
	}

	var aldAddr uint64
	if alet&aletPri != 0 {
		aldAddr = (cpu.cr[5] & cr5PASTEO) + aldOffset
	} else {
		aldAddr = (cpu.cr[2] & cr2DUCTO) + aldOffset
	}
	ald, f := cpu.realWord(aldAddr)
	if f.Code != 0 {
		return res, f
	}

	// List length is in units of eight entries.
	alen := alet & aletALEN
	if alen > ((ald&aldALL)<<3)|7 {
		return res, cpu.artFault(alet, IrcALEN, aldAddr)
	}

	aleAddr := (uint64(ald&aldALO) + uint64(alen)*16) & 0x7fffffff
	var ale [4]uint32
	for i := range ale {
		ale[i], f = cpu.realWord(aleAddr + uint64(i)*4)
		if f.Code != 0 {
			return res, f
		}
	}

	if ale[0]&ale0Invalid != 0 {
		return res, cpu.artFault(alet, IrcALEN, aleAddr)
	}

	if !special && (ale[0]&ale0ALESN) != (alet&aletALESN) {
		return res, cpu.artFault(alet, IrcALESeq, aleAddr)
	}

	asteAddr := uint64(ale[2] & ale2ASTE)
	for i := range res.ASTE {
		res.ASTE[i], f = cpu.realWord(asteAddr + uint64(i)*4)
		if f.Code != 0 {
			return res, f
		}
	}

	if res.ASTE[0]&asteInvalid != 0 {
		return res, cpu.artFault(alet, IrcASTEValid, asteAddr)
	}

	if res.ASTE[5] != ale[3] {
		return res, cpu.artFault(alet, IrcASTESeq, asteAddr)
	}

	// Private entries need authority of extended authorization index.
	if !special && ale[0]&ale0Private != 0 && uint16(ale[0]&ale0ALEAX) != eax {
		fail, f := cpu.AuthorizeASN(eax, &res.ASTE, ateSecondary)
		if f.Code != 0 {
			return res, f
		}
		if fail {
			return res, cpu.artFault(alet, IrcExtAuth, asteAddr)
		}
	}

	res.ASTEAddr = asteAddr
	res.ASD = res.ASTE.ASD(cpu.arch)
	res.FetchOnly = ale[0]&ale0FetchOnly != 0
	if res.FetchOnly && acc&(AccWrite|AccCheck) != 0 {
		res.Protect = 2
	}
	debug.Debugf("CPU", debugMsk, debugART, "%x alet %08x aste %x asd %x", cpu.addr, alet, asteAddr, res.ASD)
	return res, Fault{}
}

func (cpu *CPU) artFault(alet uint32, code uint16, entry uint64) Fault {
	debug.Debugf("CPU", debugMsk, debugART, "%x alet %08x exception %02x", cpu.addr, alet, code)
	return Fault{Code: code, Entry: entry}
}
