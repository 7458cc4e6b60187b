package cpu

/*
 * S390  - Address space designator selection
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

// Return true if the ASD designates a private space.
func (cpu *CPU) asdPrivate(asd uint64) bool {
	switch cpu.arch {
	case ArchESA390:
		return asd&stdPrivate != 0
	case ArchZ:
		return asd&asceP != 0
	}
	return false
}

// Return extended authorization index from CR8.
func (cpu *CPU) eax() uint16 {
	return uint16(cpu.cr[8] >> 16)
}

// ALET used for access register arn.
func (cpu *CPU) aletFor(arn int) uint32 {
	if arn == 0 || cpu.sieXC {
		return 0
	}
	return cpu.ar[arn]
}

// Select control register for a space selector that does not need ART.
func (cpu *CPU) spaceASD(arn int) (uint64, int, bool) {
	switch arn {
	case UsePrimarySpace:
		return cpu.cr[1], StidPrimary, true
	case UseSecondarySpace:
		return cpu.cr[7], StidSecondary, true
	case UseHomeSpace:
		return cpu.cr[13], StidHome, true
	case UseInstSpace:
		if cpu.psw.asc == ASCHome {
			return cpu.cr[13], StidHome, true
		}
		return cpu.cr[1], StidPrimary, true
	}

	switch cpu.psw.asc {
	case ASCPrimary:
		return cpu.cr[1], StidPrimary, true
	case ASCSecondary:
		return cpu.cr[7], StidSecondary, true
	case ASCHome:
		return cpu.cr[13], StidHome, true
	}

	// Access register mode.
	switch cpu.aletFor(arn) {
	case 0:
		return cpu.cr[1], StidPrimary, true
	case 1:
		return cpu.cr[7], StidSecondary, true
	}
	return 0, StidARMode, false
}

// Select ASD for TLB probe. Returns false if ART would be needed.
func (cpu *CPU) fastASD(arn int, acc AccType) (uint64, bool) {
	if asd, _, ok := cpu.spaceASD(arn); ok {
		return asd, true
	}
	e := &cpu.alb[arn]
	if !e.valid || e.alet != cpu.ar[arn] || e.eax != cpu.eax() {
		return 0, false
	}
	if e.fetchOnly && acc&(AccWrite|AccCheck) != 0 {
		return 0, false
	}
	return e.asd, true
}

// Resolve ASD for a translation, using ART in access register mode.
// Failures are returned, caller decides on program interrupt.
func (cpu *CPU) loadASD(arn int, acc AccType) (uint64, int, uint8, Fault) {
	if asd, stid, ok := cpu.spaceASD(arn); ok {
		return asd, stid, 0, Fault{}
	}

	alet := cpu.ar[arn]
	special := acc&AccSpecialART != 0
	eax := cpu.eax()
	e := &cpu.alb[arn]
	if !special && e.valid && e.alet == alet && e.eax == eax {
		var prot uint8
		if e.fetchOnly && acc&(AccWrite|AccCheck) != 0 {
			prot = 2
		}
		return e.asd, StidARMode, prot, Fault{}
	}

	art, f := cpu.TranslateALET(alet, eax, acc)
	if f.Code != 0 {
		cpu.excAR = uint8(arn)
		return 0, StidARMode, 0, f
	}
	if !special {
		*e = albEntry{
			valid:     true,
			alet:      alet,
			eax:       eax,
			asd:       art.ASD,
			fetchOnly: art.FetchOnly,
		}
	}
	return art.ASD, StidARMode, art.Protect, Fault{}
}

// PurgeALB clears the ART lookaside buffer of this CPU and its nested partner.
func (cpu *CPU) PurgeALB() {
	cpu.purgeALB()
	if cpu.guest != nil {
		cpu.guest.purgeALB()
	} else if cpu.host != nil {
		cpu.host.purgeALB()
	}
}

func (cpu *CPU) purgeALB() {
	clear(cpu.alb[:])
	debug.Debugf("CPU", debugMsk, debugPurge, "%x purge alb", cpu.addr)
}
