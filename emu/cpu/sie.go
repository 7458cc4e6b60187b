package cpu

/*
 * S390  - Interpretive execution storage translation
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
	"errors"

	"github.com/rcornwell/S390/util/debug"
)

/*
   A guest absolute address is offset by the main storage origin and
   checked against the main storage extent. For a pageable guest the
   result is a host primary virtual address, translated by the host
   tables and then prefixed with the host prefix. A preferred guest
   occupies host absolute storage directly.
*/

// GuestConfig describes how guest storage is placed in the host.
type GuestConfig struct {
	Origin    uint64 // Main storage origin in host
	Extent    uint64 // Highest guest absolute address
	Preferred bool   // Guest storage is host absolute
	XC        bool   // Guest does not control access registers
}

// NewGuest creates a guest CPU sharing host storage.
func (cpu *CPU) NewGuest(arch ArchMode) *CPU {
	return New(cpu.addr, arch, cpu.mem)
}

// StartGuest begins interpretive execution of guest on this CPU.
func (cpu *CPU) StartGuest(guest *CPU, cfg GuestConfig) error {
	if cpu.host != nil {
		return errors.New("guest can't start interpretive execution")
	}
	if cpu.guest != nil {
		return errors.New("interpretive execution already active")
	}
	if guest.mem != cpu.mem {
		return errors.New("guest must share host storage")
	}
	if cfg.Origin&0xfffff != 0 {
		return errors.New("guest origin must be on 1M boundary")
	}
	if cfg.Preferred && cfg.Origin+cfg.Extent >= cpu.mem.Size() {
		return errors.New("preferred guest exceeds host storage")
	}
	guest.host = cpu
	guest.mso = cfg.Origin
	guest.mse = cfg.Extent
	guest.preferred = cfg.Preferred
	guest.sieXC = cfg.XC
	guest.sieIntercept = false
	cpu.guest = guest
	guest.purgeTLB()
	guest.purgeALB()
	debug.Debugf("CPU", debugMsk, debugSIE, "%x start guest mso=%x mse=%x pref=%v", cpu.addr,
		cfg.Origin, cfg.Extent, cfg.Preferred)
	return nil
}

// EndGuest leaves interpretive execution.
func (cpu *CPU) EndGuest() {
	g := cpu.guest
	if g == nil {
		return
	}
	g.host = nil
	g.sieXC = false
	cpu.guest = nil
	debug.Debugf("CPU", debugMsk, debugSIE, "%x end guest", cpu.addr)
}

// Return guest of this CPU, nil if not in interpretive execution.
func (cpu *CPU) Guest() *CPU {
	return cpu.guest
}

// Return host of this CPU, nil if not a guest.
func (cpu *CPU) Host() *CPU {
	return cpu.host
}

// Return true if a host exception ended guest translation.
func (cpu *CPU) SIEIntercept() bool {
	return cpu.sieIntercept
}

// Convert a guest absolute address to host storage.
// Returns storage address, host real frame and host DAT protection.
func (cpu *CPU) sieTranslate(gabs uint64, acc AccType) (uint64, uint64, bool, Fault) {
	host := cpu.host
	if gabs > cpu.mse {
		return 0, 0, false, trap(IrcAddr)
	}
	haddr := gabs + cpu.mso
	if cpu.preferred {
		if !host.mem.CheckAddr(haddr) {
			return 0, 0, false, trap(IrcAddr)
		}
		return haddr, haddr, false, Fault{}
	}

	tr, f := host.hostTranslate(haddr, acc)
	if f.Code != 0 {
		cpu.sieIntercept = true
		host.translationFault(haddr, StidPrimary, f)
		debug.Debugf("CPU", debugMsk, debugSIE, "%x guest %x host exception %02x", cpu.addr, gabs, f.Code)
		return 0, 0, false, f
	}
	habs := host.realToAbs(tr.Real)
	if !host.mem.CheckAddr(habs) {
		cpu.sieIntercept = true
		return 0, 0, false, trap(IrcAddr)
	}
	return habs, tr.Real, tr.Protect != 0, Fault{}
}

// Translate guest storage through host primary space, using host TLB.
func (cpu *CPU) hostTranslate(haddr uint64, acc AccType) (Translation, Fault) {
	asd := cpu.cr[1]
	if e := cpu.tlbMapping(haddr, asd, false); e != nil {
		return Translation{
			Real:    e.frame | (haddr & cpu.pageOffset()),
			Protect: e.protect,
			Common:  e.common,
			ASD:     asd,
		}, Fault{}
	}
	tr, f := cpu.walk(asd, haddr, acc|AccHost)
	if f.Code != 0 {
		return tr, f
	}
	tr.ASD = asd
	habs := cpu.realToAbs(tr.Real)
	if cpu.mem.CheckAddr(habs) {
		// Mapping only, host accesses recheck protection.
		cpu.tlbFill(haddr, &tr, false, 0, habs, habs, cpu.mem.KeyOf(habs))
	}
	return tr, Fault{}
}
