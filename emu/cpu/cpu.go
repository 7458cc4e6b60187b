package cpu

/*
 * S390  - CPU context, registers and control registers
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
	"strings"

	"github.com/rcornwell/S390/emu/memory"
)

/*
   The System/370 introduced Dynamic Address Translation. ESA/390 extended
   it with access registers, address space numbers and a 31 bit address,
   z/Architecture grew the address to 64 bits with up to three levels of
   region tables above the segment table.

   Each CPU owns its registers, its TLB and its ALB. Main storage and the
   storage keys are shared between all CPUs.
*/

const (
	// CR0 bits shared by ESA/390 and z/Architecture.
	cr0LowProt   uint64 = 0x10000000 // Low address protection
	cr0FetchOver uint64 = 0x02000000 // Fetch protection override
	cr0StoreOver uint64 = 0x01000000 // Storage protection override
	cr0TranFmt   uint64 = 0x00f80000 // Translation format
	cr0TranESA   uint64 = 0x00b00000 // ESA/390 translation format
	cr0EDAT      uint64 = 0x00800000 // z/Arch enhanced DAT enable
	cr0ASF       uint64 = 0x00010000 // ESA/390 address space function

	// S/370 CR0 page and segment size.
	cr0PageSize uint64 = 0x00c00000
	cr0SegSize  uint64 = 0x00380000

	lowProtEnd   uint64 = 512 // Low address protected area
	fetchOverEnd uint64 = 2048
)

// New creates a CPU attached to main storage.
func New(addr uint16, arch ArchMode, mem *memory.Storage) *CPU {
	cpu := &CPU{addr: addr, arch: arch, mem: mem}
	cpu.asf = arch != ArchS370
	cpu.Reset()
	return cpu
}

// Set the interlock used to quiesce other CPUs.
func (cpu *CPU) SetInterlock(sys Interlock) {
	cpu.sys = sys
}

// Enable or disable an installed facility.
func (cpu *CPU) SetFacility(name string, on bool) error {
	switch strings.ToUpper(name) {
	case "EDAT1", "EDAT":
		if cpu.arch != ArchZ {
			return errors.New("EDAT1 requires z/Architecture")
		}
		cpu.edat1 = on
	case "ASF":
		switch cpu.arch {
		case ArchS370:
			return errors.New("ASF requires ESA/390")
		case ArchZ:
			if !on {
				return errors.New("ASF can't be removed in z/Architecture")
			}
		}
		cpu.asf = on
	default:
		return errors.New("unknown facility: " + name)
	}
	cpu.PurgeTLB()
	return nil
}

// Reset CPU to initial state.
func (cpu *CPU) Reset() {
	for i := range 16 {
		cpu.gpr[i] = 0
		cpu.ar[i] = 0
		cpu.cr[i] = 0
	}

	// Initialize Control regisers to default
	cpu.cr[0] = 0x000000e0
	cpu.cr[14] = 0xc2000000
	if cpu.arch == ArchS370 {
		cpu.cr[2] = 0xffffffff
		cpu.cr[15] = 512
	}
	cpu.psw = psw{amode: 24}
	cpu.prefix = 0
	cpu.tea = 0
	cpu.excAR = 0
	cpu.entry = 0
	cpu.sieIntercept = false
	cpu.decodeCR0()
	cpu.tlb.reset()
	cpu.purgeALB()
}

// Return CPU address.
func (cpu *CPU) Addr() uint16 {
	return cpu.addr
}

// Return architecture of CPU.
func (cpu *CPU) Arch() ArchMode {
	return cpu.arch
}

// Return storage CPU is attached to.
func (cpu *CPU) Storage() *memory.Storage {
	return cpu.mem
}

// Return general register.
func (cpu *CPU) GPR(n int) uint64 {
	return cpu.gpr[n&0xf]
}

// Set general register.
func (cpu *CPU) SetGPR(n int, v uint64) {
	if cpu.arch != ArchZ {
		v &= 0xffffffff
	}
	cpu.gpr[n&0xf] = v
}

// Return access register.
func (cpu *CPU) AR(n int) uint32 {
	return cpu.ar[n&0xf]
}

// Set access register.
func (cpu *CPU) SetAR(n int, v uint32) {
	cpu.ar[n&0xf] = v
}

// Return control register.
func (cpu *CPU) CR(n int) uint64 {
	return cpu.cr[n&0xf]
}

// Load a control register, purging what depends on it.
func (cpu *CPU) LoadControl(n int, v uint64) {
	n &= 0xf
	if cpu.arch != ArchZ {
		v &= 0xffffffff
	}
	old := cpu.cr[n]
	cpu.cr[n] = v
	switch n {
	case 0:
		changed := old ^ v
		switch {
		case cpu.arch == ArchS370 && changed&(cr0PageSize|cr0SegSize) != 0:
			cpu.decodeCR0()
			cpu.PurgeTLB()
		case cpu.arch == ArchZ && changed&cr0EDAT != 0:
			cpu.PurgeTLB()
		case cpu.arch == ArchESA390 && changed&cr0TranFmt != 0:
			cpu.PurgeTLB()
		case changed&cr0FetchOver != 0:
			cpu.InvalidateTLB(0)
		case changed&(cr0LowProt|cr0StoreOver) != 0:
			cpu.InvalidateTLB(^(AccWrite | AccCheck))
		}
		if cpu.arch == ArchESA390 && changed&cr0ASF != 0 {
			cpu.PurgeALB()
		}
	case 1:
		// S/370 TLB entries carried no space tag.
		if cpu.arch == ArchS370 {
			cpu.PurgeTLB()
		}
	case 2, 5, 8:
		if cpu.arch != ArchS370 {
			cpu.PurgeALB()
		}
	}
}

/* S/370 CR0 translation control
        |    |     |     |   |
   0 0 0 00000 00 1 11 111 11112222
   0 1 2 34567 89 0 12 345 67890123
   b s t xxxxx ps 0 ss xxx iiiiiixx
   m s d
*/

// Decode the S/370 page and segment size.
func (cpu *CPU) decodeCR0() {
	f := datFormat{}
	t := cpu.cr[0]
	switch (t >> 22) & 3 {
	case 1: // 2K page
		f.pageShift = 11
		f.pageMask = 0x7ff
		f.pteInvalid = 0x4
		f.pteMBZ = 0x2
		f.pfraMask = 0xfff8
		f.pteLenShift = 1
	case 2: // 4K page
		f.pageShift = 12
		f.pageMask = 0xfff
		f.pteInvalid = 0x8
		f.pteMBZ = 0x6
		f.pfraMask = 0xfff0
		f.pteLenShift = 0
	}

	switch (t >> 19) & 0x7 {
	case 0: // 64K segments
		f.segShift = 16
		f.segMask = 0xffffff >> 16
	case 2: // 1M segments
		f.segShift = 20
		f.segMask = 0xffffff >> 20
		f.pteLenShift += 4
	}
	f.valid = f.pageShift != 0 && f.segShift != 0
	if f.valid {
		// Generate PTE index mask
		f.pageIndex = ((^(f.segMask << f.segShift) & ^f.pageMask) & 0xffffff) >> f.pageShift
	}
	cpu.format = f
}

// Set DAT mode.
func (cpu *CPU) SetDAT(on bool) {
	cpu.psw.dat = on
}

// Return true if DAT is on.
func (cpu *CPU) DAT() bool {
	return cpu.psw.dat
}

// Set address space control of PSW.
func (cpu *CPU) SetASC(asc uint8) {
	asc &= 3
	if cpu.arch == ArchS370 && asc != ASCSecondary {
		asc = ASCPrimary
	}
	cpu.psw.asc = asc
}

// Return address space control of PSW.
func (cpu *CPU) ASC() uint8 {
	return cpu.psw.asc
}

// Set PSW key, given as 0 to 15.
func (cpu *CPU) SetKey(key uint8) {
	cpu.psw.key = (key & 0xf) << 4
}

// Return PSW key in storage key format.
func (cpu *CPU) Key() uint8 {
	return cpu.psw.key
}

// Set problem state.
func (cpu *CPU) SetProblemState(on bool) {
	cpu.psw.problem = on
}

// Set addressing mode.
func (cpu *CPU) SetAddressingMode(bits int) error {
	switch bits {
	case 24:
	case 31:
		if cpu.arch == ArchS370 {
			return errors.New("31 bit addressing requires ESA/390")
		}
	case 64:
		if cpu.arch != ArchZ {
			return errors.New("64 bit addressing requires z/Architecture")
		}
	default:
		return errors.New("invalid addressing mode")
	}
	cpu.psw.amode = bits
	return nil
}

// Return addressing mode in bits.
func (cpu *CPU) AddressingMode() int {
	return cpu.psw.amode
}

// Mask of valid address bits in current addressing mode.
func (cpu *CPU) addrMask() uint64 {
	switch cpu.psw.amode {
	case 31:
		return 0x7fffffff
	case 64:
		return ^uint64(0)
	}
	return 0x00ffffff
}

// Return prefix register.
func (cpu *CPU) Prefix() uint64 {
	return cpu.prefix
}

func (cpu *CPU) prefixSize() uint64 {
	if cpu.arch == ArchZ {
		return 0x2000
	}
	return 0x1000
}

func (cpu *CPU) prefixMask() uint64 {
	switch cpu.arch {
	case ArchS370:
		return 0x00fff000
	case ArchESA390:
		return 0x7ffff000
	}
	return 0x7fffe000
}

// Convert a real address to absolute.
func (cpu *CPU) realToAbs(raddr uint64) uint64 {
	return memory.ApplyPrefixing(raddr, cpu.prefix, cpu.prefixSize())
}

// Translation exception address of last failure.
func (cpu *CPU) TEA() uint64 {
	return cpu.tea
}

// Access register number of last ART failure.
func (cpu *CPU) ExceptionAccessID() uint8 {
	return cpu.excAR
}

// Real address of last failing table entry.
func (cpu *CPU) FaultEntry() uint64 {
	return cpu.entry
}
