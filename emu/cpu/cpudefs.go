package cpu

/*
 * S390  - CPU context definitions
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

// ArchMode selects which architecture a CPU follows.
type ArchMode int

const (
	ArchS370   ArchMode = iota // System/370, 24 bit addresses
	ArchESA390                 // ESA/390, 31 bit addresses
	ArchZ                      // z/Architecture, 64 bit addresses
)

var archNames = map[string]ArchMode{
	"S370":    ArchS370,
	"370":     ArchS370,
	"S/370":   ArchS370,
	"ESA390":  ArchESA390,
	"ESA/390": ArchESA390,
	"390":     ArchESA390,
	"Z":       ArchZ,
	"ZARCH":   ArchZ,
	"Z/ARCH":  ArchZ,
}

func (a ArchMode) String() string {
	switch a {
	case ArchS370:
		return "S/370"
	case ArchESA390:
		return "ESA/390"
	case ArchZ:
		return "z/Arch"
	}
	return "unknown"
}

// ParseArch converts an architecture name to a mode.
func ParseArch(name string) (ArchMode, error) {
	a, ok := archNames[strings.ToUpper(name)]
	if !ok {
		return ArchS370, errors.New("unknown architecture: " + name)
	}
	return a, nil
}

// AccType is the kind of storage reference being translated.
type AccType uint16

const (
	AccRead       AccType = 0x0001 // Fetch
	AccWrite      AccType = 0x0002 // Store
	AccCheck      AccType = 0x0004 // Check store protection only
	AccInst       AccType = 0x0008 // Instruction fetch
	AccNoTLB      AccType = 0x0100 // Do not use or fill TLB
	AccPTE        AccType = 0x0200 // Stop at page table entry
	AccLPTEA      AccType = 0x0400 // Load page table entry address
	AccSpecialART AccType = 0x0800 // Skip ALE sequence and authorization
	AccHost       AccType = 0x1000 // Host translation of guest storage

	AccTypeHW        AccType = 0 // Hardware access, no protection
	AccTypeInst              = AccRead | AccInst
	AccTypeRead              = AccRead
	AccTypeWrite             = AccWrite
	AccTypeWriteSkip         = AccCheck
	AccTypeLRA               = AccNoTLB
	AccTypeTPROT             = AccNoTLB
	AccTypeLPTEA             = AccLPTEA | AccNoTLB
	AccTypePTE               = AccPTE | AccNoTLB
	AccTypeBSG               = AccSpecialART | AccRead
)

// Access register selectors beyond the 16 real access registers.
const (
	UseHomeSpace      = 16 + iota // Translate in home space
	UseSecondarySpace             // Translate in secondary space
	UsePrimarySpace               // Translate in primary space
	UseRealAddr                   // Address is real
	UseInstSpace                  // Space used for instruction fetch
)

// Space designation types, also the low bits of the TEA.
const (
	StidPrimary   = 0
	StidARMode    = 1
	StidSecondary = 2
	StidHome      = 3
	StidReal      = 4
)

// PSW address space control.
const (
	ASCPrimary   uint8 = 0 // Primary space mode
	ASCAR        uint8 = 1 // Access register mode
	ASCSecondary uint8 = 2 // Secondary space mode
	ASCHome      uint8 = 3 // Home space mode
)

// Program interruption codes.
const (
	IrcOper       uint16 = 0x0001 // Operations exception
	IrcPriv       uint16 = 0x0002 // Privileged operation
	IrcProt       uint16 = 0x0004 // Protection violation
	IrcAddr       uint16 = 0x0005 // Addressing exception
	IrcSpec       uint16 = 0x0006 // Specification error
	IrcSeg        uint16 = 0x0010 // Segment translation
	IrcPage       uint16 = 0x0011 // Page translation
	IrcTrans      uint16 = 0x0012 // Translation specification
	IrcSpecOp     uint16 = 0x0013 // Special operation
	IrcASNTrans   uint16 = 0x0017 // ASN translation specification
	IrcAFX        uint16 = 0x0020 // AFX translation
	IrcASX        uint16 = 0x0021 // ASX translation
	IrcPriAuth    uint16 = 0x0024 // Primary authority
	IrcSecAuth    uint16 = 0x0025 // Secondary authority
	IrcALETSpec   uint16 = 0x0028 // ALET specification
	IrcALEN       uint16 = 0x0029 // ALEN translation
	IrcALESeq     uint16 = 0x002a // ALE sequence
	IrcASTEValid  uint16 = 0x002b // ASTE validity
	IrcASTESeq    uint16 = 0x002c // ASTE sequence
	IrcExtAuth    uint16 = 0x002d // Extended authority
	IrcASCEType   uint16 = 0x0038 // ASCE type
	IrcRegion1    uint16 = 0x0039 // Region first translation
	IrcRegion2    uint16 = 0x003a // Region second translation
	IrcRegion3    uint16 = 0x003b // Region third translation
)

// Trace categories.
const (
	debugDAT = 1 << iota
	debugTLB
	debugASN
	debugART
	debugSIE
	debugPurge
)

var debugOption = map[string]int{
	"DAT":   debugDAT,
	"TLB":   debugTLB,
	"ASN":   debugASN,
	"ART":   debugART,
	"SIE":   debugSIE,
	"PURGE": debugPurge,
}

var debugMsk int

// Enable debug options.
func Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("cpu debug option invalid: " + opt)
	}
	debugMsk |= flag
	return nil
}

// Interlock serializes operations that need every other CPU stopped.
// The function is called with all CPUs quiesced.
type Interlock interface {
	SynchronizeCPUs(self *CPU, fn func(cpus []*CPU))
}

// Translation is the outcome of a successful translation.
type Translation struct {
	Real    uint64 // Real address
	Abs     uint64 // Absolute address
	Protect uint8  // 1 = DAT protection, 2 = ALE fetch only
	Private bool   // Space is private
	Common  bool   // Mapping came from a common segment
	Large   bool   // Mapping came from a large frame
	STID    int    // Space designation type
	ASD     uint64 // Address space designator used
}

// Fault is why a translation stopped. Code zero means no fault.
type Fault struct {
	Code  uint16 // Program interruption code
	Entry uint64 // Real address of table entry where walk stopped
	CC    uint8  // Condition code for non trapping instructions
	Trap  bool   // Always results in program interruption
}

func trap(code uint16) Fault {
	return Fault{Code: code, CC: 3, Trap: true}
}

// Fields used by table walker.
type datFormat struct {
	pageShift   uint   // Amount to shift for page
	pageMask    uint64 // Mask of offset bits in page
	pageIndex   uint64 // PTE index mask
	segShift    uint   // Amount to shift for segment
	segMask     uint64 // Mask bits for segment
	pteLenShift uint   // Shift to check page table length
	pteInvalid  uint16 // Invalid bit in PTE
	pteMBZ      uint16 // Bits that must be zero in PTE
	pfraMask    uint16 // Frame bits of PTE
	valid       bool   // Page and segment size are valid
}

type psw struct {
	key     uint8  // Access key, high four bits
	dat     bool   // Translation mode
	asc     uint8  // Address space control
	problem bool   // Problem state
	amode   int    // Addressing mode, 24, 31 or 64
	ia      uint64 // Instruction address
}

type albEntry struct {
	valid     bool
	alet      uint32 // ALET translated
	eax       uint16 // Authorization index used
	asd       uint64 // Resulting ASD
	fetchOnly bool   // ALE fetch only
}

// CPU holds the state of one virtual CPU.
type CPU struct {
	addr   uint16          // CPU address
	arch   ArchMode        // Architecture
	mem    *memory.Storage // Main storage
	sys    Interlock       // Global interlock
	gpr    [16]uint64      // General registers
	ar     [16]uint32      // Access registers
	cr     [16]uint64      // Control registers
	psw    psw             // Current PSW
	prefix uint64          // Prefix register
	edat1  bool            // Enhanced DAT facility 1 installed
	asf    bool            // Address space function installed
	format datFormat       // S/370 page and segment format from CR0
	tlb    tlb             // Translation lookaside buffer
	alb    [16]albEntry    // ART lookaside buffer
	tea    uint64          // Translation exception address
	excAR  uint8           // Exception access identification
	entry  uint64          // Last failing table entry

	// Interpretive execution.
	host         *CPU   // Host when running as a guest
	guest        *CPU   // Guest while host is in SIE
	mso          uint64 // Guest main storage origin
	mse          uint64 // Guest main storage extent
	preferred    bool   // Guest is V=R, no host DAT
	sieXC        bool   // Guest does not control access registers
	sieIntercept bool   // Host exception during guest translation
}
