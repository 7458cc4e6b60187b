package scenario

/*
 * S390  - Translation scenario files
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
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/rcornwell/S390/emu/cpu"
	"github.com/rcornwell/S390/emu/memory"
)

/*
   A scenario describes storage contents and CPU registers, followed by
   a list of checks. Each check does one translation or instruction and
   compares the outcome against what is expected.

   name = "ESA/390 basic"
   arch = "ESA390"
   mainsize = "4M"

   [cpu]
   dat = true
   amode = 31
   [cpu.cr]
   0 = 0x00b00000
   1 = 0x00010000

   [[storage]]
   addr = 0x10000
   width = 4
   values = [0x20, 0x20, 0x2000f]

   [[check]]
   name = "mapped page"
   op = "read"
   vaddr = 0x345678
   abs = 0x200678
*/

// Scenario is one scenario file.
type Scenario struct {
	Name       string     `toml:"name"`
	Arch       string     `toml:"arch"`
	MainSize   string     `toml:"mainsize"`
	Facilities []string   `toml:"facilities"`
	CPU        CPUState   `toml:"cpu"`
	Storage    []Store    `toml:"storage"`
	Keys       []KeySet   `toml:"key"`
	Checks     []Check    `toml:"check"`
	arch       cpu.ArchMode
	size       uint64
}

// CPUState is the register setting before checks run.
type CPUState struct {
	DAT    bool              `toml:"dat"`
	ASC    string            `toml:"asc"`
	AMode  int               `toml:"amode"`
	Key    uint8             `toml:"key"`
	Prefix uint64            `toml:"prefix"`
	CR     map[string]uint64 `toml:"cr"`
	AR     map[string]uint32 `toml:"ar"`
}

// Store places table entries in absolute storage.
type Store struct {
	Addr   uint64   `toml:"addr"`
	Width  int      `toml:"width"`
	Values []uint64 `toml:"values"`
}

// KeySet sets the storage key of a frame.
type KeySet struct {
	Addr uint64 `toml:"addr"`
	Key  uint8  `toml:"key"`
}

// Check is one operation and its expected outcome.
type Check struct {
	Name   string  `toml:"name"`
	Op     string  `toml:"op"`
	Vaddr  uint64  `toml:"vaddr"`
	AR     int     `toml:"ar"`
	Space  string  `toml:"space"`
	Key    uint8   `toml:"key"`
	PTO    uint64  `toml:"pto"`
	Code   uint16  `toml:"code"`
	Abs    *uint64 `toml:"abs"`
	CC     *uint8  `toml:"cc"`
	Result *uint64 `toml:"result"`
	TEA    *uint64 `toml:"tea"`
}

// Result of one check. Err is nil when the check passed.
type Result struct {
	Name string
	Err  error
}

var spaces = map[string]int{
	"":          -1,
	"primary":   cpu.UsePrimarySpace,
	"secondary": cpu.UseSecondarySpace,
	"home":      cpu.UseHomeSpace,
	"real":      cpu.UseRealAddr,
	"inst":      cpu.UseInstSpace,
}

var ascNames = map[string]uint8{
	"":          cpu.ASCPrimary,
	"primary":   cpu.ASCPrimary,
	"ar":        cpu.ASCAR,
	"secondary": cpu.ASCSecondary,
	"home":      cpu.ASCHome,
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	var s Scenario
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, err
	}
	if err := s.validate(md); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Parse decodes a scenario from text.
func Parse(text string) (*Scenario, error) {
	var s Scenario
	md, err := toml.Decode(text, &s)
	if err != nil {
		return nil, err
	}
	if err := s.validate(md); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate(md toml.MetaData) error {
	if keys := md.Undecoded(); len(keys) != 0 {
		return fmt.Errorf("unknown keys: %v", keys)
	}
	arch, err := cpu.ParseArch(s.Arch)
	if err != nil {
		return err
	}
	s.arch = arch
	s.size = 4 * 1024 * 1024
	if s.MainSize != "" {
		s.size, err = parseSize(s.MainSize)
		if err != nil {
			return err
		}
	}
	if _, ok := ascNames[strings.ToLower(s.CPU.ASC)]; !ok {
		return errors.New("invalid address space control: " + s.CPU.ASC)
	}
	for _, st := range s.Storage {
		switch st.Width {
		case 2, 4, 8:
		default:
			return fmt.Errorf("storage at %x width must be 2, 4 or 8", st.Addr)
		}
	}
	for i := range s.Checks {
		c := &s.Checks[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("check %d", i+1)
		}
		if _, ok := spaces[strings.ToLower(c.Space)]; !ok {
			return fmt.Errorf("%s: invalid space %s", c.Name, c.Space)
		}
		if _, ok := ops[strings.ToLower(c.Op)]; !ok {
			return fmt.Errorf("%s: invalid operation %s", c.Name, c.Op)
		}
	}
	return nil
}

func parseSize(value string) (uint64, error) {
	value = strings.ToUpper(value)
	shift := 0
	switch {
	case strings.HasSuffix(value, "K"):
		shift = 10
	case strings.HasSuffix(value, "M"):
		shift = 20
	}
	n, err := strconv.ParseUint(strings.TrimRight(value, "KM"), 10, 32)
	if err != nil || n == 0 {
		return 0, errors.New("invalid storage size: " + value)
	}
	return n << shift, nil
}

// Setup creates a CPU with storage and registers loaded.
// Caller closes the CPU's storage.
func (s *Scenario) Setup() (*cpu.CPU, error) {
	mem, err := memory.New(s.size)
	if err != nil {
		return nil, err
	}
	c := cpu.New(0, s.arch, mem)
	fail := func(err error) (*cpu.CPU, error) {
		_ = mem.Close()
		return nil, err
	}

	for _, f := range s.Facilities {
		if err := c.SetFacility(f, true); err != nil {
			return fail(err)
		}
	}
	for _, st := range s.Storage {
		for i, v := range st.Values {
			addr := st.Addr + uint64(i*st.Width)
			var bad bool
			switch st.Width {
			case 2:
				bad = mem.PutHalf(addr, uint16(v))
			case 4:
				bad = mem.PutWord(addr, uint32(v))
			case 8:
				bad = mem.PutDouble(addr, v)
			}
			if bad {
				return fail(fmt.Errorf("storage address %x out of range", addr))
			}
		}
	}
	for _, k := range s.Keys {
		if !mem.CheckAddr(k.Addr) {
			return fail(fmt.Errorf("key address %x out of range", k.Addr))
		}
		mem.PutKey(k.Addr, k.Key)
	}

	// Control register zero first, it selects the table format.
	regs, err := sortedRegs(s.CPU.CR)
	if err != nil {
		return fail(err)
	}
	for _, n := range regs {
		c.LoadControl(n, s.CPU.CR[strconv.Itoa(n)])
	}
	for name, v := range s.CPU.AR {
		n, err := strconv.Atoi(name)
		if err != nil || n < 0 || n > 15 {
			return fail(errors.New("invalid access register: " + name))
		}
		c.SetAR(n, v)
	}
	if s.CPU.AMode != 0 {
		if err := c.SetAddressingMode(s.CPU.AMode); err != nil {
			return fail(err)
		}
	}
	if irc := c.SetPrefix(s.CPU.Prefix); irc != 0 {
		return fail(fmt.Errorf("prefix %x outside storage", s.CPU.Prefix))
	}
	c.SetASC(ascNames[strings.ToLower(s.CPU.ASC)])
	c.SetKey(s.CPU.Key)
	c.SetDAT(s.CPU.DAT)
	return c, nil
}

// Return register numbers in order, keys must be 0 to 15.
func sortedRegs(m map[string]uint64) ([]int, error) {
	regs := []int{}
	for name := range m {
		n, err := strconv.Atoi(name)
		if err != nil || n < 0 || n > 15 {
			return nil, errors.New("invalid control register: " + name)
		}
		regs = append(regs, n)
	}
	sort.Ints(regs)
	return regs, nil
}

// Run sets up a CPU and does every check. The CPU is returned
// for inspection, caller closes its storage.
func (s *Scenario) Run() (*cpu.CPU, []Result, error) {
	c, err := s.Setup()
	if err != nil {
		return nil, nil, err
	}
	results := make([]Result, 0, len(s.Checks))
	for i := range s.Checks {
		chk := &s.Checks[i]
		results = append(results, Result{Name: chk.Name, Err: chk.run(c)})
	}
	return c, results, nil
}
