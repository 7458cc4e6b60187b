/*
 * S390 - Console commands.
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

package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rcornwell/S390/emu/core"
	"github.com/rcornwell/S390/emu/cpu"
	"github.com/rcornwell/S390/util/hex"
)

var cmdList = []cmd{
	{Name: "quit", Min: 4, Process: quit},
	{Name: "cpu", Min: 3, Process: selectCPU},
	{Name: "show", Min: 2, Process: show, Complete: keywordComplete(showWords)},
	{Name: "set", Min: 3, Process: set, Complete: keywordComplete(setWords)},
	{Name: "translate", Min: 2, Process: translate, Complete: spaceComplete},
	{Name: "purge", Min: 1, Process: purge, Complete: keywordComplete(purgeWords)},
	{Name: "examine", Min: 2, Process: examine},
	{Name: "deposit", Min: 2, Process: deposit},
}

var (
	showWords  = []string{"ar", "cr", "psw", "regs", "tlb"}
	setWords   = []string{"ar", "asc", "cr", "dat", "key", "prefix", "reg"}
	purgeWords = []string{"alb", "tlb"}
	spaceWords = []string{"home", "primary", "real", "secondary"}
	ascWords   = []string{"primary", "ar", "secondary", "home"}
)

// Hex digits in a register of arch.
func regDigits(arch cpu.ArchMode) int {
	if arch == cpu.ArchZ {
		return 16
	}
	return 8
}

// Handle commands that quit simulation.
func quit(line *cmdLine, _ *core.Core) (bool, error) {
	slog.Debug("Command Quit")
	if err := line.endOfCommand(); err != nil {
		return false, err
	}
	return true, nil
}

// Select CPU other commands work on.
func selectCPU(line *cmdLine, core *core.Core) (bool, error) {
	slog.Debug("Command CPU")
	if line.endOfCommand() == nil {
		fmt.Fprintf(line.out, "CPU %x\n", curCPU)
		return false, nil
	}
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	if err := line.endOfCommand(); err != nil {
		return false, err
	}
	if addr > 0xffff || core.CPU(uint16(addr)) == nil {
		return false, fmt.Errorf("no CPU %x", addr)
	}
	curCPU = uint16(addr)
	return false, nil
}

// Process the show command.
func show(line *cmdLine, core *core.Core) (bool, error) {
	slog.Debug("Command Show")
	word, err := matchKeyword(line.getWord(false), showWords)
	if err != nil {
		return false, err
	}
	if err := line.endOfCommand(); err != nil {
		return false, err
	}

	var out []string
	err = onCPU(core, func(c *cpu.CPU) error {
		digits := regDigits(c.Arch())
		regs := make([]uint64, 16)
		switch word {
		case "regs":
			for i := range regs {
				regs[i] = c.GPR(i)
			}
			out = hex.FormatRegs("R", digits, regs)
		case "cr":
			for i := range regs {
				regs[i] = c.CR(i)
			}
			out = hex.FormatRegs("CR", digits, regs)
		case "ar":
			for i := range regs {
				regs[i] = uint64(c.AR(i))
			}
			out = hex.FormatRegs("AR", 8, regs)
		case "tlb":
			out = hex.FormatTLB(c.TLBEntries())
		case "psw":
			dat := "off"
			if c.DAT() {
				dat = "on"
			}
			var str strings.Builder
			str.WriteString("PREFIX=")
			hex.FormatDouble(&str, hex.AddrDigits(c.Arch()), []uint64{c.Prefix()})
			str.WriteString("TEA=")
			hex.FormatDouble(&str, hex.AddrDigits(c.Arch()), []uint64{c.TEA()})
			out = []string{
				fmt.Sprintf("CPU %x %s DAT=%s ASC=%s KEY=%d AMODE=%d", c.Addr(), c.Arch(), dat,
					ascWords[c.ASC()], c.Key()>>4, c.AddressingMode()),
				strings.TrimRight(str.String(), " "),
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, l := range out {
		fmt.Fprintln(line.out, l)
	}
	return false, nil
}

// Process the set command.
func set(line *cmdLine, core *core.Core) (bool, error) {
	slog.Debug("Command Set")
	word, err := matchKeyword(line.getWord(false), setWords)
	if err != nil {
		return false, err
	}

	var fn func(c *cpu.CPU) error
	switch word {
	case "cr", "ar", "reg":
		reg, err := line.getRegister()
		if err != nil {
			return false, err
		}
		value, err := line.getHex()
		if err != nil {
			return false, err
		}
		fn = func(c *cpu.CPU) error {
			switch word {
			case "cr":
				c.LoadControl(reg, value)
			case "ar":
				if value > 0xffffffff {
					return errors.New("access register value too large")
				}
				c.SetAR(reg, uint32(value))
			default:
				c.SetGPR(reg, value)
			}
			return nil
		}
	case "prefix":
		value, err := line.getHex()
		if err != nil {
			return false, err
		}
		fn = func(c *cpu.CPU) error {
			if irc := c.SetPrefix(value); irc != 0 {
				return fmt.Errorf("prefix not valid: %x", value)
			}
			return nil
		}
	case "dat":
		on, err := matchKeyword(line.getWord(false), []string{"on", "off"})
		if err != nil {
			return false, err
		}
		fn = func(c *cpu.CPU) error {
			c.SetDAT(on == "on")
			return nil
		}
	case "asc":
		mode, err := matchKeyword(line.getWord(false), ascWords)
		if err != nil {
			return false, err
		}
		fn = func(c *cpu.CPU) error {
			for i, w := range ascWords {
				if w == mode {
					c.SetASC(uint8(i))
				}
			}
			return nil
		}
	case "key":
		key, err := line.getNumber()
		if err != nil {
			return false, err
		}
		if key > 15 {
			return false, fmt.Errorf("key out of range: %d", key)
		}
		fn = func(c *cpu.CPU) error {
			c.SetKey(uint8(key))
			return nil
		}
	}
	if err := line.endOfCommand(); err != nil {
		return false, err
	}
	return false, onCPU(core, fn)
}

// Parse an optional address space name.
func (line *cmdLine) getSpace() (int, error) {
	word := line.getWord(false)
	if word == "" {
		return 0, nil
	}
	space, err := matchKeyword(word, spaceWords)
	if err != nil {
		return 0, err
	}
	switch space {
	case "home":
		return cpu.UseHomeSpace, nil
	case "primary":
		return cpu.UsePrimarySpace, nil
	case "secondary":
		return cpu.UseSecondarySpace, nil
	}
	return cpu.UseRealAddr, nil
}

// Show where a logical address maps without changing TLB or keys.
func translate(line *cmdLine, core *core.Core) (bool, error) {
	slog.Debug("Command Translate")
	vaddr, err := line.getHex()
	if err != nil {
		return false, err
	}
	arn, err := line.getSpace()
	if err != nil {
		return false, err
	}
	if err := line.endOfCommand(); err != nil {
		return false, err
	}

	var out string
	err = onCPU(core, func(c *cpu.CPU) error {
		digits := hex.AddrDigits(c.Arch())
		var str strings.Builder
		tr, f := c.Translate(vaddr, arn, cpu.AccTypeRead)
		if f.Code != 0 {
			fmt.Fprintf(&str, "exception %04x entry ", f.Code)
			hex.FormatDouble(&str, digits, []uint64{f.Entry})
			out = strings.TrimRight(str.String(), " ")
			return nil
		}
		str.WriteString("real ")
		hex.FormatDouble(&str, digits, []uint64{tr.Real})
		str.WriteString("absolute ")
		hex.FormatDouble(&str, digits, []uint64{tr.Abs})
		if tr.Protect != 0 {
			str.WriteString("protected ")
		}
		if tr.Common {
			str.WriteString("common ")
		}
		out = strings.TrimRight(str.String(), " ")
		return nil
	})
	if err != nil {
		return false, err
	}
	fmt.Fprintln(line.out, out)
	return false, nil
}

// Purge TLB, ALB or both.
func purge(line *cmdLine, core *core.Core) (bool, error) {
	slog.Debug("Command Purge")
	word := line.getWord(false)
	if word != "" {
		var err error
		word, err = matchKeyword(word, purgeWords)
		if err != nil {
			return false, err
		}
	}
	if err := line.endOfCommand(); err != nil {
		return false, err
	}
	return false, onCPU(core, func(c *cpu.CPU) error {
		if word != "alb" {
			c.PurgeTLB()
		}
		if word != "tlb" {
			c.PurgeALB()
		}
		return nil
	})
}
