/*
 * S390 - Examine and deposit storage.
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

// Largest number of words examine will show.
const maxExamine = 1024

// Parse address or address range, start-end.
func (line *cmdLine) getRange() (uint64, uint64, error) {
	token := line.getToken()
	low, high, isRange := strings.Cut(token, "-")
	start, err := (&cmdLine{line: low}).getHex()
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return start, start, nil
	}
	end, err := (&cmdLine{line: high}).getHex()
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, errors.New("end of range before start: " + token)
	}
	return start, end, nil
}

// Convert real or virtual address of a word to absolute.
func wordAddr(c *cpu.CPU, addr uint64, virtual bool) (uint64, error) {
	arn := cpu.UseRealAddr
	if virtual {
		arn = 0
	}
	tr, f := c.Translate(addr, arn, cpu.AccTypeRead)
	if f.Code != 0 {
		return 0, fmt.Errorf("translation exception %04x at %x", f.Code, addr)
	}
	if !c.Storage().CheckAddr(tr.Abs + 3) {
		return 0, fmt.Errorf("address outside storage: %x", addr)
	}
	return tr.Abs, nil
}

// Display storage as words.
func examine(line *cmdLine, core *core.Core) (bool, error) {
	slog.Debug("Command Examine")
	switches, err := line.getSwitches("v")
	if err != nil {
		return false, err
	}
	start, end, err := line.getRange()
	if err != nil {
		return false, err
	}
	if err := line.endOfCommand(); err != nil {
		return false, err
	}
	start &^= 3
	count := (end-start)/4 + 1
	if count > maxExamine {
		return false, fmt.Errorf("range too large, limit is %d words", maxExamine)
	}

	var out []string
	err = onCPU(core, func(c *cpu.CPU) error {
		digits := hex.AddrDigits(c.Arch())
		words := make([]uint32, 0, 4)
		addr := start
		for i := range count {
			abs, err := wordAddr(c, start+i*4, switches != "")
			if err != nil {
				return err
			}
			w, _ := c.Storage().GetWord(abs)
			words = append(words, w)
			if len(words) == 4 || i == count-1 {
				var str, label strings.Builder
				hex.FormatDouble(&label, digits, []uint64{addr})
				str.WriteString(strings.TrimRight(label.String(), " "))
				str.WriteString(": ")
				hex.FormatWord(&str, words)
				out = append(out, strings.TrimRight(str.String(), " "))
				addr += uint64(len(words)) * 4
				words = words[:0]
			}
		}
		return nil
	})
	for _, l := range out {
		fmt.Fprintln(line.out, l)
	}
	return false, err
}

// Store words into storage.
func deposit(line *cmdLine, core *core.Core) (bool, error) {
	slog.Debug("Command Deposit")
	switches, err := line.getSwitches("v")
	if err != nil {
		return false, err
	}
	addr, err := line.getHex()
	if err != nil {
		return false, err
	}
	if addr&3 != 0 {
		return false, fmt.Errorf("address must be on word boundary: %x", addr)
	}

	values := []uint32{}
	for {
		line.skipSpace()
		if line.isEOL() {
			break
		}
		v, err := line.getHex()
		if err != nil {
			return false, err
		}
		if v > 0xffffffff {
			return false, fmt.Errorf("value larger than word: %x", v)
		}
		values = append(values, uint32(v))
	}
	if len(values) == 0 {
		return false, errors.New("no values to deposit")
	}

	return false, onCPU(core, func(c *cpu.CPU) error {
		for i, v := range values {
			abs, err := wordAddr(c, addr+uint64(i)*4, switches != "")
			if err != nil {
				return err
			}
			c.Storage().PutWord(abs, v)
		}
		return nil
	})
}
