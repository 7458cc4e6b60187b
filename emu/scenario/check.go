package scenario

/*
 * S390  - Translation scenario checks
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
	"fmt"
	"strings"

	"github.com/rcornwell/S390/emu/cpu"
)

type outcome struct {
	code   uint16
	cc     uint8
	result uint64
	hasCC  bool
}

var ops = map[string]func(chk *Check, c *cpu.CPU, arn int) outcome{
	"":          access(cpu.AccTypeRead),
	"read":      access(cpu.AccTypeRead),
	"write":     access(cpu.AccTypeWrite),
	"inst":      access(cpu.AccTypeInst),
	"translate": translate,
	"lra":       lra,
	"lptea":     lptea,
	"tprot":     tprot,
	"ipte":      ipte,
	"ptlb":      ptlb,
}

// Storage reference through TLB.
func access(acc cpu.AccType) func(chk *Check, c *cpu.CPU, arn int) outcome {
	return func(chk *Check, c *cpu.CPU, arn int) outcome {
		abs, irc := c.LogicalToMain(chk.Vaddr, arn, acc, chk.Key<<4)
		return outcome{code: irc, result: abs}
	}
}

func translate(chk *Check, c *cpu.CPU, arn int) outcome {
	tr, f := c.Translate(chk.Vaddr, arn, cpu.AccTypeRead)
	if f.Code != 0 {
		return outcome{code: f.Code, cc: f.CC, hasCC: !f.Trap}
	}
	return outcome{result: tr.Abs}
}

func lra(chk *Check, c *cpu.CPU, arn int) outcome {
	cc, r, irc := c.LoadRealAddress(chk.Vaddr, arn)
	return outcome{code: irc, cc: cc, result: r, hasCC: true}
}

func lptea(chk *Check, c *cpu.CPU, arn int) outcome {
	cc, r, irc := c.LoadPageTableEntryAddress(chk.Vaddr, arn)
	return outcome{code: irc, cc: cc, result: r, hasCC: true}
}

func tprot(chk *Check, c *cpu.CPU, arn int) outcome {
	cc, irc := c.TestProtection(chk.Vaddr, arn, chk.Key<<4)
	return outcome{code: irc, cc: cc, hasCC: true}
}

func ipte(chk *Check, c *cpu.CPU, _ int) outcome {
	return outcome{code: c.InvalidatePageTableEntry(chk.PTO, chk.Vaddr)}
}

func ptlb(_ *Check, c *cpu.CPU, _ int) outcome {
	c.PurgeTLB()
	return outcome{}
}

// Do the check against c.
func (chk *Check) run(c *cpu.CPU) error {
	arn := spaces[strings.ToLower(chk.Space)]
	if arn < 0 {
		arn = chk.AR & 0xf
	}
	out := ops[strings.ToLower(chk.Op)](chk, c, arn)

	if out.code != chk.Code {
		return fmt.Errorf("exception got: %02x expected: %02x", out.code, chk.Code)
	}
	if chk.TEA != nil && c.TEA() != *chk.TEA {
		return fmt.Errorf("TEA got: %x expected: %x", c.TEA(), *chk.TEA)
	}
	if out.code != 0 && !out.hasCC {
		return nil
	}
	if chk.CC != nil {
		if !out.hasCC {
			return fmt.Errorf("operation %s has no condition code", chk.Op)
		}
		if out.cc != *chk.CC {
			return fmt.Errorf("condition code got: %d expected: %d", out.cc, *chk.CC)
		}
	}
	if chk.Abs != nil && out.result != *chk.Abs {
		return fmt.Errorf("address got: %x expected: %x", out.result, *chk.Abs)
	}
	if chk.Result != nil && out.result != *chk.Result {
		return fmt.Errorf("result got: %x expected: %x", out.result, *chk.Result)
	}
	return nil
}
