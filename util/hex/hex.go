/*
 * S390 - Convert Hex to strings.
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

package hex

import (
	"strings"

	"github.com/rcornwell/S390/emu/cpu"
)

var hexMap = "0123456789ABCDEF"

func FormatWord(str *strings.Builder, word []uint32) {
	for _, full := range word {
		shift := 28
		for range 8 {
			str.WriteByte(hexMap[(full>>shift)&0xf])
			shift -= 4
		}
		str.WriteByte(' ')
	}
}

// Format doublewords, digits is the number of hex digits shown.
func FormatDouble(str *strings.Builder, digits int, dword []uint64) {
	for _, full := range dword {
		shift := (digits - 1) * 4
		for range digits {
			str.WriteByte(hexMap[(full>>shift)&0xf])
			shift -= 4
		}
		str.WriteByte(' ')
	}
}

func FormatHalf(str *strings.Builder, space bool, half []uint16) {
	for _, word := range half {
		shift := 12
		for range 4 {
			str.WriteByte(hexMap[(word>>shift)&0xf])
			shift -= 4
		}
		if space {
			str.WriteByte(' ')
		}
	}
	if !space {
		str.WriteByte(' ')
	}
}

func FormatBytes(str *strings.Builder, space bool, data []uint8) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// Number of hex digits for an address in arch.
func AddrDigits(arch cpu.ArchMode) int {
	switch arch {
	case cpu.ArchS370:
		return 6
	case cpu.ArchESA390:
		return 8
	}
	return 16
}

// Format registers four to a line, each line starts with the register label.
func FormatRegs(label string, digits int, regs []uint64) []string {
	lines := []string{}
	for i := 0; i < len(regs); i += 4 {
		var str strings.Builder
		str.WriteString(label)
		FormatDecimal(&str, byte(i))
		if i < 10 {
			str.WriteByte(' ')
		}
		str.WriteString(": ")
		FormatDouble(&str, digits, regs[i:min(i+4, len(regs))])
		lines = append(lines, strings.TrimRight(str.String(), " "))
	}
	return lines
}

// Format TLB entries one per line.
func FormatTLB(entries []cpu.TLBEntry) []string {
	lines := []string{"IDX VADDR            ASD              FRAME            MAIN             KY ACC FLAGS"}
	for _, e := range entries {
		var str strings.Builder
		idx := uint16(e.Index)
		str.WriteByte(hexMap[(idx>>8)&0xf])
		FormatByte(&str, byte(idx))
		str.WriteByte(' ')
		FormatDouble(&str, 16, []uint64{e.Vaddr, e.ASD, e.Frame, e.Main})
		FormatByte(&str, e.Key)
		str.WriteByte(' ')
		FormatByte(&str, byte(e.Acc))
		str.WriteString("  ")
		if e.Real {
			str.WriteByte('R')
		}
		if e.Common {
			str.WriteByte('C')
		}
		if e.Protect {
			str.WriteByte('P')
		}
		lines = append(lines, strings.TrimRight(str.String(), " "))
	}
	return lines
}

func FormatDecimal(str *strings.Builder, num byte) {
	if num >= 100 {
		str.WriteByte(hexMap[num/100])
		num %= 100
	}
	if num >= 10 {
		str.WriteByte(hexMap[num/10])
		num %= 10
	}
	str.WriteByte(hexMap[num])
}
