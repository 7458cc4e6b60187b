/*
 * S390 - Command parser.
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
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/rcornwell/S390/emu/core"
	"github.com/rcornwell/S390/emu/cpu"
)

type cmd struct {
	Name     string // Command name.
	Min      int    // Minimum match size.
	Process  func(*cmdLine, *core.Core) (bool, error)
	Complete func(*cmdLine) []string
}

type cmdLine struct {
	line string    // Current command.
	pos  int       // Position in line.
	out  io.Writer // Where command output goes.
}

var (
	cmdMu  sync.Mutex // One command at a time across consoles.
	curCPU uint16     // CPU commands operate on.
)

// Execute the command line given. Returns true if the console should exit.
func ProcessCommand(commandLine string, core *core.Core, out io.Writer) (bool, error) {
	cmdMu.Lock()
	defer cmdMu.Unlock()

	line := cmdLine{line: commandLine, out: out}
	command := line.getWord(false)
	if command == "" {
		if line.isEOL() {
			return false, nil
		}
		return false, errors.New("command not found: " + commandLine)
	}

	match := matchList(command)
	if len(match) == 0 {
		return false, errors.New("command not found: " + command)
	}

	if len(match) > 1 {
		return false, errors.New("unique command not found: " + command)
	}

	return match[0].Process(&line, core)
}

// Check if command matches at least to minimum length.
func matchCommand(match cmd, command string) bool {
	if len(command) > len(match.Name) {
		return false
	}
	return strings.HasPrefix(match.Name, command) && len(command) >= match.Min
}

// Check if command matches one of the commands.
func matchList(command string) []cmd {
	// If command empty just return.
	if command == "" {
		return []cmd{}
	}

	var match []cmd
	for _, m := range cmdList {
		if m.Name == command {
			return []cmd{m}
		}
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

// Match a keyword against a list, allowing any unique prefix.
func matchKeyword(word string, list []string) (string, error) {
	found := ""
	for _, k := range list {
		if k == word {
			return k, nil
		}
		if word != "" && strings.HasPrefix(k, word) {
			if found != "" {
				return "", errors.New("ambiguous keyword: " + word)
			}
			found = k
		}
	}
	if found == "" {
		return "", errors.New("unknown keyword: " + word)
	}
	return found, nil
}

// Skip forward over line until none whitespace character found.
func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// Check if at end of line.
func (line *cmdLine) isEOL() bool {
	if line.pos >= len(line.line) {
		return true
	}
	return line.line[line.pos] == '#'
}

// Return current character and advance to next.
func (line *cmdLine) getCurrent() byte {
	if line.isEOL() {
		return 0
	}
	by := line.line[line.pos]
	line.pos++
	return by
}

// Collect characters up to a space or end of line.
func (line *cmdLine) getToken() string {
	line.skipSpace()
	start := line.pos
	for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	return line.line[start:line.pos]
}

// Parse a word. If equal is set an = also ends the word.
func (line *cmdLine) getWord(equal bool) string {
	line.skipSpace()

	value := ""
	pos := line.pos
	for !line.isEOL() {
		by := line.line[line.pos]
		if unicode.IsSpace(rune(by)) || (equal && by == '=') {
			break
		}
		if !unicode.IsLetter(rune(by)) {
			line.pos = pos
			return ""
		}
		value += string([]byte{by})
		line.pos++
	}
	return strings.ToLower(value)
}

const hexDigits = "0123456789abcdef"

// Parse hex number.
func (line *cmdLine) getHex() (uint64, error) {
	pos := line.pos
	text := strings.ToLower(line.getToken())
	if text == "" || len(text) > 16 {
		line.pos = pos
		return 0, errors.New("not a hex number: " + text)
	}
	value := uint64(0)
	for _, by := range text {
		digit := strings.IndexRune(hexDigits, by)
		if digit == -1 {
			line.pos = pos
			return 0, errors.New("not a hex number: " + text)
		}
		value = (value << 4) + uint64(digit)
	}
	return value, nil
}

// Parse a decimal number.
func (line *cmdLine) getNumber() (int, error) {
	pos := line.pos
	text := line.getToken()
	if text == "" || len(text) > 6 {
		line.pos = pos
		return 0, errors.New("not a number: " + text)
	}
	value := 0
	for _, by := range text {
		if !unicode.IsDigit(by) {
			line.pos = pos
			return 0, errors.New("not a number: " + text)
		}
		value = (value * 10) + int(by-'0')
	}
	return value, nil
}

// Parse a register number.
func (line *cmdLine) getRegister() (int, error) {
	reg, err := line.getNumber()
	if err != nil {
		return 0, err
	}
	if reg > 15 {
		return 0, fmt.Errorf("register number out of range: %d", reg)
	}
	return reg, nil
}

// Collect leading -x switches.
func (line *cmdLine) getSwitches(valid string) (string, error) {
	switches := ""
	for {
		line.skipSpace()
		if line.isEOL() || line.line[line.pos] != '-' {
			return switches, nil
		}
		line.pos++
		for !line.isEOL() && !unicode.IsSpace(rune(line.line[line.pos])) {
			by := unicode.ToLower(rune(line.line[line.pos]))
			if !strings.ContainsRune(valid, by) {
				return "", fmt.Errorf("invalid switch: -%c", by)
			}
			switches += string(by)
			line.pos++
		}
	}
}

// Error unless the rest of the line is empty.
func (line *cmdLine) endOfCommand() error {
	line.skipSpace()
	if !line.isEOL() {
		return errors.New("extra text on line: " + line.line[line.pos:])
	}
	return nil
}

// Run fn on the selected CPU.
func onCPU(core *core.Core, fn func(c *cpu.CPU) error) error {
	var err error
	doErr := core.Do(curCPU, func(c *cpu.CPU) {
		err = fn(c)
	})
	if doErr != nil {
		return doErr
	}
	return err
}
