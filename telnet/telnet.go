/*
 * S390 - Telnet protocol for remote console.
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

package telnet

import (
	"bytes"
	"io"
	"log/slog"
	"net"

	"github.com/rcornwell/S390/command/parser"
	"github.com/rcornwell/S390/emu/core"
)

// Telnet protocol constants.
const (
	tnIAC  byte = 255 // protocol delim
	tnDONT byte = 254 // dont
	tnDO   byte = 253 // do
	tnWONT byte = 252 // wont
	tnWILL byte = 251 // will
	tnSB   byte = 250 // Sub negotiations begin
	tnGA   byte = 249 // Go ahead
	tnEL   byte = 248 // Erase line
	tnEC   byte = 247 // Erase character
	tnIP   byte = 244 // Interrupt process
	tnBRK  byte = 243 // break
	tnSE   byte = 240 // Sub negotiations end

	// Telnet line states.
	tnStateData int = 1 + iota // normal
	tnStateIAC                 // IAC seen
	tnStateWILL                // WILL seen
	tnStateDO                  // DO seen
	tnStateDONT                // DONT seen
	tnStateWONT                // WONT seen
	tnStateSB                  // Skipping sub negotiation
	tnStateSBIAC               // IAC seen in sub negotiation
	tnStateCR                  // Carriage return seen

	// Telnet options.
	tnOptionEcho byte = 1  // Echo
	tnOptionSGA  byte = 3  // Send Go Ahead
	tnOptionLINE byte = 34 // line mode

	// Telnet flags.
	tnFlagDo   uint8 = 0x01 // Do sent
	tnFlagDont uint8 = 0x02 // Don't sent
	tnFlagWill uint8 = 0x04 // Will sent
	tnFlagWont uint8 = 0x08 // Wont sent
)

const prompt = "S390> "

// Maximum length of a command line.
const maxLine = 256

type tnState struct {
	optionState [256]uint8 // Current state of telnet session
	state       int        // Current line State
	line        []byte     // Command being collected
	conn        io.Writer  // Client connection.
}

// Send an option and remember it was sent.
func (state *tnState) sendOption(setState, option byte) {
	_, _ = state.conn.Write([]byte{tnIAC, setState, option})
	switch setState {
	case tnWILL:
		state.optionState[option] |= tnFlagWill
	case tnWONT:
		state.optionState[option] |= tnFlagWont
	case tnDO:
		state.optionState[option] |= tnFlagDo
	case tnDONT:
		state.optionState[option] |= tnFlagDont
	}
}

// Client asks us to do an option. Only suppress go ahead is supported.
func (state *tnState) handleDO(input byte) {
	if input == tnOptionSGA {
		if state.optionState[input]&tnFlagWill == 0 {
			state.sendOption(tnWILL, input)
		}
		return
	}
	if state.optionState[input]&tnFlagWont == 0 {
		state.sendOption(tnWONT, input)
	}
}

// Client offers an option, refuse all of them.
func (state *tnState) handleWILL(input byte) {
	if state.optionState[input]&tnFlagDont == 0 {
		state.sendOption(tnDONT, input)
	}
}

// Process received bytes, return any complete command lines.
func (state *tnState) receive(data []byte) []string {
	lines := []string{}
	for _, input := range data {
		switch state.state {
		case tnStateCR:
			state.state = tnStateData
			if input == '\n' || input == 0 {
				continue
			}
			fallthrough
		case tnStateData:
			switch input {
			case tnIAC:
				state.state = tnStateIAC
			case '\r', '\n':
				lines = append(lines, string(state.line))
				state.line = state.line[:0]
				if input == '\r' {
					state.state = tnStateCR
				}
			case '\b', 0x7f:
				if len(state.line) > 0 {
					state.line = state.line[:len(state.line)-1]
				}
			default:
				if input >= ' ' && input < 0x7f && len(state.line) < maxLine {
					state.line = append(state.line, input)
				}
			}
		case tnStateIAC:
			state.state = tnStateData
			switch input {
			case tnIAC:
				// Escaped 255 is not a valid command character.
			case tnWILL:
				state.state = tnStateWILL
			case tnWONT:
				state.state = tnStateWONT
			case tnDO:
				state.state = tnStateDO
			case tnDONT:
				state.state = tnStateDONT
			case tnSB:
				state.state = tnStateSB
			case tnIP, tnBRK, tnEL:
				state.line = state.line[:0]
			case tnEC:
				if len(state.line) > 0 {
					state.line = state.line[:len(state.line)-1]
				}
			}
		case tnStateWILL:
			state.handleWILL(input)
			state.state = tnStateData
		case tnStateDO:
			state.handleDO(input)
			state.state = tnStateData
		case tnStateWONT, tnStateDONT:
			state.state = tnStateData
		case tnStateSB:
			if input == tnIAC {
				state.state = tnStateSBIAC
			}
		case tnStateSBIAC:
			state.state = tnStateSB
			if input == tnSE {
				state.state = tnStateData
			}
		}
	}
	return lines
}

// Telnet wants CR LF at end of each line.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	_, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n")))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Run operator commands from a client until it quits or disconnects.
func handleClient(conn net.Conn, sys *core.Core) {
	defer conn.Close()

	out := crlfWriter{w: conn}
	state := tnState{conn: conn, state: tnStateData}
	state.sendOption(tnWILL, tnOptionSGA)
	state.sendOption(tnWONT, tnOptionEcho)
	_, _ = io.WriteString(out, prompt)

	buffer := make([]byte, 1024)
	for {
		num, err := conn.Read(buffer)
		if err != nil {
			if err != io.EOF {
				slog.Debug("Console read error", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}
		for _, line := range state.receive(buffer[:num]) {
			quit, err := parser.ProcessCommand(line, sys, out)
			if err != nil {
				_, _ = io.WriteString(out, "Error: "+err.Error()+"\n")
			}
			if quit {
				slog.Info("Console disconnected", "remote", conn.RemoteAddr().String())
				return
			}
			_, _ = io.WriteString(out, prompt)
		}
	}
}
