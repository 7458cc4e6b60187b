/*
 * S390 - Remote console test cases.
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
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rcornwell/S390/emu/core"
	"github.com/rcornwell/S390/emu/cpu"
	"github.com/rcornwell/S390/emu/memory"
)

func TestReceive(t *testing.T) {
	var sent bytes.Buffer
	state := tnState{conn: &sent, state: tnStateData}

	cases := []struct {
		input []byte
		lines []string
		reply []byte
	}{
		{[]byte("show regs\r\n"), []string{"show regs"}, nil},
		{[]byte("ab\x7fc\r\x00"), []string{"ac"}, nil},
		{[]byte("par"), []string{}, nil},
		{[]byte("tial\n\n"), []string{"partial", ""}, nil},
		{[]byte{tnIAC, tnWILL, 24}, []string{}, []byte{tnIAC, tnDONT, 24}},
		{[]byte{tnIAC, tnWILL, 24}, []string{}, nil},
		{[]byte{tnIAC, tnDO, tnOptionSGA}, []string{}, []byte{tnIAC, tnWILL, tnOptionSGA}},
		{[]byte{tnIAC, tnDO, tnOptionEcho}, []string{}, []byte{tnIAC, tnWONT, tnOptionEcho}},
		{[]byte{tnIAC, tnSB, 24, 1, tnIAC, tnSE, 'x', '\n'}, []string{"x"}, nil},
		{[]byte{'a', 'b', tnIAC, tnIP, 'd', '\r', '\n'}, []string{"d"}, nil},
		{[]byte{'a', 'b', tnIAC, tnEC, '\r'}, []string{"a"}, nil},
	}
	for i, tc := range cases {
		sent.Reset()
		got := state.receive(tc.input)
		if diff := cmp.Diff(tc.lines, got); diff != "" {
			t.Errorf("case %d lines mismatch (-want +got):\n%s", i, diff)
		}
		if !bytes.Equal(sent.Bytes(), tc.reply) {
			t.Errorf("case %d reply got: %x expected: %x", i, sent.Bytes(), tc.reply)
		}
	}
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := crlfWriter{w: &buf}.Write([]byte("R0 : 0\nR4 : 0\n"))
	if err != nil || n != 14 {
		t.Errorf("write got: %d %v expected: 14", n, err)
	}
	if buf.String() != "R0 : 0\r\nR4 : 0\r\n" {
		t.Errorf("write got: %q", buf.String())
	}
}

func TestSetPort(t *testing.T) {
	defer func() { consolePort = "" }()
	if err := setPort(0, "3270", nil); err != nil {
		t.Fatal(err)
	}
	if Port() != ":3270" {
		t.Errorf("port got: %q expected: %q", Port(), ":3270")
	}
	if err := setPort(0, "3271", nil); err == nil {
		t.Error("second console port did not fail")
	}
}

// Read until the text ends with suffix.
func readUntil(t *testing.T, conn net.Conn, r *bufio.Reader, suffix string) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var text strings.Builder
	for !strings.HasSuffix(text.String(), suffix) {
		by, err := r.ReadByte()
		if err != nil {
			t.Fatalf("read failed after %q: %v", text.String(), err)
		}
		text.WriteByte(by)
	}
	return text.String()
}

func TestServer(t *testing.T) {
	mem, err := memory.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Close()
	sys, err := core.New(mem, 1, cpu.ArchESA390)
	if err != nil {
		t.Fatal(err)
	}

	s, err := Start("127.0.0.1:0", sys)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	greeting := readUntil(t, conn, r, prompt)
	want := string([]byte{tnIAC, tnWILL, tnOptionSGA, tnIAC, tnWONT, tnOptionEcho}) + prompt
	if greeting != want {
		t.Errorf("greeting got: %q expected: %q", greeting, want)
	}

	if _, err := conn.Write([]byte("set reg 2 abc\r\n")); err != nil {
		t.Fatal(err)
	}
	if got := readUntil(t, conn, r, prompt); got != prompt {
		t.Errorf("set got: %q expected: %q", got, prompt)
	}

	if _, err := conn.Write([]byte("show regs\r\n")); err != nil {
		t.Fatal(err)
	}
	got := readUntil(t, conn, r, prompt)
	if !strings.HasPrefix(got, "R0 : 00000000 00000000 00000ABC 00000000\r\n") {
		t.Errorf("show regs got: %q", got)
	}

	if _, err := conn.Write([]byte("bogus\r\n")); err != nil {
		t.Fatal(err)
	}
	got = readUntil(t, conn, r, prompt)
	if !strings.HasPrefix(got, "Error: command not found: bogus\r\n") {
		t.Errorf("bogus got: %q", got)
	}

	if _, err := conn.Write([]byte("quit\r\n")); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := r.ReadByte(); err != io.EOF {
		t.Errorf("read after quit got: %v expected: %v", err, io.EOF)
	}
	if sys.CPU(0).GPR(2) != 0xabc {
		t.Errorf("register 2 got: %x expected: %x", sys.CPU(0).GPR(2), 0xabc)
	}
}
