package memory

/*
 * S390  - Main storage test cases
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
	"sync"
	"testing"
)

func setup(t *testing.T, size uint64) *Storage {
	t.Helper()
	s, err := New(size)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Size is rounded up to a frame.
func TestNewSize(t *testing.T) {
	s := setup(t, 5000)
	if s.Size() != 8192 {
		t.Errorf("Size not correct got: %d expected: %d", s.Size(), 8192)
	}
	if _, err := New(0); err == nil {
		t.Errorf("New of zero size did not fail")
	}
}

// Words are stored big endian.
func TestByteOrder(t *testing.T) {
	s := setup(t, 4096)
	s.PutWord(0x100, 0x01020304)
	b := s.Slice(0x100, 4)
	for i, v := range []byte{1, 2, 3, 4} {
		if b[i] != v {
			t.Errorf("Byte %d not correct got: %02x expected: %02x", i, b[i], v)
		}
	}
	s.PutDouble(0x200, 0x0102030405060708)
	b = s.Slice(0x200, 8)
	for i := range 8 {
		if b[i] != byte(i+1) {
			t.Errorf("Byte %d not correct got: %02x expected: %02x", i, b[i], i+1)
		}
	}
	v, err := s.GetDouble(0x200)
	if err || v != 0x0102030405060708 {
		t.Errorf("GetDouble not correct got: %016x expected: %016x", v, uint64(0x0102030405060708))
	}
	w, _ := s.GetWord(0x204)
	if w != 0x05060708 {
		t.Errorf("GetWord not correct got: %08x expected: %08x", w, 0x05060708)
	}
}

// Halfwords only replace their own bytes.
func TestHalf(t *testing.T) {
	s := setup(t, 4096)
	s.PutWord(0x10, 0xaabbccdd)
	s.PutHalf(0x12, 0x1234)
	w, _ := s.GetWord(0x10)
	if w != 0xaabb1234 {
		t.Errorf("PutHalf low not correct got: %08x expected: %08x", w, 0xaabb1234)
	}
	s.PutHalf(0x10, 0x5678)
	w, _ = s.GetWord(0x10)
	if w != 0x56781234 {
		t.Errorf("PutHalf high not correct got: %08x expected: %08x", w, 0x56781234)
	}
	h, _ := s.GetHalf(0x10)
	if h != 0x5678 {
		t.Errorf("GetHalf not correct got: %04x expected: %04x", h, 0x5678)
	}
	h, _ = s.GetHalf(0x12)
	if h != 0x1234 {
		t.Errorf("GetHalf not correct got: %04x expected: %04x", h, 0x1234)
	}
}

// Out of range access reports error.
func TestRange(t *testing.T) {
	s := setup(t, 4096)
	if _, err := s.GetWord(4096); !err {
		t.Errorf("GetWord past end did not fail")
	}
	if _, err := s.GetDouble(4092); err {
		t.Errorf("GetDouble at last doubleword failed")
	}
	if !s.PutWord(8192, 1) {
		t.Errorf("PutWord past end did not fail")
	}
	if s.CheckAddr(4096) {
		t.Errorf("CheckAddr past end returned true")
	}
	if s.KeyOf(4096) != nil {
		t.Errorf("KeyOf past end returned key")
	}
	if len(s.Slice(4000, 200)) != 96 {
		t.Errorf("Slice not limited to storage got: %d expected: %d", len(s.Slice(4000, 200)), 96)
	}
}

// Storage keys.
func TestKeys(t *testing.T) {
	s := setup(t, 16384)
	s.PutKey(0x1000, 0x3f)
	if k := s.GetKey(0x1fff); k != 0x3e {
		t.Errorf("GetKey not correct got: %02x expected: %02x", k, 0x3e)
	}
	if k := s.GetKey(0x0fff); k != 0 {
		t.Errorf("GetKey neighbour not correct got: %02x expected: %02x", k, 0)
	}
	key := s.KeyOf(0x2000)
	key.Or(KeyRef)
	key.Or(KeyRef | KeyChange)
	if k := key.Get(); k != 0x06 {
		t.Errorf("Or not correct got: %02x expected: %02x", k, 0x06)
	}
	old := key.And(^KeyRef)
	if old != 0x06 {
		t.Errorf("And old value not correct got: %02x expected: %02x", old, 0x06)
	}
	if k := key.Get(); k != 0x02 {
		t.Errorf("And not correct got: %02x expected: %02x", k, 0x02)
	}
}

// Reference and change bits are never lost.
func TestKeyConcurrent(t *testing.T) {
	s := setup(t, 4096)
	key := s.KeyOf(0)
	key.Set(0x50)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(bit uint8) {
			defer wg.Done()
			for range 1000 {
				key.Or(bit)
			}
		}([]uint8{KeyRef, KeyChange}[i&1])
	}
	wg.Wait()
	if k := key.Get(); k != 0x56 {
		t.Errorf("Key not correct got: %02x expected: %02x", k, 0x56)
	}
}

func TestCompareAndSwap(t *testing.T) {
	s := setup(t, 4096)
	s.PutWord(0x40, 10)
	cur, ok, _ := s.CompareAndSwapWord(0x40, 11, 12)
	if ok || cur != 10 {
		t.Errorf("Swap with wrong old value got: %d %v expected: %d false", cur, ok, 10)
	}
	_, ok, _ = s.CompareAndSwapWord(0x40, 10, 12)
	if !ok {
		t.Errorf("Swap did not happen")
	}
	if w, _ := s.GetWord(0x40); w != 12 {
		t.Errorf("Swap not correct got: %d expected: %d", w, 12)
	}
}

func TestPrefixing(t *testing.T) {
	tests := []struct {
		addr, prefix, size, want uint64
	}{
		{0x0010, 0x5000, 0x1000, 0x5010},
		{0x5010, 0x5000, 0x1000, 0x0010},
		{0x6010, 0x5000, 0x1000, 0x6010},
		{0x1010, 0x4000, 0x2000, 0x5010},
		{0x5010, 0x4000, 0x2000, 0x1010},
		{0x0020, 0x0000, 0x1000, 0x0020},
	}
	for _, test := range tests {
		r := ApplyPrefixing(test.addr, test.prefix, test.size)
		if r != test.want {
			t.Errorf("Prefix %x of %x got: %x expected: %x", test.prefix, test.addr, r, test.want)
		}
	}
}
