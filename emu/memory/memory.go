package memory

/*
 * S390  - Main storage and storage keys
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
	"encoding/binary"
	"errors"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

const (
	FrameShift = 12
	FrameSize  = 1 << FrameShift
	FrameMask  = FrameSize - 1

	MaxSize = 1 << 40 // Largest storage we will map
)

// Storage key bits.
const (
	KeyAccess uint8 = 0xf0 // Access control bits
	KeyFetch  uint8 = 0x08 // Fetch protection
	KeyRef    uint8 = 0x04 // Reference bit
	KeyChange uint8 = 0x02 // Change bit
	KeyMask   uint8 = 0xfe // Bits returned by ISKE
)

var littleHost = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// Key is the storage key of one frame.
type Key struct {
	v atomic.Uint32
}

// Get returns the current key value.
func (k *Key) Get() uint8 {
	return uint8(k.v.Load())
}

// Set replaces the key.
func (k *Key) Set(key uint8) {
	k.v.Store(uint32(key & KeyMask))
}

// Or sets reference and change bits. Store only happens if some bit is missing.
func (k *Key) Or(bits uint8) {
	if uint8(k.v.Load())&bits != bits {
		k.v.Or(uint32(bits))
	}
}

// And clears bits not in mask, returning the old key.
func (k *Key) And(mask uint8) uint8 {
	return uint8(k.v.And(uint32(mask) | 0xffffff00))
}

// Storage is main storage shared by all CPUs.
type Storage struct {
	mem     []byte
	keys    []Key
	size    uint64
	release func() error
}

// New allocates storage of size bytes, rounded up to a frame.
func New(size uint64) (*Storage, error) {
	if size == 0 {
		return nil, errors.New("storage size must not be zero")
	}
	if size > MaxSize {
		return nil, errors.New("storage size too large")
	}
	size = (size + FrameMask) &^ FrameMask
	mem, release, err := allocate(size)
	if err != nil {
		return nil, err
	}
	return &Storage{
		mem:     mem,
		keys:    make([]Key, size>>FrameShift),
		size:    size,
		release: release,
	}, nil
}

// Close releases the backing storage.
func (s *Storage) Close() error {
	if s.release == nil {
		return nil
	}
	err := s.release()
	s.release = nil
	s.mem = nil
	return err
}

// Return size of memory in bytes.
func (s *Storage) Size() uint64 {
	return s.size
}

// Check if address out of range.
func (s *Storage) CheckAddr(addr uint64) bool {
	return addr < s.size
}

func (s *Storage) inRange(addr, length uint64) bool {
	return addr < s.size && length <= s.size-addr
}

func toHost32(v uint32) uint32 {
	if littleHost {
		return bits.ReverseBytes32(v)
	}
	return v
}

func toHost64(v uint64) uint64 {
	if littleHost {
		return bits.ReverseBytes64(v)
	}
	return v
}

func (s *Storage) word(addr uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[addr&^3]))
}

func (s *Storage) dword(addr uint64) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[addr&^7]))
}

// Get a halfword from memory. Returns true if address out of range.
func (s *Storage) GetHalf(addr uint64) (uint16, bool) {
	if !s.inRange(addr&^1, 2) {
		return 0, true
	}
	w := toHost32(atomic.LoadUint32(s.word(addr)))
	if addr&2 == 0 {
		return uint16(w >> 16), false
	}
	return uint16(w), false
}

// Get a word from memory. Address is forced to a word boundary.
func (s *Storage) GetWord(addr uint64) (uint32, bool) {
	if !s.inRange(addr&^3, 4) {
		return 0, true
	}
	return toHost32(atomic.LoadUint32(s.word(addr))), false
}

// Get a doubleword from memory. Address is forced to a doubleword boundary.
func (s *Storage) GetDouble(addr uint64) (uint64, bool) {
	if !s.inRange(addr&^7, 8) {
		return 0, true
	}
	return toHost64(atomic.LoadUint64(s.dword(addr))), false
}

// Put a halfword to memory.
func (s *Storage) PutHalf(addr uint64, data uint16) bool {
	if !s.inRange(addr&^1, 2) {
		return true
	}
	shift := 16
	if addr&2 != 0 {
		shift = 0
	}
	mask := uint32(0xffff) << shift
	p := s.word(addr)
	for {
		o := atomic.LoadUint32(p)
		n := toHost32((toHost32(o) &^ mask) | (uint32(data) << shift))
		if atomic.CompareAndSwapUint32(p, o, n) {
			return false
		}
	}
}

// Put a word to memory.
func (s *Storage) PutWord(addr uint64, data uint32) bool {
	if !s.inRange(addr&^3, 4) {
		return true
	}
	atomic.StoreUint32(s.word(addr), toHost32(data))
	return false
}

// Put a doubleword to memory.
func (s *Storage) PutDouble(addr uint64, data uint64) bool {
	if !s.inRange(addr&^7, 8) {
		return true
	}
	atomic.StoreUint64(s.dword(addr), toHost64(data))
	return false
}

// CompareAndSwapWord replaces the word at addr with data if it holds old.
// The value found in storage is returned.
func (s *Storage) CompareAndSwapWord(addr uint64, old, data uint32) (uint32, bool, bool) {
	if !s.inRange(addr&^3, 4) {
		return 0, false, true
	}
	p := s.word(addr)
	if atomic.CompareAndSwapUint32(p, toHost32(old), toHost32(data)) {
		return old, true, false
	}
	return toHost32(atomic.LoadUint32(p)), false, false
}

// Slice returns the bytes from addr up to length, limited to the end of storage.
func (s *Storage) Slice(addr, length uint64) []byte {
	if addr >= s.size {
		return nil
	}
	end := addr + length
	if end > s.size || end < addr {
		end = s.size
	}
	return s.mem[addr:end:end]
}

// KeyOf returns the storage key covering addr.
func (s *Storage) KeyOf(addr uint64) *Key {
	if addr >= s.size {
		return nil
	}
	return &s.keys[addr>>FrameShift]
}

// Return storage key, zero if out of range.
func (s *Storage) GetKey(addr uint64) uint8 {
	if addr >= s.size {
		return 0
	}
	return s.keys[addr>>FrameShift].Get()
}

// Set storage key.
func (s *Storage) PutKey(addr uint64, key uint8) {
	if addr < s.size {
		s.keys[addr>>FrameShift].Set(key)
	}
}

// ApplyPrefixing swaps the prefix area with absolute zero.
// Size is the length of the prefix area, a power of two.
func ApplyPrefixing(addr, prefix, size uint64) uint64 {
	block := addr &^ (size - 1)
	if block == 0 || block == prefix {
		return addr ^ prefix
	}
	return addr
}
