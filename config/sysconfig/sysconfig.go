/*
 * S390 - Machine configuration options
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

package sysconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	config "github.com/rcornwell/S390/config/configparser"
	"github.com/rcornwell/S390/emu/core"
	"github.com/rcornwell/S390/emu/cpu"
	"github.com/rcornwell/S390/emu/memory"
)

// CPUConfig holds settings for one CPU.
type CPUConfig struct {
	Addr   uint16
	Prefix uint64
}

// Config is the machine described by the configuration file.
type Config struct {
	MainSize   uint64       // Bytes of main storage
	NumCPU     int          // Number of CPUs
	Arch       cpu.ArchMode // Architecture of every CPU
	CPUs       []CPUConfig  // CPU specific settings
	Facilities []string     // Installed facilities
}

const defaultSize = 16 * 1024 * 1024

var (
	mu      sync.Mutex
	current = defaultConfig()
)

func defaultConfig() Config {
	return Config{MainSize: defaultSize, NumCPU: 1, Arch: cpu.ArchESA390}
}

// register options on initialize.
func init() {
	config.RegisterOption("MAINSIZE", setMainSize)
	config.RegisterOption("NUMCPU", setNumCPU)
	config.RegisterOption("ARCHMODE", setArch)
	config.RegisterOption("FACILITY", setFacility)
	config.RegisterModel("CPU", config.TypeModel, setCPU)
	config.RegisterModel("DEBUG", config.TypeOptions, setDebug)
}

// Get returns a copy of the current configuration.
func Get() Config {
	mu.Lock()
	defer mu.Unlock()
	c := current
	c.CPUs = append([]CPUConfig(nil), current.CPUs...)
	c.Facilities = append([]string(nil), current.Facilities...)
	return c
}

// Reset restores the default configuration.
func Reset() {
	mu.Lock()
	current = defaultConfig()
	mu.Unlock()
}

// Parse a size, number followed by K, M or G. Plain number is megabytes.
func parseSize(value string) (uint64, error) {
	value = strings.ToUpper(value)
	shift := 20
	switch {
	case strings.HasSuffix(value, "K"):
		shift = 10
	case strings.HasSuffix(value, "M"):
		shift = 20
	case strings.HasSuffix(value, "G"):
		shift = 30
	}
	value = strings.TrimRight(value, "KMG")
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil || n == 0 {
		return 0, errors.New("invalid storage size: " + value)
	}
	return n << shift, nil
}

func setMainSize(_ uint16, value string, _ []config.Option) error {
	size, err := parseSize(value)
	if err != nil {
		return err
	}
	if size > memory.MaxSize {
		return fmt.Errorf("storage size %d too large", size)
	}
	mu.Lock()
	current.MainSize = size
	mu.Unlock()
	return nil
}

func setNumCPU(_ uint16, value string, _ []config.Option) error {
	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil || n < 1 || n > core.MaxCPU {
		return fmt.Errorf("number of CPUs must be 1 to %d: %s", core.MaxCPU, value)
	}
	mu.Lock()
	current.NumCPU = int(n)
	mu.Unlock()
	return nil
}

func setArch(_ uint16, value string, _ []config.Option) error {
	arch, err := cpu.ParseArch(value)
	if err != nil {
		return err
	}
	mu.Lock()
	current.Arch = arch
	mu.Unlock()
	return nil
}

func setFacility(_ uint16, value string, _ []config.Option) error {
	name := strings.ToUpper(value)
	switch name {
	case "EDAT1", "ASF":
	default:
		return errors.New("unknown facility: " + value)
	}
	mu.Lock()
	current.Facilities = append(current.Facilities, name)
	mu.Unlock()
	return nil
}

func setCPU(addr uint16, _ string, options []config.Option) error {
	c := CPUConfig{Addr: addr}
	for _, opt := range options {
		switch strings.ToUpper(opt.Name) {
		case "PREFIX":
			p, err := strconv.ParseUint(opt.EqualOpt, 16, 64)
			if err != nil {
				return errors.New("CPU prefix must be hex: " + opt.EqualOpt)
			}
			if p&0xfff != 0 {
				return fmt.Errorf("CPU prefix %x not on page boundary", p)
			}
			c.Prefix = p
		default:
			return errors.New("CPU invalid option: " + opt.Name)
		}
	}
	mu.Lock()
	current.CPUs = append(current.CPUs, c)
	mu.Unlock()
	return nil
}

// Build creates the machine described by cfg.
func Build(cfg Config) (*core.Core, error) {
	mem, err := memory.New(cfg.MainSize)
	if err != nil {
		return nil, err
	}
	m, err := core.New(mem, cfg.NumCPU, cfg.Arch)
	if err != nil {
		_ = mem.Close()
		return nil, err
	}
	for _, c := range m.CPUs() {
		for _, f := range cfg.Facilities {
			if err := c.SetFacility(f, true); err != nil {
				_ = mem.Close()
				return nil, err
			}
		}
	}
	for _, cc := range cfg.CPUs {
		c := m.CPU(cc.Addr)
		if c == nil {
			_ = mem.Close()
			return nil, fmt.Errorf("CPU %x not configured, %d CPUs", cc.Addr, cfg.NumCPU)
		}
		if irc := c.SetPrefix(cc.Prefix); irc != 0 {
			_ = mem.Close()
			return nil, fmt.Errorf("CPU %x prefix %x outside storage", cc.Addr, cc.Prefix)
		}
	}
	slog.Info(fmt.Sprintf("Machine %v, %d CPUs, %dK storage", cfg.Arch, cfg.NumCPU, cfg.MainSize>>10))
	return m, nil
}
