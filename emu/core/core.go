/*
   Core S390 machine, one goroutine per CPU.

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   ROBERT M SUPNIK BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/


package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcornwell/S390/emu/cpu"
	"github.com/rcornwell/S390/emu/memory"
)

// Executor runs instructions on a CPU. Step returns false when the CPU
// has nothing more to do, the CPU then waits for a request.
type Executor interface {
	Step(c *cpu.CPU) (bool, error)
}

type request struct {
	fn   func(c *cpu.CPU)
	done chan struct{}
}

// Per CPU run state.
type cpuState struct {
	requests chan request
	running  bool // Goroutine is executing, not idle
}

// MaxCPU is the largest number of CPUs in a machine.
const MaxCPU = 64

type Core struct {
	mem   *memory.Storage
	cpus  []*cpu.CPU
	state []cpuState

	mu      sync.Mutex
	cond    *sync.Cond
	syncing atomic.Bool // Interlock held, other CPUs must park
	owner   *cpu.CPU    // CPU holding interlock
	active  int         // CPUs executing
	parked  int         // CPUs stopped for interlock

	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	ctx     context.Context
}

// New creates a machine with n CPUs sharing storage.
func New(mem *memory.Storage, n int, arch cpu.ArchMode) (*Core, error) {
	if n < 1 || n > MaxCPU {
		return nil, fmt.Errorf("invalid number of CPUs: %d", n)
	}
	core := &Core{mem: mem}
	core.cond = sync.NewCond(&core.mu)
	for i := range n {
		c := cpu.New(uint16(i), arch, mem)
		c.SetInterlock(core)
		core.cpus = append(core.cpus, c)
		core.state = append(core.state, cpuState{requests: make(chan request)})
	}
	return core, nil
}

// Return main storage.
func (core *Core) Storage() *memory.Storage {
	return core.mem
}

// Return all CPUs.
func (core *Core) CPUs() []*cpu.CPU {
	return core.cpus
}

// Return CPU by address, nil if none.
func (core *Core) CPU(addr uint16) *cpu.CPU {
	if int(addr) >= len(core.cpus) {
		return nil
	}
	return core.cpus[addr]
}

// Start one goroutine per CPU.
func (core *Core) Start(ctx context.Context, exec Executor) error {
	core.mu.Lock()
	defer core.mu.Unlock()
	if core.started {
		return errors.New("machine already started")
	}
	ctx, core.cancel = context.WithCancel(ctx)
	core.group, core.ctx = errgroup.WithContext(ctx)
	core.started = true
	for i := range core.cpus {
		core.group.Go(func() error {
			return core.run(i, exec)
		})
	}
	slog.Info("Machine started", "cpus", len(core.cpus))
	return nil
}

// Wait for all CPUs to finish, returns first error.
func (core *Core) Wait() error {
	if core.group == nil {
		return nil
	}
	return core.group.Wait()
}

// Stop all CPUs.
func (core *Core) Stop() {
	core.mu.Lock()
	if !core.started {
		core.mu.Unlock()
		return
	}
	core.cancel()
	core.mu.Unlock()
	slog.Info("Shutting down CPUs")

	done := make(chan struct{})
	go func() {
		err := core.group.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("CPU stopped: " + err.Error())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for CPUs to finish.")
	}
	core.mu.Lock()
	core.started = false
	core.mu.Unlock()
}

// Do runs fn on the goroutine of CPU addr and waits for it.
// If the machine is not running fn is called directly.
func (core *Core) Do(addr uint16, fn func(c *cpu.CPU)) error {
	c := core.CPU(addr)
	if c == nil {
		return fmt.Errorf("no CPU %x", addr)
	}
	core.mu.Lock()
	if !core.started {
		core.mu.Unlock()
		fn(c)
		return nil
	}
	ctx := core.ctx
	core.mu.Unlock()

	r := request{fn: fn, done: make(chan struct{})}
	select {
	case core.state[addr].requests <- r:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SynchronizeCPUs calls fn with every other executing CPU parked.
func (core *Core) SynchronizeCPUs(self *cpu.CPU, fn func(cpus []*cpu.CPU)) {
	st := core.stateOf(self)
	core.mu.Lock()
	// Wait for any other holder, counting as parked meanwhile.
	for core.syncing.Load() {
		core.park(st)
	}
	core.syncing.Store(true)
	core.owner = self
	for core.parked < core.others(st) {
		core.cond.Wait()
	}
	core.mu.Unlock()

	fn(core.cpus)

	core.mu.Lock()
	core.syncing.Store(false)
	core.owner = nil
	core.cond.Broadcast()
	core.mu.Unlock()
}

// Number of executing CPUs other than st.
func (core *Core) others(st *cpuState) int {
	n := core.active
	if st != nil && st.running {
		n--
	}
	return n
}

// Park current CPU until interlock is free. Must hold mu.
func (core *Core) park(st *cpuState) {
	if st == nil || !st.running {
		core.cond.Wait()
		return
	}
	core.parked++
	core.cond.Broadcast()
	core.cond.Wait()
	core.parked--
}

func (core *Core) stateOf(c *cpu.CPU) *cpuState {
	if c == nil {
		return nil
	}
	for i, p := range core.cpus {
		if p == c {
			return &core.state[i]
		}
	}
	return nil
}

// Stop at interlock if another CPU holds it.
func (core *Core) checkpoint(st *cpuState) {
	if !core.syncing.Load() {
		return
	}
	core.mu.Lock()
	for core.syncing.Load() {
		core.park(st)
	}
	core.mu.Unlock()
}

// Mark CPU executing or idle. Idle CPUs never hold stale state.
func (core *Core) setRunning(st *cpuState, on bool) {
	core.mu.Lock()
	defer core.mu.Unlock()
	if st.running == on {
		return
	}
	if on {
		// Don't start while another CPU holds interlock.
		for core.syncing.Load() {
			core.cond.Wait()
		}
		core.active++
	} else {
		core.active--
		core.cond.Broadcast()
	}
	st.running = on
}

// CPU main loop.
func (core *Core) run(i int, exec Executor) error {
	c := core.cpus[i]
	st := &core.state[i]
	ctx := core.ctx
	defer core.setRunning(st, false)

	for {
		busy := exec != nil
		for busy {
			select {
			case <-ctx.Done():
				return nil
			case r := <-st.requests:
				core.setRunning(st, true)
				r.fn(c)
				close(r.done)
			default:
			}
			if !st.running {
				core.setRunning(st, true)
			}
			core.checkpoint(st)
			var err error
			busy, err = exec.Step(c)
			if err != nil {
				return fmt.Errorf("CPU %x: %w", c.Addr(), err)
			}
		}

		// Idle until asked to do something.
		core.setRunning(st, false)
		select {
		case <-ctx.Done():
			return nil
		case r := <-st.requests:
			core.setRunning(st, true)
			r.fn(c)
			close(r.done)
		}
	}
}
