package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aiedbg/aiedbg/pkg/aie"
	"github.com/aiedbg/aiedbg/pkg/logflags"
	"github.com/aiedbg/aiedbg/service/api"
)

// unlimited is the cycle budget of a continued simulator.
const unlimited = -1

// Simulator is a backend without hardware: a single core whose pc
// advances by one instruction per cycle until it reaches a breakpoint or
// its cycle budget runs out. It does not execute instructions.
type Simulator struct {
	mu          sync.Mutex
	regs        aie.Registers
	mem         []byte
	breakpoints map[uint64]bool
	// budget is the number of cycles left before the core stops, 0 when
	// stopped.
	budget int

	cycles int
	stops  chan api.Reply
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	log *logrus.Entry
}

// NewSimulator creates a simulated backend. If cfg.SimTick is positive the
// simulator runs cfg.SimCycles cycles on every tick.
func NewSimulator(cfg Config) *Simulator {
	sim := &Simulator{
		mem:         make([]byte, aie.MemorySize),
		breakpoints: make(map[uint64]bool),
		cycles:      cfg.SimCycles,
		stops:       make(chan api.Reply, stopBacklog),
		done:        make(chan struct{}),
		log:         logflags.SessionLogger(),
	}
	if sim.cycles <= 0 {
		sim.cycles = 100
	}
	if cfg.SimTick > 0 {
		sim.wg.Add(1)
		go sim.tick(cfg.SimTick)
	}
	sim.log.Info("simulated backend started")
	return sim
}

func (sim *Simulator) tick(period time.Duration) {
	defer sim.wg.Done()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			sim.run(sim.cycles)
		case <-sim.done:
			return
		}
	}
}

// run executes up to cycles cycles.
func (sim *Simulator) run(cycles int) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if sim.budget == 0 {
		return
	}
	for ; cycles > 0 && sim.budget != 0; cycles-- {
		if sim.budget > 0 {
			sim.budget--
		}
		sim.regs[pcIndex] = aie.ToWord(int64(sim.regs[pcIndex]) + 4)
		if sim.breakpoints[uint64(sim.regs[pcIndex])] {
			sim.budget = 0
		}
	}
	if sim.budget == 0 {
		sim.notifyStop()
	}
}

func (sim *Simulator) notifyStop() {
	select {
	case sim.stops <- api.Stopped(api.SIGTRAP):
	default:
		sim.log.Warn("stop notification dropped")
	}
}

// Stops implements Backend.
func (sim *Simulator) Stops() <-chan api.Reply {
	return sim.stops
}

// Handle implements Backend.
func (sim *Simulator) Handle(req api.Request) api.Reply {
	if reply, ok := infoReply(req); ok {
		return reply
	}

	sim.mu.Lock()
	defer sim.mu.Unlock()

	switch r := req.(type) {
	case api.ReadRegisters:
		return api.Bytes(sim.regs.Bytes())
	case api.ReadRegister:
		if r.Index < 0 || r.Index >= aie.NumRegisters {
			return errorReply(aie.RegisterError{Index: r.Index})
		}
		return api.Bytes(aie.WordBytes(sim.regs[r.Index]))
	case api.WriteRegisters:
		sim.regs.SetBytes(r.Data)
		return api.OK()
	case api.WriteRegister:
		if r.Index < 0 || r.Index >= aie.NumRegisters {
			return errorReply(aie.RegisterError{Index: r.Index})
		}
		if len(r.Data) > 0 {
			sim.regs[r.Index] = aie.DecodeWords(r.Data)[0]
		}
		return api.OK()
	case api.ReadMemory:
		start := r.Addr
		if start > uint64(len(sim.mem)) {
			start = uint64(len(sim.mem))
		}
		end := start + uint64(r.Length)
		if end > uint64(len(sim.mem)) {
			end = uint64(len(sim.mem))
		}
		return api.Bytes(append([]byte(nil), sim.mem[start:end]...))
	case api.WriteMemory:
		if !aie.InBounds(r.Addr, uint64(len(r.Data))) {
			return errorReply(ErrBadAccessSize)
		}
		copy(sim.mem[r.Addr:], r.Data)
		return api.OK()
	case api.Step:
		if r.Addr != nil {
			sim.regs[pcIndex] = uint32(*r.Addr)
		}
		sim.budget = 1
		return api.Deferred()
	case api.Continue:
		if r.Addr != nil {
			sim.regs[pcIndex] = uint32(*r.Addr)
		}
		sim.budget = unlimited
		return api.Deferred()
	case api.NonStop:
		if r.StopAll {
			sim.budget = 0
		}
		return api.OK()
	case api.ThreadInfo:
		return api.Threads([]int{1})
	case api.CurrentThread:
		return api.CurrentThreadID(1)
	case api.SelectThread:
		if r.ID > 1 {
			return errorReply(ThreadIDError{ID: r.ID})
		}
		return api.OK()
	case api.AddBreakpoint:
		sim.breakpoints[r.Addr] = true
		return api.OK()
	case api.RemoveBreakpoint:
		if !sim.breakpoints[r.Addr] {
			return errorReply(NoBreakpointError{Addr: r.Addr})
		}
		delete(sim.breakpoints, r.Addr)
		return api.OK()
	case api.Interrupt:
		sim.budget = 0
		sim.notifyStop()
		return api.Deferred()
	}
	return api.Unsupported()
}

// Close implements Backend.
func (sim *Simulator) Close() error {
	sim.once.Do(func() {
		close(sim.done)
	})
	sim.wg.Wait()
	return nil
}
