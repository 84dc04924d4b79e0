// Package session implements the debug session behind the gdb stub: it
// translates the operations of package api into commands for the hardware
// debugger console, parses the console's replies and keeps the state the
// console does not (register cache, breakpoint handles, current thread).
package session

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/aiedbg/aiedbg/pkg/aie"
	"github.com/aiedbg/aiedbg/pkg/console"
	"github.com/aiedbg/aiedbg/pkg/imagewatch"
	"github.com/aiedbg/aiedbg/pkg/logflags"
	"github.com/aiedbg/aiedbg/service/api"
)

// Backend names accepted by Open.
const (
	BackendConsole = "console"
	BackendSim     = "sim"
)

const (
	// stopQuiet is how long the output of a stop command is collected
	// after its prompt, the completion notice of a stop is printed after
	// the prompt.
	stopQuiet = 300 * time.Millisecond
	// stopBacklog is the number of stop notifications buffered for a
	// client that is not reading them.
	stopBacklog = 16
	// reloadDelay coalesces the file events of an image being rebuilt.
	reloadDelay = 500 * time.Millisecond
)

// Console is the transport driven by Session, implemented by
// *console.Console.
type Console interface {
	Send(command string, silent bool) (string, error)
	Drain() (string, error)
	Purge(quiet time.Duration) (string, error)
	Close() error
}

// Config describes a debug session.
type Config struct {
	// Console is used to start the console subprocess.
	Console console.Config
	// WorkDir holds the per-core program images.
	WorkDir string
	// InitScript is the debug initialization script sourced when no core
	// target is visible.
	InitScript string
	// CoreFilter and DeviceFilter are the target name patterns used during
	// discovery.
	CoreFilter   string
	DeviceFilter string
	// InitName names the core debug session created by the initialization
	// script.
	InitName string
	// MinConsoleVersion makes the bootstrap warn about older consoles.
	MinConsoleVersion string
	// MemoryCacheSize is the number of memory reads kept, zero disables the
	// cache.
	MemoryCacheSize int
	// WatchImages reloads program images that change on disk.
	WatchImages bool
	// StopPoll is the interval at which running cores are polled to
	// report when they stop, zero disables polling.
	StopPoll time.Duration

	// Backend selects the implementation returned by Open.
	Backend string
	// SimTick and SimCycles drive the simulated backend.
	SimTick   time.Duration
	SimCycles int
}

// Backend executes the operations of a debug session.
type Backend interface {
	// Handle executes req and returns its reply.
	Handle(req api.Request) api.Reply
	// Stops delivers the stop notifications that answer deferred
	// replies.
	Stops() <-chan api.Reply
	// Close ends the session.
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendConsole:
		return Launch(cfg)
	case BackendSim:
		return NewSimulator(cfg), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Session is a debug session driving a hardware debugger console.
type Session struct {
	mu  sync.Mutex
	cfg Config
	con Console
	st  *state

	memcache *lru.Cache
	watcher  *imagewatch.Watcher

	stops chan api.Reply
	// running is set while the current core was resumed by a continue and
	// no stop was reported yet.
	running   bool
	polling   bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	log *logrus.Entry
}

// state is what the session knows about the cores beyond what the console
// reports.
type state struct {
	cores       []aie.Core
	regs        []aie.Registers
	breakpoints map[uint64]int
	// current is the position in cores of the current thread.
	current int
}

// Launch starts the console described by cfg and bootstraps a session on
// it.
func Launch(cfg Config) (*Session, error) {
	switch {
	case cfg.Console.Command == "":
		return nil, MissingConfigError{Setting: "console"}
	case cfg.WorkDir == "":
		return nil, MissingConfigError{Setting: "work-dir"}
	case cfg.InitScript == "":
		return nil, MissingConfigError{Setting: "vitis-dir"}
	}
	con, err := console.Start(cfg.Console)
	if err != nil {
		return nil, err
	}
	s, err := New(con, cfg)
	if err != nil {
		con.Close()
		return nil, err
	}
	return s, nil
}

// New bootstraps a session on an already started console.
func New(con Console, cfg Config) (*Session, error) {
	s := &Session{
		cfg:   cfg,
		con:   con,
		st:    &state{breakpoints: make(map[uint64]int)},
		stops: make(chan api.Reply, stopBacklog),
		done:  make(chan struct{}),
		log:   logflags.SessionLogger(),
	}
	if cfg.MemoryCacheSize > 0 {
		c, err := lru.New(cfg.MemoryCacheSize)
		if err != nil {
			return nil, err
		}
		s.memcache = c
	}
	if err := s.bootstrap(); err != nil {
		return nil, err
	}
	if cfg.WatchImages {
		if err := s.watchImages(); err != nil {
			s.log.Warnf("program images will not be reloaded: %v", err)
		}
	}
	return s, nil
}

// Cores returns a copy of the discovered cores.
func (s *Session) Cores() []aie.Core {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]aie.Core(nil), s.st.cores...)
}

// Stops implements Backend.
func (s *Session) Stops() <-chan api.Reply {
	return s.stops
}

// Handle implements Backend.
func (s *Session) Handle(req api.Request) api.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reply, ok := infoReply(req); ok {
		return reply
	}

	switch r := req.(type) {
	case api.ReadRegisters:
		regs, err := s.readRegisters()
		if err != nil {
			return errorReply(err)
		}
		return api.Bytes(regs.Bytes())
	case api.ReadRegister:
		b, err := s.readRegister(r.Index)
		if err != nil {
			return errorReply(err)
		}
		return api.Bytes(b)
	case api.WriteRegisters:
		return s.ok(s.writeRegisters(r.Data))
	case api.WriteRegister:
		return s.ok(s.writeRegister(r.Index, r.Data))
	case api.ReadMemory:
		hex, err := s.readMemory(r.Addr, r.Length)
		if err != nil {
			return errorReply(err)
		}
		return api.Text(hex)
	case api.WriteMemory:
		return s.ok(s.writeMemory(r.Addr, r.Data))
	case api.Step:
		if err := s.step(r.Addr); err != nil {
			return errorReply(err)
		}
		return api.Stopped(api.SIGTRAP)
	case api.Continue:
		if err := s.cont(r.Addr); err != nil {
			return errorReply(err)
		}
		return api.Deferred()
	case api.NonStop:
		if r.StopAll {
			return s.ok(s.stopAll())
		}
		return api.OK()
	case api.ThreadInfo:
		return api.Threads(s.threadInfo())
	case api.CurrentThread:
		id, err := s.currentThread()
		if err != nil {
			return errorReply(err)
		}
		return api.CurrentThreadID(id)
	case api.SelectThread:
		if err := s.selectThread(r.ID); err != nil {
			return errorReply(err)
		}
		s.log.Debugf("select %s thread: %d", r.Kind, r.ID)
		return api.OK()
	case api.AddBreakpoint:
		return s.ok(s.addBreakpoint(r.Addr))
	case api.RemoveBreakpoint:
		return s.ok(s.removeBreakpoint(r.Addr))
	case api.Interrupt:
		s.interrupt()
		return api.Deferred()
	case api.Monitor:
		out, err := s.monitor(r.Command)
		if err != nil {
			return errorReply(err)
		}
		return api.Text(out)
	}
	return api.Unsupported()
}

func (s *Session) ok(err error) api.Reply {
	if err != nil {
		return errorReply(err)
	}
	return api.OK()
}

// send issues one console command.
func (s *Session) send(command string, silent bool) ([]string, error) {
	resp, err := s.con.Send(command, silent)
	if err != nil {
		return nil, fmt.Errorf("console command %q: %w", command, err)
	}
	return console.Lines(resp), nil
}

// notifyStop queues a stop notification, dropping it if the client is not
// keeping up.
func (s *Session) notifyStop() {
	select {
	case s.stops <- api.Stopped(api.SIGTRAP):
	default:
		s.log.Warn("stop notification dropped")
	}
}

func (s *Session) invalidateMemory() {
	if s.memcache != nil {
		s.memcache.Purge()
	}
}

// Close implements Backend.
func (s *Session) Close() error {
	err := ErrClosed
	s.closeOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.wg.Wait()
		err = s.con.Close()
	})
	return err
}
