// Package api defines the operations a debug session backend accepts and
// the replies it produces. The set of operations is closed: every request
// type is declared in this file and Request cannot be implemented outside
// of this package.
package api

// Request is one operation of the debug session.
type Request interface {
	request()
}

// ThreadKind is the purpose a thread is selected for.
type ThreadKind uint8

const (
	// ThreadExecution selects the thread used by step and continue (Hc).
	ThreadExecution ThreadKind = iota
	// ThreadRegisters selects the thread used for register access (Hg).
	ThreadRegisters
	// ThreadMemory selects the thread used for memory access (Hm).
	ThreadMemory
)

func (k ThreadKind) String() string {
	switch k {
	case ThreadExecution:
		return "execution"
	case ThreadRegisters:
		return "register"
	case ThreadMemory:
		return "memory"
	}
	return "unknown"
}

// BreakpointType is the gdb breakpoint type (Z0..Z4).
type BreakpointType uint8

const (
	SoftwareBreakpoint BreakpointType = iota
	HardwareBreakpoint
	WriteWatchpoint
	ReadWatchpoint
	AccessWatchpoint
)

type (
	// ReadRegisters reads the whole register file of the current thread.
	ReadRegisters struct{}
	// ReadRegister reads one register of the current thread.
	ReadRegister struct{ Index int }
	// WriteRegisters writes the whole register file of the current thread.
	WriteRegisters struct{ Data []byte }
	// WriteRegister writes one register of the current thread.
	WriteRegister struct {
		Index int
		Data  []byte
	}
	// ReadMemory reads Length bytes at Addr.
	ReadMemory struct {
		Addr   uint64
		Length int
	}
	// WriteMemory writes Data at Addr.
	WriteMemory struct {
		Addr uint64
		Data []byte
	}
	// Step executes one instruction, optionally resuming at Addr.
	Step struct{ Addr *uint64 }
	// Continue resumes execution, optionally at Addr.
	Continue struct{ Addr *uint64 }
	// QuerySupported negotiates protocol features.
	QuerySupported struct{ Features []string }
	// StartNoAck disables packet acknowledgement.
	StartNoAck struct{}
	// NonStop switches non-stop mode, StopAll stops every thread.
	NonStop struct{ StopAll bool }
	// ThreadInfo lists the thread ids.
	ThreadInfo struct{}
	// CurrentThread returns the id of the current thread.
	CurrentThread struct{}
	// RegisterInfo describes register Index.
	RegisterInfo struct{ Index int }
	// HostInfo describes the target.
	HostInfo struct{}
	// MemoryRegionInfo describes the memory region containing Addr.
	MemoryRegionInfo struct{ Addr uint64 }
	// SelectThread selects thread ID for operations of kind Kind. ID 0
	// means any thread.
	SelectThread struct {
		Kind ThreadKind
		ID   int
	}
	// AddBreakpoint inserts a breakpoint at Addr.
	AddBreakpoint struct {
		Type BreakpointType
		Addr uint64
		Kind int
	}
	// RemoveBreakpoint removes the breakpoint at Addr.
	RemoveBreakpoint struct {
		Type BreakpointType
		Addr uint64
		Kind int
	}
	// HaltReason asks why the target stopped.
	HaltReason struct{}
	// Interrupt asks the target to stop (the client sent ^C).
	Interrupt struct{}
	// Monitor passes Command to the console verbatim.
	Monitor struct{ Command string }
)

func (ReadRegisters) request()    {}
func (ReadRegister) request()     {}
func (WriteRegisters) request()   {}
func (WriteRegister) request()    {}
func (ReadMemory) request()       {}
func (WriteMemory) request()      {}
func (Step) request()             {}
func (Continue) request()         {}
func (QuerySupported) request()   {}
func (StartNoAck) request()       {}
func (NonStop) request()          {}
func (ThreadInfo) request()       {}
func (CurrentThread) request()    {}
func (RegisterInfo) request()     {}
func (HostInfo) request()         {}
func (MemoryRegionInfo) request() {}
func (SelectThread) request()     {}
func (AddBreakpoint) request()    {}
func (RemoveBreakpoint) request() {}
func (HaltReason) request()       {}
func (Interrupt) request()        {}
func (Monitor) request()          {}
