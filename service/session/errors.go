package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aiedbg/aiedbg/pkg/aie"
	"github.com/aiedbg/aiedbg/pkg/console"
	"github.com/aiedbg/aiedbg/service/api"
)

var (
	// ErrNoCores is returned when discovery finds no core even after the
	// debug initialization sequence.
	ErrNoCores = errors.New("can't find any AI engine core")
	// ErrBadAccessSize is returned for memory writes that extend past the
	// end of the address space.
	ErrBadAccessSize = errors.New("bad access size for address")
	// ErrClosed is returned by Close when the session is already closed.
	ErrClosed = errors.New("session closed")
)

// MissingConfigError is returned when a required setting is absent.
type MissingConfigError struct {
	Setting string
}

func (e MissingConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Setting)
}

// InvalidAddressError is returned when the console refuses a breakpoint.
type InvalidAddressError struct {
	Addr  uint64
	Reply string
}

func (e InvalidAddressError) Error() string {
	if e.Reply == "" {
		return fmt.Sprintf("invalid breakpoint address %#x", e.Addr)
	}
	return fmt.Sprintf("invalid breakpoint address %#x: %s", e.Addr, e.Reply)
}

// NoBreakpointError is returned when removing a breakpoint that was never
// added.
type NoBreakpointError struct {
	Addr uint64
}

func (e NoBreakpointError) Error() string {
	return fmt.Sprintf("no breakpoint at %#x", e.Addr)
}

// ThreadIDError is returned for thread ids that don't name a core.
type ThreadIDError struct {
	ID int
}

func (e ThreadIDError) Error() string {
	return fmt.Sprintf("invalid thread id %d", e.ID)
}

// ExecError is returned when the console answers a command with something
// other than the expected acknowledgement.
type ExecError struct {
	Op    string
	Reply string
}

func (e ExecError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reply)
}

// StopError lists the cores (protocol thread ids) that could not be
// stopped.
type StopError struct {
	Threads []int
}

func (e StopError) Error() string {
	ids := make([]string, len(e.Threads))
	for i, id := range e.Threads {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("could not stop thread(s) %s", strings.Join(ids, ", "))
}

// errorCode maps an error to the number reported to the client.
func errorCode(err error) uint8 {
	var (
		regErr    aie.RegisterError
		bpErr     NoBreakpointError
		threadErr ThreadIDError
		stopErr   StopError
		execErr   ExecError
		addrErr   InvalidAddressError
	)
	switch {
	case errors.As(err, &regErr), errors.As(err, &bpErr):
		return api.ErrCodeInvalidArgument
	case errors.As(err, &threadErr):
		return api.ErrCodeInvalidThread
	case errors.As(err, &stopErr):
		return api.ErrCodeStopFailed
	case errors.As(err, &execErr):
		return api.ErrCodeExecution
	case errors.As(err, &addrErr):
		return api.ErrCodeInvalidBreakpoint
	case errors.Is(err, ErrBadAccessSize):
		return api.ErrCodeBadAccessSize
	case errors.Is(err, console.ErrMultiLine):
		return api.ErrCodeInvalidArgument
	}
	return api.ErrCodeInternal
}

func errorReply(err error) api.Reply {
	return api.Error(errorCode(err), err)
}
