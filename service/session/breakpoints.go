package session

import (
	"fmt"
	"strconv"
	"strings"
)

// addBreakpoint sets a breakpoint at addr and remembers the handle the
// console assigned to it. Setting a breakpoint twice at the same address
// is a no-op.
func (s *Session) addBreakpoint(addr uint64) error {
	if _, ok := s.st.breakpoints[addr]; ok {
		return nil
	}
	lines, err := s.send(fmt.Sprintf("bpadd 0x%x", addr), false)
	if err != nil {
		return err
	}
	if len(lines) == 0 || strings.Contains(lines[0], "Invalid") {
		return InvalidAddressError{Addr: addr, Reply: strings.Join(lines, " ")}
	}
	handle, err := leadingInt(lines[0])
	if err != nil {
		return InvalidAddressError{Addr: addr, Reply: lines[0]}
	}
	s.st.breakpoints[addr] = handle
	s.log.Debugf("breakpoint %d at %#x", handle, addr)
	return nil
}

func (s *Session) removeBreakpoint(addr uint64) error {
	handle, ok := s.st.breakpoints[addr]
	if !ok {
		return NoBreakpointError{Addr: addr}
	}
	if _, err := s.send(fmt.Sprintf("bpremove %d", handle), false); err != nil {
		return err
	}
	delete(s.st.breakpoints, addr)
	return nil
}

func leadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return strconv.Atoi(s[:end])
}
