package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aiedbg/aiedbg/pkg/aie"
)

// readRegisters refreshes the register cache of the current core from a
// register dump.
func (s *Session) readRegisters() (*aie.Registers, error) {
	if len(s.st.cores) == 0 {
		return nil, ErrNoCores
	}
	lines, err := s.send("rrd", false)
	if err != nil {
		return nil, err
	}
	regs := &s.st.regs[s.st.current]
	found := regs.ParseRegisterDump(lines)
	if len(found) == 0 && len(lines) > 0 {
		return nil, ExecError{Op: "rrd", Reply: lines[0]}
	}
	return regs, nil
}

func (s *Session) readRegister(index int) ([]byte, error) {
	if index < 0 || index >= aie.NumRegisters {
		return nil, aie.RegisterError{Index: index}
	}
	regs, err := s.readRegisters()
	if err != nil {
		return nil, err
	}
	return aie.WordBytes(regs[index]), nil
}

// writeRegisters writes the registers of the client's register file that
// differ from the cache of the current core. A register is cached only once
// its write succeeded. Register 0 is never written.
func (s *Session) writeRegisters(data []byte) error {
	if len(s.st.cores) == 0 {
		return ErrNoCores
	}
	regs := &s.st.regs[s.st.current]
	next := *regs
	for _, i := range next.SetBytes(data) {
		if err := s.setRegister(i, next[i]); err != nil {
			return err
		}
		regs[i] = next[i]
	}
	return nil
}

func (s *Session) writeRegister(index int, data []byte) error {
	if index < 0 || index >= aie.NumRegisters {
		return aie.RegisterError{Index: index}
	}
	if len(s.st.cores) == 0 {
		return ErrNoCores
	}
	if len(data) == 0 {
		return errors.New("empty register value")
	}
	v := aie.DecodeWords(data)[0]
	if err := s.setRegister(index, v); err != nil {
		return err
	}
	s.st.regs[s.st.current][index] = v
	return nil
}

// setRegister writes one register of the current core.
func (s *Session) setRegister(index int, v uint32) error {
	name := aie.RegisterNames[index]
	lines, err := s.send(fmt.Sprintf("rwr %s 0x%x", name, v), false)
	if err != nil {
		return err
	}
	if len(lines) > 0 && isConsoleError(lines[0]) {
		return ExecError{Op: "rwr " + name, Reply: lines[0]}
	}
	s.invalidateMemory()
	return nil
}

// isConsoleError reports whether a reply line is an error message.
func isConsoleError(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "invalid") || strings.Contains(l, "error")
}
