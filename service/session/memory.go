package session

import (
	"fmt"
	"strings"

	"github.com/aiedbg/aiedbg/pkg/aie"
)

type memKey struct {
	core   int
	addr   uint64
	length int
}

// readMemory reads length bytes at addr of the current core. The console
// prints one word per line ("<offset>: <hex>"), the words are returned
// concatenated, ready to be sent to the client.
func (s *Session) readMemory(addr uint64, length int) (string, error) {
	if len(s.st.cores) == 0 {
		return "", ErrNoCores
	}
	if length <= 0 {
		return "", nil
	}
	key := memKey{core: s.st.current, addr: addr, length: length}
	if s.memcache != nil {
		if v, ok := s.memcache.Get(key); ok {
			return v.(string), nil
		}
	}

	words := (length + 3) / 4
	lines, err := s.send(fmt.Sprintf("mrd 0x%x %d", addr, words), true)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, line := range lines {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return "", ExecError{Op: "mrd", Reply: line}
		}
		word := strings.TrimSpace(line[colon+1:])
		if !isHex(word) {
			return "", ExecError{Op: "mrd", Reply: line}
		}
		b.WriteString(strings.ToLower(word))
	}
	hex := b.String()
	if len(hex) > 2*length {
		hex = hex[:2*length]
	}

	if s.memcache != nil {
		s.memcache.Add(key, hex)
	}
	return hex, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// writeMemory writes data at addr of the current core. Writes that would
// extend past the end of the address space are rejected without contacting
// the console.
func (s *Session) writeMemory(addr uint64, data []byte) error {
	if !aie.InBounds(addr, uint64(len(data))) {
		return ErrBadAccessSize
	}
	if len(data) == 0 {
		return nil
	}
	if len(s.st.cores) == 0 {
		return ErrNoCores
	}
	vals := make([]string, len(data))
	for i, v := range data {
		vals[i] = fmt.Sprintf("0x%02x", v)
	}
	s.invalidateMemory()
	lines, err := s.send(fmt.Sprintf("mwr 0x%x {%s}", addr, strings.Join(vals, ",")), false)
	if err != nil {
		return err
	}
	if len(lines) > 0 && isConsoleError(lines[0]) {
		return ExecError{Op: "mwr", Reply: lines[0]}
	}
	return nil
}
