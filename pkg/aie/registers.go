package aie

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// NumRegisters is the size of the register file exposed to gdb.
const NumRegisters = 29

// RegisterNames lists the registers in the order gdb expects them: general
// purpose, pc, fc, sp, lr, the accumulator/multiplier registers, core
// control/status and the zero-overhead loop registers.
var RegisterNames = [NumRegisters]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"pc", "fc", "sp", "lr",
	"md0", "md1", "mc0", "mc1",
	"core_control", "core_status",
	"ls", "le", "lc",
}

var registerIndex = func() map[string]int {
	m := make(map[string]int, NumRegisters)
	for i, name := range RegisterNames {
		m[name] = i
	}
	return m
}()

// RegisterIndex returns the position of the named register.
func RegisterIndex(name string) (int, bool) {
	i, ok := registerIndex[name]
	return i, ok
}

// Registers is the register file of one core.
type Registers [NumRegisters]uint32

// Get returns the value of the named register.
func (r *Registers) Get(name string) (uint32, bool) {
	i, ok := registerIndex[name]
	if !ok {
		return 0, false
	}
	return r[i], true
}

// Bytes encodes the register file as consecutive little endian words.
func (r *Registers) Bytes() []byte {
	return EncodeWords(r[:])
}

// SetBytes decodes little endian words from data into the register file.
// Register 0 is never written. The indexes of the registers whose value
// changed are returned.
func (r *Registers) SetBytes(data []byte) []int {
	var changed []int
	values := DecodeWords(data)
	for i := 1; i < len(values) && i < NumRegisters; i++ {
		if r[i] != values[i] {
			r[i] = values[i]
			changed = append(changed, i)
		}
	}
	return changed
}

// ParseRegisterDump updates r with the values found in the output of the
// console's register dump command. The dump is a sequence of "name: hex"
// pairs laid out in columns, followed by the names of register groups that
// have no value; anything that is not a known register with a hex value is
// ignored. The names of the registers that were updated are returned.
func (r *Registers) ParseRegisterDump(lines []string) []string {
	var found []string
	text := strings.Join(lines, " ")
	for {
		colon := strings.IndexByte(text, ':')
		if colon < 0 {
			break
		}
		name := text[:colon]
		if sp := strings.LastIndexAny(name, " \t"); sp >= 0 {
			name = name[sp+1:]
		}
		text = strings.TrimLeft(text[colon+1:], " \t")
		value := text
		if sp := strings.IndexAny(value, " \t"); sp >= 0 {
			value = value[:sp]
		}
		i, known := registerIndex[name]
		if !known {
			continue
		}
		v, err := strconv.ParseUint(value, 16, 32)
		if err != nil {
			continue
		}
		r[i] = uint32(v)
		found = append(found, name)
		text = text[len(value):]
	}
	return found
}

// ToWord converts v to the unsigned 32 bit value sent to gdb. Negative
// values are folded with -v + 1.
func ToWord(v int64) uint32 {
	if v < 0 {
		v = -v + 1
	}
	return uint32(v)
}

// WordBytes returns the little endian encoding of v.
func WordBytes(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// EncodeWords encodes values as consecutive little endian words.
func EncodeWords(values []uint32) []byte {
	out := make([]byte, 0, 4*len(values))
	for _, v := range values {
		out = append(out, WordBytes(v)...)
	}
	return out
}

// DecodeWords decodes consecutive little endian words. A trailing partial
// word is zero extended.
func DecodeWords(data []byte) []uint32 {
	values := make([]uint32, 0, (len(data)+3)/4)
	for i := 0; i < len(data); i += 4 {
		var b [4]byte
		copy(b[:], data[i:])
		values = append(values, binary.LittleEndian.Uint32(b[:]))
	}
	return values
}

// RegisterError is returned for a register index outside the register file.
type RegisterError struct {
	Index int
}

func (e RegisterError) Error() string {
	return fmt.Sprintf("register index %d out of range", e.Index)
}
