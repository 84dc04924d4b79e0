package aie

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const registerSet = "General Purpose Registers"

// generic roles of the registers that have one, used by the client to find
// the pc, the stack and the argument registers.
var genericRoles = map[string]string{
	"r4": "arg1",
	"r5": "arg2",
	"r6": "arg3",
	"r7": "arg4",
	"pc": "pc",
	"sp": "sp",
	"lr": "lr",
}

var registerInfo = func() [NumRegisters]string {
	var info [NumRegisters]string
	for i, name := range RegisterNames {
		var b strings.Builder
		fmt.Fprintf(&b, "name:%s;bitsize:32;offset:%d;encoding:uint;format:hex;set:%s;", name, 4*i, registerSet)
		if role, ok := genericRoles[name]; ok {
			fmt.Fprintf(&b, "generic:%s;", role)
		}
		info[i] = b.String()
	}
	return info
}()

// RegisterInfo returns the qRegisterInfo descriptor of register i.
func RegisterInfo(i int) (string, error) {
	if i < 0 || i >= NumRegisters {
		return "", RegisterError{Index: i}
	}
	return registerInfo[i], nil
}

// Triple is the target triple reported to the client. The cores have no
// triple of their own, the closest 32 bit little endian one known to the
// clients is used.
const Triple = "mipsel-unknown-linux-gnu"

// HostInfo returns the qHostInfo reply.
func HostInfo() string {
	return "triple:" + hex.EncodeToString([]byte(Triple)) + ";endian:little;ptrsize:4;"
}

// MemorySize is the size of the address space of a core that is accessible
// through the debugger.
const MemorySize = 128 * 1024

// InBounds reports whether size bytes starting at addr lie within the
// address space.
func InBounds(addr, size uint64) bool {
	return addr <= MemorySize && size <= MemorySize-addr
}

// MemoryRegionInfo returns the qMemoryRegionInfo reply, a single read/write/
// execute region spanning the whole address space.
func MemoryRegionInfo(addr uint64) string {
	return fmt.Sprintf("start:%08x;size:%x;permissions:rwx;", 0, MemorySize)
}

// Features is the qSupported reply.
const Features = "QStartNoAckMode+;QNonStop+;hwbreak+"
