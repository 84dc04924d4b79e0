package gdbstub

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/aiedbg/aiedbg/service/api"
)

// action is what the server does with a packet besides passing its request
// to the backend.
type action uint8

const (
	actionRequest action = iota
	// actionReply answers with a fixed payload.
	actionReply
	// actionDetach answers OK and ends the connection.
	actionDetach
	// actionKill ends the connection without answering.
	actionKill
)

type decoded struct {
	action action
	req    api.Request
	// reply is the payload of actionReply.
	reply string
	// noAck disables acknowledgments after the reply is sent.
	noAck bool
}

func request(req api.Request) decoded { return decoded{action: actionRequest, req: req} }
func fixed(reply string) decoded      { return decoded{action: actionReply, reply: reply} }

// malformed is the reply to a packet whose arguments can't be parsed.
var malformed = fixed(fmt.Sprintf("E%02x", api.ErrCodeInvalidArgument))

// decode maps a packet to the operation it requests.
func decode(pkt string) decoded {
	if pkt == "" {
		return fixed("")
	}
	switch pkt[0] {
	case '?':
		return request(api.HaltReason{})
	case 'g':
		return request(api.ReadRegisters{})
	case 'G':
		data, err := hex.DecodeString(pkt[1:])
		if err != nil {
			return malformed
		}
		return request(api.WriteRegisters{Data: data})
	case 'p':
		n, err := strconv.ParseUint(pkt[1:], 16, 32)
		if err != nil {
			return malformed
		}
		return request(api.ReadRegister{Index: int(n)})
	case 'P':
		eq := strings.IndexByte(pkt, '=')
		if eq < 0 {
			return malformed
		}
		n, err := strconv.ParseUint(pkt[1:eq], 16, 32)
		if err != nil {
			return malformed
		}
		data, err := hex.DecodeString(pkt[eq+1:])
		if err != nil {
			return malformed
		}
		return request(api.WriteRegister{Index: int(n), Data: data})
	case 'm':
		addr, length, _, err := parseMemArgs(pkt[1:])
		if err != nil {
			return malformed
		}
		return request(api.ReadMemory{Addr: addr, Length: int(length)})
	case 'M':
		addr, length, data, err := parseMemArgs(pkt[1:])
		if err != nil {
			return malformed
		}
		b, err := hex.DecodeString(data)
		if err != nil || uint64(len(b)) != length {
			return malformed
		}
		return request(api.WriteMemory{Addr: addr, Data: b})
	case 's', 'c':
		var addr *uint64
		if len(pkt) > 1 {
			a, err := strconv.ParseUint(pkt[1:], 16, 64)
			if err != nil {
				return malformed
			}
			addr = &a
		}
		if pkt[0] == 's' {
			return request(api.Step{Addr: addr})
		}
		return request(api.Continue{Addr: addr})
	case 'H':
		return decodeSelectThread(pkt)
	case 'Z', 'z':
		return decodeBreakpoint(pkt)
	case 'D':
		return decoded{action: actionDetach}
	case 'k':
		return decoded{action: actionKill}
	case 'v':
		return decodeV(pkt)
	case 'q', 'Q':
		return decodeQuery(pkt)
	}
	return fixed("")
}

// parseMemArgs parses "addr,length[:data]".
func parseMemArgs(args string) (addr, length uint64, data string, err error) {
	if colon := strings.IndexByte(args, ':'); colon >= 0 {
		args, data = args[:colon], args[colon+1:]
	}
	comma := strings.IndexByte(args, ',')
	if comma < 0 {
		return 0, 0, "", fmt.Errorf("malformed memory arguments %q", args)
	}
	if addr, err = strconv.ParseUint(args[:comma], 16, 64); err != nil {
		return 0, 0, "", err
	}
	if length, err = strconv.ParseUint(args[comma+1:], 16, 32); err != nil {
		return 0, 0, "", err
	}
	return addr, length, data, nil
}

// parseThreadID parses a thread id, "-1" means all threads.
func parseThreadID(s string) (int, error) {
	if s == "-1" {
		return -1, nil
	}
	n, err := strconv.ParseUint(s, 16, 31)
	return int(n), err
}

func decodeSelectThread(pkt string) decoded {
	if len(pkt) < 3 {
		return malformed
	}
	var kind api.ThreadKind
	switch pkt[1] {
	case 'c':
		kind = api.ThreadExecution
	case 'g':
		kind = api.ThreadRegisters
	case 'm':
		kind = api.ThreadMemory
	default:
		return fixed("")
	}
	id, err := parseThreadID(pkt[2:])
	if err != nil {
		return malformed
	}
	return request(api.SelectThread{Kind: kind, ID: id})
}

func decodeBreakpoint(pkt string) decoded {
	fields := strings.Split(pkt[1:], ",")
	if len(fields) < 3 {
		return malformed
	}
	typ, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil || typ > uint64(api.AccessWatchpoint) {
		return fixed("")
	}
	addr, err := strconv.ParseUint(fields[1], 16, 64)
	if err != nil {
		return malformed
	}
	// the kind may be followed by conditions, they are not supported
	kindField := fields[2]
	if semi := strings.IndexByte(kindField, ';'); semi >= 0 {
		kindField = kindField[:semi]
	}
	kind, err := strconv.ParseUint(kindField, 16, 32)
	if err != nil {
		return malformed
	}
	if pkt[0] == 'Z' {
		return request(api.AddBreakpoint{Type: api.BreakpointType(typ), Addr: addr, Kind: int(kind)})
	}
	return request(api.RemoveBreakpoint{Type: api.BreakpointType(typ), Addr: addr, Kind: int(kind)})
}

func decodeV(pkt string) decoded {
	switch {
	case pkt == "vCont?":
		return fixed("vCont;c;C;s;S")
	case strings.HasPrefix(pkt, "vCont;"):
		// only the first action is honored, it applies to the current
		// thread
		act := strings.SplitN(pkt[len("vCont;"):], ";", 2)[0]
		if colon := strings.IndexByte(act, ':'); colon >= 0 {
			act = act[:colon]
		}
		if act == "" {
			return malformed
		}
		switch act[0] {
		case 's', 'S':
			return request(api.Step{})
		case 'c', 'C':
			return request(api.Continue{})
		}
		return fixed("")
	case pkt == "vMustReplyEmpty":
		return fixed("")
	}
	return fixed("")
}

func decodeQuery(pkt string) decoded {
	name, args := pkt, ""
	if i := strings.IndexAny(pkt, ":,"); i >= 0 {
		name, args = pkt[:i], pkt[i+1:]
	}
	switch name {
	case "qSupported":
		var features []string
		if args != "" {
			features = strings.Split(args, ";")
		}
		return request(api.QuerySupported{Features: features})
	case "QStartNoAckMode":
		d := request(api.StartNoAck{})
		d.noAck = true
		return d
	case "QNonStop":
		// all-stop mode stops every core
		return request(api.NonStop{StopAll: args == "0"})
	case "qfThreadInfo":
		return request(api.ThreadInfo{})
	case "qsThreadInfo":
		return fixed("l")
	case "qC":
		return request(api.CurrentThread{})
	case "qHostInfo":
		return request(api.HostInfo{})
	case "qMemoryRegionInfo":
		addr, err := strconv.ParseUint(args, 16, 64)
		if err != nil {
			return malformed
		}
		return request(api.MemoryRegionInfo{Addr: addr})
	case "qRcmd":
		cmd, err := hex.DecodeString(args)
		if err != nil {
			return malformed
		}
		return request(api.Monitor{Command: string(cmd)})
	case "qAttached":
		return fixed("1")
	}
	if strings.HasPrefix(name, "qRegisterInfo") {
		n, err := strconv.ParseUint(name[len("qRegisterInfo"):], 16, 32)
		if err != nil {
			return malformed
		}
		return request(api.RegisterInfo{Index: int(n)})
	}
	return fixed("")
}

// encode returns the payload of the reply packet, ok is false when no packet
// must be sent.
func encode(req api.Request, r api.Reply) (payload string, ok bool) {
	switch r.Kind {
	case api.ReplyOK:
		return "OK", true
	case api.ReplyError:
		return fmt.Sprintf("E%02x", r.Code), true
	case api.ReplyBytes:
		return hex.EncodeToString(r.Data), true
	case api.ReplyText:
		if _, isMonitor := req.(api.Monitor); isMonitor {
			if r.Text == "" {
				return "OK", true
			}
			return hex.EncodeToString([]byte(r.Text)), true
		}
		return r.Text, true
	case api.ReplyThreads:
		if len(r.Threads) == 0 {
			return "l", true
		}
		ids := make([]string, len(r.Threads))
		for i, id := range r.Threads {
			ids[i] = strconv.FormatInt(int64(id), 16)
		}
		return "m" + strings.Join(ids, ","), true
	case api.ReplyCurrentThread:
		return fmt.Sprintf("QC%x", r.Thread), true
	case api.ReplyStop:
		return fmt.Sprintf("S%02x", r.Signal), true
	case api.ReplyNone:
		return "", false
	}
	return "", true
}
