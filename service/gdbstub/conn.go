package gdbstub

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/aiedbg/aiedbg/pkg/logflags"
)

const (
	interruptByte = 0x03
	// escapeXor is the value mandated by the protocol to escape characters.
	escapeXor byte = 0x20
	// gdbWireMaxLen is the maximum length of a packet written to the log.
	gdbWireMaxLen = 120
)

var hexdigit = []byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

// ErrTooManyAttempts is returned when the client keeps rejecting a packet.
var ErrTooManyAttempts = errors.New("too many transmit attempts")

// eventKind is what the client sent.
type eventKind uint8

const (
	eventPacket eventKind = iota
	eventInterrupt
	eventAck
	eventNack
)

type event struct {
	kind eventKind
	// payload is the decoded packet data of an eventPacket.
	payload []byte
	raw     []byte
	sum     [2]byte
}

// conn reads and writes protocol packets on a client connection.
type conn struct {
	rdr *bufio.Reader
	w   io.Writer
	// ack is true until the client disables acknowledgments.
	ack bool
	// last is the last packet sent, retransmitted when the client rejects
	// it.
	last     []byte
	attempts int

	maxTransmitAttempts int

	log *logrus.Entry
}

func newConn(rw io.ReadWriter) *conn {
	return &conn{
		rdr:                 bufio.NewReader(rw),
		w:                   rw,
		ack:                 true,
		maxTransmitAttempts: 3,
		log:                 logflags.GdbWireLogger(),
	}
}

// readEvent reads one packet, acknowledgment or interrupt from the client.
func (c *conn) readEvent() (event, error) {
	for {
		b, err := c.rdr.ReadByte()
		if err != nil {
			return event{}, err
		}
		switch b {
		case '+':
			return event{kind: eventAck}, nil
		case '-':
			return event{kind: eventNack}, nil
		case interruptByte:
			c.log.Debugf("-> ^C")
			return event{kind: eventInterrupt}, nil
		case '$':
			return c.readPacket()
		default:
			// garbage between packets
			c.log.Debugf("-> unexpected %q", b)
		}
	}
}

func (c *conn) readPacket() (event, error) {
	raw, err := c.rdr.ReadBytes('#')
	if err != nil {
		return event{}, err
	}
	var sum [2]byte
	if _, err := io.ReadFull(c.rdr, sum[:]); err != nil {
		return event{}, err
	}
	raw = raw[:len(raw)-1]
	if logflags.GdbWire() {
		if len(raw) > gdbWireMaxLen {
			c.log.Debugf("-> $%s...", raw[:gdbWireMaxLen])
		} else {
			c.log.Debugf("-> $%s#%s", raw, sum[:])
		}
	}
	return event{kind: eventPacket, payload: wiredecode(raw), raw: raw, sum: sum}, nil
}

// valid reports whether the checksum of a packet is correct. Checksums are
// not verified once acknowledgments are disabled.
func (c *conn) valid(ev event) bool {
	return !c.ack || checksumok(ev.raw, ev.sum[:])
}

// sendack writes an acknowledgment, c must be either '+' or '-'.
func (c *conn) sendack(b byte) error {
	if !c.ack {
		return nil
	}
	c.log.Debugf("<- %c", b)
	_, err := c.w.Write([]byte{b})
	return err
}

// send writes a packet with payload.
func (c *conn) send(payload string) error {
	pkt := make([]byte, 0, len(payload)+4)
	pkt = append(pkt, '$')
	pkt = appendEscaped(pkt, payload)
	sum := checksum(pkt[1:])
	pkt = append(pkt, '#', hexdigit[sum>>4], hexdigit[sum&0xf])
	c.last = pkt
	c.attempts = 0
	return c.write(pkt)
}

// resend retransmits the last packet after the client rejected it.
func (c *conn) resend() error {
	if c.last == nil {
		return nil
	}
	if c.attempts >= c.maxTransmitAttempts {
		return ErrTooManyAttempts
	}
	c.attempts++
	return c.write(c.last)
}

func (c *conn) write(pkt []byte) error {
	if logflags.GdbWire() {
		if len(pkt) > gdbWireMaxLen {
			c.log.Debugf("<- %s...", pkt[:gdbWireMaxLen])
		} else {
			c.log.Debugf("<- %s", pkt)
		}
	}
	_, err := c.w.Write(pkt)
	return err
}

// wiredecode removes the escapes from a packet body.
func wiredecode(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i] == '}' && i+1 < len(in) {
			out = append(out, in[i+1]^escapeXor)
			i++
			continue
		}
		out = append(out, in[i])
	}
	return out
}

func appendEscaped(out []byte, payload string) []byte {
	for i := 0; i < len(payload); i++ {
		switch ch := payload[i]; ch {
		case '$', '#', '}', '*':
			out = append(out, '}', ch^escapeXor)
		default:
			out = append(out, ch)
		}
	}
	return out
}

// checksumok checks that checksumBuf is the checksum of packet.
func checksumok(packet, checksumBuf []byte) bool {
	tgt, err := strconv.ParseUint(string(checksumBuf), 16, 8)
	if err != nil {
		return false
	}
	return checksum(packet) == uint8(tgt)
}

func checksum(packet []byte) (sum uint8) {
	for _, b := range packet {
		sum += b
	}
	return sum
}

func (e event) String() string {
	switch e.kind {
	case eventInterrupt:
		return "interrupt"
	case eventAck:
		return "ack"
	case eventNack:
		return "nack"
	}
	return fmt.Sprintf("packet %q", e.payload)
}
