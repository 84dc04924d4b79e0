package gdbstub

import (
	"bufio"
	"fmt"
	"net"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/aiedbg/aiedbg/service"
	"github.com/aiedbg/aiedbg/service/api"
	"github.com/aiedbg/aiedbg/service/session"
)

func addr(a uint64) *uint64 { return &a }

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		pkt  string
		want api.Request
	}{
		{"?", api.HaltReason{}},
		{"g", api.ReadRegisters{}},
		{"G0100000002000000", api.WriteRegisters{Data: []byte{1, 0, 0, 0, 2, 0, 0, 0}}},
		{"p1c", api.ReadRegister{Index: 28}},
		{"P10=b0040000", api.WriteRegister{Index: 16, Data: []byte{0xb0, 0x04, 0, 0}}},
		{"m400,8", api.ReadMemory{Addr: 0x400, Length: 8}},
		{"M1fffc,2:abcd", api.WriteMemory{Addr: 0x1fffc, Data: []byte{0xab, 0xcd}}},
		{"s", api.Step{}},
		{"s4c0", api.Step{Addr: addr(0x4c0)}},
		{"c", api.Continue{}},
		{"c400", api.Continue{Addr: addr(0x400)}},
		{"vCont;c", api.Continue{}},
		{"vCont;s:1;c", api.Step{}},
		{"Hc-1", api.SelectThread{Kind: api.ThreadExecution, ID: -1}},
		{"Hg2", api.SelectThread{Kind: api.ThreadRegisters, ID: 2}},
		{"Hm0", api.SelectThread{Kind: api.ThreadMemory, ID: 0}},
		{"Z0,1000,4", api.AddBreakpoint{Type: api.SoftwareBreakpoint, Addr: 0x1000, Kind: 4}},
		{"Z1,4b0,2;X1,0", api.AddBreakpoint{Type: api.HardwareBreakpoint, Addr: 0x4b0, Kind: 2}},
		{"z0,1000,4", api.RemoveBreakpoint{Type: api.SoftwareBreakpoint, Addr: 0x1000, Kind: 4}},
		{"qSupported:multiprocess+;swbreak+", api.QuerySupported{Features: []string{"multiprocess+", "swbreak+"}}},
		{"QStartNoAckMode", api.StartNoAck{}},
		{"QNonStop:0", api.NonStop{StopAll: true}},
		{"QNonStop:1", api.NonStop{StopAll: false}},
		{"qfThreadInfo", api.ThreadInfo{}},
		{"qC", api.CurrentThread{}},
		{"qRegisterInfo1a", api.RegisterInfo{Index: 26}},
		{"qHostInfo", api.HostInfo{}},
		{"qMemoryRegionInfo:400", api.MemoryRegionInfo{Addr: 0x400}},
		{"qRcmd,62706c", api.Monitor{Command: "bpl"}},
	} {
		d := decode(tc.pkt)
		if d.action != actionRequest {
			t.Errorf("%q: not decoded as a request (reply %q)", tc.pkt, d.reply)
			continue
		}
		if !reflect.DeepEqual(d.req, tc.want) {
			t.Errorf("%q: got %#v want %#v", tc.pkt, d.req, tc.want)
		}
	}
}

func TestDecodeFixedReplies(t *testing.T) {
	for _, tc := range []struct{ pkt, reply string }{
		{"qsThreadInfo", "l"},
		{"vMustReplyEmpty", ""},
		{"vCont?", "vCont;c;C;s;S"},
		{"qTStatus", ""},
		{"X400,0:", ""},
		{"Z9,1000,4", ""},
		{"m400", "E01"},
		{"M400,4:abcd", "E01"},
		{"pzz", "E01"},
		{"qRcmd,zz", "E01"},
	} {
		d := decode(tc.pkt)
		if d.action != actionReply || d.reply != tc.reply {
			t.Errorf("%q: got action %d reply %q, want %q", tc.pkt, d.action, d.reply, tc.reply)
		}
	}
	if d := decode("D"); d.action != actionDetach {
		t.Errorf("D is not a detach")
	}
	if d := decode("k"); d.action != actionKill {
		t.Errorf("k is not a kill")
	}
	if d := decode("QStartNoAckMode"); !d.noAck {
		t.Errorf("QStartNoAckMode does not disable acknowledgments")
	}
}

func TestEncode(t *testing.T) {
	for _, tc := range []struct {
		req  api.Request
		r    api.Reply
		want string
	}{
		{api.StartNoAck{}, api.OK(), "OK"},
		{api.ReadRegister{}, api.Error(api.ErrCodeBadAccessSize, nil), "E34"},
		{api.ReadRegister{}, api.Bytes([]byte{0xb0, 4, 0, 0}), "b0040000"},
		{api.ReadMemory{}, api.Text("4a66980b"), "4a66980b"},
		{api.ThreadInfo{}, api.Threads([]int{1, 2, 10}), "m1,2,a"},
		{api.ThreadInfo{}, api.Threads(nil), "l"},
		{api.CurrentThread{}, api.CurrentThreadID(12), "QCc"},
		{api.HaltReason{}, api.Stopped(api.SIGTRAP), "S05"},
		{api.Monitor{}, api.Text("ok\n"), "6f6b0a"},
		{api.Monitor{}, api.Text(""), "OK"},
		{api.Monitor{}, api.Unsupported(), ""},
	} {
		got, ok := encode(tc.req, tc.r)
		if !ok || got != tc.want {
			t.Errorf("encode(%T, %v) = %q, want %q", tc.req, tc.r, got, tc.want)
		}
	}
	if _, ok := encode(api.Continue{}, api.Deferred()); ok {
		t.Errorf("deferred replies must not be sent")
	}
}

func TestWireEncoding(t *testing.T) {
	pkt := appendEscaped(nil, "a$b#c}d*e")
	if string(pkt) != "a}\x04b}\x03c}]d}\x0ae" {
		t.Fatalf("unexpected escaped packet %q", pkt)
	}
	if got := wiredecode(pkt); string(got) != "a$b#c}d*e" {
		t.Fatalf("wiredecode(%q) = %q", pkt, got)
	}
	if !checksumok([]byte("OK"), []byte("9a")) {
		t.Fatal("bad checksum for OK")
	}
	if checksumok([]byte("OK"), []byte("00")) {
		t.Fatal("wrong checksum accepted")
	}
}

// fakeBackend records requests. Replies are looked up by request type, an
// interrupt produces a stop notification.
type fakeBackend struct {
	mu      sync.Mutex
	reqs    []api.Request
	replies map[string]api.Reply
	stops   chan api.Reply
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{replies: make(map[string]api.Reply), stops: make(chan api.Reply, 4)}
}

func (b *fakeBackend) Handle(req api.Request) api.Reply {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reqs = append(b.reqs, req)
	if r, ok := b.replies[fmt.Sprintf("%T", req)]; ok {
		return r
	}
	switch req.(type) {
	case api.Interrupt:
		b.stops <- api.Stopped(api.SIGTRAP)
		return api.Deferred()
	case api.Continue:
		return api.Deferred()
	}
	return api.OK()
}

func (b *fakeBackend) Stops() <-chan api.Reply { return b.stops }
func (b *fakeBackend) Close() error            { return nil }

func (b *fakeBackend) requests() []api.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Request(nil), b.reqs...)
}

type client struct {
	t    *testing.T
	conn net.Conn
	rdr  *bufio.Reader
	ack  bool
}

func newClient(t *testing.T, conn net.Conn) *client {
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	return &client{t: t, conn: conn, rdr: bufio.NewReader(conn), ack: true}
}

func (c *client) write(s string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(s)); err != nil {
		c.t.Fatal(err)
	}
}

func (c *client) send(payload string) {
	c.t.Helper()
	c.write(fmt.Sprintf("$%s#%02x", payload, checksum([]byte(payload))))
	if c.ack {
		c.expectByte('+')
	}
}

func (c *client) expectByte(want byte) {
	c.t.Helper()
	b, err := c.rdr.ReadByte()
	if err != nil {
		c.t.Fatal(err)
	}
	if b != want {
		c.t.Fatalf("expected %q, got %q", want, b)
	}
}

// recv reads one packet and acknowledges it.
func (c *client) recv() string {
	c.t.Helper()
	c.expectByte('$')
	s, err := c.rdr.ReadString('#')
	if err != nil {
		c.t.Fatal(err)
	}
	var sum [2]byte
	if _, err := c.rdr.Read(sum[:1]); err != nil {
		c.t.Fatal(err)
	}
	if _, err := c.rdr.Read(sum[1:]); err != nil {
		c.t.Fatal(err)
	}
	payload := s[:len(s)-1]
	if !checksumok([]byte(payload), sum[:]) {
		c.t.Fatalf("bad checksum %q for %q", sum, payload)
	}
	if c.ack {
		c.write("+")
	}
	return string(wiredecode([]byte(payload)))
}

func (c *client) exchange(payload, want string) {
	c.t.Helper()
	c.send(payload)
	if got := c.recv(); got != want {
		c.t.Fatalf("%s: got %q want %q", payload, got, want)
	}
}

func serveFake(t *testing.T, b session.Backend) (*client, chan error) {
	serverConn, clientConn := net.Pipe()
	s := NewServer(&service.Config{}, b)
	errc := make(chan error, 1)
	go func() {
		errc <- s.ServeConn(serverConn)
	}()
	t.Cleanup(func() { clientConn.Close() })
	return newClient(t, clientConn), errc
}

func TestServeConn(t *testing.T) {
	b := newFakeBackend()
	b.replies["api.QuerySupported"] = api.Text("QStartNoAckMode+;QNonStop+;hwbreak+")
	b.replies["api.ReadRegisters"] = api.Bytes([]byte{0, 0, 0, 0, 0, 0x60, 0x03, 0})
	c, errc := serveFake(t, b)

	c.exchange("qSupported:swbreak+", "QStartNoAckMode+;QNonStop+;hwbreak+")
	c.exchange("QStartNoAckMode", "OK")
	c.ack = false

	c.exchange("g", "0000000000600300")
	c.exchange("qsThreadInfo", "l")
	c.exchange("qXfer:features:read:target.xml:0,fff", "")

	c.send("c")
	c.write("\x03")
	if got := c.recv(); got != "S05" {
		t.Fatalf("expected a stop reply, got %q", got)
	}

	c.exchange("D", "OK")
	if err := <-errc; err != nil {
		t.Fatalf("ServeConn: %v", err)
	}

	reqs := b.requests()
	want := []api.Request{
		api.QuerySupported{Features: []string{"swbreak+"}},
		api.StartNoAck{},
		api.ReadRegisters{},
		api.Continue{},
		api.Interrupt{},
	}
	if !reflect.DeepEqual(reqs, want) {
		t.Fatalf("backend requests %#v, want %#v", reqs, want)
	}
}

func TestServeConnRejectsBadChecksum(t *testing.T) {
	b := newFakeBackend()
	c, _ := serveFake(t, b)
	c.write("$g#00")
	c.expectByte('-')
	c.exchange("qAttached", "1")
	if len(b.requests()) != 0 {
		t.Fatalf("a corrupted packet reached the backend: %v", b.requests())
	}
}

func TestServeConnRetransmits(t *testing.T) {
	b := newFakeBackend()
	c, _ := serveFake(t, b)
	c.send("qAttached")
	c.ack = false
	if got := c.recv(); got != "1" {
		t.Fatalf("unexpected reply %q", got)
	}
	c.write("-")
	if got := c.recv(); got != "1" {
		t.Fatalf("unexpected retransmission %q", got)
	}
}

func TestServeConnDropsUnexpectedStops(t *testing.T) {
	b := newFakeBackend()
	c, _ := serveFake(t, b)
	b.stops <- api.Stopped(api.SIGTRAP)
	c.exchange("qAttached", "1")
	c.exchange("Hg1", "OK")
}

func TestServeConnKill(t *testing.T) {
	b := newFakeBackend()
	c, errc := serveFake(t, b)
	c.send("k")
	select {
	case err := <-errc:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("connection not closed after kill")
	}
}

func TestServerWithSimulator(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	sim := session.NewSimulator(session.Config{SimTick: time.Millisecond, SimCycles: 10})
	defer sim.Close()
	disconnected := make(chan struct{})
	s := NewServer(&service.Config{Listener: listener, DisconnectChan: disconnected}, sim)
	go s.Run()
	defer s.Stop()

	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	c := newClient(t, conn)

	c.exchange("qfThreadInfo", "m1")
	c.exchange("qC", "QC1")
	c.exchange("P10=00040000", "OK")
	c.exchange("Z0,440,4", "OK")
	c.send("c")
	if got := c.recv(); got != "S05" {
		t.Fatalf("expected a stop at the breakpoint, got %q", got)
	}
	c.exchange("p10", "40040000")
	c.exchange("z0,440,4", "OK")
	c.exchange("z0,440,4", "E01")
	c.exchange("M1ffff,2:0102", "E34")
	c.exchange("D", "OK")

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not signal the disconnection")
	}
}
