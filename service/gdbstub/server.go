// Package gdbstub serves a debug session to gdb compatible clients over the
// gdb remote serial protocol.
package gdbstub

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aiedbg/aiedbg/pkg/logflags"
	"github.com/aiedbg/aiedbg/service"
	"github.com/aiedbg/aiedbg/service/api"
	"github.com/aiedbg/aiedbg/service/session"
)

// Server accepts protocol clients and forwards their requests to a session
// backend. Clients are served one at a time.
type Server struct {
	config   *service.Config
	listener net.Listener
	backend  session.Backend

	stopChan chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	conn io.Closer

	log *logrus.Entry
}

// NewServer creates a server for backend listening on config.Listener.
func NewServer(config *service.Config, backend session.Backend) *Server {
	logger := logflags.GdbWireLogger()
	if config.Listener != nil {
		logger.Debugf("listening on %s", config.Listener.Addr())
	}
	return &Server{
		config:   config,
		listener: config.Listener,
		backend:  backend,
		stopChan: make(chan struct{}),
		log:      logger,
	}
}

var _ service.Server = (*Server)(nil)

// Run accepts clients until Stop is called or, unless config.AcceptMulti
// is set, the first client disconnects.
func (s *Server) Run() error {
	defer s.signalDisconnect()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopped() {
				return nil
			}
			return fmt.Errorf("accepting client connection: %w", err)
		}
		s.log.Debugf("client connected from %s", conn.RemoteAddr())
		s.setConn(conn)
		err = s.ServeConn(conn)
		s.setConn(nil)
		if err != nil && !s.stopped() {
			s.log.Errorf("client connection: %v", err)
		}
		if !s.config.AcceptMulti || s.stopped() {
			return nil
		}
	}
}

// Stop closes the listener and the client connection.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
	return err
}

func (s *Server) stopped() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

func (s *Server) setConn(c io.Closer) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

func (s *Server) signalDisconnect() {
	if s.config.DisconnectChan != nil {
		close(s.config.DisconnectChan)
		s.config.DisconnectChan = nil
	}
}

// ServeConn serves one client until it detaches or the connection ends.
func (s *Server) ServeConn(rw io.ReadWriteCloser) error {
	defer rw.Close()
	c := newConn(rw)

	events := make(chan event)
	errc := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			ev, err := c.readEvent()
			if err != nil {
				errc <- err
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	// waiting is set while the client waits for a stop reply.
	waiting := false
	for {
		select {
		case ev := <-events:
			switch ev.kind {
			case eventAck:
			case eventNack:
				if err := c.resend(); err != nil {
					return err
				}
			case eventInterrupt:
				s.backend.Handle(api.Interrupt{})
				waiting = true
			case eventPacket:
				if !c.valid(ev) {
					if err := c.sendack('-'); err != nil {
						return err
					}
					continue
				}
				if err := c.sendack('+'); err != nil {
					return err
				}
				stop, err := s.handlePacket(c, string(ev.payload), &waiting)
				if err != nil || stop {
					return err
				}
			}
		case r := <-s.backend.Stops():
			if !waiting {
				s.log.Debugf("discarding stop notification %v, the client is not waiting", r)
				continue
			}
			waiting = false
			payload, _ := encode(nil, r)
			if err := c.send(payload); err != nil {
				return err
			}
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				s.log.Debug("client disconnected")
				return nil
			}
			return err
		case <-s.stopChan:
			return nil
		}
	}
}

// handlePacket answers one packet. stop is true when the connection must
// end.
func (s *Server) handlePacket(c *conn, pkt string, waiting *bool) (stop bool, err error) {
	d := decode(pkt)
	switch d.action {
	case actionReply:
		return false, c.send(d.reply)
	case actionDetach:
		s.log.Debug("client detached")
		return true, c.send("OK")
	case actionKill:
		s.log.Debug("client killed the session")
		return true, nil
	}

	r := s.backend.Handle(d.req)
	if r.Kind == api.ReplyError {
		s.log.Debugf("%T failed: %v", d.req, r.Err)
	}
	payload, ok := encode(d.req, r)
	if !ok {
		*waiting = true
		return false, nil
	}
	if err := c.send(payload); err != nil {
		return false, err
	}
	if d.noAck && r.Kind == api.ReplyOK {
		c.ack = false
	}
	return false, nil
}
