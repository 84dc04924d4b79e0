package service

import "net"

// Config provides the configuration to expose a debug session with a
// service.
type Config struct {
	// Listener is used to serve requests.
	Listener net.Listener
	// AcceptMulti configures the server to accept another client after the
	// current one detaches. Clients are always served one at a time.
	AcceptMulti bool

	// DisconnectChan will be closed by the server when the client
	// disconnects and no more clients are accepted.
	DisconnectChan chan<- struct{}
}
