package service

// Server serves a debug session to remote clients.
type Server interface {
	Run() error
	Stop() error
}
