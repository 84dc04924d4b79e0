package api

import "fmt"

// ReplyKind selects which fields of a Reply are meaningful.
type ReplyKind uint8

const (
	// ReplyOK reports success with no payload.
	ReplyOK ReplyKind = iota
	// ReplyError reports failure, Code holds the error number.
	ReplyError
	// ReplyBytes carries binary data in Data, sent hex encoded.
	ReplyBytes
	// ReplyText carries a preformatted payload in Text, sent verbatim.
	ReplyText
	// ReplyThreads carries the list of thread ids in Threads.
	ReplyThreads
	// ReplyCurrentThread carries the current thread id in Thread.
	ReplyCurrentThread
	// ReplyStop reports that the target stopped with Signal.
	ReplyStop
	// ReplyNone means the reply is deferred (e.g. continue, which is
	// answered by a later stop notification).
	ReplyNone
	// ReplyUnsupported reports an operation the backend doesn't implement.
	ReplyUnsupported
)

// Error numbers returned to the client.
const (
	ErrCodeInvalidArgument   uint8 = 0x01
	ErrCodeInvalidThread     uint8 = 0x02
	ErrCodeStopFailed        uint8 = 0x03
	ErrCodeExecution         uint8 = 0x04
	ErrCodeInvalidBreakpoint uint8 = 0x05
	ErrCodeBadAccessSize     uint8 = 0x34
	ErrCodeInternal          uint8 = 0xff
)

// SIGTRAP is the signal reported for every stop.
const SIGTRAP uint8 = 5

// Reply is the result of a Request.
type Reply struct {
	Kind    ReplyKind
	Code    uint8
	Data    []byte
	Text    string
	Threads []int
	Thread  int
	Signal  uint8
	// Err is the error that caused a ReplyError, it is not sent to the
	// client.
	Err error
}

// OK returns a plain success reply.
func OK() Reply { return Reply{Kind: ReplyOK} }

// Bytes returns a reply carrying raw data, hex encoded on the wire.
func Bytes(data []byte) Reply { return Reply{Kind: ReplyBytes, Data: data} }

// Text returns a reply sent to the client verbatim.
func Text(s string) Reply { return Reply{Kind: ReplyText, Text: s} }

// Threads returns a thread list reply.
func Threads(ids []int) Reply { return Reply{Kind: ReplyThreads, Threads: ids} }

// CurrentThreadID returns the reply to a current thread query.
func CurrentThreadID(id int) Reply { return Reply{Kind: ReplyCurrentThread, Thread: id} }

// Stopped returns a stop reply for signal.
func Stopped(signal uint8) Reply { return Reply{Kind: ReplyStop, Signal: signal} }

// Deferred returns a reply that is not sent now, the stop reply follows
// once the target stops.
func Deferred() Reply { return Reply{Kind: ReplyNone} }

// Unsupported returns the empty reply for requests the backend does not implement.
func Unsupported() Reply { return Reply{Kind: ReplyUnsupported} }

// Error returns an error reply with the given code.
func Error(code uint8, err error) Reply { return Reply{Kind: ReplyError, Code: code, Err: err} }

func (r Reply) String() string {
	switch r.Kind {
	case ReplyOK:
		return "OK"
	case ReplyError:
		return fmt.Sprintf("E%02x (%v)", r.Code, r.Err)
	case ReplyBytes:
		return fmt.Sprintf("%x", r.Data)
	case ReplyText:
		return r.Text
	case ReplyThreads:
		return fmt.Sprintf("threads %v", r.Threads)
	case ReplyCurrentThread:
		return fmt.Sprintf("thread %d", r.Thread)
	case ReplyStop:
		return fmt.Sprintf("S%02x", r.Signal)
	case ReplyNone:
		return "deferred"
	}
	return "unsupported"
}
