// Package console drives the interactive hardware debugger console as a
// subprocess.
//
// The console reads one command per line on its standard input and answers
// with free form text terminated by its ready prompt. Responses carry no
// request identifier, so a response can only be associated with a request by
// position: Console therefore funnels every request through a single worker
// goroutine and never writes a command before the previous response has been
// read up to the prompt.
package console

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cosiner/argv"
	"github.com/sirupsen/logrus"

	"github.com/aiedbg/aiedbg/pkg/logflags"
)

var (
	// ErrClosed is returned by requests issued after Close.
	ErrClosed = errors.New("console closed")
	// ErrTimeout is returned when the console does not print its prompt
	// within the configured timeout.
	ErrTimeout = errors.New("timed out waiting for console prompt")
	// ErrMultiLine is returned for commands spanning more than one line,
	// the console would answer each line with its own prompt.
	ErrMultiLine = errors.New("console command contains a line break")
)

// ExitedError is returned when the console output ends before the prompt.
type ExitedError struct {
	Output string
	Err    error
}

func (e *ExitedError) Error() string {
	if e.Err != nil && e.Err != io.EOF {
		return fmt.Sprintf("console exited: %v", e.Err)
	}
	return "console exited"
}

func (e *ExitedError) Unwrap() error { return e.Err }

const (
	defaultPrompt  = "xsdb% "
	defaultTimeout = 30 * time.Second
	exitWait       = 2 * time.Second
	readChunk      = 4096
)

// Config describes how to start the console.
type Config struct {
	// Command is the console command line, e.g. "xsdb -interactive".
	Command string
	// Dir is the working directory of the console process.
	Dir string
	// Prompt is the ready prompt printed after every response.
	Prompt string
	// UsePTY runs the console in a pseudo-terminal instead of pipes.
	UsePTY bool
	// Timeout bounds the wait for each response.
	Timeout time.Duration
}

// Console is a running console subprocess.
type Console struct {
	cfg    Config
	prompt []byte
	echoes bool // the terminal echoes commands back

	cmd      *exec.Cmd
	w        io.Writer
	closers  []io.Closer
	waitDone chan error

	reqs       chan *request
	chunks     <-chan []byte
	readErr    error
	pending    []byte
	desync     bool
	done       chan struct{}
	workerDone chan struct{}
	closeOnce  sync.Once

	log *logrus.Entry
}

type request struct {
	cmd    string
	silent bool
	drain  bool
	quiet  time.Duration
	resp   chan result
}

type result struct {
	text string
	err  error
}

// SplitCommand splits a console command line into its arguments.
func SplitCommand(cmdline string) ([]string, error) {
	v, err := argv.Argv(cmdline,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 || len(v[0]) == 0 {
		return nil, fmt.Errorf("illegal console command line '%s'", cmdline)
	}
	return v[0], nil
}

// Start launches the console described by cfg.
func Start(cfg Config) (*Console, error) {
	args, err := SplitCommand(cfg.Command)
	if err != nil {
		return nil, err
	}
	path, err := exec.LookPath(args[0])
	if err != nil {
		return nil, fmt.Errorf("could not find console executable: %w", err)
	}
	cmd := exec.Command(path, args[1:]...)
	cmd.Dir = cfg.Dir

	var (
		w       io.Writer
		r       io.Reader
		closers []io.Closer
	)
	if cfg.UsePTY {
		tty, err := startPTY(cmd)
		if err != nil {
			return nil, fmt.Errorf("could not start console: %w", err)
		}
		w, r = tty, tty
		closers = append(closers, tty)
	} else {
		setProcAttr(cmd)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		// stdout and stderr share one stream so that error messages arrive
		// in order with the rest of the response.
		rfd, wfd, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		cmd.Stdout = wfd
		cmd.Stderr = wfd
		if err := cmd.Start(); err != nil {
			rfd.Close()
			wfd.Close()
			return nil, fmt.Errorf("could not start console: %w", err)
		}
		wfd.Close()
		w, r = stdin, rfd
		closers = append(closers, stdin, rfd)
	}

	c := newConsole(w, r, cfg)
	c.cmd = cmd
	c.closers = closers
	c.waitDone = make(chan error, 1)
	go func() {
		c.waitDone <- cmd.Wait()
	}()
	c.log.Debugf("started console %q (pid %d)", cfg.Command, cmd.Process.Pid)
	return c, nil
}

func newConsole(w io.Writer, r io.Reader, cfg Config) *Console {
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	chunks := make(chan []byte, 16)
	c := &Console{
		cfg:        cfg,
		prompt:     []byte(cfg.Prompt),
		echoes:     cfg.UsePTY,
		w:          w,
		reqs:       make(chan *request),
		chunks:     chunks,
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
		log:        logflags.ConsoleLogger(),
	}
	go c.read(r, chunks)
	go c.loop()
	return c
}

// Send writes command to the console and returns everything the console
// printed before its next prompt. An empty command writes nothing and only
// waits for the prompt. silent only changes how the command is traced.
func (c *Console) Send(command string, silent bool) (string, error) {
	if err := CheckCommand(command); err != nil {
		return "", err
	}
	return c.do(&request{cmd: command, silent: silent})
}

// CheckCommand returns ErrMultiLine if command can not be sent as a single
// console request.
func CheckCommand(command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return ErrMultiLine
	}
	return nil
}

// Drain waits for the console to print its prompt without sending anything
// and returns the text printed before it, e.g. the startup banner.
func (c *Console) Drain() (string, error) {
	return c.do(&request{drain: true})
}

// Purge collects output until the prompt is printed or no output arrives
// for the quiet period. Unlike Drain a missing prompt is not an error: the
// collected text is discarded output from a command that printed more than
// one response.
func (c *Console) Purge(quiet time.Duration) (string, error) {
	return c.do(&request{drain: true, quiet: quiet})
}

func (c *Console) do(req *request) (string, error) {
	req.resp = make(chan result, 1)
	select {
	case c.reqs <- req:
	case <-c.done:
		return "", ErrClosed
	}
	select {
	case r := <-req.resp:
		return r.text, r.err
	case <-c.done:
		return "", ErrClosed
	}
}

// read pumps the console output into chunks until the output ends.
func (c *Console) read(r io.Reader, chunks chan<- []byte) {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.readErr = err
			close(chunks)
			return
		}
	}
}

func (c *Console) loop() {
	defer close(c.workerDone)
	for {
		select {
		case req := <-c.reqs:
			text, err := c.serve(req)
			req.resp <- result{text, err}
		case <-c.done:
			return
		}
	}
}

func (c *Console) serve(req *request) (string, error) {
	if req.quiet > 0 {
		text, err := c.purge(req.quiet)
		if err == nil && text != "" {
			c.log.Debugf("purged %q", text)
		}
		return text, err
	}
	if req.drain || req.cmd == "" {
		text, err := c.readResponse()
		if err == nil && text != "" {
			c.log.Debugf("> %s", text)
		}
		return text, err
	}

	if c.desync {
		// the response to a timed out request may still be on its way,
		// consume it so that it is not mistaken for the next one.
		if stale, err := c.readResponse(); err != nil {
			return "", err
		} else if stale != "" {
			c.log.Debugf("discarding late response: %q", stale)
		}
	}
	c.discardStale()

	if req.silent {
		c.log.Debugf("%% %s", req.cmd)
	} else {
		c.log.Debugf("< %s", req.cmd)
	}
	if _, err := io.WriteString(c.w, req.cmd+"\n"); err != nil {
		return "", fmt.Errorf("writing to console: %w", err)
	}

	text, err := c.readResponse()
	if err != nil {
		return text, err
	}
	if c.echoes {
		text = stripEcho(text, req.cmd)
	}
	c.log.Debugf("> %s", text)
	return text, nil
}

// discardStale drops output that arrived after the last prompt without
// being requested, typically asynchronous notifications such as a core
// hitting a breakpoint.
func (c *Console) discardStale() {
drain:
	for c.chunks != nil {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				c.chunks = nil
				break drain
			}
			c.pending = append(c.pending, chunk...)
		default:
			break drain
		}
	}
	if len(bytes.TrimSpace(c.pending)) > 0 {
		c.log.Debugf("discarding stale output: %q", c.pending)
	}
	c.pending = c.pending[:0]
}

// readResponse accumulates output until the prompt is seen. Output after
// the prompt is kept for the next call.
func (c *Console) readResponse() (string, error) {
	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()
	for {
		if text, ok := c.takeResponse(); ok {
			return text, nil
		}
		if c.chunks == nil {
			text := string(c.pending)
			c.pending = c.pending[:0]
			return text, &ExitedError{Output: text, Err: c.readErr}
		}
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				c.chunks = nil
				continue
			}
			c.pending = append(c.pending, chunk...)
		case <-timer.C:
			c.desync = true
			return "", ErrTimeout
		case <-c.done:
			return "", ErrClosed
		}
	}
}

func (c *Console) purge(quiet time.Duration) (string, error) {
	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		if text, ok := c.takeResponse(); ok {
			return text, nil
		}
		if c.chunks == nil {
			text := string(c.pending)
			c.pending = c.pending[:0]
			return text, &ExitedError{Output: text, Err: c.readErr}
		}
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				c.chunks = nil
				continue
			}
			c.pending = append(c.pending, chunk...)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
		case <-timer.C:
			text := string(c.pending)
			c.pending = c.pending[:0]
			return text, nil
		case <-c.done:
			return "", ErrClosed
		}
	}
}

// takeResponse removes the text up to the first prompt from the pending
// output.
func (c *Console) takeResponse() (string, bool) {
	i := bytes.Index(c.pending, c.prompt)
	if i < 0 {
		return "", false
	}
	text := string(c.pending[:i])
	rest := c.pending[i+len(c.prompt):]
	c.pending = append(c.pending[:0], rest...)
	c.desync = false
	return text, true
}

func stripEcho(text, cmd string) string {
	t := strings.TrimLeft(text, "\r\n")
	if !strings.HasPrefix(t, cmd) {
		return text
	}
	t = t[len(cmd):]
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		return t[i+1:]
	}
	return strings.TrimLeft(t, "\r")
}

// Close asks the console to exit and releases its resources. If the console
// does not exit promptly its process group is terminated.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.workerDone
		if c.cmd != nil {
			io.WriteString(c.w, "exit\n")
			select {
			case <-c.waitDone:
			case <-time.After(exitWait):
				c.log.Debugf("console did not exit, terminating")
				err = terminate(c.cmd)
				select {
				case <-c.waitDone:
				case <-time.After(exitWait):
					c.cmd.Process.Kill()
				}
			}
		}
		for _, cl := range c.closers {
			cl.Close()
		}
	})
	return err
}

// Lines splits a response into lines, dropping carriage returns and
// trailing empty lines.
func Lines(resp string) []string {
	if resp == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(resp, "\r", ""), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
