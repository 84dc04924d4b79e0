package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

const prompt = "xsdb% "

// fakeConsole answers every command line with the output of handle followed
// by the prompt.
type fakeConsole struct {
	cmdR *io.PipeReader
	outW *io.PipeWriter

	mu       sync.Mutex
	received []string
}

func newFakeConsole(t *testing.T, banner string, timeout time.Duration, handle func(f *fakeConsole, cmd string)) (*Console, *fakeConsole) {
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	f := &fakeConsole{cmdR: cmdR, outW: outW}
	go func() {
		io.WriteString(outW, banner+prompt)
		s := bufio.NewScanner(cmdR)
		for s.Scan() {
			line := s.Text()
			f.mu.Lock()
			f.received = append(f.received, line)
			f.mu.Unlock()
			handle(f, line)
		}
	}()
	c := newConsole(cmdW, outR, Config{Prompt: prompt, Timeout: timeout})
	t.Cleanup(func() {
		c.Close()
		cmdR.Close()
		outW.Close()
	})
	return c, f
}

func (f *fakeConsole) reply(s string) {
	io.WriteString(f.outW, s+prompt)
}

func echoHandler(f *fakeConsole, cmd string) {
	f.reply("echo:" + cmd + "\n")
}

func TestDrainBanner(t *testing.T) {
	c, _ := newFakeConsole(t, "****** Xilinx Software Debugger\n", time.Second, echoHandler)
	banner, err := c.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if banner != "****** Xilinx Software Debugger\n" {
		t.Fatalf("unexpected banner %q", banner)
	}
}

func TestSend(t *testing.T) {
	c, f := newFakeConsole(t, "", time.Second, echoHandler)
	if _, err := c.Drain(); err != nil {
		t.Fatal(err)
	}
	resp, err := c.Send("connect", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "echo:connect\n" {
		t.Fatalf("unexpected response %q", resp)
	}
	if lines := Lines(resp); len(lines) != 1 || lines[0] != "echo:connect" {
		t.Fatalf("unexpected lines %q", lines)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) != 1 || f.received[0] != "connect" {
		t.Fatalf("console received %q", f.received)
	}
}

func TestSendRejectsLineBreaks(t *testing.T) {
	c, f := newFakeConsole(t, "", time.Second, echoHandler)
	if _, err := c.Drain(); err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []string{"a\nb", "stp\r", "\ncon"} {
		if _, err := c.Send(cmd, false); !errors.Is(err, ErrMultiLine) {
			t.Fatalf("Send(%q): expected ErrMultiLine, got %v", cmd, err)
		}
	}
	// later requests still get their own response
	for _, cmd := range []string{"connect", "targets"} {
		resp, err := c.Send(cmd, false)
		if err != nil {
			t.Fatal(err)
		}
		if resp != "echo:"+cmd+"\n" {
			t.Fatalf("Send(%q) = %q", cmd, resp)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) != 2 || f.received[0] != "connect" || f.received[1] != "targets" {
		t.Fatalf("console received %q", f.received)
	}
}

func TestSendSerializesConcurrentRequests(t *testing.T) {
	c, _ := newFakeConsole(t, "", time.Second, echoHandler)
	if _, err := c.Drain(); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := fmt.Sprintf("mrd 0x%x 1", i)
			resp, err := c.Send(cmd, true)
			if err != nil {
				errs <- err
				return
			}
			if resp != "echo:"+cmd+"\n" {
				errs <- fmt.Errorf("request %q got response %q", cmd, resp)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestStaleOutputDiscarded(t *testing.T) {
	c, _ := newFakeConsole(t, "", time.Second, func(f *fakeConsole, cmd string) {
		if cmd == "con" {
			// the notification arrives after the prompt, in the same write
			io.WriteString(f.outW, "Info: core 0 Running\n"+prompt+"Info: core 0 Stopped at 0x4b0\n")
			return
		}
		echoHandler(f, cmd)
	})
	c.Drain()
	resp, err := c.Send("con", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "Info: core 0 Running\n" {
		t.Fatalf("unexpected response %q", resp)
	}
	resp, err = c.Send("rrd", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "echo:rrd\n" {
		t.Fatalf("stale output leaked into the response: %q", resp)
	}
}

func TestTimeoutResync(t *testing.T) {
	release := make(chan struct{})
	c, _ := newFakeConsole(t, "", 200*time.Millisecond, func(f *fakeConsole, cmd string) {
		if cmd == "slow" {
			<-release
			f.reply("late\n")
			return
		}
		echoHandler(f, cmd)
	})
	c.Drain()
	if _, err := c.Send("slow", false); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	close(release)
	resp, err := c.Send("next", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "echo:next\n" {
		t.Fatalf("late response was not discarded: %q", resp)
	}
}

func TestConsoleExited(t *testing.T) {
	c, _ := newFakeConsole(t, "", time.Second, func(f *fakeConsole, cmd string) {
		io.WriteString(f.outW, "bye\n")
		f.outW.Close()
	})
	c.Drain()
	resp, err := c.Send("exit-now", false)
	var exited *ExitedError
	if !errors.As(err, &exited) {
		t.Fatalf("expected ExitedError, got %v", err)
	}
	if resp != "bye\n" {
		t.Fatalf("expected the partial output, got %q", resp)
	}
}

func TestSendAfterClose(t *testing.T) {
	c, _ := newFakeConsole(t, "", time.Second, echoHandler)
	c.Drain()
	c.Close()
	if _, err := c.Send("rrd", false); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStripEcho(t *testing.T) {
	for _, tc := range []struct{ in, cmd, out string }{
		{"rrd\r\nr0: 0\r\n", "rrd", "r0: 0\r\n"},
		{"\r\nrrd\r\nr0: 0\r\n", "rrd", "r0: 0\r\n"},
		{"r0: 0\r\n", "rrd", "r0: 0\r\n"},
		{"stop", "stop", ""},
	} {
		if got := stripEcho(tc.in, tc.cmd); got != tc.out {
			t.Errorf("stripEcho(%q, %q) = %q, want %q", tc.in, tc.cmd, got, tc.out)
		}
	}
}

func TestLines(t *testing.T) {
	if Lines("") != nil {
		t.Errorf("empty response must have no lines")
	}
	got := Lines("0:   4A66980B\r\n4:   4003C003\r\n\r\n")
	if len(got) != 2 || got[0] != "0:   4A66980B" || got[1] != "4:   4003C003" {
		t.Errorf("unexpected lines %q", got)
	}
}

func TestSplitCommand(t *testing.T) {
	args, err := SplitCommand(`/opt/Xilinx/bin/xsdb -interactive "-eval" 'puts hi'`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/opt/Xilinx/bin/xsdb", "-interactive", "-eval", "puts hi"}
	if strings.Join(args, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", args, want)
	}
	if _, err := SplitCommand(""); err == nil {
		t.Fatalf("expected error for empty command line")
	}
}

func TestStartProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	script := `while read l; do [ "$l" = exit ] && exit 0; echo "got $l"; printf "xsdb%% "; done`
	c, err := Start(Config{
		Command: `sh -c 'echo banner; printf "xsdb%% "; ` + script + `'`,
		Prompt:  prompt,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	banner, err := c.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if banner != "banner\n" {
		t.Fatalf("unexpected banner %q", banner)
	}
	resp, err := c.Send("targets", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "got targets\n" {
		t.Fatalf("unexpected response %q", resp)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStartMissingExecutable(t *testing.T) {
	if _, err := Start(Config{Command: "/nonexistent/xsdb -interactive"}); err == nil {
		t.Fatal("expected launch failure")
	}
}

func TestPurge(t *testing.T) {
	c, _ := newFakeConsole(t, "", time.Second, func(f *fakeConsole, cmd string) {
		switch cmd {
		case "stop":
			io.WriteString(f.outW, prompt+"Info: core 0 (target 3) Stopped at 0x4b0\n")
		case "stop2":
			io.WriteString(f.outW, prompt+"Info: Stopped\n"+prompt)
		default:
			echoHandler(f, cmd)
		}
	})
	c.Drain()
	if resp, err := c.Send("stop", false); err != nil || resp != "" {
		t.Fatalf("stop: %q %v", resp, err)
	}
	text, err := c.Purge(50 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Info: core 0 (target 3) Stopped at 0x4b0\n" {
		t.Fatalf("unexpected purged text %q", text)
	}
	c.Send("stop2", false)
	if text, err := c.Purge(time.Second); err != nil || text != "Info: Stopped\n" {
		t.Fatalf("purge up to the prompt: %q %v", text, err)
	}
	if resp, err := c.Send("rrd", false); err != nil || resp != "echo:rrd\n" {
		t.Fatalf("rrd after purge: %q %v", resp, err)
	}
}
