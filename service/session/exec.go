package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/aiedbg/aiedbg/pkg/aie"
)

var pcIndex, _ = aie.RegisterIndex("pc")

// step executes one instruction of the current core, optionally moving the
// pc to addr first.
func (s *Session) step(addr *uint64) error {
	if len(s.st.cores) == 0 {
		return ErrNoCores
	}
	if addr != nil {
		if err := s.setRegister(pcIndex, uint32(*addr)); err != nil {
			return err
		}
	}
	s.invalidateMemory()
	lines, err := s.send("stp", false)
	if err != nil {
		return err
	}
	if len(lines) > 0 && strings.Contains(lines[0], "Running") {
		return ExecError{Op: "stp", Reply: lines[0]}
	}
	s.running = false
	s.st.cores[s.st.current].Status = aie.StatusSuspended
	return nil
}

// cont resumes the current core, at addr if given. The console answers
// with a notice that the core is running.
func (s *Session) cont(addr *uint64) error {
	if len(s.st.cores) == 0 {
		return ErrNoCores
	}
	cmd := "con"
	if addr != nil {
		cmd = fmt.Sprintf("con -addr 0x%x", *addr)
	}
	s.invalidateMemory()
	lines, err := s.send(cmd, false)
	if err != nil {
		return err
	}
	if len(lines) > 0 && !strings.Contains(lines[0], "Running") {
		return ExecError{Op: "con", Reply: lines[0]}
	}
	s.st.cores[s.st.current].Status = aie.StatusRunning
	s.running = true
	s.startPolling()
	return nil
}

// stopCore stops the core at position i. The console needs a second stop
// when the first one prints anything. The returned error is a console
// failure, false means the console refused to stop the core.
func (s *Session) stopCore(i int) (bool, error) {
	core := &s.st.cores[i]
	lines, err := s.send(fmt.Sprintf("target %d", core.Index), false)
	if err != nil {
		return false, err
	}
	if len(lines) > 0 && strings.Contains(lines[0], "no target with id:") {
		return false, nil
	}

	if lines, err = s.stopCommand(); err != nil {
		return false, err
	}
	if len(lines) > 0 {
		if lines, err = s.stopCommand(); err != nil {
			return false, err
		}
	}
	if len(lines) > 0 && strings.Contains(lines[0], "Running") {
		return false, nil
	}
	core.Status = aie.StatusSuspended
	return true, nil
}

func (s *Session) stopCommand() ([]string, error) {
	lines, err := s.send("stop", false)
	if err != nil {
		return nil, err
	}
	if _, err := s.con.Purge(stopQuiet); err != nil {
		return nil, err
	}
	return lines, nil
}

// stopAll stops every core. Every core is attempted even after a failure
// so that each status reflects its own outcome.
func (s *Session) stopAll() error {
	s.invalidateMemory()
	var failed []int
	for i := range s.st.cores {
		ok, err := s.stopCore(i)
		if err != nil {
			s.log.Errorf("stopping %s: %v", &s.st.cores[i], err)
		}
		if !ok {
			failed = append(failed, i+1)
		}
	}
	s.running = false
	s.restoreTarget()
	if len(failed) > 0 {
		return StopError{Threads: failed}
	}
	return nil
}

// restoreTarget makes the current core the console's active target again.
func (s *Session) restoreTarget() {
	if len(s.st.cores) == 0 {
		return
	}
	if _, err := s.send(fmt.Sprintf("target %d", s.st.cores[s.st.current].Index), true); err != nil {
		s.log.Errorf("could not restore the active target: %v", err)
	}
}

// interrupt stops the current core and reports the stop to the client.
func (s *Session) interrupt() {
	s.running = false
	if len(s.st.cores) > 0 {
		s.invalidateMemory()
		ok, err := s.stopCore(s.st.current)
		switch {
		case err != nil:
			s.log.Errorf("interrupt: %v", err)
		case !ok:
			s.log.Errorf("interrupt: console refused to stop %s", &s.st.cores[s.st.current])
		}
	}
	s.notifyStop()
}

func (s *Session) startPolling() {
	if s.cfg.StopPoll <= 0 || s.polling {
		return
	}
	s.polling = true
	s.wg.Add(1)
	go s.pollStop()
}

// pollStop watches the current core after a continue and reports when it
// stops, for example on a breakpoint.
func (s *Session) pollStop() {
	defer s.wg.Done()
	t := time.NewTicker(s.cfg.StopPoll)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
		}
		s.mu.Lock()
		if !s.running {
			s.polling = false
			s.mu.Unlock()
			return
		}
		stopped, err := s.currentStopped()
		if err != nil || stopped {
			s.polling = false
			s.running = false
		}
		s.mu.Unlock()
		if err != nil {
			s.log.Errorf("polling core status: %v", err)
			return
		}
		if stopped {
			s.notifyStop()
			return
		}
	}
}

// currentStopped lists the cores and reports whether the current one is
// suspended.
func (s *Session) currentStopped() (bool, error) {
	cores, err := s.listCoresSilent()
	if err != nil {
		return false, err
	}
	cur := &s.st.cores[s.st.current]
	for _, c := range cores {
		if c.Index == cur.Index {
			cur.Status = c.Status
			if c.Status == aie.StatusSuspended {
				s.invalidateMemory()
				return true, nil
			}
		}
	}
	return false, nil
}
