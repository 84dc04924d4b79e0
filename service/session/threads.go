package session

import (
	"fmt"
	"strings"

	"github.com/aiedbg/aiedbg/pkg/console"
)

// selectThread makes the core with protocol thread id the current thread.
// Thread ids are 1-based, 0 and -1 mean any thread and leave the current
// thread unchanged.
func (s *Session) selectThread(id int) error {
	if id <= 0 {
		return nil
	}
	i := id - 1
	if i >= len(s.st.cores) {
		return ThreadIDError{ID: id}
	}
	lines, err := s.send(fmt.Sprintf("target %d", s.st.cores[i].Index), true)
	if err != nil {
		return err
	}
	if len(lines) > 0 && strings.Contains(lines[0], "no target with id:") {
		return ThreadIDError{ID: id}
	}
	s.st.current = i
	return nil
}

func (s *Session) threadInfo() []int {
	ids := make([]int, len(s.st.cores))
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

// currentThread adopts the console's active target as the current thread,
// if it is one of the cores, and returns its thread id.
func (s *Session) currentThread() (int, error) {
	cores, active, err := s.targets(true)
	if err != nil {
		return 0, err
	}
	if active >= 0 {
		index := cores[active].Index
		for i := range s.st.cores {
			if s.st.cores[i].Index == index {
				s.st.current = i
				break
			}
		}
	}
	return s.st.current + 1, nil
}

// monitor passes command to the console and returns its output.
func (s *Session) monitor(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", nil
	}
	if err := console.CheckCommand(command); err != nil {
		return "", err
	}
	resp, err := s.con.Send(command, false)
	if err != nil {
		return "", err
	}
	s.invalidateMemory()
	return resp, nil
}
