// Package aie describes the processor cores of an AI-engine array as seen
// through the hardware debugger console: core descriptors, the register
// file and the text formats the console uses for both.
package aie

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the execution state of a core as reported by the console.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusRunning
	StatusSuspended
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}

// ParseStatus converts the status text printed in a target listing. The
// console decorates the state with a reason (e.g. "Suspended: Breakpoint"),
// only the leading word is significant.
func ParseStatus(s string) Status {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ": "); i >= 0 {
		s = s[:i]
	}
	switch strings.ToLower(s) {
	case "running":
		return StatusRunning
	case "suspended", "stopped":
		return StatusSuspended
	default:
		return StatusUnknown
	}
}

// Core describes one processor element of the array.
type Core struct {
	// Index is the target id assigned by the console.
	Index int
	Row   int
	Col   int
	// Status is updated when the core is stopped.
	Status Status
}

// Name returns the <row>_<col> name used for the core's program image.
func (c *Core) Name() string {
	return fmt.Sprintf("%d_%d", c.Row, c.Col)
}

func (c *Core) String() string {
	return fmt.Sprintf("%d: %d,%d => %s", c.Index, c.Row, c.Col, c.Status)
}

// ParseTarget parses one line of a target listing:
//
//	<index>[*]   [<row>,<col>] (<status>)
//
// The second return value reports whether the line is marked as the
// console's active target.
func ParseTarget(line string) (Core, bool, error) {
	var c Core
	s := strings.TrimSpace(line)

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return c, false, fmt.Errorf("malformed target line %q", line)
	}
	c.Index, _ = strconv.Atoi(s[:end])
	active := end < len(s) && s[end] == '*'

	open := strings.IndexByte(s, '[')
	comma := strings.IndexByte(s, ',')
	closeb := strings.IndexByte(s, ']')
	if open < 0 || comma < open || closeb < comma {
		return c, false, fmt.Errorf("malformed target line %q: missing coordinates", line)
	}
	var err error
	if c.Row, err = strconv.Atoi(strings.TrimSpace(s[open+1 : comma])); err != nil {
		return c, false, fmt.Errorf("malformed target line %q: bad row", line)
	}
	if c.Col, err = strconv.Atoi(strings.TrimSpace(s[comma+1 : closeb])); err != nil {
		return c, false, fmt.Errorf("malformed target line %q: bad column", line)
	}

	rest := s[closeb+1:]
	if lp, rp := strings.IndexByte(rest, '('), strings.LastIndexByte(rest, ')'); lp >= 0 && rp > lp {
		c.Status = ParseStatus(rest[lp+1 : rp])
	}
	return c, active, nil
}

// ParseTargets parses a target listing. Lines that do not describe a core
// are skipped. active is the position in cores of the line marked with '*',
// or -1.
func ParseTargets(lines []string) (cores []Core, active int) {
	active = -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c, isActive, err := ParseTarget(line)
		if err != nil {
			continue
		}
		if isActive {
			active = len(cores)
		}
		cores = append(cores, c)
	}
	return cores, active
}
