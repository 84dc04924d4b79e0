// Package terminal implements an interactive prompt that forwards commands
// to the hardware debugger console, with a few local commands of its own.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/derekparker/trie"

	"github.com/aiedbg/aiedbg/pkg/aie"
	"github.com/aiedbg/aiedbg/pkg/config"
	"github.com/aiedbg/aiedbg/pkg/console"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the local commands of the terminal. Everything else
// is sent to the console verbatim.
type Commands struct {
	cmds []command
	conf *config.Config
	// words holds the command names offered for completion.
	words *trie.Trie
}

// consoleCommands are the console commands offered for completion.
var consoleCommands = []string{
	"bpadd", "bplist", "bpremove", "bpr",
	"con", "connect", "init_aie_debug", "memmap",
	"mrd", "mwr", "rrd", "rwr", "source", "stop", "stp",
	"target", "targets", "version",
}

// ExitRequestError is returned by the exit command.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

// DebugCommands returns a Commands struct with the default commands defined.
func DebugCommands(conf *config.Config) *Commands {
	c := &Commands{conf: conf, words: trie.New()}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.
Commands that are not listed are sent to the console.`},
		{aliases: []string{"cores"}, cmdFn: c.cores, helpMsg: `Lists the processor cores visible to the console.

	cores

The active core is marked with '*'.`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the terminal.

The console is shut down on exit.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			c.words.Add(alias, nil)
		}
	}
	for _, name := range consoleCommands {
		c.words.Add(name, nil)
	}
	return c
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// Find will look up the command function for the given command input.
// Unknown commands are forwarded to the console.
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}
	return nil
}

// Call executes a command line.
func (c *Commands) Call(cmdstr string, t *Term) error {
	cmdstr = strings.TrimSpace(cmdstr)
	vals := strings.SplitN(cmdstr, " ", 2)
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	if fn := c.Find(vals[0]); fn != nil {
		return fn(t, args)
	}
	return forward(t, cmdstr)
}

// Complete returns the command names starting with the first word of line.
// Arguments are not completed.
func (c *Commands) Complete(line string) []string {
	if line == "" || strings.ContainsAny(line, " \t") {
		return nil
	}
	names := c.words.PrefixSearch(line)
	sort.Strings(names)
	return names
}

var errNoCmd = errors.New("command not available")

func nullCommand(t *Term, args string) error {
	return nil
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

func forward(t *Term, cmdstr string) error {
	resp, err := t.con.Send(cmdstr, false)
	t.print(resp)
	return err
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			if cmd.match(args) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 0, '-', 0)
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, "\nAny other input is sent to the console.")
	return nil
}

func (c *Commands) cores(t *Term, args string) error {
	resp, err := t.con.Send(fmt.Sprintf("targets -filter {name =~\"%s\"}", c.conf.CoreFilter), true)
	if err != nil {
		return err
	}
	cores, active := aie.ParseTargets(console.Lines(resp))
	if len(cores) == 0 {
		fmt.Fprintln(t.stdout, "No cores found.")
		return nil
	}
	for i := range cores {
		core := &cores[i]
		mark := " "
		if i == active {
			mark = "*"
		}
		color := ansiBlue
		if core.Status == aie.StatusRunning {
			color = ansiYellow
		}
		t.println(color, fmt.Sprintf("%s Thread %d ", mark, i+1), core.String())
	}
	return nil
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
