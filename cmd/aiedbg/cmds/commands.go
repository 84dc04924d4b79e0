package cmds

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aiedbg/aiedbg/cmd/aiedbg/cmds/helphelpers"
	"github.com/aiedbg/aiedbg/pkg/config"
	"github.com/aiedbg/aiedbg/pkg/console"
	"github.com/aiedbg/aiedbg/pkg/logflags"
	"github.com/aiedbg/aiedbg/pkg/terminal"
	"github.com/aiedbg/aiedbg/pkg/version"
	"github.com/aiedbg/aiedbg/service"
	"github.com/aiedbg/aiedbg/service/gdbstub"
	"github.com/aiedbg/aiedbg/service/session"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// addr is the gdb server listen address.
	addr string
	// acceptMulti allows clients to reconnect after detaching.
	acceptMulti bool
	// configFile replaces the default config file.
	configFile string
	// initFile is the path to initialization file.
	initFile string

	// backend selection
	backend string
	// consoleLine is the console command line.
	consoleLine string
	// vitisDir is the tool installation root.
	vitisDir string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const aiedbgCommandLongDesc = `aiedbg is a gdb server for AI-engine processor arrays.

It drives the hardware debugger console and exposes every processor core of
the array as a thread of a gdb remote serial protocol target, so that gdb or
lldb can set breakpoints, step, inspect registers and memory of a core.

Program images are expected under the work directory, laid out as
<work-dir>/aie/<row>_<col>/Release/<row>_<col>.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main aiedbg root command.
	rootCommand = &cobra.Command{
		Use:   "aiedbg",
		Short: "aiedbg is a gdb server for AI-engine processor arrays.",
		Long:  aiedbgCommandLongDesc,
	}

	rootCommand.PersistentFlags().StringVarP(&addr, "listen", "l", "localhost:2424", "gdb server listen address.")

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugging server logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'aiedbg help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'aiedbg help log').")

	rootCommand.PersistentFlags().BoolVarP(&acceptMulti, "accept-multiclient", "", false, "Keep serving after a client detaches.")
	rootCommand.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file to use instead of the default one.")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.PersistentFlags().StringVar(&backend, "backend", config.DefaultBackend, `Backend selection (see 'aiedbg help backend').`)
	rootCommand.PersistentFlags().StringVar(&consoleLine, "console", "", "Hardware debugger console command line.")
	rootCommand.PersistentFlags().StringVar(&vitisDir, "vitis-dir", "", "Tool installation root, used to locate the debug initialization script.")

	defaultUsage := rootCommand.UsageFunc()
	rootCommand.SetUsageFunc(func(cmd *cobra.Command) error {
		helphelpers.Prepare(cmd)
		return defaultUsage(cmd)
	})

	// 'serve' subcommand.
	serveCommand := &cobra.Command{
		Use:   "serve [work-dir]",
		Short: "Start a gdb server for the processor array.",
		Long: `Starts the hardware debugger console, discovers the processor cores, loads
their program images and waits for a gdb client on the listen address.

Connect from gdb with:

	target extended-remote localhost:2424

The work directory can also be set with the work-dir option of the
configuration file.`,
		Args: cobra.MaximumNArgs(1),
		Run:  serveCmd,
	}
	rootCommand.AddCommand(serveCommand)

	// 'console' subcommand.
	consoleCommand := &cobra.Command{
		Use:   "console [work-dir]",
		Short: "Open an interactive hardware debugger console.",
		Long: `Starts the hardware debugger console and forwards every line typed at the
prompt to it. Type 'help' at the prompt for the local commands.`,
		Args: cobra.MaximumNArgs(1),
		Run:  consoleCmd,
	}
	rootCommand.AddCommand(consoleCommand)

	// 'version' subcommand.
	var versionVerbose = false
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aiedbg\n%s\n", version.AiedbgVersion)
			if versionVerbose {
				fmt.Printf("Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "backend",
		Short: "Help about the --backend flag.",
		Long: `The --backend flag specifies which backend should be used, possible values
are:

	console		Drives the hardware debugger console (default).
	sim		Simulated single core, no hardware required.

`})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	console		Log every command sent to the console and its response
	session		Log session bootstrap and execution control (default)
	gdbwire		Log every packet exchanged with the gdb client
	watch		Log program image reloads

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// loadConfig returns the configuration for cmd: the config file overridden
// by the work-dir argument and the command line flags.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	c := conf
	if configFile != "" {
		var err error
		c, err = config.LoadConfigFile(configFile)
		if err != nil {
			return nil, err
		}
	}
	if c == nil {
		c = config.Defaults(&config.Config{})
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		c.Backend = backend
	}
	if flags.Changed("console") {
		c.Console = consoleLine
	}
	if flags.Changed("vitis-dir") {
		c.VitisDir = vitisDir
	}
	if len(args) > 0 {
		c.WorkDir = args[0]
	}
	if c.WorkDir != "" {
		wd, err := filepath.Abs(c.WorkDir)
		if err != nil {
			return nil, err
		}
		c.WorkDir = wd
	}
	return c, nil
}

// sessionConfig converts the user configuration into a session
// configuration.
func sessionConfig(c *config.Config) session.Config {
	cacheSize := 0
	if c.MemoryCacheSize != nil {
		cacheSize = *c.MemoryCacheSize
	}
	stopPoll := c.StopPoll
	if stopPoll < 0 {
		stopPoll = 0
	}
	return session.Config{
		Console: console.Config{
			Command: c.Console,
			Dir:     c.WorkDir,
			Prompt:  c.Prompt,
			UsePTY:  c.UsePTY,
			Timeout: c.CommandTimeout,
		},
		WorkDir:           c.WorkDir,
		InitScript:        c.InitScriptPath(),
		CoreFilter:        c.CoreFilter,
		DeviceFilter:      c.DeviceFilter,
		InitName:          c.InitName,
		MinConsoleVersion: c.MinConsoleVersion,
		MemoryCacheSize:   cacheSize,
		WatchImages:       c.WatchImages,
		StopPoll:          stopPoll,
		Backend:           c.Backend,
		SimTick:           c.SimTick,
		SimCycles:         c.SimCycles,
	}
}

func serveCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		c, err := loadConfig(cmd, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}

		if initFile != "" {
			fmt.Fprint(os.Stderr, "Warning: init file ignored with serve\n")
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			fmt.Printf("couldn't start listener: %s\n", err)
			return 1
		}
		defer listener.Close()

		b, err := session.Open(sessionConfig(c))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not start the debug session: %v\n", err)
			return 1
		}
		defer b.Close()

		if s, ok := b.(*session.Session); ok {
			for _, core := range s.Cores() {
				fmt.Printf("core %s image %s\n", core.String(), core.Name())
			}
		}

		disconnectChan := make(chan struct{})
		server := gdbstub.NewServer(&service.Config{
			Listener:       listener,
			AcceptMulti:    acceptMulti,
			DisconnectChan: disconnectChan,
		}, b)

		errc := make(chan error, 1)
		go func() {
			errc <- server.Run()
		}()
		fmt.Printf("gdb server listening at: %s\n", listener.Addr())

		waitForDisconnectSignal(disconnectChan)
		if err := server.Stop(); err != nil {
			fmt.Println(err)
		}
		if err := <-errc; err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}()
	os.Exit(status)
}

func consoleCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		c, err := loadConfig(cmd, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}

		con, err := console.Start(sessionConfig(c).Console)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not start the console: %v\n", err)
			return 1
		}
		defer con.Close()

		banner, err := con.Drain()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if banner != "" {
			fmt.Println(banner)
		}

		term := terminal.New(con, c)
		term.InitFile = initFile
		status, err := term.Run()
		if err != nil {
			fmt.Println(err)
		}
		return status
	}()
	os.Exit(status)
}

// waitForDisconnectSignal is a blocking function that waits for either
// a SIGINT (Ctrl-C) signal from the OS or for disconnectChan to be closed
// by the server when the client disconnects.
func waitForDisconnectSignal(disconnectChan chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	if runtime.GOOS == "windows" {
		// Ctrl-C is delivered to every process attached to the console,
		// including the hardware debugger console.
		<-disconnectChan
		return
	}
	select {
	case <-ch:
	case <-disconnectChan:
	}
}
