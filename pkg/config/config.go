package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".aiedbg"
	configFile string = "config.yml"
)

// Default values used for every option that is not set in the config file.
const (
	DefaultConsole        = "xsdb -interactive"
	DefaultPrompt         = "xsdb% "
	DefaultCoreFilter     = "core*"
	DefaultDeviceFilter   = "Versal*"
	DefaultInitName       = "AIEngine"
	DefaultCommandTimeout = 30 * time.Second
	DefaultMemoryCache    = 256
	DefaultBackend        = "console"
	DefaultSimTick        = 100 * time.Millisecond
	DefaultSimCycles      = 100
	DefaultStopPoll       = 250 * time.Millisecond

	// VitisEnv is the environment variable consulted when vitis-dir is not
	// configured.
	VitisEnv = "XILINX_VITIS"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Console is the command line used to start the hardware debugger
	// console, it is split into arguments using shell quoting rules.
	Console string `yaml:"console"`
	// WorkDir is the directory containing the per-core program images
	// (<work-dir>/aie/<row>_<col>/Release/<row>_<col>).
	WorkDir string `yaml:"work-dir"`
	// VitisDir is the root of the tool installation, used to locate the
	// debug initialization script. Defaults to $XILINX_VITIS.
	VitisDir string `yaml:"vitis-dir"`
	// Prompt is the ready prompt printed by the console after every
	// response.
	Prompt string `yaml:"prompt"`

	// CoreFilter is the name pattern used to list core targets.
	CoreFilter string `yaml:"core-filter"`
	// DeviceFilter is the name pattern used to select the device target
	// before initializing core debugging.
	DeviceFilter string `yaml:"device-filter"`
	// InitScript overrides the path of the debug initialization script.
	InitScript string `yaml:"init-script,omitempty"`
	// InitName is the name given to the core debug session during
	// initialization.
	InitName string `yaml:"init-name"`

	// UsePTY runs the console inside a pseudo-terminal.
	UsePTY bool `yaml:"use-pty"`
	// CommandTimeout is the maximum time to wait for a console response.
	CommandTimeout time.Duration `yaml:"command-timeout"`
	// MemoryCacheSize is the number of memory reads kept in the read cache,
	// zero disables caching.
	MemoryCacheSize *int `yaml:"memory-cache-size,omitempty"`
	// MinConsoleVersion, if set, is the oldest console release that is
	// expected to work (for example "2022.2").
	MinConsoleVersion string `yaml:"min-console-version,omitempty"`
	// WatchImages reloads a core's program image in the console when the
	// file changes on disk.
	WatchImages bool `yaml:"watch-images"`
	// StopPoll is the period at which a running core is polled for a stop
	// while the client waits for a stop reply. A negative value disables
	// polling, stops are then only reported after an interrupt.
	StopPoll time.Duration `yaml:"stop-poll"`

	// Backend selects the session backend: "console" or "sim".
	Backend string `yaml:"backend"`
	// SimTick is the period of the simulated backend's execution tick.
	SimTick time.Duration `yaml:"sim-tick"`
	// SimCycles is the number of cycles executed on every simulated tick.
	SimCycles int `yaml:"sim-cycles"`
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return Defaults(&Config{})
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return Defaults(&Config{})
	}

	if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
		if err := createDefaultConfig(fullConfigFile); err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return Defaults(&Config{})
		}
	}

	c, err := LoadConfigFile(fullConfigFile)
	if err != nil {
		fmt.Printf("%v.", err)
		return Defaults(&Config{})
	}
	return c
}

// LoadConfigFile reads and decodes the config file at path, filling in
// defaults for every option that is not set.
func LoadConfigFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config file: %v", err)
	}

	return Defaults(&c), nil
}

// Defaults fills in the default value of every unset option of c and
// returns it.
func Defaults(c *Config) *Config {
	if c.Console == "" {
		c.Console = DefaultConsole
	}
	if c.VitisDir == "" {
		c.VitisDir = os.Getenv(VitisEnv)
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	if c.CoreFilter == "" {
		c.CoreFilter = DefaultCoreFilter
	}
	if c.DeviceFilter == "" {
		c.DeviceFilter = DefaultDeviceFilter
	}
	if c.InitName == "" {
		c.InitName = DefaultInitName
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.MemoryCacheSize == nil {
		n := DefaultMemoryCache
		c.MemoryCacheSize = &n
	}
	if c.StopPoll == 0 {
		c.StopPoll = DefaultStopPoll
	}
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.SimTick <= 0 {
		c.SimTick = DefaultSimTick
	}
	if c.SimCycles <= 0 {
		c.SimCycles = DefaultSimCycles
	}
	return c
}

// InitScriptPath returns the debug initialization script to source when no
// core targets are visible.
func (c *Config) InitScriptPath() string {
	if c.InitScript != "" {
		return c.InitScript
	}
	if c.VitisDir == "" {
		return ""
	}
	return path.Join(c.VitisDir, "scripts", "vitis", "util", "aie_debug_init.tcl")
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %v", err)
	}
	defer f.Close()
	err = writeDefaultConfig(f)
	if err != nil {
		return fmt.Errorf("unable to write default configuration: %v", err)
	}
	return nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for aiedbg.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Command line used to start the hardware debugger console.
# console: "xsdb -interactive"

# Directory holding the per-core program images, laid out as
# <work-dir>/aie/<row>_<col>/Release/<row>_<col>.
# work-dir: /path/to/project

# Tool installation root, defaults to the XILINX_VITIS environment variable.
# vitis-dir: /tools/Xilinx/Vitis/2023.1

# Ready prompt printed by the console.
# prompt: "xsdb% "

# Target name filters used during discovery.
# core-filter: "core*"
# device-filter: "Versal*"

# Run the console inside a pseudo-terminal.
# use-pty: false

# Maximum time to wait for a console response.
# command-timeout: 30s

# Number of memory reads kept in the read cache (0 disables the cache).
# memory-cache-size: 256

# Warn when the console is older than this release.
# min-console-version: "2022.2"

# Reload a core's program image when it is rebuilt.
# watch-images: false

# Period at which a running core is polled for a stop, negative disables polling.
# stop-poll: 250ms

# Session backend, "console" or "sim".
# backend: console
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
