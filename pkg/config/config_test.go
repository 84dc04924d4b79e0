package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	if err := ioutil.WriteFile(p, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfigFileDefaults(t *testing.T) {
	os.Setenv(VitisEnv, "/opt/vitis")
	defer os.Unsetenv(VitisEnv)

	c, err := LoadConfigFile(writeConfig(t, "work-dir: /tmp/proj\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.WorkDir != "/tmp/proj" {
		t.Errorf("work-dir: got %q", c.WorkDir)
	}
	if c.Console != DefaultConsole || c.Prompt != DefaultPrompt {
		t.Errorf("unexpected defaults %q %q", c.Console, c.Prompt)
	}
	if c.VitisDir != "/opt/vitis" {
		t.Errorf("vitis-dir should come from the environment, got %q", c.VitisDir)
	}
	if c.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("command-timeout: got %v", c.CommandTimeout)
	}
	if c.MemoryCacheSize == nil || *c.MemoryCacheSize != DefaultMemoryCache {
		t.Errorf("memory-cache-size: got %v", c.MemoryCacheSize)
	}
	if c.Backend != DefaultBackend {
		t.Errorf("backend: got %q", c.Backend)
	}
	if c.StopPoll != DefaultStopPoll {
		t.Errorf("stop-poll: got %v", c.StopPoll)
	}
	if got, want := c.InitScriptPath(), "/opt/vitis/scripts/vitis/util/aie_debug_init.tcl"; got != want {
		t.Errorf("init script: got %q want %q", got, want)
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	c, err := LoadConfigFile(writeConfig(t, `
console: "/opt/xsdb -interactive -quiet"
vitis-dir: /v
prompt: "% "
command-timeout: 5s
memory-cache-size: 0
init-script: /custom/init.tcl
backend: sim
sim-cycles: 7
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Console != "/opt/xsdb -interactive -quiet" {
		t.Errorf("console: got %q", c.Console)
	}
	if c.CommandTimeout != 5*time.Second {
		t.Errorf("command-timeout: got %v", c.CommandTimeout)
	}
	if *c.MemoryCacheSize != 0 {
		t.Errorf("an explicit zero cache size must be preserved, got %d", *c.MemoryCacheSize)
	}
	if c.InitScriptPath() != "/custom/init.tcl" {
		t.Errorf("init script: got %q", c.InitScriptPath())
	}
	if c.Backend != "sim" || c.SimCycles != 7 || c.SimTick != DefaultSimTick {
		t.Errorf("sim options: %q %d %v", c.Backend, c.SimCycles, c.SimTick)
	}
}

func TestLoadConfigFileBad(t *testing.T) {
	if _, err := LoadConfigFile(writeConfig(t, "console: [unterminated\n")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected read error")
	}
}
