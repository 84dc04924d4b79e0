package cmds

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func writeConfig(t *testing.T, contents string) string {
	p := filepath.Join(t.TempDir(), "config.yml")
	if err := ioutil.WriteFile(p, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	cmd, _, err := root.Find([]string{name})
	if err != nil {
		t.Fatalf("could not find %s: %v", name, err)
	}
	return cmd
}

func TestLoadConfigFlags(t *testing.T) {
	p := writeConfig(t, "work-dir: proj\nmemory-cache-size: 0\nstop-poll: -1s\nvitis-dir: /from/config\n")
	serve := findCommand(t, New(), "serve")
	err := serve.ParseFlags([]string{"--config", p, "--backend", "sim", "--console", "xsdb -quiet"})
	if err != nil {
		t.Fatal(err)
	}
	c, err := loadConfig(serve, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Backend != "sim" || c.Console != "xsdb -quiet" {
		t.Errorf("flags not applied: backend %q console %q", c.Backend, c.Console)
	}
	if c.VitisDir != "/from/config" {
		t.Errorf("unset flag overrode vitis-dir: %q", c.VitisDir)
	}
	if !filepath.IsAbs(c.WorkDir) || filepath.Base(c.WorkDir) != "proj" {
		t.Errorf("work-dir not made absolute: %q", c.WorkDir)
	}

	sc := sessionConfig(c)
	if sc.MemoryCacheSize != 0 {
		t.Errorf("memory cache: got %d", sc.MemoryCacheSize)
	}
	if sc.StopPoll != 0 {
		t.Errorf("negative stop-poll must disable polling, got %v", sc.StopPoll)
	}
	if sc.Console.Command != "xsdb -quiet" || sc.Console.Dir != c.WorkDir {
		t.Errorf("unexpected console config %+v", sc.Console)
	}
	if sc.InitScript != "/from/config/scripts/vitis/util/aie_debug_init.tcl" {
		t.Errorf("init script: got %q", sc.InitScript)
	}
}

func TestLoadConfigWorkDirArgument(t *testing.T) {
	p := writeConfig(t, "work-dir: /from/config\nstop-poll: 20ms\n")
	cmd := findCommand(t, New(), "console")
	if err := cmd.ParseFlags([]string{"--config", p}); err != nil {
		t.Fatal(err)
	}
	wd := t.TempDir()
	c, err := loadConfig(cmd, []string{wd})
	if err != nil {
		t.Fatal(err)
	}
	if c.WorkDir != wd {
		t.Errorf("work-dir: got %q want %q", c.WorkDir, wd)
	}
	if sc := sessionConfig(c); sc.StopPoll != 20*time.Millisecond || sc.Backend != "console" {
		t.Errorf("unexpected session config %+v", sc)
	}
}

func TestHelpHidesFlags(t *testing.T) {
	for _, tc := range []struct {
		args   []string
		hidden []string
		shown  []string
	}{
		{[]string{"version", "--help"}, []string{"--listen", "--log"}, nil},
		{[]string{"console", "--help"}, []string{"--listen", "--backend"}, []string{"--init", "--log"}},
		{[]string{"serve", "--help"}, []string{"--init"}, []string{"--listen", "--backend"}},
	} {
		root := New()
		out := new(bytes.Buffer)
		root.SetOut(out)
		root.SetArgs(tc.args)
		if err := root.Execute(); err != nil {
			t.Fatal(err)
		}
		for _, flag := range tc.hidden {
			if strings.Contains(out.String(), flag+" ") {
				t.Errorf("%v: %s should be hidden:\n%s", tc.args, flag, out)
			}
		}
		for _, flag := range tc.shown {
			if !strings.Contains(out.String(), flag+" ") {
				t.Errorf("%v: %s should be shown:\n%s", tc.args, flag, out)
			}
		}
	}
}
