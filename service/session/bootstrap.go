package session

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/aiedbg/aiedbg/pkg/aie"
)

var versionRx = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// bootstrap connects the console to the hardware server, discovers the
// cores, loads their program images and clears leftover breakpoints.
func (s *Session) bootstrap() error {
	banner, err := s.con.Drain()
	if err != nil {
		return fmt.Errorf("waiting for console prompt: %w", err)
	}
	if banner = strings.TrimSpace(banner); banner != "" {
		s.log.Info(banner)
	}

	if s.cfg.MinConsoleVersion != "" {
		s.checkVersion()
	}

	if _, err := s.send("connect", false); err != nil {
		return err
	}

	cores, err := s.listCores()
	if err != nil {
		return err
	}
	if len(cores) == 0 {
		s.log.Info("initializing core debugging")
		if cores, err = s.initCoreDebug(); err != nil {
			return err
		}
		if len(cores) == 0 {
			return ErrNoCores
		}
	}
	s.st.cores = cores
	s.st.regs = make([]aie.Registers, len(cores))

	s.log.Infof("found %d cores", len(cores))
	for i := range cores {
		s.log.Infof(" %s", &cores[i])
	}

	for i := range cores {
		if err := s.loadImage(&cores[i]); err != nil {
			return err
		}
	}

	s.st.current = 0
	if err := s.selectThread(1); err != nil {
		return err
	}

	if _, err := s.send("bpr -all", true); err != nil {
		return err
	}
	s.log.Info("debugger ready")
	return nil
}

// checkVersion warns when the console is older than cfg.MinConsoleVersion.
// Failures are logged only.
func (s *Session) checkVersion() {
	c, err := semver.NewConstraint(">= " + s.cfg.MinConsoleVersion)
	if err != nil {
		s.log.Warnf("invalid minimum console version %q: %v", s.cfg.MinConsoleVersion, err)
		return
	}
	lines, err := s.send("version", true)
	if err != nil {
		s.log.Warnf("could not get console version: %v", err)
		return
	}
	for _, line := range lines {
		m := versionRx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := semver.NewVersion(m[1])
		if err != nil {
			continue
		}
		if !c.Check(v) {
			s.log.Warnf("console version %s is older than %s, some commands may not work", v, s.cfg.MinConsoleVersion)
		} else {
			s.log.Debugf("console version %s", v)
		}
		return
	}
	s.log.Warnf("could not parse console version from %q", strings.Join(lines, " "))
}

func (s *Session) coreFilterCommand() string {
	return fmt.Sprintf(`targets -filter {name =~"%s"}`, s.cfg.CoreFilter)
}

// listCores lists the core targets visible to the console.
func (s *Session) listCores() ([]aie.Core, error) {
	cores, _, err := s.targets(false)
	return cores, err
}

func (s *Session) listCoresSilent() ([]aie.Core, error) {
	cores, _, err := s.targets(true)
	return cores, err
}

// targets lists the core targets and the position of the console's active
// target among them (-1 if none).
func (s *Session) targets(silent bool) ([]aie.Core, int, error) {
	lines, err := s.send(s.coreFilterCommand(), silent)
	if err != nil {
		return nil, -1, err
	}
	cores, active := aie.ParseTargets(lines)
	return cores, active, nil
}

// initCoreDebug runs the debug initialization script against the device
// and lists the cores again.
func (s *Session) initCoreDebug() ([]aie.Core, error) {
	cmds := []string{
		"source " + s.cfg.InitScript,
		fmt.Sprintf(`targets -set -nocase -filter {name =~"%s"}`, s.cfg.DeviceFilter),
		fmt.Sprintf("init_aie_debug -work-dir {%s} -use-current-target -name %s -jtag", s.cfg.WorkDir, s.cfg.InitName),
	}
	for _, cmd := range cmds {
		if _, err := s.send(cmd, true); err != nil {
			return nil, err
		}
	}
	return s.listCores()
}

// imagePath returns the program image of core.
func (s *Session) imagePath(core *aie.Core) string {
	name := core.Name()
	return filepath.Join(s.cfg.WorkDir, "aie", name, "Release", name)
}

// loadImage makes the console load the symbols of core's program image.
func (s *Session) loadImage(core *aie.Core) error {
	if _, err := s.send(fmt.Sprintf("target %d", core.Index), true); err != nil {
		return err
	}
	_, err := s.send("memmap -file "+s.imagePath(core), false)
	return err
}
