package logflags

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	console, session, gdbWire, watch = false, false, false, false
	logOut = nil
}

func TestSetupWithoutLog(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Session() || Console() || GdbWire() || Watch() {
		t.Fatalf("no layer should be enabled without --log")
	}
	if err := Setup(false, "console", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected errLogstrWithoutLog, got %v", err)
	}
}

func TestSetupLayers(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "console,gdbwire", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Console() || !GdbWire() {
		t.Fatalf("expected console and gdbwire to be enabled")
	}
	if Session() || Watch() {
		t.Fatalf("session and watch should not be enabled")
	}
}

func TestSetupDefaultLayer(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Session() {
		t.Fatalf("expected session to be the default layer")
	}
}

func TestMakeLoggerLevel(t *testing.T) {
	defer resetFlags()
	l := makeLogger(false, logrus.Fields{"layer": "x"})
	if l.Logger.Level != logrus.ErrorLevel {
		t.Fatalf("expected ErrorLevel for disabled layer, got %v", l.Logger.Level)
	}
	l = makeLogger(true, logrus.Fields{"layer": "x"})
	if l.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected DebugLevel for enabled layer, got %v", l.Logger.Level)
	}
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	logger.Formatter = &textFormatter{}
	entry := logger.WithFields(logrus.Fields{"layer": "console"})
	entry.Time = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	out, err := (&textFormatter{}).Format(&logrus.Entry{Logger: logger, Data: entry.Data, Time: entry.Time, Level: logrus.InfoLevel, Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "2020-01-02T03:04:05Z info layer=console ") {
		t.Fatalf("unexpected prefix: %q", s)
	}
	if !strings.HasSuffix(s, "hello\n") {
		t.Fatalf("unexpected suffix: %q", s)
	}
}
