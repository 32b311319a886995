package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

type calls struct {
	execArgv0 string
	execArgv  []string
	execEnv   []string
	execs     int
	exitCode  int
	exits     int
	before    int
}

func newTestManager(cfg Config, execErr error) (*Manager, *calls) {
	c := &calls{exitCode: -1}
	m := NewManager(cfg)
	m.exec = func(argv0 string, argv []string, envv []string) error {
		c.execs++
		c.execArgv0, c.execArgv, c.execEnv = argv0, argv, envv
		return execErr
	}
	m.exit = func(code int) {
		c.exits++
		c.exitCode = code
	}
	return m, c
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Mode: ModeExit})

	if m.config.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, defaultGracefulTimeout)
	}
	if m.Restarting() {
		t.Error("Restarting() = true before Restart()")
	}
}

func TestRestart_Exit(t *testing.T) {
	m, c := newTestManager(Config{Mode: ModeExit}, nil)

	m.Restart()

	if c.execs != 0 {
		t.Errorf("execs = %d, want 0", c.execs)
	}
	if c.exits != 1 || c.exitCode != ExitCodeRestart {
		t.Errorf("exit = %d calls with code %d, want 1 with %d", c.exits, c.exitCode, ExitCodeRestart)
	}
	if !m.Restarting() {
		t.Error("Restarting() = false after Restart()")
	}
}

func TestRestart_Exec(t *testing.T) {
	cfg := Config{
		Mode:   ModeExec,
		Binary: "/usr/local/bin/sensornode",
		Args:   []string{"sensornode", "-config", "/etc/sensornode.yaml"},
		Env:    []string{"SENSORNODE_NODE_ID=n1"},
	}
	m, c := newTestManager(cfg, nil)

	m.Restart()

	if c.execs != 1 {
		t.Fatalf("execs = %d, want 1", c.execs)
	}
	if c.execArgv0 != cfg.Binary {
		t.Errorf("argv0 = %q, want %q", c.execArgv0, cfg.Binary)
	}
	if len(c.execArgv) != 3 || c.execArgv[2] != "/etc/sensornode.yaml" {
		t.Errorf("argv = %v, want %v", c.execArgv, cfg.Args)
	}
	if len(c.execEnv) != 1 {
		t.Errorf("env = %v, want %v", c.execEnv, cfg.Env)
	}
}

func TestRestart_ExecFailureFallsBackToExit(t *testing.T) {
	m, c := newTestManager(Config{Mode: ModeExec, Binary: "/nonexistent"}, errors.New("ENOENT"))

	m.Restart()

	if c.exits != 1 || c.exitCode != ExitCodeRestart {
		t.Errorf("exit = %d calls with code %d, want 1 with %d", c.exits, c.exitCode, ExitCodeRestart)
	}
	if s := m.Stats(); s.LastError == "" {
		t.Error("Stats().LastError empty after failed exec")
	}
}

func TestRestart_Once(t *testing.T) {
	m, c := newTestManager(Config{Mode: ModeExit}, nil)

	m.Restart()
	m.Restart()
	m.Restart()

	if c.exits != 1 {
		t.Errorf("exits = %d, want 1", c.exits)
	}
}

func TestRestart_BeforeRestart(t *testing.T) {
	var c *calls
	var hadDeadline bool
	cfg := Config{
		Mode:            ModeExit,
		GracefulTimeout: time.Second,
		BeforeRestart: func(ctx context.Context) error {
			_, hadDeadline = ctx.Deadline()
			c.before++
			if c.exits != 0 {
				t.Error("BeforeRestart ran after exit")
			}
			return errors.New("flush failed")
		},
	}
	var m *Manager
	m, c = newTestManager(cfg, nil)

	m.Restart()

	if c.before != 1 {
		t.Errorf("BeforeRestart calls = %d, want 1", c.before)
	}
	if !hadDeadline {
		t.Error("BeforeRestart context has no deadline")
	}
	if c.exits != 1 {
		t.Errorf("exits = %d, want 1 even when BeforeRestart fails", c.exits)
	}
}

func TestStats(t *testing.T) {
	m, _ := newTestManager(Config{Mode: ModeExec}, nil)

	s := m.Stats()
	if s.Mode != ModeExec || s.Restarting || !s.RestartedAt.IsZero() {
		t.Errorf("Stats() before restart = %+v", s)
	}

	m.Restart()

	s = m.Stats()
	if !s.Restarting || s.RestartedAt.IsZero() {
		t.Errorf("Stats() after restart = %+v", s)
	}
}
