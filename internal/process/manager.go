package process

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

// Mode selects how the node restarts itself.
type Mode string

const (
	// ModeExec replaces the running process image with a fresh one.
	ModeExec Mode = "exec"
	// ModeExit exits with ExitCodeRestart and leaves the restart to the
	// service supervisor (systemd Restart=on-failure).
	ModeExit Mode = "exit"
)

// ExitCodeRestart is EX_TEMPFAIL from sysexits.h.
const ExitCodeRestart = 75

const defaultGracefulTimeout = 5 * time.Second

// Config holds the restart configuration.
type Config struct {
	Mode Mode

	// Binary is the executable re-executed in ModeExec. Empty means the
	// running executable.
	Binary string

	// Args is the full argument vector, argv[0] included. Nil means os.Args.
	Args []string

	// Env is the environment. Nil means os.Environ().
	Env []string

	// BeforeRestart runs before the process is replaced, bounded by
	// GracefulTimeout. It is where open stores are flushed and closed.
	BeforeRestart func(ctx context.Context) error

	GracefulTimeout time.Duration
}

// Logger defines the logging interface for the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager performs the node's last-resort restart. It implements
// policy.Restarter.
type Manager struct {
	config Config
	logger Logger

	once sync.Once

	mu          sync.RWMutex
	restartedAt time.Time
	lastError   error

	exec func(argv0 string, argv []string, envv []string) error
	exit func(code int)
}

// NewManager creates a restart manager. An unknown mode behaves as ModeExit.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		exec:   syscall.Exec,
		exit:   os.Exit,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Restart flushes through BeforeRestart and replaces or ends the process.
// Only the first call does anything; it does not return in production.
func (m *Manager) Restart() {
	m.once.Do(m.restart)
}

func (m *Manager) restart() {
	m.mu.Lock()
	m.restartedAt = time.Now()
	m.mu.Unlock()

	m.logger.Error("restarting node", "mode", m.config.Mode)

	if m.config.BeforeRestart != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.GracefulTimeout)
		if err := m.config.BeforeRestart(ctx); err != nil {
			m.logger.Warn("shutdown before restart incomplete", "error", err)
		}
		cancel()
	}

	if m.config.Mode == ModeExec {
		if err := m.reexec(); err != nil {
			m.mu.Lock()
			m.lastError = err
			m.mu.Unlock()
			m.logger.Error("re-exec failed, exiting for supervisor", "error", err)
		}
	}

	m.exit(ExitCodeRestart)
}

func (m *Manager) reexec() error {
	binary := m.config.Binary
	if binary == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving executable: %w", err)
		}
		binary = self
	}
	args := m.config.Args
	if args == nil {
		args = os.Args
	}
	env := m.config.Env
	if env == nil {
		env = os.Environ()
	}

	m.logger.Info("re-executing", "binary", binary, "args", args)
	if err := m.exec(binary, args, env); err != nil {
		return fmt.Errorf("exec %s: %w", binary, err)
	}
	return nil
}

// Restarting reports whether Restart has been called.
func (m *Manager) Restarting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.restartedAt.IsZero()
}

// Stats describes the restart state.
type Stats struct {
	Mode        Mode      `json:"mode"`
	Restarting  bool      `json:"restarting"`
	RestartedAt time.Time `json:"restarted_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Stats returns the current restart state.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Mode:        m.config.Mode,
		Restarting:  !m.restartedAt.IsZero(),
		RestartedAt: m.restartedAt,
	}
	if m.lastError != nil {
		s.LastError = m.lastError.Error()
	}
	return s
}
