package comfy

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"comfyd/internal/config"
)

// stderrTailCap bounds the retained child stderr; exit diagnostics
// surface at most this many trailing bytes.
const stderrTailCap = 4096

// stderrTail keeps the last stderrTailCap bytes written to it. Reads
// happen only after cmd.Wait has returned, so no locking is needed.
type stderrTail struct{ buf []byte }

func (t *stderrTail) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailCap {
		t.buf = t.buf[len(t.buf)-stderrTailCap:]
	}
	return len(p), nil
}

func (t *stderrTail) String() string { return string(t.buf) }

type engineProc struct {
	cmd    *exec.Cmd
	stderr *stderrTail
	waitCh chan error // delivers cmd.Wait's result exactly once
}

// Supervisor owns the engine subprocess: spawn, readiness probing,
// crash detection, shutdown. One instance per daemon; every state
// transition happens under mu, so concurrent EnsureReady calls
// serialize instead of racing the spawn.
type Supervisor struct {
	cfg     config.EngineConfig
	log     zerolog.Logger
	baseURL string
	// Timeout stays 0; every probe carries its own context deadline.
	client *http.Client

	mu    sync.Mutex
	proc  *engineProc
	ready bool
}

// NewSupervisor builds a supervisor for the configured engine. With
// cfg.Managed false it never spawns anything and only probes BaseURL.
func NewSupervisor(cfg config.EngineConfig, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		log:     log.With().Str("component", "supervisor").Logger(),
		baseURL: cfg.BaseURL(),
		client:  &http.Client{Timeout: 0},
	}
}

// BaseURL is the engine endpoint this supervisor watches.
func (s *Supervisor) BaseURL() string { return s.baseURL }

// Ready reports whether the engine answered its last readiness check.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// EnsureReady is idempotent: it returns once the engine answers its
// status endpoint, spawning or respawning the process first when the
// supervisor manages one. A process observed dead drops the ready flag
// and is replaced.
func (s *Supervisor) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Managed {
		if s.ready && s.probe(ctx, time.Second) {
			return nil
		}
		return s.waitReadyLocked(ctx, nil)
	}

	if s.proc != nil {
		select {
		case werr := <-s.proc.waitCh:
			s.log.Warn().AnErr("wait", werr).Msg("engine process exited, respawning")
			s.proc = nil
			s.ready = false
		default:
		}
	}
	if s.proc != nil && s.ready {
		if s.probe(ctx, time.Second) {
			return nil
		}
		// Marked ready but unresponsive: tear down and start over.
		s.ready = false
		s.stopLocked()
	}
	if s.proc == nil {
		if err := s.spawnLocked(); err != nil {
			return err
		}
	}
	return s.waitReadyLocked(ctx, s.proc)
}

// spawnLocked starts the engine command with the configured listen
// arguments appended. Caller holds mu.
func (s *Supervisor) spawnLocked() error {
	argv := append(append([]string{}, s.cfg.Command...), "--port", strconv.Itoa(s.cfg.Port), "--listen", s.cfg.Host)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cfg.WorkDir
	tail := &stderrTail{}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	engineStartsTotal.Inc()
	s.log.Info().Int("pid", cmd.Process.Pid).Str("url", s.baseURL).Msg("engine process started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	s.proc = &engineProc{cmd: cmd, stderr: tail, waitCh: waitCh}
	return nil
}

// waitReadyLocked polls the status endpoint until it answers, the
// process dies, or the attempt budget runs out. proc is nil in
// unmanaged mode. Caller holds mu.
func (s *Supervisor) waitReadyLocked(ctx context.Context, proc *engineProc) error {
	s.ready = false
	for attempt := 0; attempt < s.cfg.ReadyAttempts; attempt++ {
		if proc != nil {
			select {
			case werr := <-proc.waitCh:
				tail := proc.stderr.String()
				s.proc = nil
				s.log.Error().AnErr("wait", werr).Msg("engine process died before ready")
				return engineExitedError{tail: tail}
			default:
			}
		}
		if s.probe(ctx, s.cfg.ProbeTimeout()) {
			s.ready = true
			s.log.Info().Int("attempts", attempt+1).Msg("engine ready")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReadyInterval()):
		}
	}
	// Budget exhausted. A managed child that never answered is killed
	// so the next ensure starts from a clean slate.
	if proc != nil {
		s.stopLocked()
	}
	return startTimeoutError{}
}

// probe reports whether the engine status endpoint answers 2xx within
// timeout.
func (s *Supervisor) probe(ctx context.Context, timeout time.Duration) bool {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, s.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Stop terminates a managed engine process if one is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.stopLocked()
}

// stopLocked sends SIGTERM, waits out the grace period on the watcher
// channel, then kills. Caller holds mu.
func (s *Supervisor) stopLocked() {
	p := s.proc
	s.proc = nil
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	grace := s.cfg.StopGrace()
	if grace <= 0 {
		grace = 2 * time.Second
	}
	select {
	case <-p.waitCh:
	case <-time.After(grace):
		_ = p.cmd.Process.Kill()
		<-p.waitCh
	}
	s.log.Info().Int("pid", p.cmd.Process.Pid).Msg("engine process stopped")
}
