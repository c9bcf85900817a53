package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// MaxFrameSize is the largest response record accepted from the backend (10MB).
const MaxFrameSize = 10 * 1024 * 1024

// PipeConfig describes a backend worker process spoken to over stdin/stdout.
type PipeConfig struct {
	Command           string
	Args              []string
	Dir               string
	Env               []string // appended to the current environment
	StartupTimeout    time.Duration
	HandshakeAttempts int
	Logger            *slog.Logger
}

// PipeTransport exchanges line-delimited JSON with a child process.
type PipeTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	logger *slog.Logger

	mu sync.Mutex
	// stale counts responses still owed to calls that gave up. The worker
	// protocol carries no request ids, so this relies on the backend
	// answering every frame it reads, in order, exactly once.
	stale   int
	pending chan error // write left in flight by a call that gave up

	// readErr is written before lines is closed and read only after.
	readErr error

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// StartPipe spawns the backend process and blocks until it reports ready.
// A backend that reports an error or never becomes ready is fatal.
func StartPipe(ctx context.Context, cfg PipeConfig) (*PipeTransport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("backend command is required")
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 5 * time.Minute
	}
	if cfg.HandshakeAttempts <= 0 {
		cfg.HandshakeAttempts = 120
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Not CommandContext: the process outlives ctx and is reaped by Close.
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open backend stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open backend stdout: %w", err)
	}

	logger.Info("Starting inference backend", "command", cfg.Command, "args", cfg.Args)
	if err := cmd.Start(); err != nil {
		return nil, unavailable("failed to start backend", err)
	}

	p := &PipeTransport{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte, 16),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.readLoop(stdout)

	if err := p.handshake(ctx, cfg.StartupTimeout, cfg.HandshakeAttempts); err != nil {
		p.Close()
		return nil, err
	}
	logger.Info("Inference backend ready", "pid", cmd.Process.Pid)
	return p, nil
}

func (p *PipeTransport) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		select {
		case p.lines <- append([]byte(nil), line...):
		case <-p.done:
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	p.readErr = err
	close(p.lines)
}

func (p *PipeTransport) handshake(ctx context.Context, timeout time.Duration, attempts int) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return unavailable("backend exited during startup", p.readErr)
			}
			var status struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(line, &status); err != nil {
				p.logger.Debug("Ignoring non-status startup output", "line", truncate(string(line), 200))
				continue
			}
			switch {
			case status.Status == statusReady:
				return nil
			case status.Status == statusError:
				return &Error{Kind: KindBackend, Op: "handshake", Message: status.Message}
			case strings.HasPrefix(status.Status, "loading"):
				p.logger.Info("Inference backend loading", "status", status.Status, "attempt", attempt)
			default:
				p.logger.Debug("Unexpected startup status", "status", status.Status)
			}
		case <-deadline.C:
			return &Error{Kind: KindTimeout, Op: "handshake", Message: fmt.Sprintf("backend not ready after %s", timeout)}
		case <-ctx.Done():
			return &Error{Kind: KindTimeout, Op: "handshake", Message: "startup cancelled", Err: ctx.Err()}
		}
	}
	return &Error{Kind: KindUnavailable, Op: "handshake", Message: fmt.Sprintf("backend not ready after %d status lines", attempts)}
}

// RoundTrip writes frame and returns the next response that belongs to it.
// Responses to earlier calls that timed out are discarded first so the
// stream never pairs a request with someone else's answer. Both the write
// and the read give up when ctx ends.
func (p *PipeTransport) RoundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending != nil {
		select {
		case err := <-p.pending:
			p.pending = nil
			if err != nil {
				return nil, unavailable("failed to write request", err)
			}
		case <-ctx.Done():
			return nil, cancelled(ctx)
		}
	}

	written := make(chan error, 1)
	go func() {
		_, err := p.stdin.Write(frame)
		written <- err
	}()
	select {
	case err := <-written:
		if err != nil {
			return nil, unavailable("failed to write request", err)
		}
	case <-ctx.Done():
		// The frame may still land; its answer is then owed to nobody.
		p.pending = written
		p.stale++
		return nil, cancelled(ctx)
	}

	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return nil, unavailable("backend closed its output", p.readErr)
			}
			if p.stale > 0 {
				p.stale--
				p.logger.Warn("Discarding late backend response", "remaining", p.stale)
				continue
			}
			return line, nil
		case <-ctx.Done():
			p.stale++
			return nil, cancelled(ctx)
		}
	}
}

func cancelled(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "no response before deadline", Err: ctx.Err()}
	}
	return unavailable("call cancelled", ctx.Err())
}

// Close kills the backend process and waits for it to exit.
func (p *PipeTransport) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.stdin.Close()
		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.closeErr = fmt.Errorf("failed to kill backend: %w", err)
			}
		}
		p.cmd.Wait()
		p.logger.Info("Inference backend stopped")
	})
	return p.closeErr
}
