package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrServerRunning    = errors.New("server already running")
	ErrServerNotRunning = errors.New("server is not running")
)

// HealthChecker reports whether the server answers.
type HealthChecker func(ctx context.Context) error

type ServerOptions struct {
	Bin            string
	Args           []string
	Env            []string // appended to the current environment
	Output         io.Writer
	StartupTimeout time.Duration
	StopTimeout    time.Duration
	PollInterval   time.Duration
}

// ServerProcess runs the docchat server as a child process.
type ServerProcess struct {
	opts    ServerOptions
	healthy HealthChecker

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

func NewServerProcess(opts ServerOptions, healthy HealthChecker) *ServerProcess {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 15 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &ServerProcess{opts: opts, healthy: healthy}
}

func (p *ServerProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running()
}

func (p *ServerProcess) running() bool {
	if p.cmd == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Start launches the server and waits until it reports healthy. The process
// is killed if it does not become healthy within the startup timeout.
func (p *ServerProcess) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running() {
		p.mu.Unlock()
		return ErrServerRunning
	}

	cmd := exec.Command(p.opts.Bin, p.opts.Args...)
	cmd.Env = append(os.Environ(), p.opts.Env...)
	cmd.Stdout = p.opts.Output
	cmd.Stderr = p.opts.Output
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("start server %q failed: %w", p.opts.Bin, err)
	}
	exited := make(chan struct{})
	p.cmd, p.exited, p.err = cmd, exited, nil
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(exited)
	}()
	p.mu.Unlock()

	log.Info().Str("bin", p.opts.Bin).Int("pid", cmd.Process.Pid).Msg("server process started")

	if err := p.waitHealthy(ctx, exited); err != nil {
		_ = p.Stop()
		return err
	}
	return nil
}

func (p *ServerProcess) waitHealthy(ctx context.Context, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()
	for {
		if err := p.healthy(ctx); err == nil {
			return nil
		}
		select {
		case <-exited:
			p.mu.Lock()
			err := p.err
			p.mu.Unlock()
			return fmt.Errorf("server exited during startup: %v", err)
		case <-ctx.Done():
			return fmt.Errorf("server not healthy after %s: %w", p.opts.StartupTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop interrupts the server and kills it if it outlives the stop timeout.
func (p *ServerProcess) Stop() error {
	p.mu.Lock()
	if !p.running() {
		p.mu.Unlock()
		return ErrServerNotRunning
	}
	cmd, exited := p.cmd, p.exited
	p.mu.Unlock()

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-exited:
	case <-time.After(p.opts.StopTimeout):
		log.Warn().Int("pid", cmd.Process.Pid).Msg("server did not stop in time, killing")
		_ = cmd.Process.Kill()
		<-exited
	}
	log.Info().Int("pid", cmd.Process.Pid).Msg("server process stopped")
	return nil
}
