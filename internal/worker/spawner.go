package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

// ProcessSpawner starts the engine as a child process speaking the worker
// protocol on stdin and stdout. Stderr is forwarded to the logger.
type ProcessSpawner struct {
	Command string
	Args    []string
	Env     map[string]string
	WorkDir string
	Logger  *zap.Logger
}

// Spawn implements Spawner. The process is not bound to ctx; it lives until
// the returned worker is closed.
func (s *ProcessSpawner) Spawn(ctx context.Context) (Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Command == "" {
		return nil, &SpawnError{Err: errors.New("no worker command configured")}
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("command", s.Command))

	cmd := exec.Command(s.Command, s.Args...)
	cmd.Env = os.Environ()
	for k, v := range s.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = s.WorkDir

	stderr := &zapio.Writer{Log: logger.Named("stderr"), Level: zap.DebugLevel}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: s.Command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Command: s.Command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, &SpawnError{Command: s.Command, Err: err}
	}
	logger.Debug("worker process started", zap.Int("pid", cmd.Process.Pid))

	t := NewTransport(stdout, stdin, multiCloser{stdin, stdout}, logger)
	t.Start()

	stop := func(ctx context.Context) error {
		defer stderr.Close()

		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()

		select {
		case err := <-exited:
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return fmt.Errorf("worker exited: %w", err)
			}
			return err
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-exited
			return ctx.Err()
		}
	}

	return NewClient(t, stop, logger), nil
}

// InProcessSpawner serves an Engine on a goroutine connected to the client
// by in-memory pipes. Messages still go through the full JSON-RPC codec.
type InProcessSpawner struct {
	// NewEngine creates the engine for each spawned worker. If the engine
	// implements io.Closer it is closed when the worker stops.
	NewEngine func(ctx context.Context) (Engine, error)
	Logger    *zap.Logger
}

// Spawn implements Spawner.
func (s *InProcessSpawner) Spawn(ctx context.Context) (Worker, error) {
	if s.NewEngine == nil {
		return nil, &SpawnError{Command: "in-process", Err: errors.New("no engine constructor")}
	}
	engine, err := s.NewEngine(ctx)
	if err != nil {
		return nil, &SpawnError{Command: "in-process", Err: err}
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	served := make(chan error, 1)
	go func() {
		err := Serve(context.Background(), engine, serverR, serverW, logger.Named("server"))
		serverW.Close()
		serverR.Close()
		if c, ok := engine.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		served <- err
	}()

	t := NewTransport(clientR, clientW, multiCloser{clientW, clientR}, logger)
	t.Start()

	stop := func(ctx context.Context) error {
		select {
		case err := <-served:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return NewClient(t, stop, logger), nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
