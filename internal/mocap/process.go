package mocap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5
)

// Handler interface defines the methods required for running a capture helper
// process and decoding its output
type Handler interface {
	Cmd(ctx context.Context) *exec.Cmd
	Parse(line string) (Sample, error)
	Name() string
}

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(p *ProcessSource) {
	return func(p *ProcessSource) {
		p.logger = logger.With(slog.String("source", p.handler.Name()))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(p *ProcessSource) {
	return func(p *ProcessSource) {
		p.parseErrorsThreshold = threshold
	}
}

// ProcessSource reads capture frames printed by a helper process, one frame
// per line. Only the newest unread frame is kept; older unread frames are
// dropped because the bridge always wants the latest pose.
type ProcessSource struct {
	handler Handler

	latest  chan Sample
	stopped chan struct{}
	err     error // valid once stopped is closed

	started   atomic.Bool // never cleared, a source runs once
	isRunning atomic.Bool
	dropped   atomic.Uint64
	cancel    context.CancelFunc

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewProcessSource creates a new ProcessSource instance with a discard logger
func NewProcessSource(h Handler, options ...func(p *ProcessSource)) *ProcessSource {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	p := ProcessSource{
		handler:              h,
		latest:               make(chan Sample, 1),
		stopped:              make(chan struct{}),
		logger:               logger,
		parseErrorsThreshold: ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Start launches the helper process and begins collecting frames. The
// process is killed when ctx is cancelled or Close is called.
func (p *ProcessSource) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	p.isRunning.Store(true)

	ctx, p.cancel = context.WithCancel(ctx)
	cmd := p.handler.Cmd(ctx)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.fail(fmt.Errorf("error creating stdout pipe: %w", err))
		return p.err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		p.fail(fmt.Errorf("error creating stderr pipe: %w", err))
		return p.err
	}

	if err = cmd.Start(); err != nil {
		p.fail(fmt.Errorf("error starting command: %w", err))
		return p.err
	}

	go func() {
		p.logger.Info("starting frame collection...")

		done := make(chan error, 3) // expects three results from three goroutines

		var readers sync.WaitGroup
		readers.Add(2)

		go func() {
			defer readers.Done()
			p.handleStdout(stdout, done)
		}()
		go func() {
			defer readers.Done()
			p.handleStderr(stderr, done)
		}()
		go p.handleCmdWait(ctx, cmd, &readers, done)

		var errs []error
		for i := 0; i < cap(done); i++ {
			if err := <-done; err != nil {
				p.cancel() // cancel context on error
				p.logger.Error(err.Error())

				errs = append(errs, err)
			}
		}

		p.logger.Info("frame collection stopped", slog.Uint64("dropped", p.dropped.Load()))

		p.isRunning.Store(false)
		p.fail(errors.Join(errs...))
	}()

	return nil
}

func (p *ProcessSource) fail(err error) {
	if p.cancel != nil {
		p.cancel()
	}
	p.err = err
	p.isRunning.Store(false)
	close(p.stopped)
}

// Poll returns the newest unread frame. It returns ErrPending when no new
// frame has arrived, and the collection error, or ErrSourceClosed, once the
// helper process is gone.
func (p *ProcessSource) Poll() (Sample, error) {
	select {
	case s := <-p.latest:
		return s, nil
	default:
	}

	select {
	case <-p.stopped:
		if p.err != nil {
			return Sample{}, p.err
		}
		return Sample{}, ErrSourceClosed
	default:
		return Sample{}, ErrPending
	}
}

// Close stops the helper process and waits for collection to finish
func (p *ProcessSource) Close() error {
	if p.cancel == nil {
		return nil // never started
	}

	p.cancel()
	<-p.stopped
	return nil
}

// IsRunning returns true if the helper process is running
func (p *ProcessSource) IsRunning() bool {
	return p.isRunning.Load()
}

// Dropped returns how many frames were replaced by a newer one before being polled
func (p *ProcessSource) Dropped() uint64 {
	return p.dropped.Load()
}

// deliver stores s as the newest frame, discarding an unread older one.
// There is a single writer, so the loop ends after at most one retry.
func (p *ProcessSource) deliver(s Sample) {
	for {
		select {
		case p.latest <- s:
			return
		default:
		}

		select {
		case <-p.latest:
			p.dropped.Add(1)
		default:
		}
	}
}

// handleStdout reads from stdout, parses frames and stores the newest one.
func (p *ProcessSource) handleStdout(stdout io.Reader, done chan<- error) {
	var parseErrors uint8

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s, err := p.handler.Parse(line)
		switch {
		case err == nil:
		case errors.Is(err, ErrPending):
			continue

		case errors.Is(err, ErrMalformedSample):
			done <- err
			return

		default:
			parseErrors++
			p.logger.Warn(fmt.Sprintf("error parsing frame: %s", err.Error()), slog.String("line", line))

			if parseErrors >= p.parseErrorsThreshold {
				done <- ErrTooManyParseErrors
				return
			}

			continue
		}

		parseErrors = 0 // reset counter
		p.deliver(s)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleStderr reads from stderr and logs it.
func (p *ProcessSource) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p.logger.Warn(fmt.Sprintf("%s >> %s", p.handler.Name(), line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleCmdWait waits for the output readers and then for the command to
// exit. An exit caused by cancellation is not an error.
func (p *ProcessSource) handleCmdWait(ctx context.Context, cmd *exec.Cmd, readers *sync.WaitGroup, done chan<- error) {
	readers.Wait()

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		done <- fmt.Errorf("command exited with error: %w", err)
		return
	}

	done <- nil
}
