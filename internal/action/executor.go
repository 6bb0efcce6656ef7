package action

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrInFlight = errors.New("command already in flight")

// Phase is the display state of a command.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseInFlight Phase = "in-flight"
	PhaseSuccess  Phase = "success"
	PhaseWarning  Phase = "warning"
	PhaseError    Phase = "error"
)

const (
	SuccessDelay = 3 * time.Second
	ErrorDelay   = 2 * time.Second
)

// Status is published every time a command changes phase.
type Status struct {
	ID      string
	Kind    string
	Phase   Phase
	Message string
}

// Result is what a successful operation reports. Partial marks a run that
// only got some of its work done; it is shown as a warning.
type Result struct {
	Message string
	Partial bool
}

// Command is one user-triggered operation. ID identifies the button: two
// commands with the same ID never run at the same time.
type Command struct {
	ID      string
	Kind    string
	Loading string
	Run     func(ctx context.Context) (Result, error)

	OnSuccess func(Result)
	OnError   func(error)
}

type Executor struct {
	mu      sync.Mutex
	status  map[string]Status
	publish func(Status)
	after   func(time.Duration, func())
	observe func(kind string, phase Phase)
	logger  *zap.Logger
}

type Option func(*Executor)

// WithPublisher receives every status change, including the revert to idle.
func WithPublisher(fn func(Status)) Option {
	return func(e *Executor) { e.publish = fn }
}

// WithAfterFunc replaces time.AfterFunc for scheduling the revert to idle.
func WithAfterFunc(fn func(time.Duration, func())) Option {
	return func(e *Executor) { e.after = fn }
}

func WithObserver(fn func(kind string, phase Phase)) Option {
	return func(e *Executor) { e.observe = fn }
}

func New(logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		status:  make(map[string]Status),
		publish: func(Status) {},
		after:   func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		observe: func(string, Phase) {},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns the current display state of the command with the given id.
func (e *Executor) Status(id string) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.status[id]; ok {
		return s
	}
	return Status{ID: id, Phase: PhaseIdle}
}

// Busy reports whether the command is in flight or still showing its outcome.
func (e *Executor) Busy(id string) bool {
	return e.Status(id).Phase != PhaseIdle
}

// Execute runs cmd once and blocks until it completes. It returns ErrInFlight
// without running anything when the same command has not yet reverted to
// idle. The operation has no deadline beyond ctx.
func (e *Executor) Execute(ctx context.Context, cmd Command) (Status, error) {
	e.mu.Lock()
	if s, ok := e.status[cmd.ID]; ok {
		e.mu.Unlock()
		return s, ErrInFlight
	}
	loading := Status{ID: cmd.ID, Kind: cmd.Kind, Phase: PhaseInFlight, Message: cmd.Loading}
	e.status[cmd.ID] = loading
	e.mu.Unlock()

	e.emit(loading)
	e.logger.Info("command started", zap.String("id", cmd.ID), zap.String("kind", cmd.Kind))

	res, err := cmd.Run(ctx)

	final := Status{ID: cmd.ID, Kind: cmd.Kind}
	delay := SuccessDelay
	switch {
	case err != nil:
		final.Phase = PhaseError
		final.Message = err.Error()
		delay = ErrorDelay
		e.logger.Warn("command failed", zap.String("id", cmd.ID), zap.Error(err))
		if cmd.OnError != nil {
			cmd.OnError(err)
		}
	case res.Partial:
		final.Phase = PhaseWarning
		final.Message = res.Message
		e.logger.Warn("command partially succeeded", zap.String("id", cmd.ID), zap.String("result", res.Message))
	default:
		final.Phase = PhaseSuccess
		final.Message = res.Message
		e.logger.Info("command succeeded", zap.String("id", cmd.ID))
	}
	if err == nil && cmd.OnSuccess != nil {
		cmd.OnSuccess(res)
	}

	e.mu.Lock()
	e.status[cmd.ID] = final
	e.mu.Unlock()
	e.emit(final)

	e.after(delay, func() {
		e.mu.Lock()
		delete(e.status, cmd.ID)
		e.mu.Unlock()
		e.emit(Status{ID: cmd.ID, Kind: cmd.Kind, Phase: PhaseIdle})
	})

	return final, err
}

func (e *Executor) emit(s Status) {
	e.observe(s.Kind, s.Phase)
	e.publish(s)
}
