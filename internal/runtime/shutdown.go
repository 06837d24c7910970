package runtime

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	loggingpkg "github.com/drblury/statusrelay/internal/runtime/logging"
)

// Phase is a step of the shutdown sequence.
type Phase int32

const (
	PhaseOnline Phase = iota
	PhaseDraining
	PhaseResourcesReleased
	PhaseExited
)

func (p Phase) String() string {
	switch p {
	case PhaseOnline:
		return "online"
	case PhaseDraining:
		return "draining"
	case PhaseResourcesReleased:
		return "resources released"
	case PhaseExited:
		return "exited"
	default:
		return "unknown"
	}
}

// serverShutdownTimeout bounds draining in-flight status requests.
const serverShutdownTimeout = 5 * time.Second

// Teardowner releases the infrastructure owned by the instance.
type Teardowner interface {
	Teardown(ctx context.Context) error
}

// Shutdowner stops the status server.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Coordinator runs the one-shot shutdown sequence: go offline, stop the stats
// ticker, wait the grace period, tear down, stop the status server.
type Coordinator struct {
	state           *State
	infra           Teardowner
	server          Shutdowner
	stopStats       func()
	grace           time.Duration
	teardownTimeout time.Duration
	serverTimeout   time.Duration
	logger          loggingpkg.ServiceLogger

	after func(time.Duration) <-chan time.Time

	once  sync.Once
	phase atomic.Int32
	done  chan struct{}
}

func NewCoordinator(state *State, infra Teardowner, server Shutdowner, stopStats func(), grace, teardownTimeout time.Duration, logger loggingpkg.ServiceLogger) *Coordinator {
	if stopStats == nil {
		stopStats = func() {}
	}
	if teardownTimeout <= 0 {
		teardownTimeout = time.Minute
	}
	return &Coordinator{
		state:           state,
		infra:           infra,
		server:          server,
		stopStats:       stopStats,
		grace:           grace,
		teardownTimeout: teardownTimeout,
		serverTimeout:   serverShutdownTimeout,
		logger:          logger,
		after:           time.After,
		done:            make(chan struct{}),
	}
}

func (c *Coordinator) Phase() Phase { return Phase(c.phase.Load()) }

// Done is closed once the sequence reached PhaseExited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Trigger starts the shutdown sequence in the background. Only the first call
// has an effect; it reports whether this call started the sequence.
func (c *Coordinator) Trigger(reason string) bool {
	started := false
	c.once.Do(func() {
		started = true
		c.drain(reason)
		go c.release()
	})
	if !started {
		c.logger.Info("Shutdown already in progress, ignoring", loggingpkg.LogFields{"reason": reason, "phase": c.Phase().String()})
	}
	return started
}

// Watch triggers the sequence on the first signal or when ctx ends, and
// returns once the sequence has completed.
func (c *Coordinator) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case sig := <-signals:
			c.Trigger(sig.String())
		case <-ctx.Done():
			c.Trigger("context done")
			ctx = context.Background()
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) drain(reason string) {
	c.state.GoOffline()
	c.phase.Store(int32(PhaseDraining))
	c.stopStats()
	c.logger.Info("Shutting down", loggingpkg.LogFields{"reason": reason, "gracePeriod": c.grace.String()})
}

func (c *Coordinator) release() {
	defer close(c.done)

	if c.grace > 0 {
		<-c.after(c.grace)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.teardownTimeout)
	defer cancel()

	if err := c.infra.Teardown(ctx); err != nil {
		c.logger.Error("Failed to tear down queue infrastructure", err, nil)
	} else {
		c.logger.Info("Queue infrastructure released", nil)
	}
	c.phase.Store(int32(PhaseResourcesReleased))

	if c.server != nil {
		serverCtx, cancelServer := context.WithTimeout(context.Background(), c.serverTimeout)
		defer cancelServer()
		if err := c.server.Shutdown(serverCtx); err != nil {
			c.logger.Error("Failed to stop status server", err, nil)
		}
	}
	c.phase.Store(int32(PhaseExited))
	c.logger.Info("Shutdown complete", nil)
}
