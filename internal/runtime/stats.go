package runtime

import (
	"context"
	"sync"
	"time"

	loggingpkg "github.com/drblury/statusrelay/internal/runtime/logging"
)

// StatsReporter logs the relay counters at a fixed interval, independent of
// request traffic.
type StatsReporter struct {
	state     *State
	logger    loggingpkg.ServiceLogger
	interval  time.Duration
	resources *resourceSampler

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func NewStatsReporter(state *State, logger loggingpkg.ServiceLogger, interval time.Duration) *StatsReporter {
	return &StatsReporter{
		state:     state,
		logger:    logger,
		interval:  interval,
		resources: newResourceSampler(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the ticker in the background until Stop is called or ctx ends.
func (s *StatsReporter) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.Report()
			}
		}
	}()
}

// Stop cancels the ticker and waits for it to exit. Safe to call repeatedly,
// but only after Start.
func (s *StatsReporter) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// Report logs one stats line.
func (s *StatsReporter) Report() {
	fields := loggingpkg.LogFields(s.state.Counters().Fields())
	usage := s.resources.Sample()
	fields["goroutines"] = usage.Goroutines
	fields["memoryBytes"] = usage.MemoryBytes
	fields["cpuPercent"] = usage.CPUPercent
	s.logger.Info("stats", fields)
}
