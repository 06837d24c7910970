package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/statusrelay/internal/runtime/channel"
	configpkg "github.com/drblury/statusrelay/internal/runtime/config"
	"github.com/drblury/statusrelay/internal/runtime/identity"
	loggingpkg "github.com/drblury/statusrelay/internal/runtime/logging"
)

// Dependencies holds the collaborators of a Relay. Leave optional fields nil
// to get the production defaults.
type Dependencies struct {
	Resolver identity.Resolver
	Adapter  channel.Adapter

	// Registry receives the relay collectors when metrics are enabled. A
	// fresh registry is created when nil.
	Registry *prometheus.Registry
	// Listener overrides the status server listener bound to HTTP_PORT.
	Listener net.Listener
	// Signals overrides the SIGINT/SIGTERM subscription.
	Signals <-chan os.Signal
}

// Relay wires identity, channel adapter, polling loop, status server, stats
// ticker and shutdown coordinator for one process.
type Relay struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	deps Dependencies

	state       *State
	coordinator *Coordinator
}

func NewRelay(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Relay, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}
	if deps.Adapter == nil {
		return nil, fmt.Errorf("relay: channel adapter is required")
	}
	if deps.Resolver == nil {
		deps.Resolver = identity.New(conf.InstanceID, conf.MetadataURI)
	}
	return &Relay{Conf: conf, Logger: log, deps: deps}, nil
}

// State returns the relay state once Run has bootstrapped the instance.
func (r *Relay) State() *State { return r.state }

// Run bootstraps the instance and polls until a termination signal or the end
// of ctx has driven the shutdown sequence to completion. Bootstrap failures are
// returned without tearing anything down.
func (r *Relay) Run(ctx context.Context) error {
	instanceID, err := r.deps.Resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	log := r.Logger.With(loggingpkg.LogFields{"instanceId": instanceID, "channel": r.deps.Adapter.Type()})
	log.Info("Bootstrapping relay", loggingpkg.LogFields{"config": r.Conf.String()})

	queueURL, err := r.deps.Adapter.Bootstrap(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", instanceID, err)
	}
	log.Info("Queue infrastructure ready", loggingpkg.LogFields{"queueUrl": queueURL})

	r.state = NewState(instanceID)

	metrics, gatherer, err := r.metrics()
	if err != nil {
		return r.abort(log, err)
	}

	listener := r.deps.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", r.Conf.HTTPPort))
		if err != nil {
			return r.abort(log, fmt.Errorf("status server: %w", err))
		}
	}
	server := &http.Server{
		Handler:           NewStatusMux(r.state, log, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Starting status server", loggingpkg.LogFields{"address": listener.Addr().String()})
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Status server stopped", err, loggingpkg.LogFields{"address": listener.Addr().String()})
		}
	}()

	stats := NewStatsReporter(r.state, log, r.Conf.StatsInterval)
	stats.Start(ctx)

	r.coordinator = NewCoordinator(r.state, r.deps.Adapter, server, stats.Stop, r.Conf.GracePeriod, r.Conf.TeardownTimeout, log)

	signals := r.deps.Signals
	if signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}
	go r.coordinator.Watch(ctx, signals)

	// In-flight polls must survive cancellation of ctx; the loop exits on the
	// online flag instead.
	NewPoller(r.deps.Adapter, r.state, queueURL, log, metrics, r.Conf.PollErrorDelay).Run(context.WithoutCancel(ctx))

	<-r.coordinator.Done()
	return nil
}

func (r *Relay) metrics() (*Metrics, prometheus.Gatherer, error) {
	if !r.Conf.MetricsEnabled {
		return nil, nil, nil
	}
	registry := r.deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := NewMetrics(registry)
	if err := metrics.Register(); err != nil {
		return nil, nil, err
	}
	return metrics, registry, nil
}

// abort releases the bootstrapped infrastructure when the relay cannot start
// serving.
func (r *Relay) abort(log loggingpkg.ServiceLogger, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.Conf.TeardownTimeout)
	defer cancel()
	if err := r.deps.Adapter.Teardown(ctx); err != nil {
		log.Error("Failed to tear down after startup failure", err, nil)
	}
	return cause
}
