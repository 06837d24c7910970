package runtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/statusrelay/internal/runtime/channel"
)

// Hop label values of the latency histogram besides the upstream hop names.
const (
	HopQueue = "sqs"
	HopTotal = "total"
)

// Metrics exposes the relay counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	mu sync.Mutex

	processedTotal prometheus.Counter
	discardedTotal prometheus.Counter
	openPollings   prometheus.Gauge
	hopLatency     *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// newRelayCounter creates a counter with the standard statusrelay/relay namespace.
func newRelayCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "statusrelay",
		Subsystem: "relay",
		Name:      name,
		Help:      help,
	})
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:     registerer,
		processedTotal: newRelayCounter("processed_total", "Notifications decoded and deleted from the queue"),
		discardedTotal: newRelayCounter("discarded_total", "Notifications or poll iterations that failed"),
		openPollings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "statusrelay",
			Subsystem: "relay",
			Name:      "open_pollings",
			Help:      "Receive calls currently in flight",
		}),
		hopLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statusrelay",
			Subsystem: "relay",
			Name:      "hop_latency_milliseconds",
			Help:      "Latency of each notification hop in milliseconds",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"hop"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{m.processedTotal, m.discardedTotal, m.openPollings, m.hopLatency}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// ObserveProcessed counts a processed record and its hop latencies.
func (m *Metrics) ObserveProcessed(r channel.Record) {
	if m == nil {
		return
	}
	m.processedTotal.Inc()
	if r.Upstream != "" {
		m.hopLatency.WithLabelValues(r.Upstream).Observe(float64(r.UpstreamMillis))
	}
	m.hopLatency.WithLabelValues(HopQueue).Observe(float64(r.QueueMillis))
	m.hopLatency.WithLabelValues(HopTotal).Observe(float64(r.CumulativeMillis))
}

func (m *Metrics) ObserveDiscarded() {
	if m == nil {
		return
	}
	m.discardedTotal.Inc()
}

func (m *Metrics) SetOpenPollings(n int64) {
	if m == nil {
		return
	}
	m.openPollings.Set(float64(n))
}
