package runtime

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/statusrelay/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/statusrelay/internal/runtime/logging"
)

// StatusPath serves the plain-text status report.
const StatusPath = "/sqs"

const shuttingDownMessage = "Server shutting down"

// StatusHandler reports the counters and the last processed record while the
// instance is online and answers 503 once it is draining.
func StatusHandler(state *State, logger loggingpkg.ServiceLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !state.Online() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, shuttingDownMessage)
			return
		}

		last := []byte("{}")
		if record, ok := state.LastRecord(); ok {
			data, err := jsoncodec.MarshalIndent(record.Fields(), "", "  ")
			if err != nil {
				logger.Error("Failed to encode last record", err, nil)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			last = data
		}

		counters := state.Counters()
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w,
			"SQS Listener for queue %s.\nOpen pollings: %d\nReceived messages: %d\nDiscarded messages: %d.\nLast received message:\n %s",
			state.InstanceID(), counters.OpenPollings, counters.ProcessedMessages, counters.DiscardedMessages, last)
	})
}

// NewStatusMux routes the status endpoint and, when gatherer is set, the
// Prometheus endpoint.
func NewStatusMux(state *State, logger loggingpkg.ServiceLogger, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET "+StatusPath, StatusHandler(state, logger))
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
