/*
Package runtime hosts the per-instance status relay: a private SQS queue fed
by SNS, EventBridge or direct producers, drained by a long-polling loop that
annotates every notification with its hop latencies.

# Lifecycle

A Relay resolves the instance identity, bootstraps the queue infrastructure
through a channel.Adapter and then runs until a termination signal arrives:

  - online: the Poller receives, decodes, records and deletes notifications
    while the status server answers on /sqs
  - draining: the first SIGINT or SIGTERM flips the online flag, the status
    endpoint answers 503 and the stats ticker stops
  - resources released: after the grace period the adapter tears down the
    subscription or rule, the queues and the DLQ alarm
  - exited: the status server is stopped and Run returns

Later signals are logged and ignored.

# Components

## Poller (poller.go)

One receive call per iteration. Decode and delete failures count as discarded
messages and never abort the batch.

## State (state.go)

Lock-free counters, the online flag and the last processed record, shared by
the poller, the status handler and the stats reporter.

## Status server (status.go)

Plain-text report on GET /sqs, Prometheus exposition on GET /metrics when
METRICS_ENABLED is set.

## Stats (stats.go, resources.go)

Periodic "stats" log line with the counters and a coarse resource sample.

## Shutdown (shutdown.go)

The Coordinator runs the phases above exactly once.

# Sub-packages

  - channel/: SNS, EventBridge and direct adapters plus the latency Record
  - config/: environment and flag loading with validation
  - errors/: sentinel errors and the infrastructure error type
  - identity/: static and ECS task metadata instance identity
  - ids/: ULID generation for local identities
  - jsoncodec/: JSON helpers backed by sonic
  - logging/: ServiceLogger and the Watermill adapter
  - queue/: queue, DLQ, access policy and alarm management
  - transport/: AWS client construction and the status publisher
*/
package runtime
