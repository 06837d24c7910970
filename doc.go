// Package statusrelay relays status change notifications from SNS, EventBridge
// or direct SQS producers to a per-instance queue and reports how long every
// hop took.
//
// Each process owns a private queue named after its instance identity, a
// dead letter queue with a CloudWatch alarm, and, depending on the channel,
// an SNS subscription or an EventBridge rule. The infrastructure is created
// at boot and removed on SIGINT or SIGTERM after a grace period.
//
// # Channels
//
//   - sns: the queue subscribes to STATUS_CHANGE_SNS_ARN
//   - ebrdg: a catch-all rule on STATUS_CHANGE_EVENT_BUS_NAME targets the queue
//   - direct: producers send to the queue themselves
//
// Every processed notification is logged as a "notification processed" JSON
// line with per-hop timestamps and millisecond deltas. A "stats" line with the
// counters follows every STATS_PRINT_MILLIS.
//
// # Quick start
//
//	conf, err := statusrelay.LoadConfig(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := statusrelay.NewJSONLogger(os.Stdout, conf.LogLevel)
//	relay, err := statusrelay.NewAWSRelay(ctx, conf, logger, statusrelay.Dependencies{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := relay.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package statusrelay
