package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/drblury/statusrelay"
)

type options struct {
	status   string
	event    string
	count    int
	interval time.Duration
	queue    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := statusrelay.FlagSet("statuspublisher")
	var opts options
	fs.StringVar(&opts.status, "status", "READY", "status carried by every notification")
	fs.StringVar(&opts.event, "event", "status-change", "event name carried by every notification")
	fs.IntVar(&opts.count, "count", 1, "number of notifications to publish")
	fs.DurationVar(&opts.interval, "interval", time.Second, "pause between notifications")
	fs.StringVar(&opts.queue, "queue", "", "target queue name for the direct channel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.Lookup("instance-id").Value.String() == "" {
		// The publisher has no identity of its own.
		if err := fs.Set("instance-id", "statuspublisher"); err != nil {
			return err
		}
	}

	conf, err := statusrelay.LoadConfig(fs)
	if err != nil {
		return err
	}
	logger := statusrelay.NewJSONLogger(os.Stdout, conf.LogLevel)

	publisher, err := statusrelay.NewStatusPublisher(ctx, conf, opts.queue, logger)
	if err != nil {
		logger.Error("Failed to create publisher", err, statusrelay.LogFields{"channel": conf.NormalizedChannelType()})
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close publisher", err, nil)
		}
	}()

	return publish(ctx, publisher, opts, logger)
}

func publish(ctx context.Context, publisher statusrelay.StatusPublisher, opts options, logger statusrelay.ServiceLogger) error {
	for i := 0; i < opts.count; i++ {
		if i > 0 && opts.interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.interval):
			}
		}
		n := statusrelay.NewNotification(opts.status, opts.event)
		if err := publisher.Publish(ctx, n); err != nil {
			return err
		}
		logger.Info("status published", statusrelay.LogFields{"id": n.ID, "status": n.Status, "sequence": i + 1})
	}
	return nil
}
