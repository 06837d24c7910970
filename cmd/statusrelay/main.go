package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/drblury/statusrelay"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, args []string) error {
	fs := statusrelay.FlagSet("statusrelay")
	local := fs.Bool("local", false, "use a generated local-<ulid> identity instead of the task metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *local {
		// Load validates the identity, so the generated one is supplied up front.
		id, err := statusrelay.LocalIdentity().Resolve(ctx)
		if err != nil {
			return err
		}
		if err := fs.Set("instance-id", id); err != nil {
			return err
		}
	}

	conf, err := statusrelay.LoadConfig(fs)
	if err != nil {
		return err
	}

	logger := statusrelay.NewJSONLogger(os.Stdout, conf.LogLevel)
	relay, err := statusrelay.NewAWSRelay(ctx, conf, logger, statusrelay.Dependencies{})
	if err != nil {
		logger.Error("Failed to configure relay", err, nil)
		return err
	}
	if err := relay.Run(ctx); err != nil {
		logger.Error("Relay stopped", err, nil)
		return err
	}
	return nil
}
