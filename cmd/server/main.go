// Package main runs the docqueue server: it opens the configured task store,
// resubmits unfinished tasks and serves the task HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

// options are the command-line flags.
type options struct {
	ConfigPath string
	StopAll    bool
	Migrate    bool
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("docqueue", pflag.ContinueOnError)
	fs.StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file (default ./config.yaml if present)")
	fs.BoolVar(&opts.StopAll, "stop-all", false, "mark every enqueued task as stopped and exit")
	fs.BoolVar(&opts.Migrate, "migrate", false, "apply postgres migrations and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.StopAll && opts.Migrate {
		return options{}, errors.New("--stop-all and --migrate are mutually exclusive")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("docqueue: %v", err)
	}
}

// run loads the configuration, builds the application and executes the
// mode selected by opts.
func run(ctx context.Context, opts options) error {
	cfg, err := loadAppConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	appLogger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}

	if opts.Migrate {
		return migrateOnly(ctx, cfg, appLogger)
	}

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	if opts.StopAll {
		return app.StopAll(ctx)
	}
	return app.Run(ctx)
}
