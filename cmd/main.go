package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MimeLyc/shorts-publisher/internal/httpapi"
	"github.com/MimeLyc/shorts-publisher/pkg/icron"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		log.Fatal("%v", err)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "shorts-publisher",
		Usage: "Discover short videos, schedule them into upload windows and publish them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "path of an optional .env file",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run one discovery and upload pass and print the summary",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runAction(ctx, cmd, out)
				},
			},
			{
				Name:   "serve",
				Usage:  "start the HTTP trigger and the cron schedule",
				Action: serveAction,
			},
			{
				Name:  "jobs",
				Usage: "print every stored upload job",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return jobsAction(ctx, cmd, out)
				},
			},
			{
				Name:  "runs",
				Usage: "print recent run summaries, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "number of summaries to print",
						Value: 20,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runsAction(ctx, cmd, out)
				},
			},
		},
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runAction(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, runErr := app.runner.Run(ctx)
	if summary != nil {
		if err := printJSON(out, summary); err != nil {
			return err
		}
	}
	return runErr
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	cron := icron.New(cfg.Schedule.Location)
	if _, err := cron.AddFunc(cfg.HTTP.CronExpr, func() {
		summary, err := app.runner.Run(ctx)
		if err != nil {
			log.Error("Scheduled run finished with errors: %v", err)
		}
		if summary != nil {
			log.Info("Scheduled run: discovered=%d scheduled=%d uploaded=%d failed=%d",
				summary.Discovered, summary.Scheduled, summary.Uploaded, summary.Failed)
		}
	}); err != nil {
		return err
	}

	server := httpapi.NewServer(app.runner, app.store,
		httpapi.WithCronExpr(cfg.HTTP.CronExpr),
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
	)
	return runWithComponents(ctx, cfg, cron, server)
}

func jobsAction(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	all, err := store.ListAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, all)
}

func runsAction(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRecentRunSummaries(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return printJSON(out, runs)
}
