package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/JefferySJones/pullrequestpeon/internal/announce"
	"github.com/JefferySJones/pullrequestpeon/internal/api"
	"github.com/JefferySJones/pullrequestpeon/internal/chat"
	"github.com/JefferySJones/pullrequestpeon/internal/compose"
	"github.com/JefferySJones/pullrequestpeon/internal/config"
	"github.com/JefferySJones/pullrequestpeon/internal/jobqueue"
	"github.com/JefferySJones/pullrequestpeon/internal/logging"
	"github.com/JefferySJones/pullrequestpeon/internal/reconcile"
	"github.com/JefferySJones/pullrequestpeon/internal/retry"
	"github.com/JefferySJones/pullrequestpeon/internal/threadstore"
)

// ServeCommand returns the CLI command for starting the webhook server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the webhook and Slack interaction server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the HTTP server (overrides server.port)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}

	ctx := c.Context

	retryCfg := retry.DefaultConfig()
	retryCfg.Name = "thread store connect"
	store, err := threadstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL, retryCfg)
	if err != nil {
		return fmt.Errorf("failed to open thread store: %w", err)
	}
	defer store.Close()

	gateway := chat.NewSlackGateway(chat.SlackConfig{
		Token:         cfg.Slack.Token,
		APIURL:        cfg.Slack.APIURL,
		RatePerSecond: cfg.Slack.RatePerSecond,
		Burst:         cfg.Slack.Burst,
	})

	composer := compose.Composer{
		Mentions:       cfg.Mentions.Repos,
		DefaultMention: cfg.Mentions.Default,
		ReadyLabel:     cfg.Labels.Ready,
	}

	reconciler := reconcile.New(store, gateway, composer, reconcile.Options{
		Channel:    cfg.Slack.Channel,
		ReadyLabel: cfg.Labels.Ready,
		SkipLabel:  cfg.Labels.Skip,
	})

	var announcer announce.Announcer
	if cfg.Slack.DeployChannel != "" {
		if cfg.Queue.Enabled {
			qcfg := jobqueue.DefaultQueueConfig()
			if cfg.Queue.Workers > 0 {
				qcfg.MaxWorkers = cfg.Queue.Workers
			}
			if cfg.Queue.JobTimeout > 0 {
				qcfg.JobTimeout = cfg.Queue.JobTimeout
			}

			jq, err := jobqueue.NewJobQueue(ctx, cfg.Queue.URL, qcfg, gateway)
			if err != nil {
				return fmt.Errorf("failed to create job queue: %w", err)
			}
			if err := jq.Start(ctx); err != nil {
				return fmt.Errorf("failed to start job queue: %w", err)
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := jq.Stop(stopCtx); err != nil {
					log.Warn().Err(err).Msg("job queue did not stop cleanly")
				}
			}()
			announcer = announce.NewQueued(jq, composer, cfg.Slack.DeployChannel)
		} else {
			announcer = announce.NewDirect(gateway, composer, cfg.Slack.DeployChannel)
		}
	}

	server := api.NewServer(cfg.Server.Port, api.Deps{
		Reconciler:         reconciler,
		Announcer:          announcer,
		Store:              store,
		GitHubSecret:       cfg.GitHub.WebhookSecret,
		SlackSigningSecret: cfg.Slack.SigningSecret,
	})
	return server.Start()
}
