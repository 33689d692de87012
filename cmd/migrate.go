package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/JefferySJones/pullrequestpeon/internal/jobqueue"
	"github.com/JefferySJones/pullrequestpeon/internal/logging"
	"github.com/JefferySJones/pullrequestpeon/internal/retry"
	"github.com/JefferySJones/pullrequestpeon/internal/threadstore"
)

// MigrateCommand applies the thread store schema and, when the queue is
// enabled, River's schema.
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database schema migrations",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty); err != nil {
				return err
			}

			store, err := threadstore.Open(c.Context, cfg.Database.Driver, cfg.Database.URL, retry.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to migrate thread store: %w", err)
			}
			store.Close()
			fmt.Printf("Thread store schema applied (%s)\n", cfg.Database.Driver)

			if cfg.Queue.Enabled {
				if err := jobqueue.Migrate(c.Context, cfg.Queue.URL); err != nil {
					return err
				}
				fmt.Println("River schema applied")
			}
			return nil
		},
	}
}
