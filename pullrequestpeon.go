package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/JefferySJones/pullrequestpeon/cmd"
)

const (
	version = "0.2.0"
)

func main() {
	app := &cli.App{
		Name:    "pullrequestpeon",
		Usage:   "Keep one Slack thread per pull request branch in sync with GitHub",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before reading configuration",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.MigrateCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
