package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/JefferySJones/pullrequestpeon/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "pullrequestpeon.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
			{
				Name:   "check",
				Usage:  "Show which settings are present, with secrets masked",
				Action: runConfigCheck,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}

func runConfigCheck(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	result := CheckRequiredConfig(cfg)
	PrintConfigCheck(result)
	if len(result.Missing) > 0 {
		return fmt.Errorf("%d required settings missing", len(result.Missing))
	}
	return nil
}

// loadConfig applies the --env-file and --config flags and loads the configuration
func loadConfig(c *cli.Context) (*config.Config, error) {
	if envFile := c.String("env-file"); envFile != "" {
		if err := LoadEnvFile(envFile); err != nil && c.IsSet("env-file") {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
