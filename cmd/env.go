package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/JefferySJones/pullrequestpeon/internal/config"
)

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required settings that are missing
	Present  map[string]string // Settings that are set (masked values)
	Warnings []string          // Non-fatal warnings
}

// CheckRequiredConfig reports which required settings are present
func CheckRequiredConfig(cfg *config.Config) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
	}

	required := []struct{ key, value string }{
		{"slack.token", cfg.Slack.Token},
		{"slack.signing_secret", cfg.Slack.SigningSecret},
		{"slack.channel", cfg.Slack.Channel},
		{"database.url", cfg.Database.URL},
	}
	for _, r := range required {
		if r.value == "" {
			result.Missing = append(result.Missing, r.key)
		} else {
			result.Present[r.key] = maskSecret(r.value)
		}
	}

	if cfg.GitHub.WebhookSecret == "" {
		result.Warnings = append(result.Warnings, "github.webhook_secret is empty; webhook signatures will not be checked")
	} else {
		result.Present["github.webhook_secret"] = maskSecret(cfg.GitHub.WebhookSecret)
	}
	if cfg.Slack.DeployChannel == "" {
		result.Warnings = append(result.Warnings, "slack.deploy_channel is empty; merges will not be announced")
	}

	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(result *ConfigCheckResult) {
	fmt.Println("=== Configuration Check ===")

	if len(result.Missing) > 0 {
		fmt.Println("❌ Missing required settings:")
		for _, v := range result.Missing {
			fmt.Printf("   - %s\n", v)
		}
		fmt.Println("")
	}

	if len(result.Present) > 0 {
		fmt.Println("✓ Configured settings:")
		for k, v := range result.Present {
			fmt.Printf("   - %s = %s\n", k, v)
		}
		fmt.Println("")
	}

	for _, w := range result.Warnings {
		fmt.Printf("⚠ Warning: %s\n", w)
	}

	if len(result.Missing) == 0 {
		fmt.Println("✓ All required configuration is present")
	}

	fmt.Println("============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads environment variables from a file, overwriting existing ones.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	return scanner.Err()
}
