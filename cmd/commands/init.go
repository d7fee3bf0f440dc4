package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ferrybot/ferry/internal/config"
	"github.com/ferrybot/ferry/internal/secrets"
)

// NewInitCommand returns the onboarding subcommand.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Initialize the ferry home directory (~/.ferry)",
		Action: runInit,
	}
}

func runInit(_ context.Context, _ *cli.Command) error {
	root := config.FerryPath()
	created := false

	if _, err := os.Stat(root); err != nil {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", root, err)
		}
		fmt.Printf("  Created %s\n", root)
		created = true
	}

	// Write default config if missing.
	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Created %s\n", configPath)
		created = true
	}

	// Write default .env if missing.
	dotenvPath := config.DotenvPath()
	if _, err := os.Stat(dotenvPath); err != nil {
		if err := os.WriteFile(dotenvPath, []byte(defaultDotenv), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}
		fmt.Printf("  Created %s\n", dotenvPath)
		created = true
	}

	// Generate the age key so auth tokens can be stored encrypted.
	keyPath := secrets.KeyPath()
	if _, err := os.Stat(keyPath); err != nil {
		if err := secrets.GenerateIdentity(keyPath); err != nil {
			return fmt.Errorf("generate age key: %w", err)
		}
		fmt.Printf("  Created %s\n", keyPath)
		created = true
	}

	if !created {
		fmt.Printf("Already set up — %s is complete. Nothing to do.\n", root)
		return nil
	}

	fmt.Println(initMessage(root))
	return nil
}

const defaultConfig = `{
	// ferry configuration
	// Docs: https://github.com/ferrybot/ferry

	"bot": {
		// Directory the coding agent works in.
		"workspace": ".",
		"max_concurrent_tasks": 3,
		"permission_timeout": "1h",
		"max_output_length": 3000,
		"task_retention": "24h",
		"session_ttl": "24h"
	},

	"gateway": {
		"host": "127.0.0.1",
		"port": 18720

		// Require a bearer token on the chat gateway. Plain values and
		// ENC[age:...] blobs both work.
		// "auth_token": "${{ .Env.FERRY_AUTH_TOKEN }}"
	},

	"agent": {
		"path": "claude",
		"default_args": []
	},

	"events": {
		"buffer_size": 1024
	}
}
`

const defaultDotenv = `# ferry environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# FERRY_AUTH_TOKEN=choose-a-long-random-token
`

func initMessage(root string) string {
	return fmt.Sprintf(`
  ferry is ready.

  Home set up at %s

  Next steps:
    1. Point "bot.workspace" in %s/config.jsonc at a git repository
    2. Set an auth token in %s/.env if the gateway leaves localhost
    3. Run: ferry serve
`, root, root, root)
}
