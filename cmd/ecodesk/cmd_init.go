package main

import (
	"fmt"
	"os"

	"ecodesk/internal/config"

	"github.com/spf13/cobra"
)

// initCmd writes a starter configuration file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Writes the default configuration to the --config path so it can be
edited. Secrets stay out of the file; supply them via environment variables
(GEMINI_API_KEY, PUSHOVER_TOKEN, PUSHOVER_USER) or a .env file.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if err := config.DefaultConfig().Save(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("✅ Wrote %s\n", configPath)
	return nil
}
