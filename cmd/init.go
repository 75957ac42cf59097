package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/confhist/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default config and history root",
	Long: `Create configuration and storage for confhist.

This command:
  - Creates a default config file if it doesn't exist
  - Creates the history root with its jobs/ and system/ directories

Existing files are never overwritten, so running it twice is safe.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configDir, "config.toml")

	created, err := config.WriteDefault(configPath)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "✓ Created default config: %s\n", configPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", configPath)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ History root: %s\n", store.Root())

	fmt.Fprintln(out, "\n✓ confhist initialized successfully!")
	fmt.Fprintln(out, "  You can now use: confhist record <entity> --file <path>")

	return nil
}
