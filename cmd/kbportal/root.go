package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"KBPortal/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "kbportal",
	Short: "Knowledge-base widget catalog server",
	Long: `kbportal serves the catalog of embeddable knowledge-base widgets:
public browsing and search, operator login, and catalog management.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
