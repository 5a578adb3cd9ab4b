// Package main implements forgetfuld, the Forgetful server binary.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at build time.
var version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "forgetfuld",
	Short:   "Forgetful per-user atomic memory store",
	Long:    `forgetfuld runs the Forgetful server: HTTP and MCP/stdio surfaces over a per-user atomic memory store.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ~/.config/forgetful/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(reembedCmd)
	rootCmd.AddCommand(migrateCmd)
}
