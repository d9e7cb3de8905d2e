package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "wcdata",
	Short: "Cached access to WooCommerce REST resources",
	Long: `wcdata reads and writes WooCommerce REST resources through a normalized,
deduplicating cache, serves a local development API, and exposes the cache
over MCP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(getCmd, listCmd, createCmd, updateCmd, deleteCmd, keyCmd)
	rootCmd.AddCommand(serveCmd, mcpCmd, warmCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
