package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var configFile string

var rootCmd = &cobra.Command{
	Use:   "siteforge",
	Short: "siteforge — an LLM-backed static site build service",
	Long: `siteforge receives build and revise requests for small static web apps,
drives a CLI code-generation backend, provisions a GitHub repository for the
result, enables Pages hosting, and notifies a callback URL when done.

Credentials come from the environment (SITEFORGE_SECRET, GITHUB_TOKEN,
DATABASE_URL), optionally via a .env file; everything else from siteforge.yaml.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: siteforge.yaml, ~/.siteforge/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(eventsCmd)
}
