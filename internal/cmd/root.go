package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pv2simkl",
	Short: "Export your Prime Video watch history to a Simkl-importable CSV",
	Long: `pv2simkl opens a browser session on your Prime Video account, scrapes the
watch history page, resolves every title against Simkl, TMDB, TVDB and
MyAnimeList, and writes the merged identifiers to a CSV file that Simkl's
importer accepts.

Credentials and provider keys live in ~/.pv2simkl/config.json; run
"pv2simkl config init" to create a starter file.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.pv2simkl/config.json)")
}

// resolveConfigPath resolves the --config flag against the default path.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.ConfigPath()
}
