package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.DefaultConfig().Save(); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\nFill in your provider keys and Amazon credentials, then run \"pv2simkl export\".\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return err
		}
		redactConfig(cfg)
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// redactConfig blanks secrets before printing.
func redactConfig(cfg *config.Config) {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	cfg.Amazon.Password = redact(cfg.Amazon.Password)
	cfg.Providers.Simkl.ClientSecret = redact(cfg.Providers.Simkl.ClientSecret)
	cfg.Providers.TMDB.APIKey = redact(cfg.Providers.TMDB.APIKey)
	cfg.Providers.TVDB.APIKey = redact(cfg.Providers.TVDB.APIKey)
	cfg.Providers.MAL.ClientID = redact(cfg.Providers.MAL.ClientID)
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
