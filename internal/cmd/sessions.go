package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easly1989/primevideo-to-simkl-csv-exporter/internal/log"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past export sessions from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := log.ReadSessions(sessionsLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No export sessions recorded yet.")
			return nil
		}
		for _, s := range sessions {
			meta := s.Metadata
			fmt.Printf("%s  %s\n", meta.Timestamp.Format("2006-01-02 15:04:05"), strings.Join(meta.CommandArgs, " "))
			if meta.OutputPath != "" {
				fmt.Printf("  output: %s\n", meta.OutputPath)
			}
			fmt.Printf("  operations: %d (%d ok, %d failed)\n", meta.TotalOps, meta.SuccessfulOps, meta.FailedOps)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 10, "Maximum sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}
