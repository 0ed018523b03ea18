package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"waveline.click/internal/tracking"
)

// newStatsCommand summarizes the playback journal.
func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show playback history from the tracking journal",
		RunE:  runStatsE,
	}
	cmd.Flags().Int("limit", 10, "Maximum number of sources to list")
	cmd.Flags().Bool("errors", false, "Show recent playback errors instead")
	return cmd
}

func runStatsE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cfg, cmd.ErrOrStderr())

	dbPath := cli.configManager.ResolveTrackingPath("")
	if cfg.Tracking != nil && cfg.Tracking.DatabasePath != "" {
		dbPath = cfg.Tracking.DatabasePath
	}

	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		cmd.PrintErrf("Error opening tracking database: %v\n", err)
		return fmt.Errorf("error opening tracking database: %w", err)
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	showErrors, _ := cmd.Flags().GetBool("errors")

	if showErrors {
		return printRecentErrors(cmd, db, limit)
	}
	return printTopSources(cmd, db, limit)
}

func printTopSources(cmd *cobra.Command, db *sql.DB, limit int) error {
	stats, err := tracking.TopSources(db, limit)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		cmd.Println("No playback history recorded.")
		return nil
	}

	total, err := tracking.EventCount(db)
	if err != nil {
		return err
	}
	cmd.Printf("%d journaled events\n\n", total)

	for _, s := range stats {
		cmd.Printf("%4d plays  %3d errors  %s  (last %s)\n",
			s.Plays, s.Errors, s.SourcePath,
			s.LastPlayed.Format("2006-01-02 15:04"))
	}
	return nil
}

func printRecentErrors(cmd *cobra.Command, db *sql.DB, limit int) error {
	records, err := tracking.RecentErrors(db, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Println("No playback errors recorded.")
		return nil
	}
	for _, r := range records {
		cmd.Printf("%s  [%s]  %s: %s\n",
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Severity, r.SourcePath, r.Message)
	}
	return nil
}
