package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type scanResult struct {
	UserID    uint      `json:"user_id"`
	Denials   int64     `json:"denials"`
	Threshold int       `json:"threshold"`
	Since     time.Time `json:"since"`
}

// scanCommand reports users over the suspicious threshold without writing audit rows.
func (a *cli) scanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Report users whose recent denials reach the suspicious threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			threshold := a.v.GetInt("audit.suspicious_threshold")
			if threshold <= 0 {
				return fmt.Errorf("threshold must be positive")
			}
			window, err := time.ParseDuration(a.v.GetString("audit.suspicious_window"))
			if err != nil || window <= 0 {
				return fmt.Errorf("invalid window %q", a.v.GetString("audit.suspicious_window"))
			}

			repo, err := a.auditRepository()
			if err != nil {
				return err
			}

			since := time.Now().UTC().Add(-window)
			counts, err := repo.DeniedCountsSince(cmd.Context(), since, int64(threshold))
			if err != nil {
				return fmt.Errorf("scanning denials: %w", err)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			for _, count := range counts {
				if err := encoder.Encode(scanResult{UserID: count.UserID, Denials: count.Denials, Threshold: threshold, Since: since}); err != nil {
					return err
				}
			}
			if len(counts) == 0 {
				a.logger.Info().Int("threshold", threshold).Dur("window", window).Msg("no users over threshold")
			}
			return nil
		},
	}

	cmd.Flags().Int("threshold", 0, "denials that flag a user (defaults to TUTORLINK_AUDIT_SUSPICIOUS_THRESHOLD)")
	cmd.Flags().String("window", "", "trailing window, e.g. 10m (defaults to TUTORLINK_AUDIT_SUSPICIOUS_WINDOW)")
	_ = a.v.BindPFlag("audit.suspicious_threshold", cmd.Flags().Lookup("threshold"))
	_ = a.v.BindPFlag("audit.suspicious_window", cmd.Flags().Lookup("window"))
	return cmd
}
