package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/tutorlink-api/internal/dto"
	"github.com/noah-isme/tutorlink-api/internal/service"
)

func (a *cli) logsCommand() *cobra.Command {
	var (
		userID     uint
		action     string
		reason     string
		deniedOnly bool
		since      time.Duration
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent authorization decisions as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.auditRepository()
			if err != nil {
				return err
			}

			req := dto.AuthorizationAuditListRequest{
				Page:     1,
				PageSize: limit,
				UserID:   userID,
				Action:   action,
				Reason:   reason,
			}
			if deniedOnly {
				granted := false
				req.Granted = &granted
			}
			if since > 0 {
				from := time.Now().UTC().Add(-since)
				req.Since = &from
			}

			audit := service.NewAuthorizationAuditService(repo, nil, a.logger)
			response, err := audit.List(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("listing audit logs: %w", err)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			for _, item := range response.Items {
				if err := encoder.Encode(item); err != nil {
					return err
				}
			}
			a.logger.Debug().Int64("total", response.Pagination.TotalItems).Int("printed", len(response.Items)).Msg("audit logs listed")
			return nil
		},
	}

	cmd.Flags().UintVar(&userID, "user-id", 0, "only decisions made for this user")
	cmd.Flags().StringVar(&action, "action", "", "only this action, e.g. send_message")
	cmd.Flags().StringVar(&reason, "reason", "", "only this reason code")
	cmd.Flags().BoolVar(&deniedOnly, "denied", false, "only denied decisions")
	cmd.Flags().DurationVar(&since, "since", 0, "only decisions newer than this duration")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to print")
	return cmd
}
