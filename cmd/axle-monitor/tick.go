package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"axle-monitor/core/internal/maintenance"
)

func tickCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one maintenance tick and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at (use RFC3339): %w", err)
				}
			}

			ctx := context.Background()
			st, err := openStores(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer st.Close()

			bridge, _, closeBridge, err := newBridge(cfg, st, nil, logger)
			if err != nil {
				return err
			}
			defer closeBridge()

			scheduler := maintenance.NewScheduler(st.records, bridge, maintenance.ConfigFrom(cfg.Maintenance), nil, logger)
			res, err := scheduler.Tick(ctx, now)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d devices failed", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Evaluate the tick as of this RFC3339 time instead of now")
	return cmd
}
