package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"axle-monitor/core/internal/report"
	"axle-monitor/core/internal/service"
	"axle-monitor/core/internal/telemetry"
)

type rangeFlags struct {
	period string
	start  string
	end    string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.period, "period", "", `Days to look back, or "custom" with --start/--end`)
	cmd.Flags().StringVar(&r.start, "start", "", "Range start (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&r.end, "end", "", "Range end (YYYY-MM-DD or RFC3339)")
}

func (r *rangeFlags) parse() (telemetry.TimeRange, error) {
	period := r.period
	if period == "" && (r.start != "" || r.end != "") {
		period = telemetry.PeriodCustom
	}
	return telemetry.ParseTimeRange(period, r.start, r.end, time.Now())
}

// openQueries builds the read-only query service.
func openQueries(ctx context.Context) (*service.Telemetry, func(), error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStores(ctx, cfg, logger, false)
	if err != nil {
		return nil, nil, err
	}
	closeAll := func() {
		st.Close()
		logger.Sync()
	}
	return service.NewTelemetry(st.frames, st.records, nil, logger), closeAll, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func trainsCmd() *cobra.Command {
	var (
		device string
		rf     rangeFlags
	)

	cmd := &cobra.Command{
		Use:   "trains",
		Short: "Summarize trains seen by a device, or by every device",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := rf.parse()
			if err != nil {
				return err
			}

			ctx := context.Background()
			svc, closeAll, err := openQueries(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			rep, err := svc.TrainSummaries(ctx, device, tr)
			if err != nil {
				return err
			}
			return printJSON(rep)
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Device key (all devices when empty)")
	rf.register(cmd)
	return cmd
}

func warningsCmd() *cobra.Command {
	var (
		device string
		train  string
		xlsx   string
		rf     rangeFlags
	)

	cmd := &cobra.Command{
		Use:   "warnings",
		Short: "List classified warnings, optionally exporting them to a spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := rf.parse()
			if err != nil {
				return err
			}

			ctx := context.Background()
			svc, closeAll, err := openQueries(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			rep, err := svc.Warnings(ctx, service.WarningQuery{DeviceKey: device, TrainID: train, Range: tr})
			if err != nil {
				return err
			}
			if xlsx == "" {
				return printJSON(rep)
			}

			trains, err := svc.TrainSummaries(ctx, device, tr)
			if err != nil {
				return err
			}
			f, err := os.Create(xlsx)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := report.WriteWorkbook(f, rep.Warnings, trains.Trains); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %d warnings and %d trains to %s\n", len(rep.Warnings), len(trains.Trains), xlsx)
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Device key")
	cmd.Flags().StringVarP(&train, "train", "t", "", "Train id")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "Write an .xlsx workbook to this path instead of JSON")
	rf.register(cmd)
	return cmd
}
