package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/phstat/phstat/pkg/client"
	"github.com/phstat/phstat/pkg/config"
	"github.com/phstat/phstat/pkg/types"
)

type statusData struct {
	status *client.DaemonStatus
	config *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	status, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get daemon status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		status: status,
		config: conf,
	}, nil
}

func bold(format string, a ...any) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of phstat",
		Long:    `Get the latest reading, dosing state, and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			conf := config.NewFileFromConfig(data.config, "")
			t := conf.Thresholds()
			s := data.status

			cmd.Println(bold("Reading:"))
			if s.Telemetry == nil {
				cmd.Println("  No control cycle has completed yet.")
			} else {
				ph := s.Telemetry.PH
				phStr := bold("%.2f", ph)
				switch {
				case ph <= t.LowEnter:
					phStr = color.New(color.Bold, color.FgRed).Sprintf("%.2f (too acidic)", ph)
				case ph >= t.HighEnter:
					phStr = color.New(color.Bold, color.FgRed).Sprintf("%.2f (too basic)", ph)
				default:
					phStr = color.New(color.Bold, color.FgGreen).Sprintf("%.2f", ph)
				}
				cmd.Printf("  pH: %s\n", phStr)
				cmd.Printf("  Probe voltage: %s\n", bold("%.3f V", s.Telemetry.Voltage))
				cmd.Printf("  Cycles completed: %s\n", bold("%d", s.Cycles))
			}

			cmd.Println()
			cmd.Println(bold("Dosing:"))
			if s.LastDoseAt == nil {
				cmd.Println("  No dose has fired since startup.")
			} else {
				kind := "base"
				if s.LastDoseKind == types.PumpAcidic {
					kind = "acid"
				}
				when := *s.LastDoseAt
				if ts, err := time.Parse(time.RFC3339Nano, when); err == nil {
					when = fmt.Sprintf("%s ago", time.Since(ts).Round(time.Second))
				}
				cmd.Printf("  Last dose: %s\n", bold("%s, %s", kind, when))
			}
			if s.DoseAllowed {
				cmd.Println("  Next dose: allowed now, if the pH drifts out of band.")
			} else {
				cmd.Println("  Next dose: waiting out the minimum gap between bursts.")
			}

			cmd.Println()
			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Safe band: dose base at pH %s, dose acid at pH %s\n",
				bold("<= %.2f", t.LowEnter), bold(">= %.2f", t.HighEnter))
			cmd.Printf("  Hysteresis exits: base stops requesting at %s, acid at %s\n",
				bold("%.2f", t.LowExit), bold("%.2f", t.HighExit))
			cmd.Printf("  Burst duration: %s\n", bold("%s", conf.BurstDuration()))
			cmd.Printf("  Minimum gap between bursts: %s\n", bold("%s", conf.MinGap()))
			cmd.Printf("  Sampling interval: %s\n", bold("%s", conf.SampleInterval()))
			cmd.Printf("  Filter window: %s samples\n", bold("%d", conf.FilterWindow()))
			cmd.Printf("  Calibration curve: pH = %s * voltage + %s\n",
				bold("%.4f", s.Curve.Slope), bold("%.4f", s.Curve.Intercept))

			return nil
		},
	}
}
