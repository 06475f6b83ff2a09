package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phstat/phstat/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
			if daemonVersion, err := apiClient.GetVersion(); err == nil {
				cmd.Printf("daemon: %s\n", daemonVersion)
			}
		},
	}
}

func NewRangeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "range [min] [max]",
		Short:   "Get or set the safe pH band",
		GroupID: gBasic,
		Long: `Get or set the safe pH band.

With no arguments, prints the current band. With two arguments, sets it:
min is the pH at or below which a base dose fires, max the pH at or above
which an acid dose fires. The hysteresis exit thresholds follow the new
band, keeping their current widths.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				r, err := apiClient.GetPHRange()
				if err != nil {
					return fmt.Errorf("failed to get pH range: %v", err)
				}
				cmd.Printf("safe pH band: [%.2f, %.2f]\n", r.Min, r.Max)
				return nil
			}

			min, max, err := parseRangeArgs(args)
			if err != nil {
				return err
			}

			ret, err := apiClient.SetPHRange(min, max)
			if err != nil {
				return fmt.Errorf("failed to set pH range: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set safe pH band to [%.2f, %.2f]", min, max)

			return nil
		},
	}
}

func NewCalibrationCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "calibration",
		Short:   "Show the probe calibration",
		GroupID: gBasic,
		Long:    `Show the configured reference points and the least-squares curve derived from them. Verify with pH = slope*voltage + intercept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cal, err := apiClient.GetCalibration()
			if err != nil {
				return fmt.Errorf("failed to get calibration: %v", err)
			}

			for _, p := range cal.Points {
				cmd.Printf("pH %5.2f @ %.3f V\n", p.PH, p.Voltage)
			}
			cmd.Printf("slope     = %.6f\n", cal.Curve.Slope)
			cmd.Printf("intercept = %.6f\n", cal.Curve.Intercept)

			return nil
		},
	}
}

func NewCycleCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "cycle",
		Short:   "Force one control cycle now",
		GroupID: gAdvanced,
		Long: `Force one control cycle outside the sampling cadence.

Mainly useful during commissioning. The cycle still honors the minimum
gap between doses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tel, err := apiClient.ForceCycle()
			if err != nil {
				return fmt.Errorf("failed to force a control cycle: %v", err)
			}

			line, err := tel.MarshalJSON()
			if err != nil {
				return err
			}
			cmd.Println(string(line))

			return nil
		},
	}
}

func parseRangeArgs(args []string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("expected either no arguments or exactly two: min and max")
	}

	min, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid min: %v", err)
	}
	max, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid max: %v", err)
	}

	return min, max, nil
}
