package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/vision/internal/device"
)

func newDevicesCmd(a *app) *cobra.Command {
	var minLevel string
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the execution devices skills can run on",
		Long: `List the CPU and every GPU adapter meeting the minimum feature level.
The entry marked with * is the one selected by --device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := a.cfg.MinFeatureLevel()
			if err != nil {
				return err
			}
			if minLevel != "" {
				if level, err = device.ParseFeatureLevel(minLevel); err != nil {
					return errors.Wrap(err, "--min-level")
				}
			}
			devices, err := device.Enumerate(cmd.Context(), a.enumerator, level)
			if err != nil {
				return errors.Wrap(err, "enumerate devices")
			}

			a.out.Section("Execution devices (minimum feature level " + level.String() + ")")
			for i, d := range devices {
				a.out.Item(i, d.String(), i == a.cfg.Device.Index)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&minLevel, "min-level", "", "minimum GPU feature level such as 12_0 (default from config)")
	return cmd
}
