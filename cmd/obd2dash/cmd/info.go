package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obd2dash/internal/elm"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "print adapter and vehicle identification",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		printField("Adapter", eng.Version)
		printField("Protocol", eng.Protocol)
		printField("Battery", eng.BatteryVoltage)
		printField("VIN", eng.ReadVIN)
		printField("ECU name", eng.ReadECUName)
		printField("Calibration", eng.ReadCalibrationID)

		if mil, err := eng.MILStatus(); err == nil && mil != nil {
			label := color.GreenString("off")
			if mil.MILOn {
				label = color.RedString("ON (%d codes)", mil.DTCCount)
			}
			fmt.Printf("%-14s %s\n", "MIL", label)
		}
		return nil
	},
}

func printField(label string, read func() (string, error)) {
	v, err := read()
	switch {
	case errors.Is(err, elm.ErrNoData):
		v = color.HiBlackString("not reported")
	case err != nil:
		v = color.RedString("error: %v", err)
	}
	fmt.Printf("%-14s %s\n", label, v)
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
