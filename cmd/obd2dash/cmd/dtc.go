package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obd2dash/internal/obd"
)

var (
	dtcPending   bool
	dtcPermanent bool
)

var dtcCmd = &cobra.Command{
	Use:   "dtc",
	Short: "read diagnostic trouble codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		status := obd.StatusStored
		label := "stored"
		switch {
		case dtcPending:
			status, label = obd.StatusPending, "pending"
		case dtcPermanent:
			status, label = obd.StatusPermanent, "permanent"
		}

		codes, err := eng.ReadDTCs(status)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			color.Green("no %s trouble codes", label)
			return nil
		}
		red := color.New(color.FgRed, color.Bold)
		for _, c := range codes {
			red.Print(c.String())
			fmt.Printf("  (%s)\n", c.Category)
		}
		return nil
	},
}

var dtcClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "clear stored trouble codes and reset the MIL",
	Long: `Sends the clear command and then re-reads the stored set: the clear
counts as successful only when the follow-up read comes back empty.
Pending and permanent codes are not clearable this way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		if err := eng.ClearDTCs(); err != nil {
			return err
		}
		codes, err := eng.ReadDTCs(obd.StatusStored)
		if err != nil {
			return fmt.Errorf("verify clear: %w", err)
		}
		if len(codes) > 0 {
			return fmt.Errorf("clear did not take effect, %d codes remain", len(codes))
		}
		color.Green("trouble codes cleared")
		return nil
	},
}

func init() {
	dtcCmd.Flags().BoolVar(&dtcPending, "pending", false, "read pending codes (mode 07)")
	dtcCmd.Flags().BoolVar(&dtcPermanent, "permanent", false, "read permanent codes (mode 0A)")
	dtcCmd.AddCommand(dtcClearCmd)
	rootCmd.AddCommand(dtcCmd)
}
