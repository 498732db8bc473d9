package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var freezeFrame int

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "read the freeze frame captured when a trouble code was set",
	Long: `Reads every registered sensor from the stored freeze frame (mode 02).
Vehicles capture the frame at the moment a trouble code sets; with no
stored codes there is usually no frame and every read comes back empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		reg := eng.Registry()
		bold := color.New(color.Bold)
		found := 0
		for _, key := range reg.Keys() {
			v, err := eng.ReadFreezeFrame(key, freezeFrame)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if v == nil {
				continue
			}
			def, _ := reg.Get(key)
			bold.Printf("%-22s", key)
			fmt.Printf(" %10.2f %s\n", *v, def.Unit)
			found++
		}
		if found == 0 {
			fmt.Printf("no data in freeze frame %d\n", freezeFrame)
		}
		return nil
	},
}

func init() {
	freezeCmd.Flags().IntVar(&freezeFrame, "frame", 0, "freeze frame index")
	rootCmd.AddCommand(freezeCmd)
}
