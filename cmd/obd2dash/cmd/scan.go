package cmd

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "read every supported sensor once",
	Long:  `Connects to the vehicle and reads every registered sensor one time, printing the decoded values. Unsupported PIDs are listed at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		snap, err := eng.ReadAll(nil)
		if err != nil {
			return err
		}

		reg := eng.Registry()
		var missing []string
		keys := reg.Keys()
		sort.Strings(keys)
		bold := color.New(color.Bold)
		for _, key := range keys {
			v, ok := snap.Values[key]
			if !ok || v == nil {
				missing = append(missing, key)
				continue
			}
			def, _ := reg.Get(key)
			bold.Printf("%-22s", key)
			fmt.Printf(" %10.2f %-6s %s\n", *v, def.Unit, def.Desc)
		}
		if len(missing) > 0 {
			fmt.Printf("\nnot supported by this vehicle: %v\n", missing)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
