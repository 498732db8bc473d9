package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obd2dash/internal/elm"
)

var (
	streamInterval time.Duration
	streamPIDs     []string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "continuously poll sensors and print each snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		if len(streamPIDs) > 0 {
			if err := eng.SetStreamKeys(streamPIDs); err != nil {
				return err
			}
		}

		keys := streamPIDs
		if len(keys) == 0 {
			keys = eng.Registry().StreamKeys()
		}

		dim := color.New(color.FgHiBlack)
		printSnap := func(snap *elm.Snapshot) {
			fmt.Print(snap.Time.Format("15:04:05"))
			for _, k := range keys {
				if v := snap.Values[k]; v != nil {
					fmt.Printf("  %s=%.1f", k, *v)
				} else {
					dim.Printf("  %s=--", k)
				}
			}
			fmt.Println()
		}

		if err := eng.StartRealtime(printSnap, streamInterval); err != nil {
			return err
		}

		<-cmd.Context().Done()
		// A transport failure may already have stopped the loop on its own.
		if err := eng.StopRealtime(); err != nil && !errors.Is(err, elm.ErrNotRunning) {
			return err
		}
		if err := eng.StreamError(); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	streamCmd.Flags().DurationVarP(&streamInterval, "interval", "i", time.Second, "time between snapshots")
	streamCmd.Flags().StringSliceVar(&streamPIDs, "pids", nil, "sensor keys to poll (default: all streamable)")
	rootCmd.AddCommand(streamCmd)
}
