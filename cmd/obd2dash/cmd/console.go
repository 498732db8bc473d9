package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obd2dash/internal/elm"
	"github.com/shaunagostinho/obd2dash/internal/obd"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "interactive adapter console",
	Long: `An interactive prompt wired straight to the adapter. Type raw AT or
OBD commands ("AT RV", "010C"), a named command ("VOLTAGE"), a sensor
key ("RPM"), or "help" / "exit".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		fmt.Println(`type "help" for named commands, "exit" to quit`)
		prompt := promptui.Prompt{Label: "obd"}

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			default:
			}

			line, err := prompt.Run()
			if err != nil {
				// ^C / ^D ends the session.
				if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
					return nil
				}
				return err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch strings.ToLower(line) {
			case "exit", "quit":
				return nil
			case "help":
				printConsoleHelp(eng)
				continue
			}

			runConsoleLine(eng, line)
		}
	},
}

func runConsoleLine(eng *elm.Engine, line string) {
	upper := strings.ToUpper(line)

	// Named AT command?
	if cmd, ok := obd.ATCommands[upper]; ok {
		line = cmd
	} else if def, ok := eng.Registry().Get(upper); ok {
		// Sensor key: read and decode instead of raw send.
		v, err := eng.ReadPID(upper)
		switch {
		case err != nil:
			color.Red("error: %v", err)
		case v == nil:
			color.HiBlack("no data")
		default:
			fmt.Printf("%.2f %s\n", *v, def.Unit)
		}
		return
	}

	resp, err := eng.SendRaw(line)
	if err != nil {
		color.Red("error: %v", err)
		return
	}
	fmt.Println(strings.TrimSpace(resp))
}

func printConsoleHelp(eng *elm.Engine) {
	names := make([]string, 0, len(obd.ATCommands))
	for n := range obd.ATCommands {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Println("named commands:")
	for _, n := range names {
		fmt.Printf("  %-16s %s\n", n, obd.ATCommands[n])
	}
	fmt.Println("sensor keys:")
	fmt.Printf("  %s\n", strings.Join(eng.Registry().Keys(), " "))
}
