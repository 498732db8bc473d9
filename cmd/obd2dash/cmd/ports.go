package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obd2dash/internal/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "list available serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListSerialPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return nil
		}
		bold := color.New(color.Bold)
		for _, p := range ports {
			tag := ""
			if p.Bluetooth {
				tag = color.CyanString(" [bluetooth]")
			}
			bold.Print(p.Device)
			if p.Product != "" {
				fmt.Printf("  %s", p.Product)
			}
			fmt.Println(tag)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
