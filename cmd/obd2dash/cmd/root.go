package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/obd2dash/internal/elm"
	"github.com/shaunagostinho/obd2dash/internal/server"
	"github.com/shaunagostinho/obd2dash/internal/transport"
)

var rootCmd = &cobra.Command{
	Use:   "obd2dash",
	Short: "OBD-II dashboard and diagnostics over an ELM327 adapter",
	Long: `obd2dash talks to a vehicle through an ELM327-compatible adapter:
live sensor streaming, trouble-code reads and clears, freeze frames,
vehicle info and a web dashboard.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-quitChan
		log.Printf("got %v, exiting", s)
		cancel()
		// Failsafe if there are deadlocks
		<-time.After(30 * time.Second)
		log.Fatal("took too long to shut down, forcefully exiting")
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var (
	configPath string
	demoMode   bool
	portPath   string
	baudRate   int
)

func init() {
	log.SetFlags(log.Ldate | log.Ltime)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/obd2dash/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "run against a simulated adapter and vehicle")
	rootCmd.PersistentFlags().StringVarP(&portPath, "port", "p", "", "serial port path (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "baud rate (overrides config)")
}

// loadConfig merges the config file with command-line overrides.
func loadConfig() *server.Config {
	cfg := server.LoadConfig(configPath)
	if demoMode {
		cfg.Adapter.Type = "demo"
	}
	if portPath != "" {
		cfg.Adapter.PortPath = portPath
		if cfg.Adapter.Type == "demo" && !demoMode {
			cfg.Adapter.Type = "usb"
		}
	}
	if baudRate != 0 {
		cfg.Adapter.BaudRate = baudRate
	}
	return cfg
}

func buildPort(cfg *server.Config) transport.Port {
	switch cfg.Adapter.Type {
	case "usb", "serial":
		return transport.NewSerialPort(transport.SerialConfig{
			Path:     cfg.Adapter.PortPath,
			BaudRate: cfg.Adapter.BaudRate,
		})
	case "bluetooth", "bt":
		return transport.NewBluetoothPort(transport.SerialConfig{
			Path:     cfg.Adapter.PortPath,
			BaudRate: cfg.Adapter.BaudRate,
		})
	default:
		return transport.NewDemoPort()
	}
}

// openEngine connects to the adapter with backoff and runs the handshake.
// The returned closer disconnects the port.
func openEngine(cfg *server.Config) (*elm.Engine, func(), error) {
	port := buildPort(cfg)

	err := retry.Do(
		port.Connect,
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[%s] connect attempt %d failed: %v", port.Component(), n+1, err)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", port.Name(), err)
	}

	eng := elm.New(port, elm.Config{})
	if err := eng.Initialize(); err != nil {
		port.Disconnect()
		return nil, nil, fmt.Errorf("adapter handshake: %w", err)
	}
	if cfg.Adapter.Protocol != 0 {
		if err := eng.SetProtocol(cfg.Adapter.Protocol); err != nil {
			port.Disconnect()
			return nil, nil, fmt.Errorf("set protocol: %w", err)
		}
	}
	return eng, func() { port.Disconnect() }, nil
}
