package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/obd2dash/internal/server"
	"github.com/shaunagostinho/obd2dash/internal/session"
	"github.com/shaunagostinho/obd2dash/internal/telemetry"
	"github.com/shaunagostinho/obd2dash/web"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the web dashboard",
	Long: `Starts realtime polling and serves the dashboard UI, WebSocket feed
and REST API. With telemetry enabled, snapshots are also published to MQTT.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if listenAddr != "" {
			cfg.Server.ListenAddr = listenAddr
		}

		eng, closer, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer closer()

		var store *session.Store
		if cfg.Store.Path != "" {
			store, err = session.OpenStore(cfg.Store.Path)
			if err != nil {
				log.Printf("[store] open failed, running without persistence: %v", err)
			} else {
				defer store.Close()
			}
		}

		srv := server.New(cfg, eng, store, web.FS)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.Run(ctx)
		})

		if cfg.Telemetry.Enabled {
			pub := telemetry.NewPublisher(cfg.Telemetry, func() any {
				if snap := srv.Session().Latest(); snap != nil {
					return snap
				}
				return nil
			})
			g.Go(func() error {
				if err := pub.Connect(); err != nil {
					// The dashboard keeps running without telemetry.
					log.Printf("[mqtt] disabled: %v", err)
					return nil
				}
				pub.Start()
				<-ctx.Done()
				pub.Stop()
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
