package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/everydev1618/nbslot/serve"
)

var (
	serveAddr          string
	serveLaunchTimeout time.Duration
	serveKeep          bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the launch API over HTTP",
	Long: `Start the HTTP API:

  POST /api/launch   launch and return {"url": ...} (?redirect=1 answers 302)
  GET  /api/slot     current slot occupant
  GET  /api/health   runtime reachability
  GET  /api/events   launch events (SSE)`,
	Example: `  nbslot serve
  nbslot serve --addr :9000 --launch-timeout 5m`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		opts := []serve.Option{serve.WithLogger(a.logger)}
		if a.cfg.Sweep.Schedule != "" {
			sched := serve.NewScheduler(a.logger)
			err := sched.AddJob(serve.Job{
				Name: "sweep-helpers",
				Cron: a.cfg.Sweep.Schedule,
				Run: func(ctx context.Context) error {
					_, err := a.runtime.RemoveStaleHelpers(ctx, a.cfg.Sweep.MaxAge)
					return err
				},
			})
			if err != nil {
				return err
			}
			opts = append(opts, serve.WithScheduler(sched))
		}

		srv := serve.New(a.launcher, a.slot, a.runtime, serve.Config{
			Addr:          addr,
			LaunchTimeout: serveLaunchTimeout,
		}, opts...)

		err = srv.Start(cmd.Context())

		if !serveKeep {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if cerr := a.launcher.Close(ctx); cerr != nil {
				a.logger.Warn("failed to tear down slot", "error", cerr)
			}
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address (overrides config)")
	serveCmd.Flags().DurationVar(&serveLaunchTimeout, "launch-timeout", 0, "bound on a single launch request, queueing included")
	serveCmd.Flags().BoolVar(&serveKeep, "keep", false, "leave the slot occupant running on shutdown")
}
