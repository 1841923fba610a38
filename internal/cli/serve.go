package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/engram/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long:  "Serves the JSON API and /metrics. The consolidation check runs at startup and then every serve.check_interval.",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default :7777)")
	v.BindPFlag("addr", cmd.Flags().Lookup("addr"))

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustOpen(cmd, true)
	defer a.Close()

	every := a.cfg.CheckEvery
	if !a.cfg.AutoConsolidate || noAuto {
		every = 0
	}

	srv := server.New(a.eng, a.log, a.metrics)
	a.log.Info("listening", zap.String("addr", a.cfg.Addr), zap.Duration("check_every", every))
	if err := srv.Run(ctx, a.cfg.Addr, every); err != nil {
		exitErr("serve", err)
	}
}
