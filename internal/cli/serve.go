package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"oddcert/internal/platform/config"
	"oddcert/internal/platform/httpserver"
	"oddcert/internal/platform/logger"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides ODDCERT_ADDR)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the certification API and background loops",
	Long: "Serves the HTTP API and runs the session sweep, the CAT-72 ticker and,\n" +
		"when KAFKA_BROKERS is set, the audit outbox relay. Configuration is read\n" +
		"from the environment; without DATABASE_URL and REDIS_URL all state is\n" +
		"kept in memory.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.UsesDevSigningKey() {
		log.Warn("agent credentials are signed with the development key; set AGENT_TOKEN_SIGNING_KEY")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting oddcert", "addr", cfg.Addr)
		return httpserver.Run(gctx, httpserver.New(cfg.Addr, a.handler))
	})
	g.Go(func() error { return a.sessions.Run(gctx, cfg.Session.SweepInterval) })
	g.Go(func() error { return a.certs.Run(gctx, cfg.Certification.TickInterval) })
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}

	err = g.Wait()
	log.Info("oddcert stopped", "error", err)
	return err
}
