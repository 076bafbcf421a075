package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strrl/brightspots/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long: `Load the survey and serve the aggregation API over HTTP. Write endpoints
are only available with --admin. When server.deltas_dir is configured the server
also stores delta files, so it can act as the remote deltas folder.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(server.Config{
		Addr:         addr,
		Admin:        cfg.Admin,
		DeltasDir:    cfg.Server.DeltasDir,
		AllowOrigins: cfg.Server.AllowOrigins,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		PushWait:     cfg.GetTimeout(),
	}, s.Dashboard, logger.Named("server"))

	fmt.Printf("Serving %d records on %s (admin: %v)\n", s.Stats().Records, addr, cfg.Admin)
	return srv.Run(ctx)
}
