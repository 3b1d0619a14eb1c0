package cmd

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentoven/ragjenkins/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web UI and HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig()
		srv, err := server.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		defer srv.ShutdownFunc(cmd.Context())

		log.Info().Str("version", cfg.Version).Msg("🛠️  ragjenkins starting...")
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "listen port (default from PORT or 8501)")
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}
