package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wattverify/chain/internal/app"
	"github.com/wattverify/chain/internal/config"
	"github.com/wattverify/chain/internal/logging"
)

func newStartCmd(v *viper.Viper) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the ABCI application server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home := v.GetString("home")
			v.SetConfigFile(filepath.Join(home, "config.toml"))
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config (run init-genesis first?): %w", err)
			}

			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log := logging.New(logLevel)

			a, err := app.New(home, log)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			srv, err := server.NewServer(cfg.ABCIAddr, cfg.ABCITransport, a)
			if err != nil {
				return fmt.Errorf("build abci server: %w", err)
			}
			if err := srv.Start(); err != nil {
				return fmt.Errorf("start abci server: %w", err)
			}
			defer func() { _ = srv.Stop() }()

			log.Info().Str("addr", cfg.ABCIAddr).Str("transport", cfg.ABCITransport).Msg("abci server started")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	return cmd
}
