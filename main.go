package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/chfgma/clicktocall/config"
	"github.com/chfgma/clicktocall/server"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	v := viper.New()

	var (
		configFile string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "clicktocall",
		Short:        "Serve the click-to-call demo",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load(v, configFile)
			if err != nil {
				logger.Error("error loading configuration", zap.Error(err))
				return err
			}
			if err := cfg.MissingCredential(); err != nil {
				logger.Warn("calls will fail until configured", zap.Error(err))
			}

			router, err := server.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.Serve(ctx, &http.Server{
				Addr:              cfg.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "path to an optional settings file (yaml, toml or json)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "human readable debug logging")
	flags.String("host", "", "interface to listen on (default all)")
	flags.StringP("port", "p", "8080", "port to listen on")

	// Flags only override the environment when set explicitly.
	_ = v.BindPFlag("host", flags.Lookup("host"))
	_ = v.BindPFlag("port", flags.Lookup("port"))

	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
