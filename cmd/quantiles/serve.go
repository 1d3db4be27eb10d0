package main

import (
	"errors"
	"log/slog"
	"net/http"
	"quantiles/app"
	"quantiles/clock"
	"quantiles/config"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		httpHost   string
		otelHost   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Ingest OTLP traces and serve quantiles of span durations",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if c.Flags().Changed("http-host") {
				cfg.Http.Host = httpHost
			}
			if c.Flags().Changed("otel-host") {
				cfg.Otel.Host = otelHost
			}

			quantilesApp, err := app.NewApp(cfg, clock.NewSystemClock(), func(host string, handler http.Handler) app.HttpServer {
				return app.NewGoHttpServer(host, handler)
			})
			if err != nil {
				return err
			}

			if startErr := quantilesApp.Start(); startErr != nil {
				return errors.Join(startErr, quantilesApp.Stop())
			}
			<-c.Context().Done()
			slog.Info("Shutting down")
			return quantilesApp.Stop()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "quantiles.json", "Path to the JSON configuration.")
	cmd.Flags().StringVar(&httpHost, "http-host", "", "Address to listen on, overrides the configuration.")
	cmd.Flags().StringVar(&otelHost, "otel-host", "", "OTLP collector to report to, overrides the configuration.")
	return cmd
}
