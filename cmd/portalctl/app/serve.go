package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	promexport "github.com/PatonaIM/teamified-accounts-sub013/metrics/export/prometheus"
	"github.com/PatonaIM/teamified-accounts-sub013/ratelimit"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 35 * time.Second // longer than gatewayRequestTimeout
	serverIdleTimeout      = 60 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rate-limiting auth gateway",
		Long: `Run an HTTP gateway in front of the portal API. Login, password reset,
refresh and token exchange requests are rate limited per client address
before being proxied; everything else is proxied unchanged.

Counters live in the shared Redis store when --redis-url (or REDIS_URL) is
set and reachable, and in process memory otherwise.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().Bool("trust-forwarded-for", false, "Key clients on the first X-Forwarded-For hop")
	for _, name := range []string{"address", "trust-forwarded-for"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	address := viper.GetString("address")
	rawUpstream := viper.GetString("api-url")
	if rawUpstream == "" {
		return fmt.Errorf("api-url is required")
	}
	upstream, err := url.Parse(rawUpstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return fmt.Errorf("api-url must be an absolute url: %q", rawUpstream)
	}

	logger := slog.Default()
	m := metrics.New(metrics.Config{Enabled: true, EnableLatencyHistograms: true})
	limiter := ratelimit.New(ratelimit.Config{RedisURL: viper.GetString("redis-url")},
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(m),
	)
	defer func() {
		if err := limiter.Close(); err != nil {
			logger.Warn("rate limiter close failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewExporter(limiter).Collector(),
	)

	server := &http.Server{
		Addr: address,
		Handler: newGateway(gatewayOptions{
			upstream:          upstream,
			limiter:           limiter,
			registry:          registry,
			trustForwardedFor: viper.GetBool("trust-forwarded-for"),
		}),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		logger.Info("gateway listening", "address", address, "upstream", upstream.String(), "mode", limiter.Mode())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
