package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/auth"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/bunx"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/logging"
	gatemiddleware "github.com/zgramming/cmsgate/cmd/gateapi/internal/middleware"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/migrations"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/repository"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/server"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/telemetry"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long:  `Starts the HTTP gateway: auth endpoints, access checks and the gated proxy to the admin SPA.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()

		db, err := bunx.NewDB(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)
		logger.WithField("type", bunx.DetectDatabaseType(cfg.Database.URL)).Info("connected to database")

		if cfg.Database.AutoMigrate {
			group, err := migrations.Apply(ctx, db)
			if err != nil {
				return err
			}
			if group != 0 {
				logger.WithField("group", group).Info("applied migrations")
			}
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := telemetry.NewMetrics(reg)

		revoker := auth.NewRevoker(
			repository.NewBunRevokedTokenRepository(db),
			cfg.Revocation.GracePeriod,
			logging.WithComponent(logger, "revocation"),
			auth.WithRevocationObserver(metrics.RecordRevocation),
		)
		revoker.StartSweeper(ctx, cfg.Revocation.SweepInterval)

		identity := sdk.NewIdentityClient(cfg.Identity.BaseURL, &http.Client{Timeout: cfg.Identity.RequestTimeout})
		verifier := sdk.NewVerifier(cfg.Identity.BaseURL,
			sdk.WithVerifyTimeout(cfg.Identity.VerifyTimeout),
			sdk.WithVerifyLogger(logging.WithComponent(logger, "verifier")),
			sdk.WithVerifyObserver(metrics.RecordVerification),
		)
		resolver := gatemiddleware.NewSessionResolver(gatemiddleware.SessionDependencies{
			Verifier:    verifier,
			Exchanger:   identity,
			Revocations: revoker,
			Metrics:     metrics,
			Log:         logging.WithComponent(logger, "session"),
		})

		upstream, err := server.NewUpstreamProxy(cfg.Upstream.URL, logging.WithComponent(logger, "proxy"))
		if err != nil {
			return err
		}

		loginLimiter := gatemiddleware.NewRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst).
			OnLimit(func() { metrics.RecordLogin("rate_limited") })
		refreshLimiter := gatemiddleware.NewRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)

		var corsOpts *cors.Options
		if len(cfg.CORS.AllowedOrigins) > 0 {
			opts := server.DefaultCORSOptions(cfg.CORS.AllowedOrigins)
			corsOpts = &opts
		}

		router := server.NewRouter(server.RouterOptions{
			Identity:       identity,
			Resolver:       resolver,
			Revoker:        revoker,
			Cookies:        auth.CookieWriter{Secure: cfg.Cookie.Secure},
			Metrics:        metrics,
			Gatherer:       reg,
			Log:            logging.WithComponent(logger, "http"),
			LoginLimiter:   loginLimiter,
			RefreshLimiter: refreshLimiter,
			Upstream:       upstream,
			CORSOptions:    corsOpts,
		})

		srv := &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.WithFields(map[string]any{
				"addr":     cfg.Server.Addr,
				"identity": cfg.Identity.BaseURL,
				"upstream": cfg.Upstream.URL,
			}).Info("starting gateway")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.WithField("signal", sig.String()).Info("shutting down gracefully")
			stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			logger.Info("gateway stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
