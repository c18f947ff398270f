package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bookservice/internal/book"
	"bookservice/internal/clients"
	"bookservice/internal/config"
	"bookservice/internal/server"
	"bookservice/internal/telemetry"
)

const readHeaderTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := a.logger()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a.cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("port", "", "HTTP port to listen on")
	flags.String("author-service-url", "", "base URL of the author service")
	flags.String("borrower-service-url", "", "base URL of the borrower service")
	flags.Duration("check-timeout", 0, "timeout of a single existence check")
	flags.Bool("auto-migrate", false, "create the database schema before serving")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	providers, err := telemetry.Setup(ctx, cfg.ServiceName, version, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush telemetry", "error", err)
		}
	}()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	httpClient := &http.Client{Transport: http.DefaultTransport}
	authors := clients.NewExistenceClient(string(book.EntityAuthor), cfg.AuthorServiceURL,
		clients.WithHTTPClient(httpClient),
		clients.WithTimeout(cfg.CheckTimeout),
		clients.WithCircuitBreaker(uint32(cfg.BreakerFailures), cfg.BreakerOpenFor),
		clients.WithLogger(logger),
	)
	borrowers := clients.NewExistenceClient(string(book.EntityBorrower), cfg.BorrowerServiceURL,
		clients.WithHTTPClient(httpClient),
		clients.WithTimeout(cfg.CheckTimeout),
		clients.WithCircuitBreaker(uint32(cfg.BreakerFailures), cfg.BreakerOpenFor),
		clients.WithLogger(logger),
	)

	svc := book.NewService(st.books, authors, borrowers,
		book.WithHistory(st.history),
		book.WithLogger(logger),
	)
	router := server.NewRouter(book.NewHandler(svc, logger), st.pinger, server.Options{
		Logger:         logger,
		TracerProvider: providers.TracerProvider,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting book service", "port", cfg.Port, "driver", cfg.DatabaseDriver, "version", version)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down book service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
