package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"claimdesk/internal/adapters/httpapi"
	"claimdesk/internal/blob"
	"claimdesk/internal/config"
	"claimdesk/internal/core"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := cfg.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, nil)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// serve runs the API until ctx is done. ready, when set, receives the bound
// listen address once the server accepts connections.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, ready func(addr string)) error {
	rows, err := core.OpenRowStore(ctx, cfg.Storage())
	if err != nil {
		return fmt.Errorf("open row store: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.Warn("close row store", "error", cerr)
		}
	}()
	docs, err := blob.Open(ctx, cfg.BlobStore())
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := httpapi.NewRegistry()
	svc := core.NewServices(rows, docs, cfg.MaxDocumentBytes(),
		core.WithMetrics(core.NewPrometheusMetricsRecorder(registry)))
	handler := httpapi.NewServer(httpapi.NewHandler(svc, logger, registry), httpapi.Options{
		Logger:    logger,
		Metrics:   httpapi.NewHTTPMetrics(registry),
		RateLimit: cfg.HTTP.RateLimit,
		RateBurst: cfg.HTTP.RateBurst,
	})

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("claimdesk listening",
		"addr", ln.Addr().String(),
		"database_driver", cfg.Database.Driver,
		"blob_driver", docs.Driver(),
	)
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
