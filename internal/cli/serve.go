package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jizhang/internal/amqp"
	"jizhang/internal/cache"
	apphttp "jizhang/internal/http"
	"jizhang/internal/log"
	"jizhang/internal/realtime"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = 5 * time.Minute
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the websocket change stream",
		Long: `Serve the ledger over HTTP on BIND_ADDR:PORT. Changes are streamed to
websocket clients on /ws and, when AMQP_URL is set, published to the broker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	hub := realtime.NewHub(store, logger)
	go hub.Run(background)
	store.Subscribe(hub)

	var publisher *amqp.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The ledger works without the feed.
			logger.WarnContext(ctx, "Failed to connect to AMQP, change feed disabled", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = amqp.NewPublisher(client, 0)
			go publisher.Run(background)
			store.Subscribe(publisher)
			logger.InfoContext(ctx, "Publishing ledger changes", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	suggester := NewSuggestService(ctx, cfg, logger)
	caches := cache.NewManager()
	caches.Register("suggest", suggester.Cache())
	caches.Start(background, cacheCleanupInterval)

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Ledger:    store,
		Suggester: suggester,
		Realtime:  hub,
		Logger:    logger.WithComponent(log.ComponentHTTP),

		TrustedProxies: cfg.TrustedProxyCIDRs(),
	})

	stop := func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Server shutdown error", log.FieldError, err)
		}
		if publisher != nil {
			if err := publisher.Close(shutdownCtx); err != nil {
				logger.WarnContext(shutdownCtx, "Change feed not drained", log.FieldError, err)
			}
		}
		caches.Stop()
		stopBackground()
	}

	parent, cancel := context.WithCancel(ctx)
	defer cancel()
	shutdownCtx, done := GracefulShutdown(parent, logger, shutdownTimeout, stop)

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "Starting jizhang server",
			"addr", cfg.Addr(), "backend", cfg.DataBackend, "suggest", cfg.SuggestEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		// The listener failed; run the same shutdown path.
		cancel()
		<-done
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
		<-done
		logger.InfoContext(ctx, "Server stopped gracefully")
		return <-errCh
	}
}
