// Command directory-proxy serves the profile directory as JSON: one page of
// profiles with its pagination window, filter options and tag counts.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/profiledir/directory-client/pkg/logging"
)

func main() {
	cfg, err := LoadConfig(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "directory-proxy",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer srv.Close()

	httpSrv := srv.httpServer()
	go func() {
		logger.Info().
			Str("addr", httpSrv.Addr).
			Stringer("hash", srv.fallback.Hash()).
			Str("config", cfg.String()).
			Msg("Starting directory proxy")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Forced shutdown")
	}
}
