package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/uep-dev/uepd/internal/httpapi"
	"github.com/uep-dev/uepd/internal/logging"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run uepd as a headless daemon with an HTTP API",
	Long: `serve wires a Core, starts its System Loop and session timeout
sweeper, and exposes it over HTTP: POST /submit to enqueue text, GET
/state to inspect the State Queue, GET /sessions for the active
General Session, and GET /healthz for a liveness probe.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("starting uepd")
	logging.Info().Str("directory", workDir).Msg("working directory")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, _, err := buildCore(ctx, workDir)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting core: %w", err)
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Port = servePort
	srv := httpapi.New(httpCfg, c)

	go func() {
		logging.Info().
			Int("port", servePort).
			Str("url", fmt.Sprintf("http://127.0.0.1:%d", servePort)).
			Msg("http api listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http server shutdown error")
	}

	c.Stop()
	logging.Info().Msg("stopped")
	return nil
}
