package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"icokit/internal/handler"
	"icokit/pkg/logger"
	"icokit/pkg/metrics"
	"icokit/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP conversion service",
	Long: `Serve encode, decode and inspect over HTTP.

Endpoints:
  POST /v1/encode?size=&stack=&url=   source image -> image/x-icon
  POST /v1/decode?format=&url=        ICO -> png, webp or avif
  POST /v1/inspect?url=               ICO -> JSON report
  GET  /healthz
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":8080", "listen address")
	mustBind("server.addr", f.Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := app.cfg

	hcfg := handler.NewConfig(app.codec, app.fetcher)
	hcfg.MaxBodyBytes = cfg.Server.MaxBodyBytes
	hcfg.DefaultSize = cfg.SizeRequest()
	hcfg.DefaultStack = cfg.Encode.Stack
	hcfg.DecodeFormat = cfg.Decode.Format
	hcfg.BrowserMaxAge = cfg.Server.BrowserMaxAge
	hcfg.UseETag = cfg.Server.UseETag

	limiter := ratelimit.NewLimiter(cfg.RateLimit.GlobalRate, cfg.RateLimit.GlobalBurst, cfg.RateLimit.IPRate, cfg.RateLimit.IPBurst)
	defer limiter.Stop()

	var h http.Handler = handler.NewMux(hcfg)
	h = limiter.Middleware(h, metrics.Get().IncRequestLimited)
	h = metrics.Middleware(h)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s (max %d connections)", ln.Addr(), cfg.Server.MaxConns)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
