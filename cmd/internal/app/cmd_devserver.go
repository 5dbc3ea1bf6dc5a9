package app

import (
	"context"
	"flag"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/naval-1647/CodeMonitor/cmd/internal/devserver"
)

// newDevHandler builds the development peer and its HTTP surface: the peer's routes, /metrics,
// CORS on the REST routes, request logging.
func newDevHandler(cfg Config, log Logger) (*devserver.Server, http.Handler) {
	reg := prometheus.NewRegistry()

	dev := devserver.New(devserver.Config{
		Logger:         log,
		Metrics:        devserver.NewMetrics(reg),
		Tokens:         devserver.ParseTokens(cfg.DevTokens),
		AllowAnyToken:  cfg.DevAllowAnyToken,
		Generator:      devserver.EchoGenerator{Delay: cfg.DevChunkDelay},
		RateLimit:      cfg.DevRateLimit,
		RateWindow:     cfg.DevRateWindow,
		AllowedOrigins: cfg.DevAllowedOrigins,
		WriteTimeout:   cfg.WSWriteTimeout,
	})

	peer := dev.Handler()
	mux := http.NewServeMux()
	mux.Handle("/api/", WithCORS(peer, cfg.DevAllowedOrigins, log))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", peer)

	return dev, WithSecurityHeaders(WithRequestLogging(mux, log))
}

func runDevserver(ctx context.Context, cfg Config, log Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("devserver", flag.ContinueOnError)
	fs.SetOutput(out)
	addr := fs.String("addr", cfg.DevAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dev, h := newDevHandler(cfg, log)
	defer func() {
		if err := dev.Close(); err != nil {
			log.Error("devserver.close.fail", "err", err)
		}
	}()

	base := runtimeBaseURL(*addr)
	log.Info("devserver.start",
		"addr", *addr,
		"api_url", base,
		"ws_url", wsBaseURL(base),
		"allow_any_token", cfg.DevAllowAnyToken,
	)

	return serveUntilDone(ctx, newHTTPServer(*addr, h), log)
}
