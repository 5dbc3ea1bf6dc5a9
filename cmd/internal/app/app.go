// Package app wires the CodeMonitor command line: config, logging, diagnostics HTTP, the
// terminal views over the realtime sessions, and the local development peer.
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/naval-1647/CodeMonitor/cmd/internal/api"
	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
	"github.com/naval-1647/CodeMonitor/cmd/internal/realtime"
	"github.com/naval-1647/CodeMonitor/cmd/security/token"
)

// App owns the process-wide collaborators shared by the client commands.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	metrics  *realtime.Metrics

	api     *api.Client
	reader  history.Reader
	history *history.Log

	dbPool    *pgxpool.Pool
	dbEnabled bool

	diag *diagnostics
}

// New constructs an App. History comes from Postgres when CODEMONITOR_HISTORY_DATABASE_URL is
// set and from the REST collaborator otherwise.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := api.New(api.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.APITimeout,
		Retries: cfg.APIRetries,
		RPS:     cfg.APIRPS,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  realtime.NewMetrics(reg),
		api:      client,
	}

	reader, err := a.historyReader(ctx)
	if err != nil {
		return nil, err
	}
	a.reader = reader
	a.history = history.NewLog(reader, history.WithLimit(cfg.HistoryLimit), history.WithLogger(log))

	log.Info("app.ready",
		"ws_url", token.RedactURL(cfg.WSURL),
		"api_url", token.RedactURL(cfg.APIURL),
		"token_fp", token.Fingerprint(cfg.Token),
		"history_source", a.historySource(),
	)
	return a, nil
}

// historyReader decides between the Postgres-backed reader and the REST collaborator.
func (a *App) historyReader(ctx context.Context) (history.Reader, error) {
	if a.cfg.HistoryDatabaseURL == "" {
		return a.api, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, err
	}

	// Ownership: the app owns the pool; the reader only borrows it.
	r, err := history.NewPostgresReader(pool, a.cfg.HistoryUserID, history.WithSchema(a.cfg.HistorySchema))
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.dbPool = pool
	a.dbEnabled = true
	return r, nil
}

func (a *App) historySource() string {
	if a.dbEnabled {
		return "postgres"
	}
	return "api"
}

// StartDiagnostics serves /healthz, /readyz and /metrics on cfg.MetricsAddr until ctx ends.
// It is a no-op when no address is configured.
func (a *App) StartDiagnostics(ctx context.Context) error {
	if a.cfg.MetricsAddr == "" {
		return nil
	}
	d, err := startDiagnostics(ctx, a.cfg.MetricsAddr, a.diagnosticsHandler(), a.log)
	if err != nil {
		return err
	}
	a.diag = d
	return nil
}

// NewChatSession returns an unconnected chat session wired to the app's history log.
func (a *App) NewChatSession() (*realtime.ChatSession, error) {
	return realtime.NewChatSession(realtime.ChatOptions{
		BaseURL:      a.cfg.WSURL,
		Token:        a.cfg.Token,
		Logger:       a.log,
		Metrics:      a.metrics,
		History:      a.history,
		ReadyTimeout: a.cfg.ReadyTimeout,
		WriteTimeout: a.cfg.WSWriteTimeout,
	})
}

// JoinRoom starts connecting to roomID as the configured user.
func (a *App) JoinRoom(ctx context.Context, roomID string) (*realtime.RoomSession, error) {
	return realtime.JoinRoom(ctx, realtime.RoomOptions{
		BaseURL:      a.cfg.WSURL,
		Token:        a.cfg.Token,
		RoomID:       roomID,
		Username:     a.cfg.Username,
		Logger:       a.log,
		Metrics:      a.metrics,
		WriteTimeout: a.cfg.WSWriteTimeout,
	})
}

// Close stops the diagnostics server and releases the database pool.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.diag != nil {
		if err := a.diag.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	return errors.Join(errs...)
}
