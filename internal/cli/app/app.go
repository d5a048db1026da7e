// Package app assembles the client stack from configuration and hands it to
// the cobra commands through the command context.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"commenthub/internal/api"
	"commenthub/internal/comments"
	"commenthub/internal/config"
	"commenthub/internal/live"
	"commenthub/internal/metrics"
	"commenthub/internal/session"
	"commenthub/internal/store"
	"commenthub/pkg/logger"
)

const userAgent = "commenthub-cli/1.0"

// App holds the wired client components
type App struct {
	Config   *config.Config
	Client   *api.Client
	Session  *session.Manager
	Comments *comments.Synchronizer
	Registry *prometheus.Registry

	store *store.Store
}

// New builds every component and restores the persisted session
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		Redis: store.RedisOptions{
			Addr:      cfg.Store.RedisAddr,
			DB:        cfg.Store.RedisDB,
			Namespace: cfg.Store.Namespace,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	client := api.NewClient(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.Timeout),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		api.WithMetrics(collector),
		api.WithUserAgent(userAgent),
	)
	mgr := session.NewManager(client, st, session.WithMetrics(collector))
	client.SetTokenSource(mgr)

	var order comments.ReplyOrder
	if cfg.Live.Sort == config.SortCreatedAt {
		order = comments.ByCreatedAt
	}
	syncer := comments.New(client, mgr, live.NewDialer(userAgent), comments.Options{
		WSHost:     cfg.WS.Host,
		WSSecure:   cfg.WS.Secure,
		ReplyOrder: order,
		Metrics:    collector,
	})

	if err := mgr.Initialize(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"api":   cfg.API.BaseURL,
		"store": cfg.Store.Driver,
		"state": mgr.State().String(),
	}).Debug("Client initialized")

	return &App{
		Config:   cfg,
		Client:   client,
		Session:  mgr,
		Comments: syncer,
		Registry: reg,
		store:    st,
	}, nil
}

// Close releases the live channel and the session store
func (a *App) Close() error {
	a.Comments.Close()
	return a.store.Close()
}

type ctxKey struct{}

// holder builds the App on first use so commands that only need the
// configuration never open the store
type holder struct {
	cfg *config.Config
	app *App
}

// Install stores cfg in ctx for the commands to build on
func Install(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, &holder{cfg: cfg})
}

func lookup(cmd *cobra.Command) (*holder, error) {
	if h, ok := cmd.Context().Value(ctxKey{}).(*holder); ok && h != nil {
		return h, nil
	}
	return nil, errors.New("configuration not loaded")
}

// Config returns the configuration loaded by the root command
func Config(cmd *cobra.Command) (*config.Config, error) {
	h, err := lookup(cmd)
	if err != nil {
		return nil, err
	}
	return h.cfg, nil
}

// From returns the App, building it on first use
func From(cmd *cobra.Command) (*App, error) {
	h, err := lookup(cmd)
	if err != nil {
		return nil, err
	}
	if h.app == nil {
		a, err := New(cmd.Context(), h.cfg)
		if err != nil {
			return nil, err
		}
		h.app = a
	}
	return h.app, nil
}

// Shutdown closes the App if one was built
func Shutdown(cmd *cobra.Command) {
	h, err := lookup(cmd)
	if err != nil || h.app == nil {
		return
	}
	if err := h.app.Close(); err != nil {
		logger.Warnf("Closing client: %v", err)
	}
	h.app = nil
}
