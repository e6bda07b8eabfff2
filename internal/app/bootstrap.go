package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/onsync/onsync/internal/auth"
	"github.com/onsync/onsync/internal/guard"
	"github.com/onsync/onsync/internal/observability"
	"github.com/onsync/onsync/internal/platform/cache"
	"github.com/onsync/onsync/internal/rbac"
	"github.com/onsync/onsync/internal/session"
)

// Services is the assembled runtime shared by the server and the CLI.
type Services struct {
	Config    *Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Catalog   *rbac.Catalog
	Persister session.Persister
	Store     *session.Store
	Client    *auth.Client
	Auth      *auth.Service

	redis *redis.Client
}

// Bootstrap builds the catalog, the session persister and store, and the
// auth service. The store is hydrated before return; a storage failure
// during hydration is logged and leaves the session signed out.
func Bootstrap(ctx context.Context, cfg *Config, fs afero.Fs, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	catalog, err := LoadCatalog(cfg, fs)
	if err != nil {
		return nil, err
	}
	s := &Services{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Catalog: catalog,
	}
	switch cfg.SessionBackend {
	case SessionBackendRedis:
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.Persister = session.NewRedisPersister(client, cfg.SessionNamespace, cfg.SessionTTL)
	case SessionBackendMemory:
		s.Persister = session.NewMemoryPersister()
	default:
		s.Persister = session.NewFilePersister(fs, cfg.SessionFile())
	}

	s.Store = session.NewStore(s.Persister, logger.With(slog.String("component", "session")))
	s.Metrics.Registerer().MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "onsync_session_authenticated",
		Help: "1 while the session store holds an identity.",
	}, func() float64 {
		if s.Store.Get() != nil {
			return 1
		}
		return 0
	}))
	if err := s.Store.Init(ctx); err != nil {
		logger.Warn("session hydration failed", slog.Any("error", err))
	}
	s.Client = auth.NewClient(cfg.APIBaseURL, cfg.APITimeout, s.Metrics)
	s.Auth = auth.NewService(s.Client, s.Store, s.Persister, logger.With(slog.String("component", "auth")))
	return s, nil
}

// Close releases backend connections.
func (s *Services) Close() error {
	if s == nil || s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

// LoadCatalog returns the bundled catalog, or the one at CATALOG_PATH when set.
func LoadCatalog(cfg *Config, fs afero.Fs) (*rbac.Catalog, error) {
	if cfg == nil || cfg.CatalogPath == "" {
		return rbac.DefaultCatalog(), nil
	}
	catalog, err := rbac.LoadCatalog(fs, cfg.CatalogPath, rbac.DefaultChecks())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if catalog.Len() == 0 {
		return nil, errors.New("app: catalog has no pages")
	}
	return catalog, nil
}

// Router assembles the HTTP surface over the services.
func (s *Services) Router() http.Handler {
	return NewRouter(RouterParams{
		Logger:        s.Logger,
		Config:        s.Config,
		Catalog:       s.Catalog,
		AuthHandler:   auth.NewHandler(s.Logger, s.Auth, s.Store),
		AccessHandler: rbac.NewHandler(s.Logger, s.Store, s.Catalog, s.Metrics),
		Guard: guard.Middleware{
			Source:   s.Store,
			Catalog:  s.Catalog,
			Logger:   s.Logger,
			Metrics:  s.Metrics,
			Fallback: s.Config.FallbackPath,
		},
		Metrics: s.Metrics,
	})
}
