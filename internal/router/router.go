package router

import (
	"database/sql"
	"net/http"
	"os"

	objlocal "pawtrace-qr/internal/adapters/objstore/local"
	mem "pawtrace-qr/internal/adapters/storage/memory"
	pg "pawtrace-qr/internal/adapters/storage/postgres"
	"pawtrace-qr/internal/domain/export"
	"pawtrace-qr/internal/domain/pool"
	"pawtrace-qr/internal/middleware"
	"pawtrace-qr/internal/platform/logger"
	"pawtrace-qr/internal/platform/metrics"
	"pawtrace-qr/internal/ports/auth"
	"pawtrace-qr/internal/ports/objstore"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Base pública que va dentro de cada QR ("https://pawtrace.app").
	BaseURL string

	// Opcional: cache de rasters. Si es nil y hay OBJSTORE_DIR, se arma
	// un store local; sin ninguno de los dos, no se cachea.
	ObjStore objstore.Store

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	log := opts.Logger
	if log == nil {
		log = logger.NewFromEnv()
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("QR_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://pawtrace.app"
	}

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				db = opened
			} else {
				log.Warn("postgres unavailable, falling back to memory", map[string]any{"err": err.Error()})
			}
		}
	}

	var repo pool.Repository
	if db != nil {
		repo = pg.NewPoolRepo(db)
	} else {
		repo = mem.NewPoolRepo()
	}

	store := opts.ObjStore
	if store == nil {
		if dir := os.Getenv("OBJSTORE_DIR"); dir != "" {
			s, err := objlocal.NewStore(dir, baseURL+"/static")
			if err == nil {
				store = s
			} else {
				log.Warn("objstore unavailable, raster cache disabled", map[string]any{"err": err.Error()})
			}
		}
	}

	// Services por módulo
	poolSvc := pool.NewService(repo, pool.Config{}, log, opts.Metrics)
	exportSvc := export.NewService(repo, baseURL, log)

	// Rutas por módulo
	pool.RegisterRoutes(r, poolSvc)
	export.RegisterRoutes(r, exportSvc, store, log)

	return r
}
