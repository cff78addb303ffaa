package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/banksoal/apiserver/config"
	"github.com/banksoal/apiserver/internal/db"
	"github.com/banksoal/apiserver/internal/handlers"
	"github.com/banksoal/apiserver/internal/logger"
	"github.com/banksoal/apiserver/internal/mq"
	"github.com/banksoal/apiserver/internal/services"
	"github.com/banksoal/apiserver/internal/storage"
	"github.com/banksoal/apiserver/internal/store"
)

// Deps are the services the router dispatches to.
type Deps struct {
	QuestionSets handlers.QuestionSetService
	Files        handlers.FileService
	Exporter     handlers.Exporter
	JWTSecret    string
}

// NewRouter builds the HTTP routes with the standard middleware stack.
func NewRouter(deps Deps) *chi.Mux {
	authMiddleware := handlers.RequireAuth(deps.JWTSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logger.Middleware,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Route("/questionsets", func(r chi.Router) {
			handlers.QuestionSetRouter(r, deps.QuestionSets, deps.Exporter, deps.Files)
		})
		r.Route("/files", func(r chi.Router) {
			handlers.FileRouter(r, deps.Files)
		})
	})
	return router
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
	// stopConsumer ends the in-process purge consumer of the memory broker.
	stopConsumer context.CancelFunc
}

type repositories struct {
	sets    services.QuestionSetRepository
	files   services.FileRepository
	courses services.CourseRepository
}

func openRepositories(ctx context.Context, cfg config.Config) (repositories, *sql.DB, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := store.NewMemory()
		return repositories{sets: mem.QuestionSets(), files: mem.Files(), courses: mem.Courses()}, nil, nil
	case config.StoreDriverPostgres:
		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return repositories{}, nil, err
		}
		return repositories{
			sets:    store.NewQuestionSetRepository(dbConn),
			files:   store.NewFileRepository(dbConn),
			courses: store.NewCourseRepository(dbConn),
		}, dbConn, nil
	default:
		return repositories{}, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// New wires storage, broker, repositories and services from cfg.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", objects.Bucket(), err)
	}

	broker, err := mq.Open(ctx, cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("open broker: %w", err)
	}

	repos, dbConn, err := openRepositories(ctx, cfg)
	if err != nil {
		if broker != nil {
			_ = broker.Close()
		}
		return nil, err
	}

	var publisher services.Publisher
	if broker != nil {
		publisher = broker
	}
	purger := services.NewPurger(objects, publisher, cfg.Broker.PurgeChannel)

	var stopConsumer context.CancelFunc
	if cfg.Broker.Backend == config.BrokerMemory {
		stopConsumer = ConsumePurges(broker, cfg.Broker.PurgeChannel, purger)
	}

	questionSets := services.NewQuestionSetService(repos.sets, repos.files, repos.courses, purger)
	files := services.NewFileService(repos.sets, repos.files, objects, purger)
	exporter := services.NewExportService(questionSets, files, cfg.Export.Concurrency)

	router := NewRouter(Deps{
		QuestionSets: questionSets,
		Files:        files,
		Exporter:     exporter,
		JWTSecret:    jwtSecret,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info().
		Int("port", port).
		Str("store", cfg.StoreDriver).
		Str("storage", cfg.Storage.Backend).
		Str("broker", cfg.Broker.Backend).
		Msg("server configured")

	return &Server{
		httpServer:   httpServer,
		router:       router,
		db:           dbConn,
		broker:       broker,
		stopConsumer: stopConsumer,
	}, nil
}

// ConsumePurges runs purger against the purge channel of broker in the
// background until the returned cancel func is called.
func ConsumePurges(broker *mq.MQ, channel string, purger *services.Purger) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		err := broker.Subscribe(ctx, channel, purger.Handle)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, mq.ErrBrokerClosed) {
			logger.Error().Err(err).Str("channel", channel).Msg("purge consumer stopped")
		}
	}()
	return cancel
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and releases the database and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.stopConsumer != nil {
		s.stopConsumer()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
